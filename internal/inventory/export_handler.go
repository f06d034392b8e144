package inventory

import (
	"bytes"
	"fmt"
	"time"

	"paneltrack-backend/internal/database"
	"paneltrack-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

// GET /api/inventory/export
// Full inventory snapshot as an xlsx workbook, one sheet per unit kind.
func ExportInventoryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var panels []models.Panel
		if err := database.DB.Order("serial_number").Find(&panels).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load panels")
		}
		var crates []models.Crate
		if err := database.DB.Order("serial_number").Find(&crates).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load crates")
		}

		f := excelize.NewFile()
		defer func() { _ = f.Close() }()

		panelSheet := f.GetSheetName(f.GetActiveSheetIndex())
		if err := f.SetSheetName(panelSheet, "Panels"); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not build workbook")
		}
		if err := writeUnitSheet(f, "Panels", panelRows(panels)); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not build workbook")
		}

		if _, err := f.NewSheet("Crates"); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not build workbook")
		}
		if err := writeUnitSheet(f, "Crates", crateRows(crates)); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not build workbook")
		}

		buf := &bytes.Buffer{}
		if err := f.Write(buf); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not write workbook")
		}

		fileName := fmt.Sprintf("inventory_%s.xlsx", time.Now().Format("20060102_150405"))
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=%q`, fileName))
		return c.Send(buf.Bytes())
	}
}

func writeUnitSheet(f *excelize.File, sheet string, rows [][]interface{}) error {
	header := []interface{}{
		"serial_number",
		"included",
		"received",
		"received_at",
		"is_active",
		"DOM",
		"DOE",
		"PCM",
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func panelRows(panels []models.Panel) [][]interface{} {
	rows := make([][]interface{}, 0, len(panels))
	for _, p := range panels {
		rows = append(rows, unitRowValues(p.SerialNumber, p.Included, p.Received, p.ReceivedAt, p.IsActive, p.DOM, p.DOE, p.PCM))
	}
	return rows
}

func crateRows(crates []models.Crate) [][]interface{} {
	rows := make([][]interface{}, 0, len(crates))
	for _, cr := range crates {
		rows = append(rows, unitRowValues(cr.SerialNumber, cr.Included, cr.Received, cr.ReceivedAt, cr.IsActive, cr.DOM, cr.DOE, cr.PCM))
	}
	return rows
}

func unitRowValues(serial string, included bool, received *bool, receivedAt *time.Time, active bool, dom, doe *time.Time, pcm string) []interface{} {
	recv := ""
	if received != nil {
		recv = fmt.Sprintf("%t", *received)
	}
	return []interface{}{
		serial,
		included,
		recv,
		formatDate(receivedAt),
		active,
		formatDate(dom),
		formatDate(doe),
		pcm,
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
