package inventory

import (
	"time"

	"paneltrack-backend/internal/database"
	"paneltrack-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreatePanelRequest struct {
	SerialNumber string     `json:"serialNumber"`
	DOM          *time.Time `json:"DOM"`
	DOE          *time.Time `json:"DOE"`
	PCM          string     `json:"PCM"`
}

// UnitUpdateRequest uses pointers so absent fields are left untouched.
type UnitUpdateRequest struct {
	SerialNumber *string    `json:"serialNumber"`
	Included     *bool      `json:"included"`
	Received     *bool      `json:"received"`
	ReceivedAt   *time.Time `json:"receivedAt"`
	IsActive     *bool      `json:"isActive"`
	DOM          *time.Time `json:"DOM"`
	DOE          *time.Time `json:"DOE"`
	PCM          *string    `json:"PCM"`
}

// POST /api/panel
func CreatePanelHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreatePanelRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.SerialNumber == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Serial number is required")
		}

		var existing models.Panel
		if err := database.DB.Where("serial_number = ?", body.SerialNumber).First(&existing).Error; err == nil {
			return fiber.NewError(fiber.StatusConflict, "Serial number already exists")
		}

		panel := models.Panel{
			SerialNumber: body.SerialNumber,
			DOM:          body.DOM,
			DOE:          body.DOE,
			PCM:          body.PCM,
			IsActive:     true,
		}

		if err := database.DB.Create(&panel).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create panel")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"status":  true,
			"data":    panel,
			"message": "Panel created successfully",
		})
	}
}

// GET /api/panel
// Supports ?search= over serial numbers and ?page=&pageSize= pagination.
// Each panel is annotated with the asset number of the batch holding it.
func ListPanelsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := database.DB.Model(&models.Panel{})
		if search := c.Query("search"); search != "" {
			query = query.Where("LOWER(serial_number) LIKE LOWER(?)", "%"+search+"%")
		}

		var total int64
		if err := query.Count(&total).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not count panels")
		}

		if c.Query("page") != "" {
			page := c.QueryInt("page", 1)
			pageSize := c.QueryInt("pageSize", 10)
			query = query.Offset((page - 1) * pageSize).Limit(pageSize)
		}

		var panels []models.Panel
		if err := query.Find(&panels).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list panels")
		}

		assetNumbers, err := batchAssetNumbersFor(panels)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not resolve batch membership")
		}

		type panelWithBatch struct {
			models.Panel
			AssetNumber *string `json:"AssetNumber"`
		}
		resp := make([]panelWithBatch, 0, len(panels))
		for _, p := range panels {
			row := panelWithBatch{Panel: p}
			if asset, ok := assetNumbers[p.ID]; ok {
				row.AssetNumber = &asset
			}
			resp = append(resp, row)
		}

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    resp,
			"total":   total,
			"message": "Panels fetched successfully",
		})
	}
}

// batchAssetNumbersFor resolves panel→batch membership in one joined query
// instead of a lookup per panel.
func batchAssetNumbersFor(panels []models.Panel) (map[uint]string, error) {
	out := make(map[uint]string, len(panels))
	if len(panels) == 0 {
		return out, nil
	}
	ids := make([]uint, 0, len(panels))
	for _, p := range panels {
		ids = append(ids, p.ID)
	}

	var rows []struct {
		PanelID     uint
		AssetNumber string
	}
	err := database.DB.Table("batch_panels").
		Select("batch_panels.panel_id AS panel_id, batches.asset_number AS asset_number").
		Joins("JOIN batches ON batches.id = batch_panels.batch_id").
		Where("batch_panels.panel_id IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.PanelID] = r.AssetNumber
	}
	return out, nil
}

// GET /api/panel/batch
// Panels selectable for a new batch.
func GetPanelsForBatchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		panels, err := ListAvailablePanels(database.DB)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list panels")
		}
		return c.JSON(fiber.Map{
			"status":  true,
			"data":    panels,
			"message": "Panels fetched successfully",
		})
	}
}

// GET /api/panel/by/serial?serial=...
func GetPanelBySerialHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		serial := c.Query("serial")
		if serial == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Serial number is required")
		}

		var panel models.Panel
		if err := database.DB.Where("serial_number = ?", serial).First(&panel).Error; err != nil {
			return c.JSON(fiber.Map{
				"status":  true,
				"data":    nil,
				"canScan": true,
			})
		}

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    panel,
			"canScan": canScan(panel.Included, panel.Received),
			"message": "Panel fetched successfully",
		})
	}
}

type BulkPanelsRequest struct {
	Panels []CreatePanelRequest `json:"panels"`
}

// POST /api/panel/bulk
// Each record stands alone: existing serials are skipped, not failed, and
// no record rolls back because of another one.
func BulkUploadPanelsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body BulkPanelsRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if len(body.Panels) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "No panels provided for bulk upload")
		}

		added := make([]models.Panel, 0, len(body.Panels))
		skipped := make([]CreatePanelRequest, 0)

		for _, in := range body.Panels {
			if in.SerialNumber == "" {
				skipped = append(skipped, in)
				continue
			}
			var existing models.Panel
			if err := database.DB.Where("serial_number = ?", in.SerialNumber).First(&existing).Error; err == nil {
				skipped = append(skipped, in)
				continue
			}
			panel := models.Panel{
				SerialNumber: in.SerialNumber,
				DOM:          in.DOM,
				DOE:          in.DOE,
				PCM:          in.PCM,
				IsActive:     true,
			}
			if err := database.DB.Create(&panel).Error; err != nil {
				skipped = append(skipped, in)
				continue
			}
			added = append(added, panel)
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"status":  true,
			"added":   added,
			"skipped": skipped,
			"message": "Bulk upload completed with skipped panels",
		})
	}
}

// GET /api/panel/:id
func GetPanelByIDHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var panel models.Panel
		if err := database.DB.First(&panel, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Panel not found")
		}
		return c.JSON(fiber.Map{
			"status":  true,
			"data":    panel,
			"message": "Panel fetched successfully",
		})
	}
}

// PUT /api/panel/:id
func UpdatePanelByIDHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var panel models.Panel
		if err := database.DB.First(&panel, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Panel not found")
		}
		return updatePanel(c, &panel)
	}
}

// PUT /api/panel
// Update by serial number, for scanner clients that never see ids.
func UpdatePanelBySerialHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body UnitUpdateRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.SerialNumber == nil || *body.SerialNumber == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Serial number cannot be blank")
		}

		var panel models.Panel
		if err := database.DB.Where("serial_number = ?", *body.SerialNumber).First(&panel).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Panel not found")
		}
		return applyPanelUpdate(c, &panel, body)
	}
}

func updatePanel(c *fiber.Ctx, panel *models.Panel) error {
	var body UnitUpdateRequest
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return applyPanelUpdate(c, panel, body)
}

func applyPanelUpdate(c *fiber.Ctx, panel *models.Panel, body UnitUpdateRequest) error {
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if body.SerialNumber != nil && *body.SerialNumber != "" {
			panel.SerialNumber = *body.SerialNumber
		}
		if body.DOM != nil {
			panel.DOM = body.DOM
		}
		if body.DOE != nil {
			panel.DOE = body.DOE
		}
		if body.PCM != nil {
			panel.PCM = *body.PCM
		}
		if body.IsActive != nil {
			panel.IsActive = *body.IsActive
		}
		if err := tx.Save(panel).Error; err != nil {
			return err
		}

		included := panel.Included
		if body.Included != nil {
			included = *body.Included
			if err := SetInclusion(tx, KindPanel, []uint{panel.ID}, included); err != nil {
				return err
			}
			if !included {
				// excluded directly at the unit level: detach from any batch
				if err := tx.Exec("DELETE FROM batch_panels WHERE panel_id = ?", panel.ID).Error; err != nil {
					return err
				}
			}
		}
		if body.Received != nil {
			// receipt is an outcome of membership: an excluded unit has none
			if !included {
				return fiber.NewError(fiber.StatusBadRequest, "Cannot record a receipt for a panel that is not part of a batch")
			}
			at := time.Now()
			if body.ReceivedAt != nil {
				at = *body.ReceivedAt
			}
			if err := MarkReceived(tx, KindPanel, []uint{panel.ID}, *body.Received, at); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if fe, ok := err.(*fiber.Error); ok {
			return fe
		}
		return fiber.NewError(fiber.StatusInternalServerError, "Could not update panel")
	}

	var updated models.Panel
	if err := database.DB.First(&updated, panel.ID).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Could not reload panel")
	}

	return c.JSON(fiber.Map{
		"status":  true,
		"data":    updated,
		"message": "Panel updated successfully",
	})
}

// DELETE /api/panel/:id
// The panel record goes away; any batch holding it keeps living and simply
// loses the reference.
func DeletePanelByIDHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var panel models.Panel
		if err := database.DB.First(&panel, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Panel not found")
		}

		err := database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec("DELETE FROM batch_panels WHERE panel_id = ?", panel.ID).Error; err != nil {
				return err
			}
			return tx.Delete(&panel).Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete panel")
		}

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    nil,
			"message": "Panel deleted successfully",
		})
	}
}
