package inventory

import (
	"time"

	"paneltrack-backend/internal/database"
	"paneltrack-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreateCrateRequest struct {
	SerialNumber string     `json:"serialNumber"`
	DOM          *time.Time `json:"DOM"`
	DOE          *time.Time `json:"DOE"`
	PCM          string     `json:"PCM"`
}

// POST /api/crate
func CreateCrateHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateCrateRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.SerialNumber == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Serial number is required")
		}

		var existing models.Crate
		if err := database.DB.Where("serial_number = ?", body.SerialNumber).First(&existing).Error; err == nil {
			return fiber.NewError(fiber.StatusConflict, "Serial number already exists")
		}

		crate := models.Crate{
			SerialNumber: body.SerialNumber,
			DOM:          body.DOM,
			DOE:          body.DOE,
			PCM:          body.PCM,
			IsActive:     true,
		}

		if err := database.DB.Create(&crate).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create crate")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"status":  true,
			"data":    crate,
			"message": "Crate created successfully",
		})
	}
}

// GET /api/crate
// Annotates every crate with the route (and its customers) currently
// holding it.
func ListCratesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := database.DB.Model(&models.Crate{})
		if search := c.Query("search"); search != "" {
			query = query.Where("LOWER(serial_number) LIKE LOWER(?)", "%"+search+"%")
		}

		var total int64
		if err := query.Count(&total).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not count crates")
		}

		if c.Query("page") != "" {
			page := c.QueryInt("page", 1)
			pageSize := c.QueryInt("pageSize", 10)
			query = query.Offset((page - 1) * pageSize).Limit(pageSize)
		}

		var crates []models.Crate
		if err := query.Find(&crates).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list crates")
		}

		membership, err := routeMembershipFor(crates)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not resolve route membership")
		}

		type crateWithRoute struct {
			models.Crate
			Name      *string  `json:"Name"`
			Customers []string `json:"Customers"`
		}
		resp := make([]crateWithRoute, 0, len(crates))
		for _, crate := range crates {
			row := crateWithRoute{Crate: crate, Customers: []string{}}
			if m, ok := membership[crate.ID]; ok {
				row.Name = &m.routeName
				row.Customers = m.customers
			}
			resp = append(resp, row)
		}

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    resp,
			"total":   total,
			"message": "Crates fetched successfully",
		})
	}
}

type crateMembership struct {
	routeName string
	customers []string
}

func routeMembershipFor(crates []models.Crate) (map[uint]crateMembership, error) {
	out := make(map[uint]crateMembership, len(crates))
	if len(crates) == 0 {
		return out, nil
	}
	ids := make([]uint, 0, len(crates))
	for _, crate := range crates {
		ids = append(ids, crate.ID)
	}

	var rows []struct {
		CrateID      uint
		RouteName    string
		CustomerName string
	}
	err := database.DB.Table("delivery_crates").
		Select("delivery_crates.crate_id AS crate_id, routes.name AS route_name, users.name AS customer_name").
		Joins("JOIN deliveries ON deliveries.id = delivery_crates.delivery_id").
		Joins("JOIN routes ON routes.id = deliveries.route_id").
		Joins("JOIN users ON users.id = deliveries.customer_id").
		Where("delivery_crates.crate_id IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		m := out[r.CrateID]
		m.routeName = r.RouteName
		m.customers = append(m.customers, r.CustomerName)
		out[r.CrateID] = m
	}
	return out, nil
}

// GET /api/crate/route
// Crates selectable for a new route.
func GetCratesForRouteHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		crates, err := ListAvailableCrates(database.DB)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list crates")
		}
		return c.JSON(fiber.Map{
			"status":  true,
			"data":    crates,
			"message": "Crates fetched successfully",
		})
	}
}

// GET /api/crate/by/serial?serial=...
func GetCrateBySerialHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		serial := c.Query("serial")
		if serial == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Serial number is required")
		}

		var crate models.Crate
		if err := database.DB.Where("serial_number = ?", serial).First(&crate).Error; err != nil {
			// unknown serial is still scannable, the scan flow will create it
			return c.JSON(fiber.Map{
				"status":  true,
				"data":    nil,
				"canScan": true,
			})
		}

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    crate,
			"canScan": canScan(crate.Included, crate.Received),
			"message": "Crate fetched successfully",
		})
	}
}

type BulkCratesRequest struct {
	Crates []CreateCrateRequest `json:"crates"`
}

// POST /api/crate/bulk
func BulkUploadCratesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body BulkCratesRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if len(body.Crates) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "No crates provided for bulk upload")
		}

		added := make([]models.Crate, 0, len(body.Crates))
		skipped := make([]CreateCrateRequest, 0)

		for _, in := range body.Crates {
			if in.SerialNumber == "" {
				skipped = append(skipped, in)
				continue
			}
			var existing models.Crate
			if err := database.DB.Where("serial_number = ?", in.SerialNumber).First(&existing).Error; err == nil {
				skipped = append(skipped, in)
				continue
			}
			crate := models.Crate{
				SerialNumber: in.SerialNumber,
				DOM:          in.DOM,
				DOE:          in.DOE,
				PCM:          in.PCM,
				IsActive:     true,
			}
			if err := database.DB.Create(&crate).Error; err != nil {
				skipped = append(skipped, in)
				continue
			}
			added = append(added, crate)
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"status":  true,
			"added":   added,
			"skipped": skipped,
			"message": "Bulk upload completed with skipped crates",
		})
	}
}

// GET /api/crate/:id
func GetCrateByIDHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var crate models.Crate
		if err := database.DB.First(&crate, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Crate not found")
		}
		return c.JSON(fiber.Map{
			"status":  true,
			"data":    crate,
			"message": "Crate fetched successfully",
		})
	}
}

// PUT /api/crate/:id
func UpdateCrateByIDHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var crate models.Crate
		if err := database.DB.First(&crate, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Crate not found")
		}

		var body UnitUpdateRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		return applyCrateUpdate(c, &crate, body)
	}
}

// PUT /api/crate
func UpdateCrateBySerialHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body UnitUpdateRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.SerialNumber == nil || *body.SerialNumber == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Serial number cannot be blank")
		}

		var crate models.Crate
		if err := database.DB.Where("serial_number = ?", *body.SerialNumber).First(&crate).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Crate not found")
		}
		return applyCrateUpdate(c, &crate, body)
	}
}

func applyCrateUpdate(c *fiber.Ctx, crate *models.Crate, body UnitUpdateRequest) error {
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if body.SerialNumber != nil && *body.SerialNumber != "" {
			crate.SerialNumber = *body.SerialNumber
		}
		if body.DOM != nil {
			crate.DOM = body.DOM
		}
		if body.DOE != nil {
			crate.DOE = body.DOE
		}
		if body.PCM != nil {
			crate.PCM = *body.PCM
		}
		if body.IsActive != nil {
			crate.IsActive = *body.IsActive
		}
		if err := tx.Save(crate).Error; err != nil {
			return err
		}

		included := crate.Included
		if body.Included != nil {
			included = *body.Included
			if err := SetInclusion(tx, KindCrate, []uint{crate.ID}, included); err != nil {
				return err
			}
			if !included {
				if err := tx.Exec("DELETE FROM delivery_crates WHERE crate_id = ?", crate.ID).Error; err != nil {
					return err
				}
			}
		}
		if body.Received != nil {
			// receipt is an outcome of membership: an excluded unit has none
			if !included {
				return fiber.NewError(fiber.StatusBadRequest, "Cannot record a receipt for a crate that is not part of a route")
			}
			at := time.Now()
			if body.ReceivedAt != nil {
				at = *body.ReceivedAt
			}
			if err := MarkReceived(tx, KindCrate, []uint{crate.ID}, *body.Received, at); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if fe, ok := err.(*fiber.Error); ok {
			return fe
		}
		return fiber.NewError(fiber.StatusInternalServerError, "Could not update crate")
	}

	var updated models.Crate
	if err := database.DB.First(&updated, crate.ID).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Could not reload crate")
	}

	return c.JSON(fiber.Map{
		"status":  true,
		"data":    updated,
		"message": "Crate updated successfully",
	})
}

// DELETE /api/crate/:id
func DeleteCrateByIDHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var crate models.Crate
		if err := database.DB.First(&crate, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Crate not found")
		}

		err := database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec("DELETE FROM delivery_crates WHERE crate_id = ?", crate.ID).Error; err != nil {
				return err
			}
			return tx.Delete(&crate).Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete crate")
		}

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    nil,
			"message": "Crate deleted successfully",
		})
	}
}
