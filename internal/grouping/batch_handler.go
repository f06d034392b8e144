package grouping

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"paneltrack-backend/internal/audit"
	"paneltrack-backend/internal/auth"
	"paneltrack-backend/internal/database"
	"paneltrack-backend/internal/inventory"
	"paneltrack-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreateBatchRequest struct {
	AssetNumber      string     `json:"AssetNumber"`
	Panels           []uint     `json:"panels"`
	UserID           *uint      `json:"user"`
	PCM              string     `json:"PCM"`
	DOM              *time.Time `json:"DOM"`
	WhLocation       string     `json:"WhLocation"`
	DeliveryLocation string     `json:"DeliveryLocation"`
	ReceivedAt       *time.Time `json:"receivedAt"`
	Received         *bool      `json:"received"`
	Dispatched       *time.Time `json:"Dispatched"`
}

type UpdateBatchRequest struct {
	Panels           *[]uint    `json:"panels"`
	UserID           *uint      `json:"user"`
	PCM              *string    `json:"PCM"`
	DOM              *time.Time `json:"DOM"`
	WhLocation       *string    `json:"WhLocation"`
	DeliveryLocation *string    `json:"DeliveryLocation"`
	Received         *bool      `json:"received"`
	ReceivedAt       *time.Time `json:"receivedAt"`
}

// POST /api/batch
// Persisting the batch and flagging its panels included happen inside one
// transaction, so a failed flag update can never leave a batch whose
// panels look unclaimed.
func CreateBatchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateBatchRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.AssetNumber == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Asset number is required")
		}

		var existing models.Batch
		if err := database.DB.Where("asset_number = ?", body.AssetNumber).First(&existing).Error; err == nil {
			return fiber.NewError(fiber.StatusConflict, "Asset number already exists")
		}

		var batch models.Batch
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			if err := verifyAssignableUnits(tx, inventory.KindPanel, body.Panels); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}

			batch = models.Batch{
				AssetNumber:      body.AssetNumber,
				UserID:           body.UserID,
				PCM:              body.PCM,
				DOM:              body.DOM,
				WhLocation:       body.WhLocation,
				DeliveryLocation: body.DeliveryLocation,
				ReceivedAt:       body.ReceivedAt,
				Dispatched:       body.Dispatched,
			}
			if body.Received != nil {
				batch.Received = *body.Received
			}
			if err := tx.Create(&batch).Error; err != nil {
				return err
			}
			if err := releasePanelMemberships(tx, body.Panels); err != nil {
				return err
			}
			if err := replaceBatchPanels(tx, batch.ID, body.Panels); err != nil {
				return err
			}
			return inventory.SetInclusion(tx, inventory.KindPanel, body.Panels, true)
		})
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				return fe
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create batch")
		}

		userID, userName := callerInfo(c)
		_ = audit.WriteLog(audit.LogOptions{
			UserID:      userID,
			UserName:    userName,
			EntityType:  "batch",
			EntityID:    batch.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Batch %s created with %d panels", batch.AssetNumber, len(body.Panels)),
			After:       batch,
		})

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"status":  true,
			"data":    loadBatch(batch.ID),
			"message": "Batch created successfully",
		})
	}
}

type ScanToCreateBatchRequest struct {
	AssetNumber string   `json:"AssetNumber"`
	Panels      []string `json:"panels"` // serial numbers as scanned
	UserID      *uint    `json:"user"`
}

// POST /api/batch/scan-to-create
// Serials are reconciled against the panel registry first: unknown serials
// become new panels, known-and-active ones are reused, inactive ones are
// dropped.
func ScanToCreateBatchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ScanToCreateBatchRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.AssetNumber == "" || len(body.Panels) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Asset number and a non-empty list of panel serials are required")
		}

		var existing models.Batch
		if err := database.DB.Where("asset_number = ?", body.AssetNumber).First(&existing).Error; err == nil {
			return fiber.NewError(fiber.StatusConflict, "Asset number already exists")
		}

		var batch models.Batch
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			panelIDs, err := inventory.ReconcileSerials(tx, inventory.KindPanel, body.Panels)
			if err != nil {
				return err
			}

			batch = models.Batch{
				AssetNumber: body.AssetNumber,
				UserID:      body.UserID,
			}
			if err := tx.Create(&batch).Error; err != nil {
				return err
			}
			if err := releasePanelMemberships(tx, panelIDs); err != nil {
				return err
			}
			return replaceBatchPanels(tx, batch.ID, panelIDs)
		})
		if err != nil {
			return scanCreateError(err, "Could not create batch from scan")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"status":  true,
			"data":    loadBatch(batch.ID),
			"message": "Batch created successfully",
		})
	}
}

type BulkBatchesRequest struct {
	Batches []CreateBatchRequest `json:"batches"`
}

// POST /api/batch/bulk
func BulkUploadBatchesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body BulkBatchesRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if len(body.Batches) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "No batches provided for bulk upload")
		}

		added := make([]models.Batch, 0, len(body.Batches))
		skipped := make([]CreateBatchRequest, 0)

		for _, in := range body.Batches {
			if in.AssetNumber == "" {
				skipped = append(skipped, in)
				continue
			}
			var existing models.Batch
			if err := database.DB.Where("asset_number = ?", in.AssetNumber).First(&existing).Error; err == nil {
				skipped = append(skipped, in)
				continue
			}

			var batch models.Batch
			err := database.DB.Transaction(func(tx *gorm.DB) error {
				if err := verifyAssignableUnits(tx, inventory.KindPanel, in.Panels); err != nil {
					return err
				}
				batch = models.Batch{
					AssetNumber:      in.AssetNumber,
					UserID:           in.UserID,
					PCM:              in.PCM,
					DOM:              in.DOM,
					WhLocation:       in.WhLocation,
					DeliveryLocation: in.DeliveryLocation,
				}
				if err := tx.Create(&batch).Error; err != nil {
					return err
				}
				if err := releasePanelMemberships(tx, in.Panels); err != nil {
					return err
				}
				if err := replaceBatchPanels(tx, batch.ID, in.Panels); err != nil {
					return err
				}
				return inventory.SetInclusion(tx, inventory.KindPanel, in.Panels, true)
			})
			if err != nil {
				skipped = append(skipped, in)
				continue
			}
			added = append(added, batch)
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"status":  true,
			"added":   added,
			"skipped": skipped,
			"message": "Bulk upload completed with skipped batches",
		})
	}
}

// GET /api/batch
func ListBatchesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var batches []models.Batch
		if err := database.DB.
			Preload("Panels").
			Preload("User").
			Preload("DispatchedByUser").
			Order("created_at DESC").
			Find(&batches).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list batches")
		}
		return c.JSON(fiber.Map{
			"status":  true,
			"data":    batches,
			"message": "Batches fetched successfully",
		})
	}
}

// GET /api/batch/:id
func GetBatchByIDHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var batch models.Batch
		if err := database.DB.
			Preload("Panels").
			Preload("User").
			Preload("DispatchedByUser").
			First(&batch, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Batch not found")
		}
		return c.JSON(fiber.Map{
			"status":  true,
			"data":    batch,
			"message": "Batch fetched successfully",
		})
	}
}

// PUT /api/batch/:id
// When a panel list is supplied the registry computes the added/removed
// diff against the stored list itself; clients do not ship diffs.
func UpdateBatchByIDHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var batch models.Batch
		if err := database.DB.Preload("Panels").First(&batch, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Batch not found")
		}

		var body UpdateBatchRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		err := database.DB.Transaction(func(tx *gorm.DB) error {
			if body.UserID != nil {
				batch.UserID = body.UserID
			}
			if body.PCM != nil {
				batch.PCM = *body.PCM
			}
			if body.DOM != nil {
				batch.DOM = body.DOM
			}
			if body.WhLocation != nil {
				batch.WhLocation = *body.WhLocation
			}
			if body.DeliveryLocation != nil {
				batch.DeliveryLocation = *body.DeliveryLocation
			}

			memberIDs := make([]uint, 0, len(batch.Panels))
			for _, p := range batch.Panels {
				memberIDs = append(memberIDs, p.ID)
			}

			if body.Panels != nil {
				added, removed := diffIDs(memberIDs, *body.Panels)
				if err := verifyAssignableUnits(tx, inventory.KindPanel, added); err != nil {
					return fiber.NewError(fiber.StatusBadRequest, err.Error())
				}
				if err := releasePanelMemberships(tx, added); err != nil {
					return err
				}
				if err := replaceBatchPanels(tx, batch.ID, *body.Panels); err != nil {
					return err
				}
				if err := inventory.SetInclusion(tx, inventory.KindPanel, added, true); err != nil {
					return err
				}
				if err := inventory.SetInclusion(tx, inventory.KindPanel, removed, false); err != nil {
					return err
				}
				memberIDs = *body.Panels
			}

			if body.Received != nil {
				at := time.Now()
				if body.ReceivedAt != nil {
					at = *body.ReceivedAt
				}
				batch.Received = *body.Received
				batch.ReceivedAt = &at
				if err := inventory.MarkReceived(tx, inventory.KindPanel, memberIDs, *body.Received, at); err != nil {
					return err
				}
			}

			return tx.Save(&batch).Error
		})
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				return fe
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update batch")
		}

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    loadBatch(batch.ID),
			"message": "Batch updated successfully",
		})
	}
}

type UpdateBatchesByKeyRequest struct {
	AssetNumber json.RawMessage `json:"AssetNumber"` // string or array of strings
	Received    *bool           `json:"received"`
	ReceivedAt  *time.Time      `json:"receivedAt"`
	WhLocation  *string         `json:"WhLocation"`
}

// PUT /api/batch
// Applies the same scalar updates to every batch matching the given asset
// number(s). Receipt marks propagate to member panels. The caller becomes
// dispatchedBy, matching how field devices confirm deliveries.
func UpdateBatchesByKeyHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body UpdateBatchesByKeyRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		keys := parseKeyList(body.AssetNumber)
		if len(keys) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Asset number cannot be blank")
		}

		var batches []models.Batch
		if err := database.DB.Preload("Panels").Where("asset_number IN ?", keys).Find(&batches).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load batches")
		}
		if len(batches) == 0 {
			return fiber.NewError(fiber.StatusNotFound, "Batches not found")
		}

		callerID := auth.CallerID(c)
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			for i := range batches {
				batch := &batches[i]
				if callerID != 0 {
					batch.DispatchedBy = &callerID
				}
				if body.WhLocation != nil {
					batch.WhLocation = *body.WhLocation
				}
				if body.Received != nil {
					at := time.Now()
					if body.ReceivedAt != nil {
						at = *body.ReceivedAt
					}
					batch.Received = *body.Received
					batch.ReceivedAt = &at

					memberIDs := make([]uint, 0, len(batch.Panels))
					for _, p := range batch.Panels {
						memberIDs = append(memberIDs, p.ID)
					}
					if err := inventory.MarkReceived(tx, inventory.KindPanel, memberIDs, *body.Received, at); err != nil {
						return err
					}
				}
				if err := tx.Save(batch).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update batches")
		}

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    batches,
			"message": "Batches updated successfully",
		})
	}
}

type DispatchBatchRequest struct {
	AssetNumber json.RawMessage `json:"AssetNumber"`
}

// POST /api/batch/dispatch
// Idempotent overwrite: re-dispatching refreshes the timestamp and the
// dispatching user.
func DispatchBatchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body DispatchBatchRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		keys := parseKeyList(body.AssetNumber)
		if len(keys) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Asset number cannot be blank")
		}

		var dispatchedBy interface{}
		if callerID := auth.CallerID(c); callerID != 0 {
			dispatchedBy = callerID
		}
		result := database.DB.Model(&models.Batch{}).
			Where("asset_number IN ?", keys).
			Updates(map[string]interface{}{
				"dispatched":    time.Now(),
				"dispatched_by": dispatchedBy,
			})
		if result.Error != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not dispatch batches")
		}
		if result.RowsAffected == 0 {
			return fiber.NewError(fiber.StatusNotFound, "Batches not found")
		}

		userID, userName := callerInfo(c)
		_ = audit.WriteLog(audit.LogOptions{
			UserID:      userID,
			UserName:    userName,
			EntityType:  "batch",
			Action:      models.AuditActionDispatch,
			Description: fmt.Sprintf("Dispatched batches: %s", strings.Join(keys, ", ")),
		})

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    fiber.Map{"dispatched": result.RowsAffected},
			"message": "Batches dispatched successfully",
		})
	}
}

// DELETE /api/batch/:id
// Load-before-delete: the stored panel list is captured first so every
// member can be released.
func DeleteBatchByIDHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var batch models.Batch
		if err := database.DB.Preload("Panels").First(&batch, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Batch not found")
		}

		err := database.DB.Transaction(func(tx *gorm.DB) error {
			memberIDs := make([]uint, 0, len(batch.Panels))
			for _, p := range batch.Panels {
				memberIDs = append(memberIDs, p.ID)
			}
			if err := inventory.SetInclusion(tx, inventory.KindPanel, memberIDs, false); err != nil {
				return err
			}
			if err := tx.Exec("DELETE FROM batch_panels WHERE batch_id = ?", batch.ID).Error; err != nil {
				return err
			}
			return tx.Delete(&batch).Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete batch")
		}

		userID, userName := callerInfo(c)
		_ = audit.WriteLog(audit.LogOptions{
			UserID:      userID,
			UserName:    userName,
			EntityType:  "batch",
			EntityID:    batch.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Batch %s deleted, %d panels released", batch.AssetNumber, len(batch.Panels)),
			Before:      batch,
		})

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    nil,
			"message": "Batch deleted successfully",
		})
	}
}

func loadBatch(id uint) *models.Batch {
	var batch models.Batch
	if err := database.DB.
		Preload("Panels").
		Preload("User").
		Preload("DispatchedByUser").
		First(&batch, id).Error; err != nil {
		return nil
	}
	return &batch
}
