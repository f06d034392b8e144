package grouping

import (
	"encoding/json"
	"errors"
	"fmt"

	"paneltrack-backend/internal/auth"
	"paneltrack-backend/internal/inventory"
	"paneltrack-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// callerInfo pulls the authenticated identity for audit denormalization.
func callerInfo(c *fiber.Ctx) (uint, string) {
	id := auth.CallerID(c)
	name, _ := c.Locals(auth.CtxUserNameKey).(string)
	return id, name
}

// DeliveryInput: one customer's crate allocation within a route payload.
type DeliveryInput struct {
	CustomerID uint   `json:"customerId"`
	CrateIDs   []uint `json:"crateIds"`
}

// diffIDs computes the symmetric difference between the stored unit list
// and the requested one. The registry derives added/removed itself instead
// of trusting caller-supplied diff lists, which removes a class of client
// bugs around stale inclusion flags.
func diffIDs(stored, requested []uint) (added, removed []uint) {
	inStored := make(map[uint]struct{}, len(stored))
	for _, id := range stored {
		inStored[id] = struct{}{}
	}
	inRequested := make(map[uint]struct{}, len(requested))
	for _, id := range requested {
		inRequested[id] = struct{}{}
	}

	for _, id := range requested {
		if _, ok := inStored[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range stored {
		if _, ok := inRequested[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}

// parseKeyList accepts the external key either as a plain string or as an
// array of strings. Update-by-key endpoints take both shapes.
func parseKeyList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		out := make([]string, 0, len(many))
		for _, k := range many {
			if k != "" {
				out = append(out, k)
			}
		}
		return out
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil && one != "" {
		return []string{one}
	}
	return nil
}

// verifyAssignableUnits checks that every id refers to an existing, active
// unit that is selectable for a new grouping entity: unclaimed, or claimed
// but already received. A unit held by another entity mid-leg must never be
// joined to a second one.
func verifyAssignableUnits(tx *gorm.DB, kind inventory.Kind, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	var count int64
	if err := tx.Model(kind.Model()).
		Where("id IN ? AND is_active = ? AND (included = ? OR received = ?)", ids, true, false, true).
		Count(&count).Error; err != nil {
		return err
	}
	if count != int64(len(ids)) {
		return fmt.Errorf("%d of %d %ss are unknown, inactive or already assigned", int64(len(ids))-count, len(ids), kind)
	}
	return nil
}

// scanCreateError maps a scan-to-create transaction failure to its HTTP
// form instead of collapsing everything into one generic 500. A partial
// ingestion gets its own message so the operator knows a retry with the
// same serial list converges.
func scanCreateError(err error, fallback string) *fiber.Error {
	if fe, ok := err.(*fiber.Error); ok {
		return fe
	}
	if errors.Is(err, inventory.ErrIngestionPartial) {
		return fiber.NewError(fiber.StatusInternalServerError, "Serial ingestion partially applied, retry with the same serial list")
	}
	return fiber.NewError(fiber.StatusInternalServerError, fallback)
}

// releasePanelMemberships removes the given panels from every batch join
// row. Claiming a unit that finished a prior leg (received) must detach it
// from the entity that held it, so no unit is ever referenced by two
// grouping entities at once.
func releasePanelMemberships(tx *gorm.DB, panelIDs []uint) error {
	if len(panelIDs) == 0 {
		return nil
	}
	return tx.Exec("DELETE FROM batch_panels WHERE panel_id IN ?", panelIDs).Error
}

// releaseCrateMemberships is the crate counterpart over delivery joins.
func releaseCrateMemberships(tx *gorm.DB, crateIDs []uint) error {
	if len(crateIDs) == 0 {
		return nil
	}
	return tx.Exec("DELETE FROM delivery_crates WHERE crate_id IN ?", crateIDs).Error
}

func collectCrateIDs(deliveries []models.Delivery) []uint {
	var ids []uint
	for _, d := range deliveries {
		for _, crate := range d.Crates {
			ids = append(ids, crate.ID)
		}
	}
	return ids
}

func collectInputCrateIDs(items []DeliveryInput) []uint {
	var ids []uint
	for _, item := range items {
		ids = append(ids, item.CrateIDs...)
	}
	return ids
}

// replaceBatchPanels rewrites the batch_panels join rows for one batch.
// The join table is written directly so panel rows themselves are never
// upserted as a side effect.
func replaceBatchPanels(tx *gorm.DB, batchID uint, panelIDs []uint) error {
	if err := tx.Exec("DELETE FROM batch_panels WHERE batch_id = ?", batchID).Error; err != nil {
		return err
	}
	for _, id := range panelIDs {
		if err := tx.Exec("INSERT INTO batch_panels (batch_id, panel_id) VALUES (?, ?)", batchID, id).Error; err != nil {
			return err
		}
	}
	return nil
}

// insertDeliveries creates the delivery rows for a route and their crate
// join rows.
func insertDeliveries(tx *gorm.DB, routeID uint, items []DeliveryInput) error {
	for _, item := range items {
		delivery := models.Delivery{
			RouteID:    routeID,
			CustomerID: item.CustomerID,
		}
		if err := tx.Create(&delivery).Error; err != nil {
			return err
		}
		for _, crateID := range item.CrateIDs {
			if err := tx.Exec("INSERT INTO delivery_crates (delivery_id, crate_id) VALUES (?, ?)", delivery.ID, crateID).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// dropDeliveries removes a route's delivery rows and their crate joins.
// The crates themselves stay.
func dropDeliveries(tx *gorm.DB, routeID uint) error {
	if err := tx.Exec(
		"DELETE FROM delivery_crates WHERE delivery_id IN (SELECT id FROM deliveries WHERE route_id = ?)",
		routeID,
	).Error; err != nil {
		return err
	}
	return tx.Where("route_id = ?", routeID).Delete(&models.Delivery{}).Error
}
