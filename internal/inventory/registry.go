package inventory

import (
	"time"

	"paneltrack-backend/internal/models"

	"gorm.io/gorm"
)

// Kind selects which unit table an operation runs against. Panels and
// crates carry the same flag set, so the registry is written once and
// dispatched by kind.
type Kind string

const (
	KindPanel Kind = "panel"
	KindCrate Kind = "crate"
)

func (k Kind) Model() any {
	if k == KindCrate {
		return &models.Crate{}
	}
	return &models.Panel{}
}

func (k Kind) Label() string {
	if k == KindCrate {
		return "Crate"
	}
	return "Panel"
}

// unitRow is the flag view of a unit, shared by both kinds.
type unitRow struct {
	ID           uint
	SerialNumber string
	Included     bool
	Received     *bool
	IsActive     bool
}

// SetInclusion bulk-sets the included flag for the given units and resets
// their receipt state. The reset applies on exclusion (a released unit has
// no receipt outcome) and on inclusion alike: claiming a unit starts a
// fresh delivery leg, so a receipt from a prior leg must not survive.
// Idempotent.
func SetInclusion(db *gorm.DB, kind Kind, ids []uint, included bool) error {
	if len(ids) == 0 {
		return nil
	}
	return db.Model(kind.Model()).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"included":    included,
			"received":    nil,
			"received_at": nil,
		}).Error
}

// MarkReceived records an explicit receipt outcome for units that are
// currently part of a grouping entity.
func MarkReceived(db *gorm.DB, kind Kind, ids []uint, received bool, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.Model(kind.Model()).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"received":    received,
			"received_at": at,
		}).Error
}

// findUnitsBySerial runs one batched lookup over the unit table.
func findUnitsBySerial(db *gorm.DB, kind Kind, serials []string) ([]unitRow, error) {
	var rows []unitRow
	if len(serials) == 0 {
		return rows, nil
	}
	err := db.Model(kind.Model()).
		Where("serial_number IN ?", serials).
		Find(&rows).Error
	return rows, err
}

// availableScope is the "selectable for a new grouping" view: units not
// claimed by anything, plus units that finished a prior leg (received) and
// may re-enter circulation. Inactive units never show up.
func availableScope(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ? AND (included = ? OR received = ?)", true, false, true)
}

func ListAvailablePanels(db *gorm.DB) ([]models.Panel, error) {
	var panels []models.Panel
	err := availableScope(db.Model(&models.Panel{})).Find(&panels).Error
	return panels, err
}

func ListAvailableCrates(db *gorm.DB) ([]models.Crate, error) {
	var crates []models.Crate
	err := availableScope(db.Model(&models.Crate{})).Find(&crates).Error
	return crates, err
}

// canScan mirrors the handheld-scanner verdict: a unit may be scanned onto
// a new grouping when it is unclaimed, or claimed but already received.
func canScan(included bool, received *bool) bool {
	return !included || (received != nil && *received)
}
