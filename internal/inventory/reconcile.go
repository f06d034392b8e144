package inventory

import (
	"errors"
	"fmt"

	"paneltrack-backend/internal/models"

	"gorm.io/gorm"
)

// ErrIngestionPartial signals that a bulk reconciliation stopped part way
// through its creates. Re-running with the same serials converges: units
// created before the failure are matched, not re-created.
var ErrIngestionPartial = errors.New("ingestion partially applied")

// ReconcileSerials resolves externally supplied serial numbers to unit ids,
// creating any that do not exist yet. Input duplicates are collapsed first.
// Matched units that are inactive are dropped from the result and left
// untouched; they are never silently reactivated. All surviving ids end
// with included=true.
func ReconcileSerials(db *gorm.DB, kind Kind, serials []string) ([]uint, error) {
	deduped := dedupeSerials(serials)
	if len(deduped) == 0 {
		return nil, nil
	}

	existing, err := findUnitsBySerial(db, kind, deduped)
	if err != nil {
		return nil, err
	}

	bySerial := make(map[string]unitRow, len(existing))
	for _, row := range existing {
		bySerial[row.SerialNumber] = row
	}

	ids := make([]uint, 0, len(deduped))
	for _, serial := range deduped {
		if row, ok := bySerial[serial]; ok {
			if !row.IsActive {
				continue
			}
			ids = append(ids, row.ID)
			continue
		}

		id, err := createUnit(db, kind, serial)
		if err != nil {
			return nil, fmt.Errorf("%w: creating serial %q: %v", ErrIngestionPartial, serial, err)
		}
		ids = append(ids, id)
	}

	// both branches converge to the same post-condition
	if err := SetInclusion(db, kind, ids, true); err != nil {
		return nil, fmt.Errorf("%w: marking units included: %v", ErrIngestionPartial, err)
	}

	return ids, nil
}

func dedupeSerials(serials []string) []string {
	seen := make(map[string]struct{}, len(serials))
	out := make([]string, 0, len(serials))
	for _, s := range serials {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func createUnit(db *gorm.DB, kind Kind, serial string) (uint, error) {
	switch kind {
	case KindCrate:
		crate := models.Crate{SerialNumber: serial, Included: true, IsActive: true}
		if err := db.Create(&crate).Error; err != nil {
			return 0, err
		}
		return crate.ID, nil
	default:
		panel := models.Panel{SerialNumber: serial, Included: true, IsActive: true}
		if err := db.Create(&panel).Error; err != nil {
			return 0, err
		}
		return panel.ID, nil
	}
}
