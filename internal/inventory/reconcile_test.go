package inventory

import (
	"testing"

	"paneltrack-backend/internal/models"
)

func TestReconcileSerials_DedupesAndCreates(t *testing.T) {
	db := newTestDB(t)

	mustCreatePanel(t, db, models.Panel{SerialNumber: "C1", IsActive: true})

	// C1 exists, C2 does not, C1 appears twice and must collapse
	ids, err := ReconcileSerials(db, KindPanel, []string{"C1", "C2", "C1"})
	if err != nil {
		t.Fatalf("ReconcileSerials: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids for [C1 C2 C1], got %d", len(ids))
	}

	var count int64
	db.Model(&models.Panel{}).Count(&count)
	if count != 2 {
		t.Errorf("expected 2 panel rows, got %d", count)
	}

	for _, id := range ids {
		panel := getPanel(t, db, id)
		if !panel.Included {
			t.Errorf("panel %s should be included after reconciliation", panel.SerialNumber)
		}
		if panel.Received != nil {
			t.Errorf("panel %s should have no receipt outcome after reconciliation", panel.SerialNumber)
		}
	}
}

func TestReconcileSerials_SecondRunConverges(t *testing.T) {
	db := newTestDB(t)

	serials := []string{"S1", "S2", "S3"}
	first, err := ReconcileSerials(db, KindPanel, serials)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := ReconcileSerials(db, KindPanel, serials)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("expected identical id sets, got %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("id mismatch at %d: %d vs %d", i, first[i], second[i])
		}
	}

	var count int64
	db.Model(&models.Panel{}).Count(&count)
	if count != 3 {
		t.Errorf("re-running must not create new rows, got %d", count)
	}
}

func TestReconcileSerials_SkipsInactiveUnits(t *testing.T) {
	db := newTestDB(t)

	retired := mustCreatePanel(t, db, models.Panel{SerialNumber: "RETIRED", IsActive: false})

	ids, err := ReconcileSerials(db, KindPanel, []string{"RETIRED", "FRESH"})
	if err != nil {
		t.Fatalf("ReconcileSerials: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected only the fresh unit in the result, got %d ids", len(ids))
	}

	// the inactive unit is left untouched, never reactivated
	got := getPanel(t, db, retired.ID)
	if got.IsActive {
		t.Errorf("inactive unit must not be reactivated")
	}
	if got.Included {
		t.Errorf("inactive unit must not be claimed")
	}
}

func TestReconcileSerials_EmptyAndBlankInput(t *testing.T) {
	db := newTestDB(t)

	ids, err := ReconcileSerials(db, KindPanel, []string{"", "", ""})
	if err != nil {
		t.Fatalf("ReconcileSerials: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("blank serials should resolve to nothing, got %d ids", len(ids))
	}

	var count int64
	db.Model(&models.Panel{}).Count(&count)
	if count != 0 {
		t.Errorf("no rows should be created for blank input, got %d", count)
	}
}

func TestDedupeSerials(t *testing.T) {
	got := dedupeSerials([]string{"A", "", "B", "A", "C", "B"})
	want := []string{"A", "B", "C"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
