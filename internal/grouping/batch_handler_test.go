package grouping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"paneltrack-backend/internal/database"
	"paneltrack-backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// newTestApp wires an in-memory database into the package-global handle and
// mounts the batch/route routes with the same error handler main uses.
func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("getting sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.User{},
		&models.Panel{},
		&models.Crate{},
		&models.Batch{},
		&models.Route{},
		&models.Delivery{},
		&models.ArchivedDelivery{},
		&models.AuditLog{},
	)
	if err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	database.DB = db

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "Unexpected server error"
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				msg = e.Message
			}
			return c.Status(code).JSON(fiber.Map{"status": false, "data": nil, "message": msg})
		},
	})

	app.Post("/api/batch", CreateBatchHandler())
	app.Post("/api/batch/scan-to-create", ScanToCreateBatchHandler())
	app.Post("/api/batch/dispatch", DispatchBatchHandler())
	app.Put("/api/batch/:id", UpdateBatchByIDHandler())
	app.Delete("/api/batch/:id", DeleteBatchByIDHandler())
	app.Post("/api/route", CreateRouteHandler())
	app.Post("/api/route/add-new-delivery", AddNewDeliveryHandler())
	app.Post("/api/route/dispatch/route", DispatchRouteByNameHandler())
	app.Put("/api/route/:id", UpdateRouteByIDHandler())
	app.Delete("/api/route/:id", DeleteRouteByIDHandler())

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func seedPanels(t *testing.T, n int) []uint {
	t.Helper()
	ids := make([]uint, 0, n)
	for i := 0; i < n; i++ {
		panel := models.Panel{SerialNumber: fmt.Sprintf("PNL-%03d", i+1), IsActive: true}
		if err := database.DB.Create(&panel).Error; err != nil {
			t.Fatalf("seeding panel: %v", err)
		}
		ids = append(ids, panel.ID)
	}
	return ids
}

func seedCustomer(t *testing.T, email string) uint {
	t.Helper()
	user := models.User{Name: "Customer", Email: email, PasswordHash: "x", Role: models.RoleCustomer, Contact: "555", Location: "[]"}
	if err := database.DB.Create(&user).Error; err != nil {
		t.Fatalf("seeding customer: %v", err)
	}
	return user.ID
}

func panelByID(t *testing.T, id uint) models.Panel {
	t.Helper()
	var panel models.Panel
	if err := database.DB.First(&panel, id).Error; err != nil {
		t.Fatalf("loading panel %d: %v", id, err)
	}
	return panel
}

func TestCreateBatch_ClaimsPanels(t *testing.T) {
	app := newTestApp(t)
	ids := seedPanels(t, 3)

	resp := doJSON(t, app, http.MethodPost, "/api/batch", fiber.Map{
		"AssetNumber": "A100",
		"panels":      ids,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	for _, id := range ids {
		panel := panelByID(t, id)
		if !panel.Included {
			t.Errorf("panel %d should be included after batch create", id)
		}
	}

	var joined int64
	database.DB.Table("batch_panels").Count(&joined)
	if joined != 3 {
		t.Errorf("expected 3 join rows, got %d", joined)
	}
}

func TestCreateBatch_DuplicateAssetNumberRejected(t *testing.T) {
	app := newTestApp(t)
	ids := seedPanels(t, 2)

	resp := doJSON(t, app, http.MethodPost, "/api/batch", fiber.Map{"AssetNumber": "A200", "panels": ids[:1]})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first create: expected 201, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodPost, "/api/batch", fiber.Map{"AssetNumber": "A200", "panels": ids[1:]})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate create: expected 409, got %d", resp.StatusCode)
	}

	// the first batch is untouched and the second panel stays unclaimed
	var count int64
	database.DB.Model(&models.Batch{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 batch, got %d", count)
	}
	if panel := panelByID(t, ids[1]); panel.Included {
		t.Errorf("panel from the rejected create must stay unclaimed")
	}
}

func TestCreateBatch_MissingAssetNumber(t *testing.T) {
	app := newTestApp(t)
	resp := doJSON(t, app, http.MethodPost, "/api/batch", fiber.Map{"panels": []uint{}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCreateBatch_RejectsClaimedPanels(t *testing.T) {
	app := newTestApp(t)
	ids := seedPanels(t, 2)

	resp := doJSON(t, app, http.MethodPost, "/api/batch", fiber.Map{"AssetNumber": "A300", "panels": ids})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodPost, "/api/batch", fiber.Map{"AssetNumber": "A301", "panels": ids[:1]})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("claimed panel should be rejected with 400, got %d", resp.StatusCode)
	}
}

func TestCreateBatch_ReclaimAfterReceiptDetachesPriorBatch(t *testing.T) {
	app := newTestApp(t)
	ids := seedPanels(t, 1)

	resp := doJSON(t, app, http.MethodPost, "/api/batch", fiber.Map{"AssetNumber": "A310", "panels": ids})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var first models.Batch
	database.DB.First(&first, "asset_number = ?", "A310")

	// the panel finishes its leg: received units re-enter circulation
	resp = doJSON(t, app, http.MethodPut, fmt.Sprintf("/api/batch/%d", first.ID), fiber.Map{"received": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("receipt: expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodPost, "/api/batch", fiber.Map{"AssetNumber": "A311", "panels": ids})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("re-claim of a received panel: expected 201, got %d", resp.StatusCode)
	}

	// the panel must belong to exactly one batch afterwards
	var joined int64
	database.DB.Table("batch_panels").Where("panel_id = ?", ids[0]).Count(&joined)
	if joined != 1 {
		t.Fatalf("expected the panel in exactly 1 batch, found %d join rows", joined)
	}
	var second models.Batch
	database.DB.Preload("Panels").First(&second, "asset_number = ?", "A311")
	if len(second.Panels) != 1 || second.Panels[0].ID != ids[0] {
		t.Errorf("the new batch should hold the re-claimed panel")
	}
	if panel := panelByID(t, ids[0]); !panel.Included || panel.Received != nil {
		t.Errorf("re-claimed panel should start a fresh leg, got included=%v received=%v", panel.Included, panel.Received)
	}
}

func TestCreateRoute_RejectsClaimedCrates(t *testing.T) {
	app := newTestApp(t)
	crates := seedCrates(t, 1)
	cust := seedCustomer(t, "claimed@example.com")

	resp := doJSON(t, app, http.MethodPost, "/api/route", fiber.Map{
		"Name":       "R310",
		"deliveries": []fiber.Map{{"customerId": cust, "crateIds": crates}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodPost, "/api/route", fiber.Map{
		"Name":       "R311",
		"deliveries": []fiber.Map{{"customerId": cust, "crateIds": crates}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("crate already out on a route should be rejected with 400, got %d", resp.StatusCode)
	}

	var joined int64
	database.DB.Table("delivery_crates").Where("crate_id = ?", crates[0]).Count(&joined)
	if joined != 1 {
		t.Errorf("expected the crate in exactly 1 delivery, found %d join rows", joined)
	}
}

func TestUpdateBatch_ComputedDiffReleasesAndClaims(t *testing.T) {
	app := newTestApp(t)
	ids := seedPanels(t, 3)

	resp := doJSON(t, app, http.MethodPost, "/api/batch", fiber.Map{"AssetNumber": "A400", "panels": ids[:2]})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var batch models.Batch
	if err := database.DB.First(&batch, "asset_number = ?", "A400").Error; err != nil {
		t.Fatalf("loading batch: %v", err)
	}

	// swap panel 2 for panel 3: the handler derives the diff itself
	resp = doJSON(t, app, http.MethodPut, fmt.Sprintf("/api/batch/%d", batch.ID), fiber.Map{
		"panels": []uint{ids[0], ids[2]},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if panel := panelByID(t, ids[0]); !panel.Included {
		t.Errorf("kept panel must stay included")
	}
	if panel := panelByID(t, ids[1]); panel.Included {
		t.Errorf("removed panel must be released")
	}
	if panel := panelByID(t, ids[2]); !panel.Included {
		t.Errorf("added panel must be claimed")
	}
}

func TestUpdateBatch_ReceiptPropagatesToPanels(t *testing.T) {
	app := newTestApp(t)
	ids := seedPanels(t, 2)

	resp := doJSON(t, app, http.MethodPost, "/api/batch", fiber.Map{"AssetNumber": "A500", "panels": ids})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var batch models.Batch
	if err := database.DB.First(&batch, "asset_number = ?", "A500").Error; err != nil {
		t.Fatalf("loading batch: %v", err)
	}

	resp = doJSON(t, app, http.MethodPut, fmt.Sprintf("/api/batch/%d", batch.ID), fiber.Map{"received": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	for _, id := range ids {
		panel := panelByID(t, id)
		if panel.Received == nil || !*panel.Received {
			t.Errorf("panel %d should carry the batch receipt", id)
		}
		if panel.ReceivedAt == nil {
			t.Errorf("panel %d should carry a receipt timestamp", id)
		}
	}
}

func TestDispatchBatch_IdempotentOverwrite(t *testing.T) {
	app := newTestApp(t)
	ids := seedPanels(t, 1)

	resp := doJSON(t, app, http.MethodPost, "/api/batch", fiber.Map{"AssetNumber": "A600", "panels": ids})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodPost, "/api/batch/dispatch", fiber.Map{"AssetNumber": "A600"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first dispatch: expected 200, got %d", resp.StatusCode)
	}
	var batch models.Batch
	database.DB.First(&batch, "asset_number = ?", "A600")
	if batch.Dispatched == nil {
		t.Fatalf("expected dispatch timestamp to be set")
	}
	first := *batch.Dispatched

	resp = doJSON(t, app, http.MethodPost, "/api/batch/dispatch", fiber.Map{"AssetNumber": "A600"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second dispatch: expected 200, got %d", resp.StatusCode)
	}
	database.DB.First(&batch, "asset_number = ?", "A600")
	if batch.Dispatched == nil || batch.Dispatched.Before(first) {
		t.Errorf("re-dispatch should refresh the timestamp")
	}
}

func TestDispatchBatch_UnknownKey(t *testing.T) {
	app := newTestApp(t)
	resp := doJSON(t, app, http.MethodPost, "/api/batch/dispatch", fiber.Map{"AssetNumber": "NOPE"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDeleteBatch_ReleasesPanels(t *testing.T) {
	app := newTestApp(t)
	ids := seedPanels(t, 2)

	resp := doJSON(t, app, http.MethodPost, "/api/batch", fiber.Map{"AssetNumber": "A700", "panels": ids})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var batch models.Batch
	database.DB.First(&batch, "asset_number = ?", "A700")

	resp = doJSON(t, app, http.MethodDelete, fmt.Sprintf("/api/batch/%d", batch.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	for _, id := range ids {
		panel := panelByID(t, id)
		if panel.Included {
			t.Errorf("panel %d must be released when its batch is deleted", id)
		}
		if panel.Received != nil || panel.ReceivedAt != nil {
			t.Errorf("panel %d receipt state must be cleared on release", id)
		}
	}

	var joined int64
	database.DB.Table("batch_panels").Where("batch_id = ?", batch.ID).Count(&joined)
	if joined != 0 {
		t.Errorf("join rows must be removed with the batch")
	}

	if err := database.DB.First(&models.Batch{}, batch.ID).Error; err == nil {
		t.Errorf("batch record must be gone after delete")
	}
}

func TestScanToCreateBatch_CreatesUnknownSerials(t *testing.T) {
	app := newTestApp(t)

	panel := models.Panel{SerialNumber: "SCAN-1", IsActive: true}
	if err := database.DB.Create(&panel).Error; err != nil {
		t.Fatalf("seeding panel: %v", err)
	}

	resp := doJSON(t, app, http.MethodPost, "/api/batch/scan-to-create", fiber.Map{
		"AssetNumber": "A800",
		"panels":      []string{"SCAN-1", "SCAN-2", "SCAN-1"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var count int64
	database.DB.Model(&models.Panel{}).Count(&count)
	if count != 2 {
		t.Errorf("expected the unknown serial to be created once, got %d panel rows", count)
	}

	var batch models.Batch
	if err := database.DB.Preload("Panels").First(&batch, "asset_number = ?", "A800").Error; err != nil {
		t.Fatalf("loading batch: %v", err)
	}
	if len(batch.Panels) != 2 {
		t.Errorf("expected 2 member panels, got %d", len(batch.Panels))
	}
	for _, p := range batch.Panels {
		if !p.Included {
			t.Errorf("scanned panel %s must be included", p.SerialNumber)
		}
	}
}
