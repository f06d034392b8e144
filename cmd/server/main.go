package main

import (
	"log"
	"strings"

	"paneltrack-backend/internal/audit"
	"paneltrack-backend/internal/auth"
	"paneltrack-backend/internal/config"
	"paneltrack-backend/internal/dashboard"
	"paneltrack-backend/internal/database"
	"paneltrack-backend/internal/grouping"
	"paneltrack-backend/internal/inventory"
	"paneltrack-backend/internal/models"
	"paneltrack-backend/internal/users"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func main() {
	cfg := config.Load()
	database.Init(cfg)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				return c.Status(e.Code).JSON(fiber.Map{
					"status":  false,
					"data":    nil,
					"message": e.Message,
				})
			}
			log.Println("Unexpected error:", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"status":  false,
				"data":    nil,
				"message": "Unexpected server error",
			})
		},
	})

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register", auth.RegisterAdminHandler(cfg))
	api.Post("/auth/login", auth.LoginHandler(cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Post("/auth/logout", auth.LogoutHandler())

	// Users (management restricted to admins, listings open to any caller)
	userAdmin := protected.Group("/user", auth.RequireRole(models.RoleAdmin))
	userAdmin.Post("/", users.CreateUserHandler())
	userAdmin.Post("/bulk", users.BulkUploadUsersHandler())
	userAdmin.Put("/:id", users.UpdateUserByIDHandler())
	userAdmin.Delete("/:id", users.DeleteUserByIDHandler())
	protected.Get("/user", users.ListUsersHandler())
	protected.Get("/user/customer", users.ListCustomersHandler())
	protected.Get("/user/:id", users.GetUserByIDHandler())

	// Panels
	protected.Post("/panel", inventory.CreatePanelHandler())
	protected.Get("/panel", inventory.ListPanelsHandler())
	protected.Get("/panel/batch", inventory.GetPanelsForBatchHandler())
	protected.Post("/panel/bulk", inventory.BulkUploadPanelsHandler())
	protected.Get("/panel/by/serial", inventory.GetPanelBySerialHandler())
	protected.Get("/panel/:id", inventory.GetPanelByIDHandler())
	protected.Put("/panel/:id", inventory.UpdatePanelByIDHandler())
	protected.Put("/panel", inventory.UpdatePanelBySerialHandler())
	protected.Delete("/panel/:id", inventory.DeletePanelByIDHandler())

	// Crates
	protected.Post("/crate", inventory.CreateCrateHandler())
	protected.Get("/crate", inventory.ListCratesHandler())
	protected.Get("/crate/route", inventory.GetCratesForRouteHandler())
	protected.Post("/crate/bulk", inventory.BulkUploadCratesHandler())
	protected.Get("/crate/by/serial", inventory.GetCrateBySerialHandler())
	protected.Get("/crate/:id", inventory.GetCrateByIDHandler())
	protected.Put("/crate/:id", inventory.UpdateCrateByIDHandler())
	protected.Put("/crate", inventory.UpdateCrateBySerialHandler())
	protected.Delete("/crate/:id", inventory.DeleteCrateByIDHandler())

	// Batches
	protected.Post("/batch", grouping.CreateBatchHandler())
	protected.Post("/batch/scan-to-create", grouping.ScanToCreateBatchHandler())
	protected.Post("/batch/bulk", grouping.BulkUploadBatchesHandler())
	protected.Post("/batch/dispatch", grouping.DispatchBatchHandler())
	protected.Get("/batch", grouping.ListBatchesHandler())
	protected.Get("/batch/:id", grouping.GetBatchByIDHandler())
	protected.Put("/batch/:id", grouping.UpdateBatchByIDHandler())
	protected.Put("/batch", grouping.UpdateBatchesByKeyHandler())
	protected.Delete("/batch/:id", grouping.DeleteBatchByIDHandler())

	// Routes
	protected.Post("/route", grouping.CreateRouteHandler())
	protected.Post("/route/scan-to-create", grouping.ScanToCreateRouteHandler())
	protected.Post("/route/add-new-delivery", grouping.AddNewDeliveryHandler())
	protected.Post("/route/dispatch/route", grouping.DispatchRouteByNameHandler())
	protected.Get("/route", grouping.ListRoutesHandler())
	protected.Get("/route/old", grouping.GetOldRoutesHandler())
	protected.Get("/route/self", grouping.GetMyRoutesHandler())
	protected.Get("/route/:id", grouping.GetRouteByIDHandler())
	protected.Put("/route/:id", grouping.UpdateRouteByIDHandler())
	protected.Put("/route", grouping.UpdateRoutesByKeyHandler())
	protected.Delete("/route/:id", grouping.DeleteRouteByIDHandler())

	// Reporting
	protected.Get("/dashboard", dashboard.GetDashboardHandler())
	protected.Get("/inventory/export", inventory.ExportInventoryHandler())
	protected.Get("/audit-logs", auth.RequireRole(models.RoleAdmin), audit.ListAuditLogsHandler())

	log.Println("Server running on port:", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}
