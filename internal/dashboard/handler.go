package dashboard

import (
	"paneltrack-backend/internal/database"
	"paneltrack-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

// customerOverview: per-customer batch ownership rollup.
type customerOverview struct {
	ID         uint            `json:"id"`
	Name       string          `json:"name"`
	Role       models.UserRole `json:"role"`
	NumBatches int64           `json:"numBatches"`
}

// GET /api/dashboard
// Pure projection over the inventory, no mutation.
func GetDashboardHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		counts := map[string]int64{}

		type countSpec struct {
			key   string
			model any
			where []interface{}
		}
		specs := []countSpec{
			{key: "totalBatches", model: &models.Batch{}},
			{key: "totalReceivedBatches", model: &models.Batch{}, where: []interface{}{"received = ?", true}},
			{key: "totalRoutes", model: &models.Route{}},
			{key: "totalReceivedRoutes", model: &models.Route{}, where: []interface{}{"received = ?", true}},
			{key: "totalPanels", model: &models.Panel{}},
			{key: "totalPanelsInBatch", model: &models.Panel{}, where: []interface{}{"included = ?", true}},
			{key: "totalReceivedPanels", model: &models.Panel{}, where: []interface{}{"received = ?", true}},
			{key: "totalCrates", model: &models.Crate{}},
			{key: "totalCratesInRoute", model: &models.Crate{}, where: []interface{}{"included = ?", true}},
			{key: "totalReceivedCrates", model: &models.Crate{}, where: []interface{}{"received = ?", true}},
		}

		for _, spec := range specs {
			query := database.DB.Model(spec.model)
			if len(spec.where) > 0 {
				query = query.Where(spec.where[0], spec.where[1:]...)
			}
			var n int64
			if err := query.Count(&n).Error; err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "Could not compute dashboard counts")
			}
			counts[spec.key] = n
		}

		var overview []customerOverview
		err := database.DB.Model(&models.User{}).
			Select("users.id, users.name, users.role, COUNT(batches.id) AS num_batches").
			Joins("LEFT JOIN batches ON batches.user_id = users.id").
			Where("users.role = ?", models.RoleCustomer).
			Group("users.id, users.name, users.role").
			Scan(&overview).Error
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not compute customer overview")
		}

		return c.JSON(fiber.Map{
			"status": true,
			"data": fiber.Map{
				"counts":       counts,
				"userOverview": overview,
			},
			"message": "Dashboard data retrieved successfully",
		})
	}
}
