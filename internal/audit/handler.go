package audit

import (
	"paneltrack-backend/internal/database"
	"paneltrack-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GET /api/audit-logs
// Newest first; ?entityType= and ?entityId= narrow the view.
func ListAuditLogsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := database.DB.Model(&models.AuditLog{}).Order("created_at DESC")

		if entityType := c.Query("entityType"); entityType != "" {
			query = query.Where("entity_type = ?", entityType)
		}
		if entityID := c.QueryInt("entityId", 0); entityID > 0 {
			query = query.Where("entity_id = ?", entityID)
		}
		if c.Query("page") != "" {
			page := c.QueryInt("page", 1)
			pageSize := c.QueryInt("pageSize", 50)
			query = query.Offset((page - 1) * pageSize).Limit(pageSize)
		}

		var logs []models.AuditLog
		if err := query.Find(&logs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list audit logs")
		}

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    logs,
			"message": "Audit logs fetched successfully",
		})
	}
}
