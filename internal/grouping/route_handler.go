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

type CreateRouteRequest struct {
	Name       string          `json:"Name"`
	Deliveries []DeliveryInput `json:"deliveries"`
	Received   *bool           `json:"received"`
	ReceivedAt *time.Time      `json:"receivedAt"`
	Dispatched *time.Time      `json:"Dispatched"`
}

// POST /api/route
func CreateRouteHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateRouteRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.Name == "" || len(body.Deliveries) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Name and deliveries are required")
		}

		var existing models.Route
		if err := database.DB.Where("name = ?", body.Name).First(&existing).Error; err == nil {
			return fiber.NewError(fiber.StatusConflict, "Name already exists")
		}

		crateIDs := collectInputCrateIDs(body.Deliveries)

		var route models.Route
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			if err := verifyAssignableUnits(tx, inventory.KindCrate, crateIDs); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}

			route = models.Route{
				Name:       body.Name,
				ReceivedAt: body.ReceivedAt,
				Dispatched: body.Dispatched,
			}
			if body.Received != nil {
				route.Received = *body.Received
			}
			if err := tx.Create(&route).Error; err != nil {
				return err
			}
			if err := releaseCrateMemberships(tx, crateIDs); err != nil {
				return err
			}
			if err := insertDeliveries(tx, route.ID, body.Deliveries); err != nil {
				return err
			}
			return inventory.SetInclusion(tx, inventory.KindCrate, crateIDs, true)
		})
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				return fe
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create route")
		}

		callerID, callerName := callerInfo(c)
		_ = audit.WriteLog(audit.LogOptions{
			UserID:      callerID,
			UserName:    callerName,
			EntityType:  "route",
			EntityID:    route.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Route %s created with %d deliveries", route.Name, len(body.Deliveries)),
			After:       route,
		})

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"status":  true,
			"data":    loadRoute(route.ID),
			"message": "Route created successfully",
		})
	}
}

type ScanDeliveryInput struct {
	CustomerID uint     `json:"customerId"`
	Crates     []string `json:"crates"` // serial numbers as scanned
}

type ScanToCreateRouteRequest struct {
	Name       string              `json:"Name"`
	Deliveries []ScanDeliveryInput `json:"deliveries"`
}

// POST /api/route/scan-to-create
func ScanToCreateRouteHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ScanToCreateRouteRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.Name == "" || len(body.Deliveries) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Name and a non-empty list of deliveries are required")
		}

		var existing models.Route
		if err := database.DB.Where("name = ?", body.Name).First(&existing).Error; err == nil {
			return fiber.NewError(fiber.StatusConflict, "Name already exists")
		}

		var route models.Route
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			items := make([]DeliveryInput, 0, len(body.Deliveries))
			for _, in := range body.Deliveries {
				crateIDs, err := inventory.ReconcileSerials(tx, inventory.KindCrate, in.Crates)
				if err != nil {
					return err
				}
				items = append(items, DeliveryInput{CustomerID: in.CustomerID, CrateIDs: crateIDs})
			}

			route = models.Route{Name: body.Name}
			if err := tx.Create(&route).Error; err != nil {
				return err
			}
			if err := releaseCrateMemberships(tx, collectInputCrateIDs(items)); err != nil {
				return err
			}
			return insertDeliveries(tx, route.ID, items)
		})
		if err != nil {
			return scanCreateError(err, "Could not create route from scan")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"status":  true,
			"data":    loadRoute(route.ID),
			"message": "Route created successfully",
		})
	}
}

// routeResponse mirrors the stored route plus the flattened Crates and
// Customers views the dashboard clients consume.
type routeResponse struct {
	models.Route
	Crates    []models.Crate `json:"Crates"`
	Customers []models.User  `json:"Customers"`
}

func flattenRoute(route models.Route) routeResponse {
	resp := routeResponse{Route: route, Crates: []models.Crate{}, Customers: []models.User{}}
	for _, d := range route.Deliveries {
		resp.Crates = append(resp.Crates, d.Crates...)
		if d.Customer != nil {
			resp.Customers = append(resp.Customers, *d.Customer)
		}
	}
	return resp
}

// GET /api/route
func ListRoutesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var routes []models.Route
		if err := database.DB.
			Preload("Deliveries.Crates").
			Preload("Deliveries.Customer").
			Preload("DispatchedByUser").
			Order("created_at DESC").
			Find(&routes).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list routes")
		}

		resp := make([]routeResponse, 0, len(routes))
		for _, r := range routes {
			resp = append(resp, flattenRoute(r))
		}

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    resp,
			"message": "Routes fetched successfully",
		})
	}
}

// GET /api/route/self
// Routes dispatched by the calling user.
func GetMyRoutesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		callerID := auth.CallerID(c)
		var routes []models.Route
		if err := database.DB.
			Preload("Deliveries.Crates").
			Preload("Deliveries.Customer").
			Preload("DispatchedByUser").
			Where("dispatched_by = ?", callerID).
			Find(&routes).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list routes")
		}

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    routes,
			"message": "Routes fetched successfully",
		})
	}
}

// GET /api/route/old
// Archived delivery snapshots, newest first. ?name= filters to one route.
func GetOldRoutesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := database.DB.Model(&models.ArchivedDelivery{}).Order("created_at DESC")
		if name := c.Query("name"); name != "" {
			query = query.Where("route_name = ?", name)
		}

		var archived []models.ArchivedDelivery
		if err := query.Find(&archived).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list archived deliveries")
		}

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    archived,
			"message": "Archived deliveries fetched successfully",
		})
	}
}

// GET /api/route/:id
func GetRouteByIDHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var route models.Route
		if err := database.DB.
			Preload("Deliveries.Crates").
			Preload("Deliveries.Customer").
			Preload("DispatchedByUser").
			First(&route, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Route not found")
		}
		return c.JSON(fiber.Map{
			"status":  true,
			"data":    flattenRoute(route),
			"message": "Route fetched successfully",
		})
	}
}

type UpdateRouteRequest struct {
	Deliveries *[]DeliveryInput `json:"deliveries"`
	Received   *bool            `json:"received"`
	ReceivedAt *time.Time       `json:"receivedAt"`
}

// PUT /api/route/:id
// The crate diff is computed here against the stored deliveries, never
// taken from the caller.
func UpdateRouteByIDHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var route models.Route
		if err := database.DB.Preload("Deliveries.Crates").First(&route, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Route not found")
		}

		var body UpdateRouteRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		err := database.DB.Transaction(func(tx *gorm.DB) error {
			if callerID := auth.CallerID(c); callerID != 0 {
				route.DispatchedBy = &callerID
			}

			memberIDs := collectCrateIDs(route.Deliveries)

			if body.Deliveries != nil {
				requested := collectInputCrateIDs(*body.Deliveries)
				added, removed := diffIDs(memberIDs, requested)
				if err := verifyAssignableUnits(tx, inventory.KindCrate, added); err != nil {
					return fiber.NewError(fiber.StatusBadRequest, err.Error())
				}
				if err := releaseCrateMemberships(tx, added); err != nil {
					return err
				}
				if err := dropDeliveries(tx, route.ID); err != nil {
					return err
				}
				if err := insertDeliveries(tx, route.ID, *body.Deliveries); err != nil {
					return err
				}
				if err := inventory.SetInclusion(tx, inventory.KindCrate, added, true); err != nil {
					return err
				}
				if err := inventory.SetInclusion(tx, inventory.KindCrate, removed, false); err != nil {
					return err
				}
				memberIDs = requested
			}

			if body.Received != nil {
				at := time.Now()
				if body.ReceivedAt != nil {
					at = *body.ReceivedAt
				}
				route.Received = *body.Received
				route.ReceivedAt = &at
				if err := inventory.MarkReceived(tx, inventory.KindCrate, memberIDs, *body.Received, at); err != nil {
					return err
				}
			}

			route.Deliveries = nil // delivery rows were rewritten directly
			return tx.Omit("Deliveries").Save(&route).Error
		})
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				return fe
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update route")
		}

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    loadRoute(route.ID),
			"message": "Route updated successfully",
		})
	}
}

type UpdateRoutesByKeyRequest struct {
	Name       json.RawMessage `json:"Name"` // string or array of strings
	Received   *bool           `json:"received"`
	ReceivedAt *time.Time      `json:"receivedAt"`
}

// PUT /api/route
func UpdateRoutesByKeyHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body UpdateRoutesByKeyRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		keys := parseKeyList(body.Name)
		if len(keys) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Name cannot be blank")
		}

		var routes []models.Route
		if err := database.DB.Preload("Deliveries.Crates").Where("name IN ?", keys).Find(&routes).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load routes")
		}
		if len(routes) == 0 {
			return fiber.NewError(fiber.StatusNotFound, "Routes not found")
		}

		callerID := auth.CallerID(c)
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			for i := range routes {
				route := &routes[i]
				if callerID != 0 {
					route.DispatchedBy = &callerID
				}
				if body.Received != nil {
					at := time.Now()
					if body.ReceivedAt != nil {
						at = *body.ReceivedAt
					}
					route.Received = *body.Received
					route.ReceivedAt = &at
					if err := inventory.MarkReceived(tx, inventory.KindCrate, collectCrateIDs(route.Deliveries), *body.Received, at); err != nil {
						return err
					}
				}
				if err := tx.Omit("Deliveries").Save(route).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update routes")
		}

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    routes,
			"message": "Routes updated successfully",
		})
	}
}

type DispatchRouteRequest struct {
	Name json.RawMessage `json:"Name"`
}

// POST /api/route/dispatch/route
func DispatchRouteByNameHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body DispatchRouteRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		keys := parseKeyList(body.Name)
		if len(keys) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Name cannot be blank")
		}

		var dispatchedBy interface{}
		if callerID := auth.CallerID(c); callerID != 0 {
			dispatchedBy = callerID
		}
		result := database.DB.Model(&models.Route{}).
			Where("name IN ?", keys).
			Updates(map[string]interface{}{
				"dispatched":    time.Now(),
				"dispatched_by": dispatchedBy,
			})
		if result.Error != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not dispatch routes")
		}
		if result.RowsAffected == 0 {
			return fiber.NewError(fiber.StatusNotFound, "Routes not found")
		}

		callerID, callerName := callerInfo(c)
		_ = audit.WriteLog(audit.LogOptions{
			UserID:      callerID,
			UserName:    callerName,
			EntityType:  "route",
			Action:      models.AuditActionDispatch,
			Description: fmt.Sprintf("Dispatched routes: %s", strings.Join(keys, ", ")),
		})

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    fiber.Map{"dispatched": result.RowsAffected},
			"message": "Routes dispatched successfully",
		})
	}
}

type AddNewDeliveryRequest struct {
	Name       string          `json:"Name"`
	Deliveries []DeliveryInput `json:"deliveries"`
}

// POST /api/route/add-new-delivery
// Completes one delivery cycle: the current load is archived, its crates
// released, the new load claimed, and the dispatch state cleared so the
// route is ready to go out again.
func AddNewDeliveryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body AddNewDeliveryRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.Name == "" || len(body.Deliveries) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Name and deliveries are required")
		}

		var route models.Route
		if err := database.DB.
			Preload("Deliveries.Crates").
			Preload("Deliveries.Customer").
			Where("name = ?", body.Name).
			First(&route).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Route not found")
		}

		newCrateIDs := collectInputCrateIDs(body.Deliveries)

		err := database.DB.Transaction(func(tx *gorm.DB) error {
			if err := verifyAssignableUnits(tx, inventory.KindCrate, newCrateIDs); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}

			snapshot, err := json.Marshal(route.Deliveries)
			if err != nil {
				return err
			}
			archive := models.ArchivedDelivery{
				RouteName: route.Name,
				Snapshot:  string(snapshot),
			}
			if err := tx.Create(&archive).Error; err != nil {
				return err
			}

			priorIDs := collectCrateIDs(route.Deliveries)
			if err := inventory.SetInclusion(tx, inventory.KindCrate, priorIDs, false); err != nil {
				return err
			}
			if err := dropDeliveries(tx, route.ID); err != nil {
				return err
			}
			if err := releaseCrateMemberships(tx, newCrateIDs); err != nil {
				return err
			}
			if err := insertDeliveries(tx, route.ID, body.Deliveries); err != nil {
				return err
			}
			if err := inventory.SetInclusion(tx, inventory.KindCrate, newCrateIDs, true); err != nil {
				return err
			}

			// fresh cycle: the route itself starts undispatched and unreceived
			return tx.Model(&route).Updates(map[string]interface{}{
				"dispatched":    nil,
				"dispatched_by": nil,
				"received":      false,
				"received_at":   nil,
			}).Error
		})
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				return fe
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Could not start new delivery cycle")
		}

		callerID, callerName := callerInfo(c)
		_ = audit.WriteLog(audit.LogOptions{
			UserID:      callerID,
			UserName:    callerName,
			EntityType:  "route",
			EntityID:    route.ID,
			Action:      models.AuditActionCycle,
			Description: fmt.Sprintf("Route %s rolled over to a new delivery cycle, %d crates released", route.Name, len(collectCrateIDs(route.Deliveries))),
		})

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"status":  true,
			"data":    loadRoute(route.ID),
			"message": "New delivery cycle started successfully",
		})
	}
}

// DELETE /api/route/:id
func DeleteRouteByIDHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var route models.Route
		if err := database.DB.Preload("Deliveries.Crates").First(&route, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Route not found")
		}

		err := database.DB.Transaction(func(tx *gorm.DB) error {
			if err := inventory.SetInclusion(tx, inventory.KindCrate, collectCrateIDs(route.Deliveries), false); err != nil {
				return err
			}
			if err := dropDeliveries(tx, route.ID); err != nil {
				return err
			}
			return tx.Delete(&route).Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete route")
		}

		callerID, callerName := callerInfo(c)
		_ = audit.WriteLog(audit.LogOptions{
			UserID:      callerID,
			UserName:    callerName,
			EntityType:  "route",
			EntityID:    route.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Route %s deleted, %d crates released", route.Name, len(collectCrateIDs(route.Deliveries))),
			Before:      route,
		})

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    nil,
			"message": "Route deleted successfully",
		})
	}
}

func loadRoute(id uint) *routeResponse {
	var route models.Route
	if err := database.DB.
		Preload("Deliveries.Crates").
		Preload("Deliveries.Customer").
		Preload("DispatchedByUser").
		First(&route, id).Error; err != nil {
		return nil
	}
	resp := flattenRoute(route)
	return &resp
}
