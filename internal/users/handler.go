package users

import (
	"encoding/json"
	"net/mail"
	"strings"

	"paneltrack-backend/internal/database"
	"paneltrack-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// defaultPassword is assigned when a bulk import or admin create omits a
// password; users are expected to change it on first login.
const defaultPassword = "12345678"

type CreateUserRequest struct {
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Contact  string          `json:"contact"`
	Role     models.UserRole `json:"role"`
	Location json.RawMessage `json:"location"`
}

type UpdateUserRequest struct {
	Name     *string         `json:"name"`
	Email    *string         `json:"email"`
	Password *string         `json:"password"`
	Contact  *string         `json:"contact"`
	Role     *models.UserRole `json:"role"`
	Location json.RawMessage `json:"location"`
}

func validEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func buildUser(in CreateUserRequest) (*models.User, error) {
	password := in.Password
	if password == "" {
		password = defaultPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = models.RoleUser
	}

	return &models.User{
		Name:         in.Name,
		Email:        strings.TrimSpace(strings.ToLower(in.Email)),
		PasswordHash: string(hash),
		Role:         role,
		Contact:      in.Contact,
		Location:     EncodeLocation(ParseLocation(in.Location)),
	}, nil
}

// POST /api/user
func CreateUserHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateUserRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.Name == "" || body.Email == "" || body.Contact == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Name, email and contact are required")
		}
		if !validEmail(body.Email) {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid email format")
		}
		if body.Password != "" && len(body.Password) < 8 {
			return fiber.NewError(fiber.StatusBadRequest, "Password should be at least 8 characters long")
		}

		var existing models.User
		if err := database.DB.Where("email = ?", strings.ToLower(body.Email)).First(&existing).Error; err == nil {
			return fiber.NewError(fiber.StatusConflict, "Email already exists")
		}

		user, err := buildUser(body)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not hash password")
		}
		if err := database.DB.Create(user).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create user")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"status":  true,
			"data":    user,
			"message": "User added successfully",
		})
	}
}

type BulkUsersRequest struct {
	Users []CreateUserRequest `json:"users"`
}

// POST /api/user/bulk
func BulkUploadUsersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body BulkUsersRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if len(body.Users) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "No users provided for bulk upload")
		}

		added := make([]models.User, 0, len(body.Users))
		skipped := make([]CreateUserRequest, 0)

		for _, in := range body.Users {
			if in.Name == "" || in.Email == "" || in.Contact == "" || !validEmail(in.Email) {
				skipped = append(skipped, in)
				continue
			}
			var existing models.User
			if err := database.DB.Where("email = ?", strings.ToLower(in.Email)).First(&existing).Error; err == nil {
				skipped = append(skipped, in)
				continue
			}
			user, err := buildUser(in)
			if err != nil {
				skipped = append(skipped, in)
				continue
			}
			if err := database.DB.Create(user).Error; err != nil {
				skipped = append(skipped, in)
				continue
			}
			added = append(added, *user)
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"status":  true,
			"added":   added,
			"skipped": skipped,
			"message": "Bulk upload completed with skipped users",
		})
	}
}

// GET /api/user
// Operational users only; customers have their own listing.
func ListUsersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var users []models.User
		if err := database.DB.Where("role <> ?", models.RoleCustomer).Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list users")
		}
		return c.JSON(fiber.Map{
			"status":  true,
			"data":    users,
			"message": "Users fetched successfully",
		})
	}
}

// GET /api/user/customer
func ListCustomersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var users []models.User
		if err := database.DB.Where("role = ?", models.RoleCustomer).Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list customers")
		}
		return c.JSON(fiber.Map{
			"status":  true,
			"data":    users,
			"message": "Customers fetched successfully",
		})
	}
}

// GET /api/user/:id
func GetUserByIDHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var user models.User
		if err := database.DB.First(&user, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "User not found")
		}
		return c.JSON(fiber.Map{
			"status":  true,
			"data":    user,
			"message": "User fetched successfully",
		})
	}
}

// PUT /api/user/:id
func UpdateUserByIDHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var user models.User
		if err := database.DB.First(&user, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "User not found")
		}

		var body UpdateUserRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.Email != nil {
			email := strings.TrimSpace(strings.ToLower(*body.Email))
			if !validEmail(email) {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid email format")
			}
			var existing models.User
			if err := database.DB.Where("email = ? AND id <> ?", email, user.ID).First(&existing).Error; err == nil {
				return fiber.NewError(fiber.StatusConflict, "Email already exists")
			}
			user.Email = email
		}
		if body.Password != nil {
			if len(*body.Password) < 8 {
				return fiber.NewError(fiber.StatusBadRequest, "Password should be at least 8 characters long")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(*body.Password), bcrypt.DefaultCost)
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "Could not hash password")
			}
			user.PasswordHash = string(hash)
		}
		if body.Name != nil {
			user.Name = *body.Name
		}
		if body.Contact != nil {
			user.Contact = *body.Contact
		}
		if body.Role != nil {
			user.Role = *body.Role
		}
		if len(body.Location) > 0 {
			user.Location = EncodeLocation(ParseLocation(body.Location))
		}

		if err := database.DB.Save(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update user")
		}

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    user,
			"message": "User updated successfully",
		})
	}
}

// DELETE /api/user/:id
// Batches the user owns or dispatched stay, they just lose the reference.
func DeleteUserByIDHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var user models.User
		if err := database.DB.First(&user, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "User not found")
		}

		err := database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Batch{}).Where("user_id = ?", user.ID).Update("user_id", nil).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Batch{}).Where("dispatched_by = ?", user.ID).Update("dispatched_by", nil).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Route{}).Where("dispatched_by = ?", user.ID).Update("dispatched_by", nil).Error; err != nil {
				return err
			}
			return tx.Delete(&user).Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete user")
		}

		return c.JSON(fiber.Map{
			"status":  true,
			"data":    nil,
			"message": "User deleted successfully",
		})
	}
}
