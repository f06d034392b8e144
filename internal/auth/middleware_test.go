package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"paneltrack-backend/internal/config"
	"paneltrack-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

const testSecret = "test-secret-that-is-long-enough-123"

func newAuthTestApp(cfg *config.Config, roles ...models.UserRole) *fiber.App {
	app := fiber.New()
	handlers := []fiber.Handler{JWTMiddleware(cfg)}
	if len(roles) > 0 {
		handlers = append(handlers, RequireRole(roles...))
	}
	handlers = append(handlers, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": true, "data": CallerID(c), "message": "ok"})
	})
	app.Get("/secure", handlers...)
	return app
}

func testToken(t *testing.T, role models.UserRole) string {
	t.Helper()
	token, err := GenerateToken(testSecret, &models.User{
		ID:    7,
		Name:  "Tester",
		Email: "tester@example.com",
		Role:  role,
	})
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	return token
}

func TestJWTMiddleware_MissingToken(t *testing.T) {
	app := newAuthTestApp(&config.Config{JWTSecret: testSecret})

	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestJWTMiddleware_InvalidToken(t *testing.T) {
	app := newAuthTestApp(&config.Config{JWTSecret: testSecret})

	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a garbage token, got %d", resp.StatusCode)
	}
}

func TestJWTMiddleware_WrongSecretRejected(t *testing.T) {
	app := newAuthTestApp(&config.Config{JWTSecret: "a-completely-different-secret-456789"})

	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, models.RoleUser))
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a token signed with another secret, got %d", resp.StatusCode)
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	app := newAuthTestApp(&config.Config{JWTSecret: testSecret})

	// scanner clients send the token without the Bearer prefix
	for _, header := range []string{"Bearer ", ""} {
		req := httptest.NewRequest(http.MethodGet, "/secure", nil)
		req.Header.Set("Authorization", header+testToken(t, models.RoleUser))
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 with header %q, got %d", header, resp.StatusCode)
		}
	}
}

func TestJWTMiddleware_TokenFromCookie(t *testing.T) {
	app := newAuthTestApp(&config.Config{JWTSecret: testSecret})

	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookieName, Value: testToken(t, models.RoleUser)})
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with cookie token, got %d", resp.StatusCode)
	}
}

func TestRequireRole(t *testing.T) {
	app := newAuthTestApp(&config.Config{JWTSecret: testSecret}, models.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, models.RoleUser))
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for a non-admin caller, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, models.RoleAdmin))
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for an admin caller, got %d", resp.StatusCode)
	}
}
