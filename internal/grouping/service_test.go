package grouping

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"paneltrack-backend/internal/inventory"

	"github.com/gofiber/fiber/v2"
)

func TestScanCreateError(t *testing.T) {
	t.Run("fiber error passes through", func(t *testing.T) {
		in := fiber.NewError(fiber.StatusBadRequest, "2 of 3 panels are unknown, inactive or already assigned")
		got := scanCreateError(in, "fallback")
		if got != in {
			t.Fatalf("expected the validation error unchanged, got %v", got)
		}
	})

	t.Run("partial ingestion gets its own message", func(t *testing.T) {
		in := fmt.Errorf("%w: creating serial %q: disk full", inventory.ErrIngestionPartial, "S9")
		got := scanCreateError(in, "fallback")
		if got.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", got.Code)
		}
		if !strings.Contains(got.Message, "partially applied") {
			t.Errorf("expected a partial-ingestion message, got %q", got.Message)
		}
		if got.Message == "fallback" {
			t.Errorf("partial ingestion must not collapse into the generic message")
		}
	})

	t.Run("unknown error falls back", func(t *testing.T) {
		got := scanCreateError(errors.New("connection reset"), "Could not create batch from scan")
		if got.Code != http.StatusInternalServerError || got.Message != "Could not create batch from scan" {
			t.Errorf("expected the generic fallback, got %d %q", got.Code, got.Message)
		}
	})
}
