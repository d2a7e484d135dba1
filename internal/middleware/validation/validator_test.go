package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testApp(cfg Config) *fiber.App {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	app := fiber.New()
	app.Use(Middleware(cfg))
	app.Post("/api/v1/query", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func postQuery(t *testing.T, app *fiber.App, body, contentType string) int {
	req := httptest.NewRequest("POST", "/api/v1/query", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestValidationAcceptsWellFormedQuery(t *testing.T) {
	app := testApp(Config{})
	code := postQuery(t, app, `{"query":"Где находится офис?","user_id":7}`, "application/json")
	assert.Equal(t, fiber.StatusOK, code)
}

func TestValidationRejectsUnsupportedContentType(t *testing.T) {
	app := testApp(Config{})
	code := postQuery(t, app, "query=hi", "text/plain")
	assert.Equal(t, fiber.StatusUnsupportedMediaType, code)
}

func TestValidationRejectsMissingQuery(t *testing.T) {
	app := testApp(Config{})
	code := postQuery(t, app, `{"user_id":7}`, "application/json")
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestValidationRejectsOverlongQuery(t *testing.T) {
	app := testApp(Config{MaxQueryLength: 10})
	code := postQuery(t, app, `{"query":"this query is much longer than ten characters","user_id":7}`, "application/json")
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestValidationRejectsScriptInjection(t *testing.T) {
	app := testApp(Config{})
	code := postQuery(t, app, `{"query":"<script>alert(1)</script>","user_id":7}`, "application/json")
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestValidationRejectsUnknownProfileAttribute(t *testing.T) {
	app := testApp(Config{})
	body := `{"query":"Где офис?","user_id":7,"user_info":{"name":"Anna","role":"admin"}}`
	code := postQuery(t, app, body, "application/json")
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestValidationAcceptsKnownProfileAttributes(t *testing.T) {
	app := testApp(Config{})
	body := `{"query":"Где офис?","user_id":7,"user_info":{"name":"Anna","position":"Analyst","department":"Finance","start_date":"2024-03-01"}}`
	code := postQuery(t, app, body, "application/json")
	assert.Equal(t, fiber.StatusOK, code)
}
