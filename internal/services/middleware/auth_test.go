package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/tagmaster/tagmaster-api/internal/services/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	sessions map[string]*auth.Session
}

func (p *stubProvider) ValidateToken(_ context.Context, token string) (*auth.Session, error) {
	if session, ok := p.sessions[token]; ok {
		return session, nil
	}
	return nil, errors.New("unknown token")
}

func newTestApp(required bool) *fiber.App {
	provider := &stubProvider{sessions: map[string]*auth.Session{
		"good-token": {UserID: "user-1", Email: "u1@example.com"},
	}}
	m := NewAuthMiddleware(provider, nil)

	app := fiber.New()
	if required {
		app.Use(m.RequireAuth())
	} else {
		app.Use(m.Authenticate())
	}

	handler := func(c *fiber.Ctx) error {
		session := auth.GetSession(c)
		if session == nil {
			return c.JSON(fiber.Map{"user": nil})
		}
		return c.JSON(fiber.Map{"user": session.UserID})
	}
	app.Get("/protected", handler)
	app.Get("/health", handler)
	app.Post("/webhooks/stripe", handler)

	return app
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	app := newTestApp(true)

	resp, err := app.Test(httptest.NewRequest("GET", "/protected", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireAuthRejectsInvalidToken(t *testing.T) {
	app := newTestApp(true)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer bad-token")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	app := newTestApp(true)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-token")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireAuthSkipsConfiguredPaths(t *testing.T) {
	app := newTestApp(true)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/webhooks/stripe", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAuthenticateAllowsAnonymous(t *testing.T) {
	app := newTestApp(false)

	resp, err := app.Test(httptest.NewRequest("GET", "/protected", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestExtractTokenAcceptsRawHeader(t *testing.T) {
	app := newTestApp(true)

	// Tokens without the Bearer prefix are accepted as-is.
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "good-token")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
