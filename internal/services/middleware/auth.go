package middleware

import (
	"strings"

	"github.com/tagmaster/tagmaster-api/internal/services/auth"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

type AuthMiddleware struct {
	provider auth.Provider
	config   *AuthMiddlewareConfig
}

type AuthMiddlewareConfig struct {
	Enabled     bool
	HeaderNames []string
	SkipPaths   []string
}

func DefaultAuthMiddlewareConfig() *AuthMiddlewareConfig {
	return &AuthMiddlewareConfig{
		Enabled:     true,
		HeaderNames: []string{"Authorization"},
		SkipPaths: []string{
			"/health",
			"/webhooks",
		},
	}
}

func NewAuthMiddleware(provider auth.Provider, config *AuthMiddlewareConfig) *AuthMiddleware {
	if config == nil {
		config = DefaultAuthMiddlewareConfig()
	}
	if len(config.HeaderNames) == 0 {
		config.HeaderNames = []string{"Authorization"}
	}
	return &AuthMiddleware{
		provider: provider,
		config:   config,
	}
}

// Authenticate validates the bearer token when present but lets anonymous
// requests through; handlers that need an identity check the session.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return m.authenticate(false)
}

// RequireAuth rejects requests without a valid session.
func (m *AuthMiddleware) RequireAuth() fiber.Handler {
	return m.authenticate(true)
}

func (m *AuthMiddleware) authenticate(required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !m.config.Enabled {
			return c.Next()
		}

		if m.shouldSkipPath(c.Path()) {
			return c.Next()
		}

		token := m.extractToken(c)
		if token == "" {
			if !required {
				return c.Next()
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		session, err := m.provider.ValidateToken(c.Context(), token)
		if err != nil {
			fiberlog.Debugf("token validation failed: %v", err)
			if !required {
				return c.Next()
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		auth.StoreSession(c, session)
		return c.Next()
	}
}

func (m *AuthMiddleware) extractToken(c *fiber.Ctx) string {
	for _, headerName := range m.config.HeaderNames {
		if header := c.Get(headerName); header != "" {
			if after, ok := strings.CutPrefix(header, "Bearer "); ok {
				return after
			}
			return strings.TrimSpace(header)
		}
	}

	return ""
}

func (m *AuthMiddleware) shouldSkipPath(path string) bool {
	for _, skipPath := range m.config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}
