package auth

import (
	"github.com/gofiber/fiber/v2"
)

const sessionLocalKey = "auth_session"

// StoreSession attaches the validated session to the request context.
func StoreSession(c *fiber.Ctx, session *Session) {
	c.Locals(sessionLocalKey, session)
}

// GetSession returns the request's validated session, or nil when the
// request was not authenticated.
func GetSession(c *fiber.Ctx) *Session {
	session, ok := c.Locals(sessionLocalKey).(*Session)
	if !ok {
		return nil
	}
	return session
}
