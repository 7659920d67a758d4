package api

import (
	"encoding/json"
	"fmt"

	"github.com/tagmaster/tagmaster-api/internal/services/profile"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	svix "github.com/svix/svix-webhooks/go"
)

type ClerkWebhookHandler struct {
	webhookSecret string
	profiles      *profile.Service
}

func NewClerkWebhookHandler(webhookSecret string, profiles *profile.Service) *ClerkWebhookHandler {
	return &ClerkWebhookHandler{
		webhookSecret: webhookSecret,
		profiles:      profiles,
	}
}

type ClerkWebhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type ClerkUserData struct {
	ID             string `json:"id"`
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
}

// HandleWebhook verifies and processes Clerk webhook events. user.created
// pre-creates the profile so the first generation request never pays the
// creation cost.
func (h *ClerkWebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	payload := c.Body()

	headers := make(map[string][]string)
	c.Request().Header.VisitAll(func(key, value []byte) {
		headers[string(key)] = []string{string(value)}
	})

	wh, err := svix.NewWebhook(h.webhookSecret)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to initialize webhook verifier",
		})
	}

	if err := wh.Verify(payload, headers); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid webhook signature",
		})
	}

	var event ClerkWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid JSON payload",
		})
	}

	switch event.Type {
	case "user.created":
		if err := h.handleUserCreated(c, event.Data); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": fmt.Sprintf("Failed to process user.created event: %v", err),
			})
		}
	default:
		fiberlog.Debugf("ignoring clerk event type %s", event.Type)
	}

	return c.JSON(fiber.Map{
		"received": true,
	})
}

func (h *ClerkWebhookHandler) handleUserCreated(c *fiber.Ctx, data json.RawMessage) error {
	var userData ClerkUserData
	if err := json.Unmarshal(data, &userData); err != nil {
		return fmt.Errorf("failed to unmarshal user data: %w", err)
	}
	if userData.ID == "" {
		return fmt.Errorf("user.created event has no user id")
	}

	email := ""
	if len(userData.EmailAddresses) > 0 {
		email = userData.EmailAddresses[0].EmailAddress
	}

	p, err := h.profiles.GetOrCreate(c.Context(), userData.ID, email)
	if err != nil {
		return fmt.Errorf("failed to pre-create profile: %w", err)
	}

	fiberlog.Infof("pre-created profile %s with %d credits", p.ID, p.Credits)
	return nil
}
