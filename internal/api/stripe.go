package api

import (
	"github.com/tagmaster/tagmaster-api/internal/models"
	"github.com/tagmaster/tagmaster-api/internal/services/auth"
	"github.com/tagmaster/tagmaster-api/internal/services/payment"

	"github.com/gofiber/fiber/v2"
)

type StripeHandler struct {
	stripeService *payment.StripeService
}

func NewStripeHandler(stripeService *payment.StripeService) *StripeHandler {
	return &StripeHandler{
		stripeService: stripeService,
	}
}

// CreateCheckoutSessionRequest represents the request body for creating a checkout session
type CreateCheckoutSessionRequest struct {
	PackageID string `json:"package_id"`
	ReturnURL string `json:"return_url"`
}

// CreateCheckoutSessionResponse represents the response for checkout session creation
type CreateCheckoutSessionResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// ListPackages returns the purchasable credit packages
func (h *StripeHandler) ListPackages(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"packages": h.stripeService.Packages(),
	})
}

// CreateCheckoutSession creates a Stripe checkout session for purchasing credits
func (h *StripeHandler) CreateCheckoutSession(c *fiber.Ctx) error {
	session := auth.GetSession(c)
	if session == nil {
		return respondError(c, models.NewAuthRequiredError())
	}

	var req CreateCheckoutSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.PackageID == "" || req.ReturnURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "package_id and return_url are required",
		})
	}

	checkout, err := h.stripeService.CreateCheckoutSession(c.Context(), payment.CreateCheckoutParams{
		IdentityID: session.UserID,
		PackageID:  req.PackageID,
		ReturnURL:  req.ReturnURL,
		Email:      session.Email,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(CreateCheckoutSessionResponse{
		SessionID:   checkout.ID,
		CheckoutURL: checkout.URL,
	})
}

// HandleWebhook processes Stripe webhook events. The raw body must reach the
// signature check untouched.
func (h *StripeHandler) HandleWebhook(c *fiber.Ctx) error {
	payload := c.Body()
	if len(payload) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Empty request body",
		})
	}

	signature := c.Get("Stripe-Signature")
	if signature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing Stripe-Signature header",
		})
	}

	if err := h.stripeService.HandleWebhook(c.Context(), payload, signature); err != nil {
		if models.IsType(err, models.ErrorTypeSignature) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid webhook signature",
			})
		}

		// Non-2xx makes the provider redeliver, which is what we want for
		// transient credit failures.
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process webhook",
		})
	}

	return c.JSON(fiber.Map{
		"received": true,
	})
}
