package api

import (
	"github.com/tagmaster/tagmaster-api/internal/models"
	"github.com/tagmaster/tagmaster-api/internal/services/auth"
	"github.com/tagmaster/tagmaster-api/internal/services/ledger"
	"github.com/tagmaster/tagmaster-api/internal/services/profile"

	"github.com/gofiber/fiber/v2"
)

type ProfileHandler struct {
	profiles *profile.Service
	ledger   *ledger.Service
}

func NewProfileHandler(profiles *profile.Service, ledgerSvc *ledger.Service) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		ledger:   ledgerSvc,
	}
}

// ProfileResponse represents a user profile with its credit balance
type ProfileResponse struct {
	ID      string `json:"id"`
	Email   string `json:"email,omitempty"`
	Credits int64  `json:"credits"`
}

func toProfileResponse(p *models.UserProfile) ProfileResponse {
	return ProfileResponse{
		ID:      p.ID,
		Email:   p.Email,
		Credits: p.Credits,
	}
}

// GetProfile returns the authenticated user's profile, creating it with the
// initial grant on first sight
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	session := auth.GetSession(c)
	if session == nil {
		return respondError(c, models.NewAuthRequiredError())
	}

	p, err := h.profiles.GetOrCreate(c.Context(), session.UserID, session.Email)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(toProfileResponse(p))
}

// RefreshProfile re-reads the authoritative balance and notifies subscribers
func (h *ProfileHandler) RefreshProfile(c *fiber.Ctx) error {
	session := auth.GetSession(c)
	if session == nil {
		return respondError(c, models.NewAuthRequiredError())
	}

	p, err := h.profiles.RefreshAndPublish(c.Context(), session.UserID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(toProfileResponse(p))
}

// GetTransactions returns the authenticated user's credit transaction history
func (h *ProfileHandler) GetTransactions(c *fiber.Ctx) error {
	session := auth.GetSession(c)
	if session == nil {
		return respondError(c, models.NewAuthRequiredError())
	}

	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	transactions, err := h.ledger.GetTransactionHistory(c.Context(), session.UserID, limit, offset)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"transactions": transactions,
		"limit":        limit,
		"offset":       offset,
	})
}
