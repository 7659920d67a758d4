package api

import (
	"github.com/tagmaster/tagmaster-api/internal/models"
	"github.com/tagmaster/tagmaster-api/internal/services/auth"
	"github.com/tagmaster/tagmaster-api/internal/services/generation"

	"github.com/gofiber/fiber/v2"
)

type GenerationHandler struct {
	orchestrator *generation.Orchestrator
}

func NewGenerationHandler(orchestrator *generation.Orchestrator) *GenerationHandler {
	return &GenerationHandler{
		orchestrator: orchestrator,
	}
}

// GenerateRequest represents the request body for a generation
type GenerateRequest struct {
	Theme    string `json:"theme"`
	Strategy string `json:"strategy"`
}

// GenerateResponse represents a completed generation
type GenerateResponse struct {
	Caption      string                   `json:"caption"`
	Hashtags     []string                 `json:"hashtags"`
	Analysis     string                   `json:"analysis,omitempty"`
	Sources      []models.GroundingSource `json:"sources,omitempty"`
	StrategyUsed string                   `json:"strategy_used"`
}

// Generate runs one credit-metered generation for the authenticated user
func (h *GenerationHandler) Generate(c *fiber.Ctx) error {
	var req GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	session := auth.GetSession(c)

	result, err := h.orchestrator.Submit(c.Context(), session, models.GenerationRequest{
		Theme:    req.Theme,
		Strategy: models.StrategyID(req.Strategy),
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(GenerateResponse{
		Caption:      result.Caption,
		Hashtags:     result.Hashtags,
		Analysis:     result.Analysis,
		Sources:      result.Sources,
		StrategyUsed: string(result.StrategyUsed),
	})
}

// ListStrategies returns the hashtag strategy catalog
func (h *GenerationHandler) ListStrategies(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"strategies": models.Strategies,
	})
}
