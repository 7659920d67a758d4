package api

import (
	"errors"

	"github.com/tagmaster/tagmaster-api/internal/models"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// respondError maps service errors onto HTTP responses. Application errors
// carry their own status code; anything else becomes a sanitized 500.
func respondError(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{
			"error": fiber.Map{
				"type":    string(appErr.Type),
				"message": appErr.Message,
				"code":    appErr.Code,
			},
		})
	}

	fiberlog.Errorf("unhandled error in %s %s: %v", c.Method(), c.Path(), err)
	sanitized := models.SanitizeError(err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": fiber.Map{
			"type":    string(models.ErrorTypeInternal),
			"message": sanitized.Error(),
		},
	})
}
