package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/certify-go-api/internal/middleware"
	"github.com/noah-isme/certify-go-api/internal/service"
	"github.com/noah-isme/certify-go-api/internal/utils"
)

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals(middleware.LocalsUserID); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func parseParamUint(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(parsed), nil
}

func parseParamInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// sendServiceError maps domain errors onto HTTP responses. Precondition
// failures surface as a conflict so the UI can render the step as "not yet
// available" rather than a raw error.
func sendServiceError(c *fiber.Ctx, err error) error {
	var preconditionErr *service.PreconditionError
	switch {
	case errors.As(err, &preconditionErr):
		return utils.SendError(c, fiber.StatusConflict, preconditionErr.Error())
	case errors.Is(err, service.ErrWorkflowNotFound),
		errors.Is(err, service.ErrCourseNotFound),
		errors.Is(err, service.ErrSubsectionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrCourseLocked):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		return utils.SendError(c, fiber.StatusInternalServerError, "internal error")
	}
}
