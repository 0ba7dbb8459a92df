package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/certify-go-api/internal/dto"
	"github.com/noah-isme/certify-go-api/internal/service"
	"github.com/noah-isme/certify-go-api/internal/utils"
)

// CourseHandler exposes the course catalog with per-user status and progress.
type CourseHandler struct {
	service service.CourseService
	logger  zerolog.Logger
}

// NewCourseHandler constructs a course handler.
func NewCourseHandler(service service.CourseService, logger zerolog.Logger) *CourseHandler {
	return &CourseHandler{
		service: service,
		logger:  logger.With().Str("component", "course_handler").Logger(),
	}
}

// Register wires course routes.
func (h *CourseHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Get("/:id", h.get)
	router.Post("/:id/completions", h.recordCompletion)
}

func (h *CourseHandler) list(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	courses, err := h.service.ListCourses(c.UserContext(), userID)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list courses")
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "courses retrieved", courses)
}

func (h *CourseHandler) get(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	courseID, err := parseParamUint(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid course id")
	}

	course, err := h.service.GetCourse(c.UserContext(), userID, courseID)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Uint("course_id", courseID).Msg("failed to fetch course")
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "course retrieved", course)
}

func (h *CourseHandler) recordCompletion(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	courseID, err := parseParamUint(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid course id")
	}

	var payload dto.CompletionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	progress, err := h.service.RecordCompletion(c.UserContext(), userID, courseID, payload)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Uint("course_id", courseID).Msg("failed to record completion")
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "completion recorded", progress)
}
