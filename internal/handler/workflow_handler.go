package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/certify-go-api/internal/dto"
	"github.com/noah-isme/certify-go-api/internal/service"
	"github.com/noah-isme/certify-go-api/internal/utils"
)

// WorkflowHandler exposes the user-facing certification workflow endpoints.
type WorkflowHandler struct {
	service service.WorkflowService
	logger  zerolog.Logger
}

// NewWorkflowHandler constructs a workflow handler.
func NewWorkflowHandler(service service.WorkflowService, logger zerolog.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		service: service,
		logger:  logger.With().Str("component", "workflow_handler").Logger(),
	}
}

// Register wires the certification routes.
func (h *WorkflowHandler) Register(router fiber.Router) {
	router.Get("/:level", h.get)
	router.Post("/:level/exam", h.submitExam)
	router.Post("/:level/contract", h.startContract)
	router.Post("/:level/payment", h.startPayment)
}

func (h *WorkflowHandler) get(c *fiber.Ctx) error {
	userID, level, ok, err := h.parseTarget(c)
	if !ok {
		return err
	}

	workflow, err := h.service.GetForUser(c.UserContext(), userID, level)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Int("level", level).Msg("failed to fetch workflow")
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "workflow retrieved", workflow)
}

func (h *WorkflowHandler) submitExam(c *fiber.Ctx) error {
	userID, level, ok, err := h.parseTarget(c)
	if !ok {
		return err
	}

	var payload dto.SubmitExamRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	workflow, err := h.service.SubmitExam(c.UserContext(), userID, level, payload)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Int("level", level).Msg("exam submission rejected")
		return sendServiceError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "exam submitted", workflow)
}

func (h *WorkflowHandler) startContract(c *fiber.Ctx) error {
	userID, level, ok, err := h.parseTarget(c)
	if !ok {
		return err
	}

	session, err := h.service.StartContractSigning(c.UserContext(), userID, level)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Int("level", level).Msg("contract signing not started")
		return sendServiceError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "signing session created", session)
}

func (h *WorkflowHandler) startPayment(c *fiber.Ctx) error {
	userID, level, ok, err := h.parseTarget(c)
	if !ok {
		return err
	}

	session, err := h.service.StartPayment(c.UserContext(), userID, level)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Int("level", level).Msg("payment session not started")
		return sendServiceError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "checkout session created", session)
}

func (h *WorkflowHandler) parseTarget(c *fiber.Ctx) (uint, int, bool, error) {
	userID := userIDFromContext(c)
	if userID == 0 {
		return 0, 0, false, utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	level, err := parseParamInt(c, "level")
	if err != nil || level <= 0 {
		return 0, 0, false, utils.SendError(c, fiber.StatusBadRequest, "invalid certification level")
	}

	return userID, level, true, nil
}
