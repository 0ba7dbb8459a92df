package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/certify-go-api/internal/dto"
	"github.com/noah-isme/certify-go-api/internal/observability"
	"github.com/noah-isme/certify-go-api/internal/service"
	"github.com/noah-isme/certify-go-api/internal/utils"
)

// WebhookHandler receives signing and payment provider callbacks. Both
// providers retry on non-2xx responses, so anything that is not a malformed
// payload is acknowledged with 200 and the outcome carried in the body.
type WebhookHandler struct {
	workflows service.WorkflowService
	deduper   service.WebhookDeduper
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewWebhookHandler constructs the webhook handler.
func NewWebhookHandler(workflows service.WorkflowService, deduper service.WebhookDeduper, validate *validator.Validate, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		workflows: workflows,
		deduper:   deduper,
		validator: validate,
		logger:    logger.With().Str("component", "webhook_handler").Logger(),
	}
}

// Register binds the provider callback routes.
func (h *WebhookHandler) Register(router fiber.Router) {
	router.Post("/signnow", h.signNow)
	router.Post("/stripe", h.stripe)
}

func (h *WebhookHandler) signNow(c *fiber.Ctx) error {
	var payload dto.SignNowWebhookRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid webhook payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid webhook payload")
	}

	if h.deduper != nil && h.deduper.Seen(c.UserContext(), "signnow", payload.EventID) {
		observability.WebhookEvents().WithLabelValues("signnow", "replayed").Inc()
		return utils.SendSuccess(c, "event already processed", dto.WebhookResult{Updated: false, Reason: "duplicate delivery"})
	}

	var result dto.WebhookResult
	var err error

	switch payload.Event {
	case "document.complete", "document.signed":
		result, err = h.workflows.HandleContractSigned(c.UserContext(), payload)
	case "document.declined":
		result, err = h.workflows.HandleContractDeclined(c.UserContext(), payload)
	default:
		observability.WebhookEvents().WithLabelValues("signnow", "ignored").Inc()
		return utils.SendSuccess(c, "event ignored", dto.WebhookResult{Updated: false, Reason: "unhandled event type"})
	}

	if err != nil {
		h.release(c, "signnow", payload.EventID)
		requestLogger(h.logger, c).Error().Err(err).Str("event", payload.Event).Str("document_id", payload.DocumentID).Msg("signing webhook failed")
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "webhook processed", result)
}

func (h *WebhookHandler) stripe(c *fiber.Ctx) error {
	var payload dto.StripeWebhookRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid webhook payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid webhook payload")
	}

	if h.deduper != nil && h.deduper.Seen(c.UserContext(), "stripe", payload.EventID) {
		observability.WebhookEvents().WithLabelValues("stripe", "replayed").Inc()
		return utils.SendSuccess(c, "event already processed", dto.WebhookResult{Updated: false, Reason: "duplicate delivery"})
	}

	if payload.Type != "checkout.session.completed" {
		observability.WebhookEvents().WithLabelValues("stripe", "ignored").Inc()
		return utils.SendSuccess(c, "event ignored", dto.WebhookResult{Updated: false, Reason: "unhandled event type"})
	}

	result, err := h.workflows.HandlePaymentCompleted(c.UserContext(), payload)
	if err != nil {
		h.release(c, "stripe", payload.EventID)
		requestLogger(h.logger, c).Error().Err(err).Str("session_id", payload.SessionID).Msg("payment webhook failed")
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "webhook processed", result)
}

// release returns the dedupe claim after a failed delivery so the provider
// retry is processed instead of short-circuited as a duplicate.
func (h *WebhookHandler) release(c *fiber.Ctx, provider, eventID string) {
	if h.deduper != nil {
		h.deduper.Forget(c.UserContext(), provider, eventID)
	}
}
