package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/certify-go-api/internal/dto"
	"github.com/noah-isme/certify-go-api/internal/middleware"
	"github.com/noah-isme/certify-go-api/internal/service"
	"github.com/noah-isme/certify-go-api/internal/utils"
)

// AdminReviewHandler serves the admin review queue, the approve/reject
// decisions and the live workflow event stream.
type AdminReviewHandler struct {
	workflows service.WorkflowService
	events    service.WorkflowEventService
	logger    zerolog.Logger
	timeout   time.Duration
}

// NewAdminReviewHandler constructs the admin review handler.
func NewAdminReviewHandler(workflows service.WorkflowService, events service.WorkflowEventService, logger zerolog.Logger, timeout time.Duration) *AdminReviewHandler {
	return &AdminReviewHandler{
		workflows: workflows,
		events:    events,
		logger:    logger.With().Str("component", "admin_review_handler").Logger(),
		timeout:   timeout,
	}
}

// Register binds the admin certification routes.
func (h *AdminReviewHandler) Register(router fiber.Router) {
	router.Get("/reviews", h.listReviews)
	router.Post("/:id/approve", h.approve)
	router.Post("/:id/reject", h.reject)
	router.Get("/events", h.streamEvents)
}

func (h *AdminReviewHandler) listReviews(c *fiber.Ctx) error {
	reviews, err := h.workflows.ListPendingReviews(c.UserContext())
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list pending reviews")
		return sendServiceError(c, err)
	}

	return utils.OK(c, reviews, "pending reviews retrieved", fiber.Map{"count": len(reviews)})
}

func (h *AdminReviewHandler) approve(c *fiber.Ctx) error {
	return h.decide(c, "approve", h.workflows.Approve)
}

func (h *AdminReviewHandler) reject(c *fiber.Ctx) error {
	return h.decide(c, "reject", h.workflows.Reject)
}

func (h *AdminReviewHandler) decide(c *fiber.Ctx, action string, decision func(context.Context, uint, dto.ReviewDecisionRequest) (dto.WorkflowResponse, error)) error {
	workflowID, err := parseParamUint(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid workflow id")
	}

	var payload dto.ReviewDecisionRequest
	if err := c.BodyParser(&payload); err != nil && len(c.Body()) > 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	workflow, err := decision(c.UserContext(), workflowID, payload)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Uint("workflow_id", workflowID).Str("action", action).Msg("review decision rejected")
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "review decision recorded", workflow)
}

func (h *AdminReviewHandler) streamEvents(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
	ctx, cancel := context.WithCancel(ctx)

	stream, cleanup := h.events.Subscribe()

	keepAliveInterval := h.timeout
	if keepAliveInterval <= 0 {
		keepAliveInterval = 30 * time.Second
	}

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cleanup()
			cancel()
		}()

		ticker := time.NewTicker(keepAliveInterval / 2)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-stream:
				if !ok {
					return
				}
				if err := writeWorkflowEvent(w, event); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write workflow event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write workflow keepalive")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func writeWorkflowEvent(w *bufio.Writer, event dto.WorkflowEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: workflow-transition\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
