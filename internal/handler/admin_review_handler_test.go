package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/certify-go-api/internal/dto"
	"github.com/noah-isme/certify-go-api/internal/handler"
	"github.com/noah-isme/certify-go-api/internal/models"
	"github.com/noah-isme/certify-go-api/internal/service"
)

type stubEventService struct{}

func (stubEventService) PublishTransition(context.Context, dto.WorkflowEvent) {}

func (stubEventService) Subscribe() (<-chan dto.WorkflowEvent, func()) {
	ch := make(chan dto.WorkflowEvent)
	return ch, func() { close(ch) }
}

func (stubEventService) Start(context.Context) {}

func newAdminApp(svc stubWorkflowService) *fiber.App {
	app := fiber.New()
	h := handler.NewAdminReviewHandler(svc, stubEventService{}, zerolog.Nop(), time.Second)
	h.Register(app.Group("/api/admin/certification"))
	return app
}

func TestAdminReviewHandlerListReviews(t *testing.T) {
	workflow := dto.WorkflowResponse{ID: 1, UserID: 5, AdminApprovalStatus: models.ApprovalPending}
	app := newAdminApp(stubWorkflowService{workflow: workflow})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/certification/reviews", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminReviewHandlerApprove(t *testing.T) {
	workflow := dto.WorkflowResponse{ID: 1, AdminApprovalStatus: models.ApprovalApproved}
	app := newAdminApp(stubWorkflowService{workflow: workflow})

	body := strings.NewReader(`{"note":"well done"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/certification/1/approve", body)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminReviewHandlerApproveWithoutBody(t *testing.T) {
	app := newAdminApp(stubWorkflowService{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/certification/1/approve", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminReviewHandlerRejectInvalidID(t *testing.T) {
	app := newAdminApp(stubWorkflowService{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/certification/abc/reject", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminReviewHandlerDecisionConflict(t *testing.T) {
	failure := &service.PreconditionError{Operation: "approve", Required: "admin approval to be pending"}
	app := newAdminApp(stubWorkflowService{err: failure})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/certification/1/approve", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}
