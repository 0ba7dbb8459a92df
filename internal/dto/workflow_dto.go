package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/certify-go-api/internal/models"
)

// WorkflowResponse is the API view of a certification workflow.
type WorkflowResponse struct {
	ID                  uint                      `json:"id"`
	UserID              uint                      `json:"user_id"`
	Level               int                       `json:"level"`
	CurrentStep         models.WorkflowStep       `json:"current_step"`
	ExamStatus          models.ExamStatus         `json:"exam_status"`
	AdminApprovalStatus models.ApprovalStatus     `json:"admin_approval_status"`
	ContractStatus      models.ContractStatus     `json:"contract_status"`
	SubscriptionStatus  models.SubscriptionStatus `json:"subscription_status"`
	ExamResults         json.RawMessage           `json:"exam_results,omitempty"`
	ReviewNote          string                    `json:"review_note,omitempty"`
	ContractDocURL      string                    `json:"contract_doc_url,omitempty"`
	CompletedAt         *time.Time                `json:"completed_at,omitempty"`
	UpdatedAt           time.Time                 `json:"updated_at"`
}

// NewWorkflowResponse maps a workflow row onto its API view.
//
// Once the admin has approved, the exam is reported as passed regardless of
// the stored exam status. The stored value is left untouched; this inference
// exists only so the UI never shows "pending review" on an approved workflow.
func NewWorkflowResponse(workflow models.CertificationWorkflow) WorkflowResponse {
	examStatus := workflow.ExamStatus
	if workflow.AdminApprovalStatus == models.ApprovalApproved {
		examStatus = models.ExamPassed
	}

	return WorkflowResponse{
		ID:                  workflow.ID,
		UserID:              workflow.UserID,
		Level:               workflow.Level,
		CurrentStep:         workflow.CurrentStep,
		ExamStatus:          examStatus,
		AdminApprovalStatus: workflow.AdminApprovalStatus,
		ContractStatus:      workflow.ContractStatus,
		SubscriptionStatus:  workflow.SubscriptionStatus,
		ExamResults:         json.RawMessage(workflow.ExamResults),
		ReviewNote:          workflow.ReviewNote,
		ContractDocURL:      workflow.ContractDocURL,
		CompletedAt:         workflow.CompletedAt,
		UpdatedAt:           workflow.UpdatedAt,
	}
}

// NewWorkflowResponseSlice maps a slice of workflow rows.
func NewWorkflowResponseSlice(workflows []models.CertificationWorkflow) []WorkflowResponse {
	responses := make([]WorkflowResponse, 0, len(workflows))
	for _, workflow := range workflows {
		responses = append(responses, NewWorkflowResponse(workflow))
	}
	return responses
}

// SubmitExamRequest carries the exam answers payload for one level.
type SubmitExamRequest struct {
	Results json.RawMessage `json:"results" validate:"required"`
}

// ReviewDecisionRequest carries the admin approve/reject payload.
type ReviewDecisionRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

// SessionResponse is returned by the start-contract and start-payment
// operations; the UI redirects the user to URL.
type SessionResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

// WebhookResult reports the outcome of an external callback. Unmatched
// callbacks are acknowledged with Updated=false rather than an error so the
// provider does not keep retrying.
type WebhookResult struct {
	Updated  bool              `json:"updated"`
	Reason   string            `json:"reason,omitempty"`
	Workflow *WorkflowResponse `json:"workflow,omitempty"`
}

// SignNowWebhookRequest is the callback payload from the signing provider.
type SignNowWebhookRequest struct {
	EventID     string `json:"event_id"`
	Event       string `json:"event" validate:"required"`
	DocumentID  string `json:"document_id" validate:"required"`
	DocumentURL string `json:"document_url"`
}

// StripeWebhookRequest is the callback payload from the payment provider.
type StripeWebhookRequest struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type" validate:"required"`
	SessionID string `json:"session_id" validate:"required"`
}
