package models

import (
	"time"

	"gorm.io/datatypes"
)

// WorkflowStep identifies the current stage of a certification workflow.
type WorkflowStep string

// Workflow steps in their forward order.
const (
	StepExam      WorkflowStep = "exam"
	StepApproval  WorkflowStep = "approval"
	StepContract  WorkflowStep = "contract"
	StepPayment   WorkflowStep = "payment"
	StepCompleted WorkflowStep = "completed"
)

// ExamStatus tracks the exam sub-state of a workflow.
type ExamStatus string

const (
	ExamPendingSubmission ExamStatus = "pending_submission"
	ExamSubmitted         ExamStatus = "submitted"
	ExamPendingReview     ExamStatus = "pending_review"
	ExamPassed            ExamStatus = "passed"
	ExamFailed            ExamStatus = "failed"
)

// ApprovalStatus tracks the administrator review decision.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ContractStatus tracks the e-signature sub-state of a workflow.
type ContractStatus string

const (
	ContractNotRequired    ContractStatus = "not_required"
	ContractPendingSigning ContractStatus = "pending_signing"
	ContractSigned         ContractStatus = "signed"
	ContractRejected       ContractStatus = "rejected"
)

// SubscriptionStatus tracks the payment sub-state of a workflow.
// "active" is the single terminal success value.
type SubscriptionStatus string

const (
	SubscriptionNotRequired    SubscriptionStatus = "not_required"
	SubscriptionPendingPayment SubscriptionStatus = "pending_payment"
	SubscriptionActive         SubscriptionStatus = "active"
	SubscriptionCancelled      SubscriptionStatus = "cancelled"
)

// CertificationWorkflow records a user's progress through the certification
// steps for one level. One row per (user_id, level).
type CertificationWorkflow struct {
	ID                      uint               `gorm:"primaryKey" json:"id"`
	UserID                  uint               `gorm:"not null;uniqueIndex:idx_workflow_user_level" json:"user_id"`
	Level                   int                `gorm:"not null;uniqueIndex:idx_workflow_user_level" json:"level"`
	CurrentStep             WorkflowStep       `gorm:"size:32;not null" json:"current_step"`
	ExamStatus              ExamStatus         `gorm:"size:32;not null" json:"exam_status"`
	AdminApprovalStatus     ApprovalStatus     `gorm:"size:32;not null" json:"admin_approval_status"`
	ContractStatus          ContractStatus     `gorm:"size:32;not null" json:"contract_status"`
	SubscriptionStatus      SubscriptionStatus `gorm:"size:32;not null" json:"subscription_status"`
	ExamResults             datatypes.JSON     `gorm:"type:json" json:"exam_results,omitempty"`
	ReviewNote              string             `gorm:"type:text" json:"review_note,omitempty"`
	ContractDocumentID      string             `gorm:"size:128" json:"contract_document_id,omitempty"`
	ContractDocURL          string             `gorm:"size:512" json:"contract_doc_url,omitempty"`
	StripeCheckoutSessionID string             `gorm:"size:128;index" json:"stripe_checkout_session_id,omitempty"`
	CompletedAt             *time.Time         `json:"completed_at,omitempty"`
	CreatedAt               time.Time          `json:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

// NewCertificationWorkflow returns a workflow in its initial state.
func NewCertificationWorkflow(userID uint, level int) CertificationWorkflow {
	return CertificationWorkflow{
		UserID:              userID,
		Level:               level,
		CurrentStep:         StepExam,
		ExamStatus:          ExamPendingSubmission,
		AdminApprovalStatus: ApprovalPending,
		ContractStatus:      ContractNotRequired,
		SubscriptionStatus:  SubscriptionNotRequired,
	}
}

// IsCompleted reports whether the workflow has reached its terminal state.
func (w CertificationWorkflow) IsCompleted() bool {
	return w.CurrentStep == StepCompleted || w.SubscriptionStatus == SubscriptionActive
}

// stepOrder maps each step to its position in the forward sequence.
var stepOrder = map[WorkflowStep]int{
	StepExam:      0,
	StepApproval:  1,
	StepContract:  2,
	StepPayment:   3,
	StepCompleted: 4,
}

// StepIndex returns the ordinal position of a step, or -1 for unknown values.
func StepIndex(step WorkflowStep) int {
	if idx, ok := stepOrder[step]; ok {
		return idx
	}
	return -1
}
