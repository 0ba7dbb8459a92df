package dto

import (
	"time"

	"github.com/noah-isme/certify-go-api/internal/models"
)

// WorkflowEvent is broadcast to admin dashboards whenever a workflow
// transition commits.
type WorkflowEvent struct {
	WorkflowID  uint                `json:"workflow_id"`
	UserID      uint                `json:"user_id"`
	Level       int                 `json:"level"`
	Transition  string              `json:"transition"`
	CurrentStep models.WorkflowStep `json:"current_step"`
	OccurredAt  time.Time           `json:"occurred_at"`
}
