package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/certify-go-api/internal/dto"
	"github.com/noah-isme/certify-go-api/internal/models"
)

func completionRow(subsectionID uint, done bool) models.SubsectionCompletion {
	row := models.SubsectionCompletion{UserID: 1, SubsectionID: subsectionID}
	if done {
		now := time.Now()
		row.CompletedAt = &now
	}
	return row
}

func TestComputeProgress(t *testing.T) {
	tests := []struct {
		name        string
		completions []models.SubsectionCompletion
		total       int
		want        dto.CourseProgress
	}{
		{
			name: "partial completion rounds to whole percent",
			completions: []models.SubsectionCompletion{
				completionRow(1, true),
				completionRow(2, true),
				completionRow(3, true),
			},
			total: 10,
			want:  dto.CourseProgress{Percentage: 30, Completed: 3, Total: 10},
		},
		{
			name:        "empty course reports zero",
			completions: nil,
			total:       0,
			want:        dto.CourseProgress{Percentage: 0, Completed: 0, Total: 0},
		},
		{
			name: "duplicate subsection ids count once",
			completions: []models.SubsectionCompletion{
				completionRow(7, true),
				completionRow(7, true),
			},
			total: 4,
			want:  dto.CourseProgress{Percentage: 25, Completed: 1, Total: 4},
		},
		{
			name: "rows without a completion timestamp are ignored",
			completions: []models.SubsectionCompletion{
				completionRow(1, true),
				completionRow(2, false),
			},
			total: 2,
			want:  dto.CourseProgress{Percentage: 50, Completed: 1, Total: 2},
		},
		{
			name: "one third rounds to nearest",
			completions: []models.SubsectionCompletion{
				completionRow(1, true),
			},
			total: 3,
			want:  dto.CourseProgress{Percentage: 33, Completed: 1, Total: 3},
		},
		{
			name: "two thirds rounds up",
			completions: []models.SubsectionCompletion{
				completionRow(1, true),
				completionRow(2, true),
			},
			total: 3,
			want:  dto.CourseProgress{Percentage: 67, Completed: 2, Total: 3},
		},
		{
			name: "full completion is exactly one hundred",
			completions: []models.SubsectionCompletion{
				completionRow(1, true),
				completionRow(2, true),
			},
			total: 2,
			want:  dto.CourseProgress{Percentage: 100, Completed: 2, Total: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ComputeProgress(tt.completions, tt.total))
		})
	}
}

func TestComputeProgressIsIdempotent(t *testing.T) {
	completions := []models.SubsectionCompletion{
		completionRow(1, true),
		completionRow(2, true),
	}

	first := ComputeProgress(completions, 5)
	second := ComputeProgress(append(completions, completionRow(2, true)), 5)

	require.Equal(t, first, second)
}

func TestComputeCourseStatus(t *testing.T) {
	completed := models.NewCertificationWorkflow(1, 1)
	completed.CurrentStep = models.StepCompleted
	completed.SubscriptionStatus = models.SubscriptionActive

	inProgress := models.NewCertificationWorkflow(1, 1)
	inProgress.ExamStatus = models.ExamSubmitted

	tests := []struct {
		name     string
		course   models.Course
		current  *models.CertificationWorkflow
		previous *models.CertificationWorkflow
		want     dto.CourseStatus
	}{
		{
			name:   "coming soon wins over everything",
			course: models.Course{Level: 1, IsAvailable: true, IsComingSoon: true},
			want:   dto.CourseComingSoon,
		},
		{
			name:    "completed workflow marks the course completed",
			course:  models.Course{Level: 2, IsAvailable: true},
			current: &completed,
			want:    dto.CourseCompleted,
		},
		{
			name:   "level one is gated only on the publish flag",
			course: models.Course{Level: 1, IsAvailable: true},
			want:   dto.CourseAvailable,
		},
		{
			name:   "unpublished level one stays locked",
			course: models.Course{Level: 1, IsAvailable: false},
			want:   dto.CourseLocked,
		},
		{
			name:     "higher level unlocks once the previous level completes",
			course:   models.Course{Level: 2, IsAvailable: true},
			previous: &completed,
			want:     dto.CourseAvailable,
		},
		{
			name:     "higher level stays locked while the previous level is in flight",
			course:   models.Course{Level: 2, IsAvailable: true},
			previous: &inProgress,
			want:     dto.CourseLocked,
		},
		{
			name:   "higher level with no previous workflow stays locked",
			course: models.Course{Level: 3, IsAvailable: true},
			want:   dto.CourseLocked,
		},
		{
			name:     "unlock still requires the publish flag",
			course:   models.Course{Level: 2, IsAvailable: false},
			previous: &completed,
			want:     dto.CourseLocked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ComputeCourseStatus(tt.course, tt.current, tt.previous))
		})
	}
}

func TestStepIndexOrdering(t *testing.T) {
	steps := []models.WorkflowStep{
		models.StepExam,
		models.StepApproval,
		models.StepContract,
		models.StepPayment,
		models.StepCompleted,
	}

	for i := 1; i < len(steps); i++ {
		require.Greater(t, models.StepIndex(steps[i]), models.StepIndex(steps[i-1]))
	}

	require.Equal(t, -1, models.StepIndex(models.WorkflowStep("bogus")))
}
