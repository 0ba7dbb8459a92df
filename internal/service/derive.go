package service

import (
	"math"

	"github.com/noah-isme/certify-go-api/internal/dto"
	"github.com/noah-isme/certify-go-api/internal/models"
)

// ComputeProgress derives the completion triple for a set of completion rows
// against a total subsection count. Duplicate subsection ids count once and
// only rows with a non-nil CompletedAt count at all. A course with zero
// subsections reports zero percent; completion is never inferred from an
// empty course.
func ComputeProgress(completions []models.SubsectionCompletion, total int) dto.CourseProgress {
	if total <= 0 {
		return dto.CourseProgress{Percentage: 0, Completed: 0, Total: 0}
	}

	seen := make(map[uint]struct{}, len(completions))
	for _, completion := range completions {
		if completion.CompletedAt == nil {
			continue
		}
		seen[completion.SubsectionID] = struct{}{}
	}

	completed := len(seen)
	percentage := int(math.Round(100 * float64(completed) / float64(total)))

	return dto.CourseProgress{
		Percentage: percentage,
		Completed:  completed,
		Total:      total,
	}
}

// ComputeCourseStatus derives the availability of a course for one user.
// First match wins: coming-soon flag, then this level's terminal workflow,
// then the level-1 publish gate, then the previous level's workflow gate.
// Level 1 has no predecessor so its gate is purely the publish flag.
func ComputeCourseStatus(course models.Course, current, previous *models.CertificationWorkflow) dto.CourseStatus {
	if course.IsComingSoon {
		return dto.CourseComingSoon
	}

	if current != nil && current.IsCompleted() {
		return dto.CourseCompleted
	}

	if course.Level == 1 {
		if course.IsAvailable {
			return dto.CourseAvailable
		}
		return dto.CourseLocked
	}

	if previous != nil && previous.IsCompleted() && course.IsAvailable {
		return dto.CourseAvailable
	}

	return dto.CourseLocked
}
