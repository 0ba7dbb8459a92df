package dto

import "time"

// CourseStatus is the derived availability of a course for one user.
type CourseStatus string

const (
	// CourseAvailable means the user may access the course content.
	CourseAvailable CourseStatus = "available"
	// CourseLocked means a gate (publish flag or previous level) is not satisfied.
	CourseLocked CourseStatus = "locked"
	// CourseComingSoon means the course is announced but not published.
	CourseComingSoon CourseStatus = "coming-soon"
	// CourseCompleted means the workflow for this level reached its terminal state.
	CourseCompleted CourseStatus = "completed"
)

// CourseProgress is the derived completion triple for a course or section.
type CourseProgress struct {
	Percentage int `json:"percentage"`
	Completed  int `json:"completed"`
	Total      int `json:"total"`
}

// CourseSummaryResponse is a catalog row enriched with per-user derivations.
type CourseSummaryResponse struct {
	ID           uint           `json:"id"`
	Slug         string         `json:"slug"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Level        int            `json:"level"`
	IsAvailable  bool           `json:"is_available"`
	IsComingSoon bool           `json:"is_coming_soon"`
	Status       CourseStatus   `json:"status"`
	Progress     CourseProgress `json:"progress"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// SectionProgressResponse describes one section with its derived progress.
type SectionProgressResponse struct {
	ID          uint                 `json:"id"`
	Title       string               `json:"title"`
	Sequence    int                  `json:"sequence"`
	Progress    CourseProgress       `json:"progress"`
	Subsections []SubsectionResponse `json:"subsections"`
}

// SubsectionResponse describes a single subsection with completion state.
type SubsectionResponse struct {
	ID          uint       `json:"id"`
	Title       string     `json:"title"`
	Sequence    int        `json:"sequence"`
	VideoURL    string     `json:"video_url,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CourseDetailResponse is the full course view with section-level progress.
type CourseDetailResponse struct {
	ID          uint                      `json:"id"`
	Slug        string                    `json:"slug"`
	Title       string                    `json:"title"`
	Description string                    `json:"description"`
	Level       int                       `json:"level"`
	Status      CourseStatus              `json:"status"`
	Progress    CourseProgress            `json:"progress"`
	Sections    []SectionProgressResponse `json:"sections"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// CompletionRequest records a subsection completion for the caller.
type CompletionRequest struct {
	SubsectionID uint `json:"subsection_id" validate:"required,gt=0"`
}
