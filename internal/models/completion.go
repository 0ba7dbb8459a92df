package models

import "time"

// SubsectionCompletion marks a subsection as finished by a user.
// The (user, subsection) pair is unique so replayed writes stay idempotent.
type SubsectionCompletion struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"not null;uniqueIndex:idx_completion_user_subsection" json:"user_id"`
	SubsectionID uint       `gorm:"not null;uniqueIndex:idx_completion_user_subsection" json:"subsection_id"`
	CourseID     uint       `gorm:"not null;index" json:"course_id"`
	CompletedAt  *time.Time `json:"completed_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
