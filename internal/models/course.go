package models

import "time"

// Course is one certification level's worth of learning content.
// Levels are totally ordered; level N is gated on the level N-1 workflow.
type Course struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Slug         string          `gorm:"size:160;uniqueIndex" json:"slug"`
	Title        string          `gorm:"size:255;not null" json:"title"`
	Description  string          `gorm:"type:text" json:"description"`
	Level        int             `gorm:"not null;uniqueIndex" json:"level"`
	IsAvailable  bool            `gorm:"not null;default:false" json:"is_available"`
	IsComingSoon bool            `gorm:"not null;default:false" json:"is_coming_soon"`
	Sections     []CourseSection `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"sections,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// CourseSection groups subsections inside a course.
type CourseSection struct {
	ID          uint               `gorm:"primaryKey" json:"id"`
	CourseID    uint               `gorm:"not null;index" json:"course_id"`
	Title       string             `gorm:"size:255;not null" json:"title"`
	Sequence    int                `gorm:"index" json:"sequence"`
	Subsections []CourseSubsection `gorm:"foreignKey:SectionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"subsections,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// CourseSubsection is the smallest unit of content whose completion is tracked.
type CourseSubsection struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SectionID uint      `gorm:"not null;index" json:"section_id"`
	CourseID  uint      `gorm:"not null;index" json:"course_id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Sequence  int       `gorm:"index" json:"sequence"`
	VideoURL  string    `gorm:"size:512" json:"video_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
