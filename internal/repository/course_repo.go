package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/certify-go-api/internal/models"
)

// CourseFilter narrows course catalog queries.
type CourseFilter struct {
	Search        string
	OnlyAvailable bool
}

// CourseRepository exposes course catalog persistence helpers.
type CourseRepository interface {
	List(ctx context.Context, filter CourseFilter) ([]models.Course, error)
	GetByID(ctx context.Context, id uint) (models.Course, error)
	GetByLevel(ctx context.Context, level int) (models.Course, error)
	CountSubsections(ctx context.Context, courseID uint) (int64, error)
}

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository constructs a repository.
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

func (r *courseRepository) List(ctx context.Context, filter CourseFilter) ([]models.Course, error) {
	query := r.db.WithContext(ctx).Model(&models.Course{})

	if filter.Search != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(filter.Search)) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}

	if filter.OnlyAvailable {
		query = query.Where("is_available = ?", true)
	}

	var courses []models.Course
	if err := query.Order("level ASC").Find(&courses).Error; err != nil {
		return nil, err
	}

	return courses, nil
}

func (r *courseRepository) GetByID(ctx context.Context, id uint) (models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).
		Preload("Sections", func(db *gorm.DB) *gorm.DB { return db.Order("sequence ASC") }).
		Preload("Sections.Subsections", func(db *gorm.DB) *gorm.DB { return db.Order("sequence ASC") }).
		First(&course, id).Error; err != nil {
		return models.Course{}, err
	}

	return course, nil
}

func (r *courseRepository) GetByLevel(ctx context.Context, level int) (models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).
		Where("level = ?", level).
		First(&course).Error; err != nil {
		return models.Course{}, err
	}

	return course, nil
}

func (r *courseRepository) CountSubsections(ctx context.Context, courseID uint) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.CourseSubsection{}).
		Where("course_id = ?", courseID).
		Count(&total).Error; err != nil {
		return 0, err
	}

	return total, nil
}
