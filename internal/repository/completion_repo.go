package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/certify-go-api/internal/models"
)

// CompletionRepository exposes subsection completion persistence helpers.
type CompletionRepository interface {
	ListByUserAndCourse(ctx context.Context, userID, courseID uint) ([]models.SubsectionCompletion, error)
	ListUsersWithFullCompletion(ctx context.Context, courseID uint, total int64) ([]uint, error)
	Upsert(ctx context.Context, completion *models.SubsectionCompletion) error
}

type completionRepository struct {
	db *gorm.DB
}

// NewCompletionRepository constructs a repository.
func NewCompletionRepository(db *gorm.DB) CompletionRepository {
	return &completionRepository{db: db}
}

func (r *completionRepository) ListByUserAndCourse(ctx context.Context, userID, courseID uint) ([]models.SubsectionCompletion, error) {
	var completions []models.SubsectionCompletion
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("course_id = ?", courseID).
		Find(&completions).Error; err != nil {
		return nil, err
	}

	return completions, nil
}

func (r *completionRepository) ListUsersWithFullCompletion(ctx context.Context, courseID uint, total int64) ([]uint, error) {
	var userIDs []uint
	if err := r.db.WithContext(ctx).
		Model(&models.SubsectionCompletion{}).
		Select("user_id").
		Where("course_id = ?", courseID).
		Where("completed_at IS NOT NULL").
		Group("user_id").
		Having("COUNT(DISTINCT subsection_id) >= ?", total).
		Find(&userIDs).Error; err != nil {
		return nil, err
	}

	return userIDs, nil
}

func (r *completionRepository) Upsert(ctx context.Context, completion *models.SubsectionCompletion) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "subsection_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"completed_at", "updated_at"}),
		}).
		Create(completion).Error
}
