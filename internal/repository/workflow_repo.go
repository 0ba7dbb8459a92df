package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/certify-go-api/internal/models"
)

// WorkflowFilter narrows certification workflow queries.
type WorkflowFilter struct {
	UserID         *uint
	Level          *int
	ApprovalStatus *models.ApprovalStatus
	ExamStatus     *models.ExamStatus
}

// WorkflowRepository defines data operations for certification workflows.
type WorkflowRepository interface {
	List(ctx context.Context, filter WorkflowFilter) ([]models.CertificationWorkflow, error)
	GetByID(ctx context.Context, id uint) (models.CertificationWorkflow, error)
	GetByUserAndLevel(ctx context.Context, userID uint, level int) (models.CertificationWorkflow, error)
	GetByCheckoutSession(ctx context.Context, sessionID string) (models.CertificationWorkflow, error)
	GetByContractDocument(ctx context.Context, documentID string) (models.CertificationWorkflow, error)
	Create(ctx context.Context, workflow *models.CertificationWorkflow) error
	Update(ctx context.Context, workflow *models.CertificationWorkflow) error
	FirstOrCreate(ctx context.Context, workflow *models.CertificationWorkflow) error
}

type workflowRepository struct {
	db *gorm.DB
}

// NewWorkflowRepository instantiates the repository.
func NewWorkflowRepository(db *gorm.DB) WorkflowRepository {
	return &workflowRepository{db: db}
}

func (r *workflowRepository) List(ctx context.Context, filter WorkflowFilter) ([]models.CertificationWorkflow, error) {
	query := r.db.WithContext(ctx).Model(&models.CertificationWorkflow{})

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	if filter.Level != nil {
		query = query.Where("level = ?", *filter.Level)
	}

	if filter.ApprovalStatus != nil {
		query = query.Where("admin_approval_status = ?", *filter.ApprovalStatus)
	}

	if filter.ExamStatus != nil {
		query = query.Where("exam_status = ?", *filter.ExamStatus)
	}

	var workflows []models.CertificationWorkflow
	if err := query.Order("level ASC, updated_at DESC").Find(&workflows).Error; err != nil {
		return nil, err
	}

	return workflows, nil
}

func (r *workflowRepository) GetByID(ctx context.Context, id uint) (models.CertificationWorkflow, error) {
	var workflow models.CertificationWorkflow
	if err := r.db.WithContext(ctx).First(&workflow, id).Error; err != nil {
		return models.CertificationWorkflow{}, err
	}

	return workflow, nil
}

func (r *workflowRepository) GetByUserAndLevel(ctx context.Context, userID uint, level int) (models.CertificationWorkflow, error) {
	var workflow models.CertificationWorkflow
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("level = ?", level).
		First(&workflow).Error; err != nil {
		return models.CertificationWorkflow{}, err
	}

	return workflow, nil
}

func (r *workflowRepository) GetByCheckoutSession(ctx context.Context, sessionID string) (models.CertificationWorkflow, error) {
	var workflow models.CertificationWorkflow
	if err := r.db.WithContext(ctx).
		Where("stripe_checkout_session_id = ?", sessionID).
		First(&workflow).Error; err != nil {
		return models.CertificationWorkflow{}, err
	}

	return workflow, nil
}

func (r *workflowRepository) GetByContractDocument(ctx context.Context, documentID string) (models.CertificationWorkflow, error) {
	var workflow models.CertificationWorkflow
	if err := r.db.WithContext(ctx).
		Where("contract_document_id = ?", documentID).
		First(&workflow).Error; err != nil {
		return models.CertificationWorkflow{}, err
	}

	return workflow, nil
}

func (r *workflowRepository) Create(ctx context.Context, workflow *models.CertificationWorkflow) error {
	return r.db.WithContext(ctx).Create(workflow).Error
}

func (r *workflowRepository) Update(ctx context.Context, workflow *models.CertificationWorkflow) error {
	return r.db.WithContext(ctx).Save(workflow).Error
}

func (r *workflowRepository) FirstOrCreate(ctx context.Context, workflow *models.CertificationWorkflow) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND level = ?", workflow.UserID, workflow.Level).
		FirstOrCreate(workflow).Error
}
