package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/certify-go-api/internal/dto"
	"github.com/noah-isme/certify-go-api/internal/models"
	"github.com/noah-isme/certify-go-api/internal/observability"
	"github.com/noah-isme/certify-go-api/internal/repository"
)

// examResultsSchema constrains the exam submission payload. Answers are keyed
// by question id; the grader fills in score/passed during review.
const examResultsSchema = `{
	"type": "object",
	"properties": {
		"answers": {
			"type": "object",
			"minProperties": 1,
			"additionalProperties": {"type": ["string", "number", "boolean", "array"]}
		},
		"duration_seconds": {"type": "integer", "minimum": 0}
	},
	"required": ["answers"]
}`

// SigningProvider creates e-signature sessions for approved workflows. It
// returns the signing URL to redirect the user to and the provider's document
// id, which later correlates the signed/declined callback.
type SigningProvider interface {
	CreateSigningSession(ctx context.Context, userID uint, level int) (url, documentID string, err error)
}

// CheckoutProvider creates subscription checkout sessions for signed
// workflows. The returned session id correlates the completion callback.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, userID uint, level int) (url, sessionID string, err error)
}

// ContractArchiver stores a copy of the signed contract document and returns
// a durable URL for it.
type ContractArchiver interface {
	Archive(ctx context.Context, documentID, documentURL string) (string, error)
}

// DecisionNotifier informs the user of an admin review decision. No data
// flows back into the workflow.
type DecisionNotifier interface {
	NotifyDecision(ctx context.Context, workflow models.CertificationWorkflow, approved bool, note string) error
}

// TransitionPublisher broadcasts committed workflow transitions.
type TransitionPublisher interface {
	PublishTransition(ctx context.Context, event dto.WorkflowEvent)
}

// WorkflowService owns the certification workflow state machine. Every
// transition re-reads the stored record and re-checks its precondition, so
// stale or repeated calls end as a PreconditionError or a harmless no-op,
// never a corrupted record.
type WorkflowService interface {
	GetForUser(ctx context.Context, userID uint, level int) (dto.WorkflowResponse, error)
	SubmitExam(ctx context.Context, userID uint, level int, payload dto.SubmitExamRequest) (dto.WorkflowResponse, error)
	ListPendingReviews(ctx context.Context) ([]dto.WorkflowResponse, error)
	Approve(ctx context.Context, workflowID uint, payload dto.ReviewDecisionRequest) (dto.WorkflowResponse, error)
	Reject(ctx context.Context, workflowID uint, payload dto.ReviewDecisionRequest) (dto.WorkflowResponse, error)
	StartContractSigning(ctx context.Context, userID uint, level int) (dto.SessionResponse, error)
	HandleContractSigned(ctx context.Context, payload dto.SignNowWebhookRequest) (dto.WebhookResult, error)
	HandleContractDeclined(ctx context.Context, payload dto.SignNowWebhookRequest) (dto.WebhookResult, error)
	StartPayment(ctx context.Context, userID uint, level int) (dto.SessionResponse, error)
	HandlePaymentCompleted(ctx context.Context, payload dto.StripeWebhookRequest) (dto.WebhookResult, error)
}

type workflowService struct {
	workflows   repository.WorkflowRepository
	courses     repository.CourseRepository
	completions repository.CompletionRepository
	signing     SigningProvider
	checkout    CheckoutProvider
	archiver    ContractArchiver
	notifier    DecisionNotifier
	events      TransitionPublisher
	validator   *validator.Validate
	examSchema  *jsonschema.Schema
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewWorkflowService constructs the workflow service.
func NewWorkflowService(
	workflows repository.WorkflowRepository,
	courses repository.CourseRepository,
	completions repository.CompletionRepository,
	signing SigningProvider,
	checkout CheckoutProvider,
	archiver ContractArchiver,
	notifier DecisionNotifier,
	events TransitionPublisher,
	validate *validator.Validate,
	logger zerolog.Logger,
) WorkflowService {
	schema := jsonschema.MustCompileString("exam_results.json", examResultsSchema)

	return &workflowService{
		workflows:   workflows,
		courses:     courses,
		completions: completions,
		signing:     signing,
		checkout:    checkout,
		archiver:    archiver,
		notifier:    notifier,
		events:      events,
		validator:   validate,
		examSchema:  schema,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "workflow_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/certify-go-api/internal/service/workflow"),
		now:         time.Now,
	}
}

// GetForUser returns the caller's workflow for a level, creating the initial
// record on first access.
func (s *workflowService) GetForUser(ctx context.Context, userID uint, level int) (dto.WorkflowResponse, error) {
	if level <= 0 {
		return dto.WorkflowResponse{}, ErrWorkflowNotFound
	}

	workflow := models.NewCertificationWorkflow(userID, level)
	if err := s.workflows.FirstOrCreate(ctx, &workflow); err != nil {
		return dto.WorkflowResponse{}, err
	}

	return dto.NewWorkflowResponse(workflow), nil
}

func (s *workflowService) SubmitExam(ctx context.Context, userID uint, level int, payload dto.SubmitExamRequest) (dto.WorkflowResponse, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.submit_exam", trace.WithAttributes(
		attribute.Int64("workflow.user_id", int64(userID)),
		attribute.Int("workflow.level", level),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		return dto.WorkflowResponse{}, err
	}

	var decoded interface{}
	decoder := json.NewDecoder(bytes.NewReader(payload.Results))
	decoder.UseNumber()
	if err := decoder.Decode(&decoded); err != nil {
		span.RecordError(err)
		return dto.WorkflowResponse{}, fmt.Errorf("invalid exam results payload: %w", err)
	}
	if err := s.examSchema.Validate(decoded); err != nil {
		span.RecordError(err)
		return dto.WorkflowResponse{}, fmt.Errorf("exam results rejected by schema: %w", err)
	}

	workflow := models.NewCertificationWorkflow(userID, level)
	if err := s.workflows.FirstOrCreate(ctx, &workflow); err != nil {
		return dto.WorkflowResponse{}, err
	}

	if workflow.ExamStatus != models.ExamPendingSubmission && workflow.ExamStatus != models.ExamFailed {
		return dto.WorkflowResponse{}, s.deny(span, "submit_exam", "exam to be awaiting submission or a retake")
	}

	course, err := s.courses.GetByLevel(ctx, level)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.WorkflowResponse{}, ErrCourseNotFound
		}
		return dto.WorkflowResponse{}, err
	}

	total, err := s.courses.CountSubsections(ctx, course.ID)
	if err != nil {
		return dto.WorkflowResponse{}, err
	}

	completions, err := s.completions.ListByUserAndCourse(ctx, userID, course.ID)
	if err != nil {
		return dto.WorkflowResponse{}, err
	}

	progress := ComputeProgress(completions, int(total))
	if total == 0 || progress.Completed < progress.Total {
		return dto.WorkflowResponse{}, s.deny(span, "submit_exam", "all course subsections to be completed")
	}

	workflow.ExamStatus = models.ExamSubmitted
	workflow.ExamResults = datatypes.JSON(payload.Results)

	// A resubmission after rejection reopens the review queue.
	if workflow.AdminApprovalStatus == models.ApprovalRejected {
		workflow.AdminApprovalStatus = models.ApprovalPending
	}

	if err := s.workflows.Update(ctx, &workflow); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "workflow_update_failed")
		return dto.WorkflowResponse{}, err
	}

	s.commit(ctx, workflow, "exam_submitted")
	return dto.NewWorkflowResponse(workflow), nil
}

// ListPendingReviews returns workflows awaiting an admin decision. Users who
// have finished every subsection of a course but have no workflow row yet are
// materialised lazily before listing.
func (s *workflowService) ListPendingReviews(ctx context.Context) ([]dto.WorkflowResponse, error) {
	if err := s.materialiseEligible(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to materialise eligible workflows")
	}

	pending := models.ApprovalPending
	workflows, err := s.workflows.List(ctx, repository.WorkflowFilter{ApprovalStatus: &pending})
	if err != nil {
		return nil, err
	}

	return dto.NewWorkflowResponseSlice(workflows), nil
}

func (s *workflowService) materialiseEligible(ctx context.Context) error {
	courses, err := s.courses.List(ctx, repository.CourseFilter{OnlyAvailable: true})
	if err != nil {
		return err
	}

	for _, course := range courses {
		total, err := s.courses.CountSubsections(ctx, course.ID)
		if err != nil {
			return err
		}
		if total == 0 {
			continue
		}

		userIDs, err := s.completions.ListUsersWithFullCompletion(ctx, course.ID, total)
		if err != nil {
			return err
		}

		for _, userID := range userIDs {
			workflow := models.NewCertificationWorkflow(userID, course.Level)
			if err := s.workflows.FirstOrCreate(ctx, &workflow); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *workflowService) Approve(ctx context.Context, workflowID uint, payload dto.ReviewDecisionRequest) (dto.WorkflowResponse, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.approve", trace.WithAttributes(
		attribute.Int64("workflow.id", int64(workflowID)),
	))
	defer span.End()

	workflow, err := s.getByID(ctx, workflowID)
	if err != nil {
		span.RecordError(err)
		return dto.WorkflowResponse{}, err
	}

	if workflow.AdminApprovalStatus != models.ApprovalPending {
		return dto.WorkflowResponse{}, s.deny(span, "approve", "admin approval to be pending")
	}

	workflow.AdminApprovalStatus = models.ApprovalApproved
	workflow.CurrentStep = models.StepContract
	workflow.ReviewNote = strings.TrimSpace(s.sanitizer.Sanitize(payload.Note))

	if err := s.workflows.Update(ctx, &workflow); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "workflow_update_failed")
		return dto.WorkflowResponse{}, err
	}

	s.commit(ctx, workflow, "approved")
	s.notify(ctx, workflow, true)

	return dto.NewWorkflowResponse(workflow), nil
}

// Reject returns the workflow to the exam step for a full retake. Only status
// enums change; exam results and timestamps survive so nothing historical is
// lost.
func (s *workflowService) Reject(ctx context.Context, workflowID uint, payload dto.ReviewDecisionRequest) (dto.WorkflowResponse, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.reject", trace.WithAttributes(
		attribute.Int64("workflow.id", int64(workflowID)),
	))
	defer span.End()

	workflow, err := s.getByID(ctx, workflowID)
	if err != nil {
		span.RecordError(err)
		return dto.WorkflowResponse{}, err
	}

	if workflow.AdminApprovalStatus != models.ApprovalPending {
		return dto.WorkflowResponse{}, s.deny(span, "reject", "admin approval to be pending")
	}

	workflow.AdminApprovalStatus = models.ApprovalRejected
	workflow.CurrentStep = models.StepExam
	workflow.ExamStatus = models.ExamPendingSubmission
	workflow.ReviewNote = strings.TrimSpace(s.sanitizer.Sanitize(payload.Note))

	if err := s.workflows.Update(ctx, &workflow); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "workflow_update_failed")
		return dto.WorkflowResponse{}, err
	}

	s.commit(ctx, workflow, "rejected")
	s.notify(ctx, workflow, false)

	return dto.NewWorkflowResponse(workflow), nil
}

func (s *workflowService) StartContractSigning(ctx context.Context, userID uint, level int) (dto.SessionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.start_contract", trace.WithAttributes(
		attribute.Int64("workflow.user_id", int64(userID)),
		attribute.Int("workflow.level", level),
	))
	defer span.End()

	workflow, err := s.getByUserAndLevel(ctx, userID, level)
	if err != nil {
		span.RecordError(err)
		return dto.SessionResponse{}, err
	}

	if workflow.AdminApprovalStatus != models.ApprovalApproved {
		return dto.SessionResponse{}, s.deny(span, "start_contract", "admin approval to be granted")
	}

	if workflow.ContractStatus == models.ContractSigned || models.StepIndex(workflow.CurrentStep) > models.StepIndex(models.StepContract) {
		return dto.SessionResponse{}, s.deny(span, "start_contract", "contract step to still be open")
	}

	url, documentID, err := s.signing.CreateSigningSession(ctx, userID, level)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "signing_session_failed")
		return dto.SessionResponse{}, err
	}

	workflow.ContractStatus = models.ContractPendingSigning
	workflow.CurrentStep = models.StepContract
	workflow.ContractDocumentID = documentID

	if err := s.workflows.Update(ctx, &workflow); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "workflow_update_failed")
		return dto.SessionResponse{}, err
	}

	s.commit(ctx, workflow, "contract_started")

	return dto.SessionResponse{URL: url, SessionID: documentID}, nil
}

// HandleContractSigned processes the provider's signed callback. A callback
// that matches no workflow is acknowledged without error; the provider may
// deliver before the record exists and will retry.
func (s *workflowService) HandleContractSigned(ctx context.Context, payload dto.SignNowWebhookRequest) (dto.WebhookResult, error) {
	workflow, err := s.workflows.GetByContractDocument(ctx, payload.DocumentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.WebhookEvents().WithLabelValues("signnow", "unmatched").Inc()
			s.logger.Info().Str("document_id", payload.DocumentID).Msg("signed callback matched no workflow")
			return dto.WebhookResult{Updated: false, Reason: "no matching workflow"}, nil
		}
		return dto.WebhookResult{}, err
	}

	if workflow.ContractStatus == models.ContractSigned {
		observability.WebhookEvents().WithLabelValues("signnow", "duplicate").Inc()
		response := dto.NewWorkflowResponse(workflow)
		return dto.WebhookResult{Updated: false, Reason: "contract already signed", Workflow: &response}, nil
	}

	workflow.ContractStatus = models.ContractSigned
	workflow.CurrentStep = models.StepPayment

	if s.archiver != nil && payload.DocumentURL != "" {
		archived, archiveErr := s.archiver.Archive(ctx, payload.DocumentID, payload.DocumentURL)
		if archiveErr != nil {
			s.logger.Warn().Err(archiveErr).Str("document_id", payload.DocumentID).Msg("failed to archive signed contract")
		} else {
			workflow.ContractDocURL = archived
		}
	}

	if err := s.workflows.Update(ctx, &workflow); err != nil {
		return dto.WebhookResult{}, err
	}

	observability.WebhookEvents().WithLabelValues("signnow", "signed").Inc()
	s.commit(ctx, workflow, "contract_signed")

	response := dto.NewWorkflowResponse(workflow)
	return dto.WebhookResult{Updated: true, Workflow: &response}, nil
}

// HandleContractDeclined records a declined signature. The step stays at
// contract so the user can retry signing.
func (s *workflowService) HandleContractDeclined(ctx context.Context, payload dto.SignNowWebhookRequest) (dto.WebhookResult, error) {
	workflow, err := s.workflows.GetByContractDocument(ctx, payload.DocumentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.WebhookEvents().WithLabelValues("signnow", "unmatched").Inc()
			s.logger.Info().Str("document_id", payload.DocumentID).Msg("declined callback matched no workflow")
			return dto.WebhookResult{Updated: false, Reason: "no matching workflow"}, nil
		}
		return dto.WebhookResult{}, err
	}

	workflow.ContractStatus = models.ContractRejected

	if err := s.workflows.Update(ctx, &workflow); err != nil {
		return dto.WebhookResult{}, err
	}

	observability.WebhookEvents().WithLabelValues("signnow", "declined").Inc()
	s.commit(ctx, workflow, "contract_declined")

	response := dto.NewWorkflowResponse(workflow)
	return dto.WebhookResult{Updated: true, Workflow: &response}, nil
}

func (s *workflowService) StartPayment(ctx context.Context, userID uint, level int) (dto.SessionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.start_payment", trace.WithAttributes(
		attribute.Int64("workflow.user_id", int64(userID)),
		attribute.Int("workflow.level", level),
	))
	defer span.End()

	workflow, err := s.getByUserAndLevel(ctx, userID, level)
	if err != nil {
		span.RecordError(err)
		return dto.SessionResponse{}, err
	}

	if workflow.ContractStatus != models.ContractSigned {
		return dto.SessionResponse{}, s.deny(span, "start_payment", "contract to be signed")
	}

	if workflow.CurrentStep == models.StepCompleted || workflow.SubscriptionStatus == models.SubscriptionActive {
		return dto.SessionResponse{}, s.deny(span, "start_payment", "payment step to still be open")
	}

	url, sessionID, err := s.checkout.CreateCheckoutSession(ctx, userID, level)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout_session_failed")
		return dto.SessionResponse{}, err
	}

	workflow.SubscriptionStatus = models.SubscriptionPendingPayment
	workflow.CurrentStep = models.StepPayment
	workflow.StripeCheckoutSessionID = sessionID

	if err := s.workflows.Update(ctx, &workflow); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "workflow_update_failed")
		return dto.SessionResponse{}, err
	}

	s.commit(ctx, workflow, "payment_started")

	return dto.SessionResponse{URL: url, SessionID: sessionID}, nil
}

// HandlePaymentCompleted processes the checkout completion callback, matched
// by the stored checkout session id. Unmatched or repeated deliveries are
// acknowledged without error.
func (s *workflowService) HandlePaymentCompleted(ctx context.Context, payload dto.StripeWebhookRequest) (dto.WebhookResult, error) {
	workflow, err := s.workflows.GetByCheckoutSession(ctx, payload.SessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.WebhookEvents().WithLabelValues("stripe", "unmatched").Inc()
			s.logger.Info().Str("session_id", payload.SessionID).Msg("payment callback matched no workflow")
			return dto.WebhookResult{Updated: false, Reason: "no matching workflow"}, nil
		}
		return dto.WebhookResult{}, err
	}

	if workflow.SubscriptionStatus == models.SubscriptionActive {
		observability.WebhookEvents().WithLabelValues("stripe", "duplicate").Inc()
		response := dto.NewWorkflowResponse(workflow)
		return dto.WebhookResult{Updated: false, Reason: "subscription already active", Workflow: &response}, nil
	}

	completedAt := s.now()
	workflow.SubscriptionStatus = models.SubscriptionActive
	workflow.CurrentStep = models.StepCompleted
	workflow.CompletedAt = &completedAt

	if err := s.workflows.Update(ctx, &workflow); err != nil {
		return dto.WebhookResult{}, err
	}

	observability.WebhookEvents().WithLabelValues("stripe", "completed").Inc()
	s.commit(ctx, workflow, "payment_completed")

	response := dto.NewWorkflowResponse(workflow)
	return dto.WebhookResult{Updated: true, Workflow: &response}, nil
}

func (s *workflowService) getByID(ctx context.Context, id uint) (models.CertificationWorkflow, error) {
	workflow, err := s.workflows.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.CertificationWorkflow{}, ErrWorkflowNotFound
		}
		return models.CertificationWorkflow{}, err
	}
	return workflow, nil
}

func (s *workflowService) getByUserAndLevel(ctx context.Context, userID uint, level int) (models.CertificationWorkflow, error) {
	workflow, err := s.workflows.GetByUserAndLevel(ctx, userID, level)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.CertificationWorkflow{}, ErrWorkflowNotFound
		}
		return models.CertificationWorkflow{}, err
	}
	return workflow, nil
}

func (s *workflowService) deny(span trace.Span, operation, required string) error {
	err := &PreconditionError{Operation: operation, Required: required}
	observability.WorkflowDenied().WithLabelValues(operation).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, "precondition_failed")
	return err
}

func (s *workflowService) commit(ctx context.Context, workflow models.CertificationWorkflow, transition string) {
	observability.WorkflowTransitions().WithLabelValues(transition).Inc()

	s.logger.Info().
		Uint("workflow_id", workflow.ID).
		Uint("user_id", workflow.UserID).
		Int("level", workflow.Level).
		Str("transition", transition).
		Str("current_step", string(workflow.CurrentStep)).
		Msg("workflow transition committed")

	if s.events != nil {
		s.events.PublishTransition(ctx, dto.WorkflowEvent{
			WorkflowID:  workflow.ID,
			UserID:      workflow.UserID,
			Level:       workflow.Level,
			Transition:  transition,
			CurrentStep: workflow.CurrentStep,
			OccurredAt:  s.now().UTC(),
		})
	}
}

func (s *workflowService) notify(ctx context.Context, workflow models.CertificationWorkflow, approved bool) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyDecision(ctx, workflow, approved, workflow.ReviewNote); err != nil {
		s.logger.Warn().Err(err).Uint("workflow_id", workflow.ID).Msg("failed to send decision notification")
	}
}
