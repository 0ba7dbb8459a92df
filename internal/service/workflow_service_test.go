package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/certify-go-api/internal/dto"
	"github.com/noah-isme/certify-go-api/internal/models"
	"github.com/noah-isme/certify-go-api/internal/repository"
)

type stubSigning struct {
	url        string
	documentID string
	err        error
	calls      int
}

func (s *stubSigning) CreateSigningSession(context.Context, uint, int) (string, string, error) {
	s.calls++
	return s.url, s.documentID, s.err
}

type stubCheckout struct {
	url       string
	sessionID string
	err       error
	calls     int
}

func (s *stubCheckout) CreateCheckoutSession(context.Context, uint, int) (string, string, error) {
	s.calls++
	return s.url, s.sessionID, s.err
}

type stubArchiver struct {
	url   string
	err   error
	calls int
}

func (s *stubArchiver) Archive(context.Context, string, string) (string, error) {
	s.calls++
	return s.url, s.err
}

type recordingNotifier struct {
	approved []bool
	notes    []string
}

func (r *recordingNotifier) NotifyDecision(_ context.Context, _ models.CertificationWorkflow, approved bool, note string) error {
	r.approved = append(r.approved, approved)
	r.notes = append(r.notes, note)
	return nil
}

type recordingPublisher struct {
	events []dto.WorkflowEvent
}

func (r *recordingPublisher) PublishTransition(_ context.Context, event dto.WorkflowEvent) {
	r.events = append(r.events, event)
}

type workflowFixture struct {
	db        *gorm.DB
	service   WorkflowService
	workflows repository.WorkflowRepository
	signing   *stubSigning
	checkout  *stubCheckout
	archiver  *stubArchiver
	notifier  *recordingNotifier
	publisher *recordingPublisher
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:workflow_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Course{},
		&models.CourseSection{},
		&models.CourseSubsection{},
		&models.SubsectionCompletion{},
		&models.CertificationWorkflow{},
	))

	workflows := repository.NewWorkflowRepository(db)
	courses := repository.NewCourseRepository(db)
	completions := repository.NewCompletionRepository(db)

	signing := &stubSigning{url: "https://sign.example/session", documentID: "doc-123"}
	checkout := &stubCheckout{url: "https://pay.example/session", sessionID: "cs_test_123"}
	archiver := &stubArchiver{url: "https://archive.example/contract.pdf"}
	notifier := &recordingNotifier{}
	publisher := &recordingPublisher{}

	svc := NewWorkflowService(
		workflows,
		courses,
		completions,
		signing,
		checkout,
		archiver,
		notifier,
		publisher,
		validator.New(validator.WithRequiredStructEnabled()),
		zerolog.Nop(),
	)

	return &workflowFixture{
		db:        db,
		service:   svc,
		workflows: workflows,
		signing:   signing,
		checkout:  checkout,
		archiver:  archiver,
		notifier:  notifier,
		publisher: publisher,
	}
}

func (f *workflowFixture) seedCourse(t *testing.T, level, subsections int) models.Course {
	t.Helper()

	course := models.Course{
		Slug:        fmt.Sprintf("level-%d", level),
		Title:       fmt.Sprintf("Level %d", level),
		Level:       level,
		IsAvailable: true,
	}
	require.NoError(t, f.db.Create(&course).Error)

	section := models.CourseSection{CourseID: course.ID, Title: "Core", Sequence: 1}
	require.NoError(t, f.db.Create(&section).Error)

	for i := 0; i < subsections; i++ {
		subsection := models.CourseSubsection{
			SectionID: section.ID,
			CourseID:  course.ID,
			Title:     fmt.Sprintf("Lesson %d", i+1),
			Sequence:  i + 1,
		}
		require.NoError(t, f.db.Create(&subsection).Error)
	}

	return course
}

func (f *workflowFixture) completeCourse(t *testing.T, userID uint, courseID uint) {
	t.Helper()

	var subsections []models.CourseSubsection
	require.NoError(t, f.db.Where("course_id = ?", courseID).Find(&subsections).Error)

	now := time.Now()
	for _, subsection := range subsections {
		completion := models.SubsectionCompletion{
			UserID:       userID,
			SubsectionID: subsection.ID,
			CourseID:     courseID,
			CompletedAt:  &now,
		}
		require.NoError(t, f.db.Create(&completion).Error)
	}
}

func examPayload() dto.SubmitExamRequest {
	return dto.SubmitExamRequest{
		Results: json.RawMessage(`{"answers":{"q1":"a","q2":true,"q3":42},"duration_seconds":900}`),
	}
}

func TestGetForUserCreatesInitialWorkflow(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	workflow, err := f.service.GetForUser(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, models.StepExam, workflow.CurrentStep)
	require.Equal(t, models.ExamPendingSubmission, workflow.ExamStatus)
	require.Equal(t, models.ApprovalPending, workflow.AdminApprovalStatus)
	require.Equal(t, models.ContractNotRequired, workflow.ContractStatus)
	require.Equal(t, models.SubscriptionNotRequired, workflow.SubscriptionStatus)

	again, err := f.service.GetForUser(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, workflow.ID, again.ID)
}

func TestSubmitExamRequiresFullCompletion(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	course := f.seedCourse(t, 1, 4)
	now := time.Now()
	require.NoError(t, f.db.Create(&models.SubsectionCompletion{
		UserID: 1, SubsectionID: 1, CourseID: course.ID, CompletedAt: &now,
	}).Error)

	_, err := f.service.SubmitExam(ctx, 1, 1, examPayload())
	require.Error(t, err)
	require.True(t, IsPrecondition(err))

	stored, err := f.workflows.GetByUserAndLevel(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, models.ExamPendingSubmission, stored.ExamStatus)
}

func TestSubmitExamRejectsPayloadWithoutAnswers(t *testing.T) {
	f := newWorkflowFixture(t)
	f.seedCourse(t, 1, 1)
	f.completeCourse(t, 1, 1)

	_, err := f.service.SubmitExam(context.Background(), 1, 1, dto.SubmitExamRequest{
		Results: json.RawMessage(`{"duration_seconds":100}`),
	})
	require.Error(t, err)
	require.False(t, IsPrecondition(err))
}

func TestSubmitExamHappyPath(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	course := f.seedCourse(t, 1, 3)
	f.completeCourse(t, 1, course.ID)

	workflow, err := f.service.SubmitExam(ctx, 1, 1, examPayload())
	require.NoError(t, err)
	require.Equal(t, models.ExamSubmitted, workflow.ExamStatus)
	require.Equal(t, models.StepExam, workflow.CurrentStep)
	require.NotEmpty(t, workflow.ExamResults)

	require.Len(t, f.publisher.events, 1)
	require.Equal(t, "exam_submitted", f.publisher.events[0].Transition)

	_, err = f.service.SubmitExam(ctx, 1, 1, examPayload())
	require.True(t, IsPrecondition(err))
}

func TestStartContractSigningBeforeApprovalIsDenied(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	course := f.seedCourse(t, 1, 2)
	f.completeCourse(t, 1, course.ID)
	_, err := f.service.SubmitExam(ctx, 1, 1, examPayload())
	require.NoError(t, err)

	_, err = f.service.StartContractSigning(ctx, 1, 1)
	require.True(t, IsPrecondition(err))
	require.Zero(t, f.signing.calls)

	stored, err := f.workflows.GetByUserAndLevel(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, models.StepExam, stored.CurrentStep)
	require.Equal(t, models.ContractNotRequired, stored.ContractStatus)
	require.Empty(t, stored.ContractDocumentID)
}

func TestApproveAdvancesToContract(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	course := f.seedCourse(t, 1, 2)
	f.completeCourse(t, 2, course.ID)
	submitted, err := f.service.SubmitExam(ctx, 2, 1, examPayload())
	require.NoError(t, err)

	approved, err := f.service.Approve(ctx, submitted.ID, dto.ReviewDecisionRequest{Note: "solid work"})
	require.NoError(t, err)
	require.Equal(t, models.ApprovalApproved, approved.AdminApprovalStatus)
	require.Equal(t, models.StepContract, approved.CurrentStep)
	require.Equal(t, models.ExamPassed, approved.ExamStatus)
	require.Equal(t, "solid work", approved.ReviewNote)

	require.Equal(t, []bool{true}, f.notifier.approved)

	_, err = f.service.Approve(ctx, submitted.ID, dto.ReviewDecisionRequest{})
	require.True(t, IsPrecondition(err))
}

func TestApproveSanitizesReviewNote(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	course := f.seedCourse(t, 1, 1)
	f.completeCourse(t, 3, course.ID)
	submitted, err := f.service.SubmitExam(ctx, 3, 1, examPayload())
	require.NoError(t, err)

	approved, err := f.service.Approve(ctx, submitted.ID, dto.ReviewDecisionRequest{
		Note: `<script>alert("x")</script> looks good`,
	})
	require.NoError(t, err)
	require.Equal(t, "looks good", approved.ReviewNote)
}

func TestRejectReturnsWorkflowToExam(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	course := f.seedCourse(t, 1, 2)
	f.completeCourse(t, 1, course.ID)
	submitted, err := f.service.SubmitExam(ctx, 1, 1, examPayload())
	require.NoError(t, err)

	rejected, err := f.service.Reject(ctx, submitted.ID, dto.ReviewDecisionRequest{Note: "incomplete answers"})
	require.NoError(t, err)
	require.Equal(t, models.ApprovalRejected, rejected.AdminApprovalStatus)
	require.Equal(t, models.StepExam, rejected.CurrentStep)
	require.Equal(t, models.ExamPendingSubmission, rejected.ExamStatus)

	require.Equal(t, []bool{false}, f.notifier.approved)

	// Resubmission reopens the review queue; nothing is stuck in rejected.
	resubmitted, err := f.service.SubmitExam(ctx, 1, 1, examPayload())
	require.NoError(t, err)
	require.Equal(t, models.ExamSubmitted, resubmitted.ExamStatus)
	require.Equal(t, models.ApprovalPending, resubmitted.AdminApprovalStatus)
}

func TestFullCertificationFlow(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	course := f.seedCourse(t, 1, 2)
	f.completeCourse(t, 1, course.ID)

	submitted, err := f.service.SubmitExam(ctx, 1, 1, examPayload())
	require.NoError(t, err)

	_, err = f.service.Approve(ctx, submitted.ID, dto.ReviewDecisionRequest{})
	require.NoError(t, err)

	session, err := f.service.StartContractSigning(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, "https://sign.example/session", session.URL)
	require.Equal(t, "doc-123", session.SessionID)

	signed, err := f.service.HandleContractSigned(ctx, dto.SignNowWebhookRequest{
		Event:       "document.complete",
		DocumentID:  "doc-123",
		DocumentURL: "https://sign.example/doc-123.pdf",
	})
	require.NoError(t, err)
	require.True(t, signed.Updated)
	require.Equal(t, models.ContractSigned, signed.Workflow.ContractStatus)
	require.Equal(t, models.StepPayment, signed.Workflow.CurrentStep)
	require.Equal(t, "https://archive.example/contract.pdf", signed.Workflow.ContractDocURL)
	require.Equal(t, 1, f.archiver.calls)

	checkout, err := f.service.StartPayment(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, "cs_test_123", checkout.SessionID)

	completed, err := f.service.HandlePaymentCompleted(ctx, dto.StripeWebhookRequest{
		Type:      "checkout.session.completed",
		SessionID: "cs_test_123",
	})
	require.NoError(t, err)
	require.True(t, completed.Updated)
	require.Equal(t, models.StepCompleted, completed.Workflow.CurrentStep)
	require.Equal(t, models.SubscriptionActive, completed.Workflow.SubscriptionStatus)
	require.NotNil(t, completed.Workflow.CompletedAt)

	transitions := make([]string, 0, len(f.publisher.events))
	for _, event := range f.publisher.events {
		transitions = append(transitions, event.Transition)
	}
	require.Equal(t, []string{
		"exam_submitted",
		"approved",
		"contract_started",
		"contract_signed",
		"payment_started",
		"payment_completed",
	}, transitions)
}

func TestHandleContractSignedUnmatchedIsSoftAck(t *testing.T) {
	f := newWorkflowFixture(t)

	result, err := f.service.HandleContractSigned(context.Background(), dto.SignNowWebhookRequest{
		Event:      "document.complete",
		DocumentID: "doc-unknown",
	})
	require.NoError(t, err)
	require.False(t, result.Updated)
	require.Equal(t, "no matching workflow", result.Reason)
}

func TestHandleContractSignedDuplicateIsNoOp(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	course := f.seedCourse(t, 1, 1)
	f.completeCourse(t, 1, course.ID)
	submitted, err := f.service.SubmitExam(ctx, 1, 1, examPayload())
	require.NoError(t, err)
	_, err = f.service.Approve(ctx, submitted.ID, dto.ReviewDecisionRequest{})
	require.NoError(t, err)
	_, err = f.service.StartContractSigning(ctx, 1, 1)
	require.NoError(t, err)

	callback := dto.SignNowWebhookRequest{Event: "document.complete", DocumentID: "doc-123"}

	first, err := f.service.HandleContractSigned(ctx, callback)
	require.NoError(t, err)
	require.True(t, first.Updated)

	second, err := f.service.HandleContractSigned(ctx, callback)
	require.NoError(t, err)
	require.False(t, second.Updated)
	require.Equal(t, models.StepPayment, second.Workflow.CurrentStep)
}

func TestHandleContractDeclinedKeepsContractStepOpen(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	course := f.seedCourse(t, 1, 1)
	f.completeCourse(t, 1, course.ID)
	submitted, err := f.service.SubmitExam(ctx, 1, 1, examPayload())
	require.NoError(t, err)
	_, err = f.service.Approve(ctx, submitted.ID, dto.ReviewDecisionRequest{})
	require.NoError(t, err)
	_, err = f.service.StartContractSigning(ctx, 1, 1)
	require.NoError(t, err)

	declined, err := f.service.HandleContractDeclined(ctx, dto.SignNowWebhookRequest{
		Event:      "document.declined",
		DocumentID: "doc-123",
	})
	require.NoError(t, err)
	require.True(t, declined.Updated)
	require.Equal(t, models.ContractRejected, declined.Workflow.ContractStatus)
	require.Equal(t, models.StepContract, declined.Workflow.CurrentStep)

	// Declining does not burn the step; a fresh session can be opened.
	f.signing.documentID = "doc-456"
	session, err := f.service.StartContractSigning(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, "doc-456", session.SessionID)
}

func TestHandlePaymentCompletedUnmatchedIsSoftAck(t *testing.T) {
	f := newWorkflowFixture(t)

	result, err := f.service.HandlePaymentCompleted(context.Background(), dto.StripeWebhookRequest{
		Type:      "checkout.session.completed",
		SessionID: "cs_unknown",
	})
	require.NoError(t, err)
	require.False(t, result.Updated)
	require.Equal(t, "no matching workflow", result.Reason)
}

func TestHandlePaymentCompletedDuplicateIsNoOp(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	course := f.seedCourse(t, 1, 1)
	f.completeCourse(t, 1, course.ID)
	submitted, err := f.service.SubmitExam(ctx, 1, 1, examPayload())
	require.NoError(t, err)
	_, err = f.service.Approve(ctx, submitted.ID, dto.ReviewDecisionRequest{})
	require.NoError(t, err)
	_, err = f.service.StartContractSigning(ctx, 1, 1)
	require.NoError(t, err)
	_, err = f.service.HandleContractSigned(ctx, dto.SignNowWebhookRequest{Event: "document.complete", DocumentID: "doc-123"})
	require.NoError(t, err)
	_, err = f.service.StartPayment(ctx, 1, 1)
	require.NoError(t, err)

	callback := dto.StripeWebhookRequest{Type: "checkout.session.completed", SessionID: "cs_test_123"}

	first, err := f.service.HandlePaymentCompleted(ctx, callback)
	require.NoError(t, err)
	require.True(t, first.Updated)
	firstCompletedAt := first.Workflow.CompletedAt

	second, err := f.service.HandlePaymentCompleted(ctx, callback)
	require.NoError(t, err)
	require.False(t, second.Updated)
	require.Equal(t, firstCompletedAt.Unix(), second.Workflow.CompletedAt.Unix())
}

func TestStartPaymentRequiresSignedContract(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	course := f.seedCourse(t, 1, 1)
	f.completeCourse(t, 1, course.ID)
	submitted, err := f.service.SubmitExam(ctx, 1, 1, examPayload())
	require.NoError(t, err)
	_, err = f.service.Approve(ctx, submitted.ID, dto.ReviewDecisionRequest{})
	require.NoError(t, err)

	_, err = f.service.StartPayment(ctx, 1, 1)
	require.True(t, IsPrecondition(err))
	require.Zero(t, f.checkout.calls)
}

func TestListPendingReviewsMaterialisesEligibleUsers(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	course := f.seedCourse(t, 1, 2)
	f.completeCourse(t, 10, course.ID)
	f.completeCourse(t, 11, course.ID)

	// User 12 is only halfway through and must not appear.
	now := time.Now()
	var first models.CourseSubsection
	require.NoError(t, f.db.Where("course_id = ?", course.ID).Order("sequence").First(&first).Error)
	require.NoError(t, f.db.Create(&models.SubsectionCompletion{
		UserID: 12, SubsectionID: first.ID, CourseID: course.ID, CompletedAt: &now,
	}).Error)

	reviews, err := f.service.ListPendingReviews(ctx)
	require.NoError(t, err)
	require.Len(t, reviews, 2)

	users := map[uint]bool{}
	for _, review := range reviews {
		users[review.UserID] = true
		require.Equal(t, models.ApprovalPending, review.AdminApprovalStatus)
	}
	require.True(t, users[10])
	require.True(t, users[11])
}
