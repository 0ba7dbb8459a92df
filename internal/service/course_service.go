package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/certify-go-api/internal/dto"
	"github.com/noah-isme/certify-go-api/internal/models"
	"github.com/noah-isme/certify-go-api/internal/observability"
	"github.com/noah-isme/certify-go-api/internal/repository"
)

const catalogCacheKey = "catalog:courses:v1"

// CourseService exposes the course catalog with per-user derivations. Catalog
// rows are cached; status and progress are derived fresh on every read so the
// backend record stays the single source of truth.
type CourseService interface {
	ListCourses(ctx context.Context, userID uint) ([]dto.CourseSummaryResponse, error)
	GetCourse(ctx context.Context, userID, courseID uint) (dto.CourseDetailResponse, error)
	RecordCompletion(ctx context.Context, userID, courseID uint, payload dto.CompletionRequest) (dto.CourseProgress, error)
}

type courseService struct {
	courses     repository.CourseRepository
	completions repository.CompletionRepository
	workflows   repository.WorkflowRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	validator   *validator.Validate
	logger      zerolog.Logger
	now         func() time.Time
}

// NewCourseService constructs the course service.
func NewCourseService(
	courses repository.CourseRepository,
	completions repository.CompletionRepository,
	workflows repository.WorkflowRepository,
	cache *redis.Client,
	ttl time.Duration,
	validate *validator.Validate,
	logger zerolog.Logger,
) CourseService {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}

	return &courseService{
		courses:     courses,
		completions: completions,
		workflows:   workflows,
		cache:       cache,
		cacheTTL:    ttl,
		validator:   validate,
		logger:      logger.With().Str("component", "course_service").Logger(),
		now:         time.Now,
	}
}

func (s *courseService) ListCourses(ctx context.Context, userID uint) ([]dto.CourseSummaryResponse, error) {
	start := time.Now()
	defer func() {
		observability.CatalogLatency().Observe(time.Since(start).Seconds())
	}()

	courses, err := s.loadCatalog(ctx)
	if err != nil {
		observability.CatalogRequests().WithLabelValues("error").Inc()
		return nil, err
	}

	workflowByLevel, err := s.workflowsByLevel(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := make([]dto.CourseSummaryResponse, 0, len(courses))
	for _, course := range courses {
		total, err := s.courses.CountSubsections(ctx, course.ID)
		if err != nil {
			return nil, err
		}

		completions, err := s.completions.ListByUserAndCourse(ctx, userID, course.ID)
		if err != nil {
			return nil, err
		}

		status := ComputeCourseStatus(course, workflowByLevel[course.Level], workflowByLevel[course.Level-1])

		items = append(items, dto.CourseSummaryResponse{
			ID:           course.ID,
			Slug:         course.Slug,
			Title:        course.Title,
			Description:  course.Description,
			Level:        course.Level,
			IsAvailable:  course.IsAvailable,
			IsComingSoon: course.IsComingSoon,
			Status:       status,
			Progress:     ComputeProgress(completions, int(total)),
			UpdatedAt:    course.UpdatedAt,
		})
	}

	return items, nil
}

func (s *courseService) GetCourse(ctx context.Context, userID, courseID uint) (dto.CourseDetailResponse, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.CourseDetailResponse{}, ErrCourseNotFound
		}
		return dto.CourseDetailResponse{}, err
	}

	workflowByLevel, err := s.workflowsByLevel(ctx, userID)
	if err != nil {
		return dto.CourseDetailResponse{}, err
	}

	completions, err := s.completions.ListByUserAndCourse(ctx, userID, course.ID)
	if err != nil {
		return dto.CourseDetailResponse{}, err
	}

	completedAt := make(map[uint]*time.Time, len(completions))
	for _, completion := range completions {
		if completion.CompletedAt != nil {
			completedAt[completion.SubsectionID] = completion.CompletedAt
		}
	}

	var totalSubsections int
	sections := make([]dto.SectionProgressResponse, 0, len(course.Sections))
	for _, section := range course.Sections {
		sectionCompletions := make([]models.SubsectionCompletion, 0, len(section.Subsections))
		subsections := make([]dto.SubsectionResponse, 0, len(section.Subsections))

		for _, subsection := range section.Subsections {
			totalSubsections++
			finishedAt, finished := completedAt[subsection.ID]
			if finished {
				sectionCompletions = append(sectionCompletions, models.SubsectionCompletion{
					SubsectionID: subsection.ID,
					CompletedAt:  finishedAt,
				})
			}

			subsections = append(subsections, dto.SubsectionResponse{
				ID:          subsection.ID,
				Title:       subsection.Title,
				Sequence:    subsection.Sequence,
				VideoURL:    subsection.VideoURL,
				Completed:   finished,
				CompletedAt: finishedAt,
			})
		}

		sections = append(sections, dto.SectionProgressResponse{
			ID:          section.ID,
			Title:       section.Title,
			Sequence:    section.Sequence,
			Progress:    ComputeProgress(sectionCompletions, len(section.Subsections)),
			Subsections: subsections,
		})
	}

	status := ComputeCourseStatus(course, workflowByLevel[course.Level], workflowByLevel[course.Level-1])

	return dto.CourseDetailResponse{
		ID:          course.ID,
		Slug:        course.Slug,
		Title:       course.Title,
		Description: course.Description,
		Level:       course.Level,
		Status:      status,
		Progress:    ComputeProgress(completions, totalSubsections),
		Sections:    sections,
		UpdatedAt:   course.UpdatedAt,
	}, nil
}

// RecordCompletion upserts a completion row for the caller and returns the
// recomputed course progress. Replaying the same subsection is harmless.
func (s *courseService) RecordCompletion(ctx context.Context, userID, courseID uint, payload dto.CompletionRequest) (dto.CourseProgress, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CourseProgress{}, err
	}

	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.CourseProgress{}, ErrCourseNotFound
		}
		return dto.CourseProgress{}, err
	}

	workflowByLevel, err := s.workflowsByLevel(ctx, userID)
	if err != nil {
		return dto.CourseProgress{}, err
	}

	status := ComputeCourseStatus(course, workflowByLevel[course.Level], workflowByLevel[course.Level-1])
	if status != dto.CourseAvailable && status != dto.CourseCompleted {
		return dto.CourseProgress{}, ErrCourseLocked
	}

	if !subsectionBelongsToCourse(course, payload.SubsectionID) {
		return dto.CourseProgress{}, ErrSubsectionNotFound
	}

	completedAt := s.now()
	completion := models.SubsectionCompletion{
		UserID:       userID,
		SubsectionID: payload.SubsectionID,
		CourseID:     courseID,
		CompletedAt:  &completedAt,
	}

	if err := s.completions.Upsert(ctx, &completion); err != nil {
		return dto.CourseProgress{}, err
	}

	total, err := s.courses.CountSubsections(ctx, courseID)
	if err != nil {
		return dto.CourseProgress{}, err
	}

	completions, err := s.completions.ListByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return dto.CourseProgress{}, err
	}

	return ComputeProgress(completions, int(total)), nil
}

// loadCatalog reads the course rows through the Redis cache. Only the raw
// catalog is cached, never per-user derivations.
func (s *courseService) loadCatalog(ctx context.Context) ([]models.Course, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, catalogCacheKey).Result(); err == nil {
			var courses []models.Course
			if unmarshalErr := json.Unmarshal([]byte(cached), &courses); unmarshalErr == nil {
				observability.CatalogRequests().WithLabelValues("hit").Inc()
				return courses, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read catalog cache")
		}
	}

	courses, err := s.courses.List(ctx, repository.CourseFilter{})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(courses); err == nil {
			if err := s.cache.Set(ctx, catalogCacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store catalog cache")
			}
		}
	}

	observability.CatalogRequests().WithLabelValues("miss").Inc()
	return courses, nil
}

func (s *courseService) workflowsByLevel(ctx context.Context, userID uint) (map[int]*models.CertificationWorkflow, error) {
	workflows, err := s.workflows.List(ctx, repository.WorkflowFilter{UserID: &userID})
	if err != nil {
		return nil, err
	}

	byLevel := make(map[int]*models.CertificationWorkflow, len(workflows))
	for i := range workflows {
		byLevel[workflows[i].Level] = &workflows[i]
	}

	return byLevel, nil
}

func subsectionBelongsToCourse(course models.Course, subsectionID uint) bool {
	for _, section := range course.Sections {
		for _, subsection := range section.Subsections {
			if subsection.ID == subsectionID {
				return true
			}
		}
	}
	return false
}
