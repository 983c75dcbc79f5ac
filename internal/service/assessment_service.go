package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

// AssessmentService manages assessment jobs and their students.
type AssessmentService interface {
	Create(ctx context.Context, scope Scope, payload dto.CreateAssessmentRequest) (dto.AssessmentResponse, error)
	List(ctx context.Context, scope Scope) ([]dto.AssessmentResponse, error)
	Get(ctx context.Context, scope Scope, jobID string) (dto.AssessmentResponse, error)
	Delete(ctx context.Context, scope Scope, jobID string) error
	RegisterStudent(ctx context.Context, scope Scope, jobID string, payload dto.RegisterStudentRequest) (dto.StudentResponse, error)
}

type assessmentService struct {
	repo      repository.AssessmentRepository
	validator *validator.Validate
	activity  ActivityRecorder
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewAssessmentService constructs the assessment service.
func NewAssessmentService(repo repository.AssessmentRepository, validator *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) AssessmentService {
	return &assessmentService{
		repo:      repo,
		validator: validator,
		activity:  activity,
		tracer:    otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/assessment"),
		logger:    logger.With().Str("component", "assessment_service").Logger(),
	}
}

func (s *assessmentService) Create(ctx context.Context, scope Scope, payload dto.CreateAssessmentRequest) (dto.AssessmentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "assessment.create")
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.AssessmentResponse{}, err
	}

	questions := make([]models.QuestionSpec, 0, len(payload.Questions))
	for _, question := range payload.Questions {
		questions = append(questions, models.QuestionSpec{
			ID:       strings.TrimSpace(question.ID),
			Prompt:   strings.TrimSpace(question.Prompt),
			MaxScore: question.MaxScore,
		})
	}

	job := models.AssessmentJob{
		ID:        uuid.NewString(),
		OwnerID:   scope.UserID,
		Name:      strings.TrimSpace(payload.Name),
		Status:    models.JobStatusCreated,
		Questions: questions,
	}
	span.SetAttributes(attribute.String("assessment.job_id", job.ID), attribute.Int("assessment.questions", len(questions)))

	if err := s.repo.CreateJob(ctx, &job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create_failed")
		return dto.AssessmentResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      scope,
		Action:     ActionJobCreated,
		EntityType: "assessment_job",
		EntityID:   job.ID,
		JobID:      job.ID,
		Metadata:   map[string]interface{}{"name": job.Name, "questions": len(questions)},
	})

	return dto.NewAssessmentResponse(job), nil
}

func (s *assessmentService) List(ctx context.Context, scope Scope) ([]dto.AssessmentResponse, error) {
	jobs, err := s.repo.ListJobs(ctx, scope.OwnerFilter())
	if err != nil {
		return nil, err
	}
	return dto.NewAssessmentResponseSlice(jobs), nil
}

func (s *assessmentService) Get(ctx context.Context, scope Scope, jobID string) (dto.AssessmentResponse, error) {
	job, err := s.repo.GetJob(ctx, jobID, scope.OwnerFilter())
	if err != nil {
		return dto.AssessmentResponse{}, mapNotFound(err, ErrJobNotFound)
	}
	return dto.NewAssessmentResponse(job), nil
}

func (s *assessmentService) Delete(ctx context.Context, scope Scope, jobID string) error {
	ctx, span := s.tracer.Start(ctx, "assessment.delete", trace.WithAttributes(attribute.String("assessment.job_id", jobID)))
	defer span.End()

	if err := s.repo.DeleteJob(ctx, jobID, scope.OwnerFilter()); err != nil {
		span.RecordError(err)
		return mapNotFound(err, ErrJobNotFound)
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      scope,
		Action:     ActionJobDeleted,
		EntityType: "assessment_job",
		EntityID:   jobID,
		JobID:      jobID,
	})
	return nil
}

func (s *assessmentService) RegisterStudent(ctx context.Context, scope Scope, jobID string, payload dto.RegisterStudentRequest) (dto.StudentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.StudentResponse{}, err
	}

	if _, err := s.repo.GetJob(ctx, jobID, scope.OwnerFilter()); err != nil {
		return dto.StudentResponse{}, mapNotFound(err, ErrJobNotFound)
	}

	student := models.Student{
		JobID:     jobID,
		StudentID: strings.TrimSpace(payload.StudentID),
		Name:      strings.TrimSpace(payload.Name),
	}
	if err := s.repo.UpsertStudent(ctx, &student); err != nil {
		return dto.StudentResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      scope,
		Action:     ActionStudentRegistered,
		EntityType: "student",
		EntityID:   student.StudentID,
		JobID:      jobID,
		StudentID:  student.StudentID,
	})

	return dto.NewStudentResponse(student), nil
}
