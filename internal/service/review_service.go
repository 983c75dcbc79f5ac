package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/observability"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

// ReviewService coordinates teacher review of graded questions.
type ReviewService interface {
	GetReviewData(ctx context.Context, scope Scope, jobID, studentID string) (dto.ReviewDataResponse, error)
	ApplyTeacherGrade(ctx context.Context, scope Scope, key grading.ResultKey, kind grading.SubmissionKind, payload dto.TeacherGradeRequest) (dto.TeacherGradeResponse, error)
	RegenerateReport(ctx context.Context, scope Scope, jobID, studentID string, payload dto.ReportRequest) (dto.ReportResponse, error)
}

// ReviewServiceConfig wires the review coordinator.
type ReviewServiceConfig struct {
	Assessments  repository.AssessmentRepository
	Results      repository.QuestionResultRepository
	StateMachine *grading.StateMachine
	Locker       KeyLocker
	LockTimeout  time.Duration
	Validator    *validator.Validate
	Activity     ActivityRecorder
	Notifier     ReportNotifier
	Logger       zerolog.Logger
	Now          func() time.Time
}

type reviewService struct {
	assessments repository.AssessmentRepository
	results     repository.QuestionResultRepository
	machine     *grading.StateMachine
	locker      KeyLocker
	lockTimeout time.Duration
	validator   *validator.Validate
	activity    ActivityRecorder
	notifier    ReportNotifier
	sanitizer   *bluemonday.Policy
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewReviewService constructs the review coordinator.
func NewReviewService(cfg ReviewServiceConfig) ReviewService {
	if cfg.StateMachine == nil {
		cfg.StateMachine = grading.NewStateMachine(cfg.Now)
	}
	if cfg.Locker == nil {
		cfg.Locker = NewLocalKeyLocker()
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 15 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &reviewService{
		assessments: cfg.Assessments,
		results:     cfg.Results,
		machine:     cfg.StateMachine,
		locker:      cfg.Locker,
		lockTimeout: cfg.LockTimeout,
		validator:   cfg.Validator,
		activity:    cfg.Activity,
		notifier:    cfg.Notifier,
		sanitizer:   bluemonday.StrictPolicy(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/review"),
		logger:      cfg.Logger.With().Str("component", "review_service").Logger(),
		now:         cfg.Now,
	}
}

func (s *reviewService) GetReviewData(ctx context.Context, scope Scope, jobID, studentID string) (dto.ReviewDataResponse, error) {
	job, student, err := s.loadJobAndStudent(ctx, scope, jobID, studentID)
	if err != nil {
		return dto.ReviewDataResponse{}, err
	}

	results, err := s.results.ListByStudent(ctx, jobID, studentID)
	if err != nil {
		return dto.ReviewDataResponse{}, err
	}

	pending := make([]dto.PendingQuestionResponse, 0)
	graded := make([]dto.ReviewQuestionResponse, 0, len(results))
	for _, result := range results {
		prompt := ""
		if question, ok := job.Question(result.Key.QuestionID); ok {
			prompt = question.Prompt
		}
		if result.Status == grading.StatusPendingReview {
			pending = append(pending, dto.NewPendingQuestionResponse(result, prompt))
			continue
		}
		graded = append(graded, dto.NewReviewQuestionResponse(result, prompt))
	}

	return dto.ReviewDataResponse{
		Assessment: dto.NewAssessmentResponse(job),
		Student:    dto.NewStudentResponse(student),
		Summary:    grading.SummarizeStudent(studentID, results, questionMeta(job)),
		Pending:    pending,
		AIGraded:   graded,
	}, nil
}

// ApplyTeacherGrade runs one transition under the per-key lock. The stored
// result is untouched unless the transition succeeds.
func (s *reviewService) ApplyTeacherGrade(ctx context.Context, scope Scope, key grading.ResultKey, kind grading.SubmissionKind, payload dto.TeacherGradeRequest) (dto.TeacherGradeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "review.apply", trace.WithAttributes(
		attribute.String("review.job_id", key.JobID),
		attribute.String("review.student_id", key.StudentID),
		attribute.String("review.question_id", key.QuestionID),
		attribute.String("review.kind", string(kind)),
		attribute.Int64("review.actor_id", int64(scope.UserID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		s.countSubmission(kind, "rejected_validation")
		span.SetStatus(codes.Error, "validation_failed")
		return dto.TeacherGradeResponse{}, err
	}

	job, err := s.assessments.GetJob(ctx, key.JobID, scope.OwnerFilter())
	if err != nil {
		return dto.TeacherGradeResponse{}, mapNotFound(err, ErrJobNotFound)
	}
	question, ok := job.Question(key.QuestionID)
	if !ok {
		return dto.TeacherGradeResponse{}, ErrQuestionNotFound
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	unlock, err := s.locker.Lock(lockCtx, lockKey(key))
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock_failed")
		s.countSubmission(kind, "error")
		return dto.TeacherGradeResponse{}, err
	}
	defer unlock()

	submission := grading.Submission{
		Grade:    *payload.Grade,
		Feedback: strings.TrimSpace(s.sanitizer.Sanitize(payload.Feedback)),
		ActorID:  scope.UserID,
	}

	var record grading.OverrideRecord
	updated, err := s.results.Mutate(ctx, key, scope.OwnerFilter(), func(result *grading.QuestionResult) error {
		applied, err := s.machine.Apply(result, kind, submission)
		if err != nil {
			return err
		}
		record = applied
		return nil
	})
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, grading.ErrInvalidStateTransition):
			s.countSubmission(kind, "rejected_state")
			span.SetStatus(codes.Error, "invalid_state_transition")
		case errors.Is(err, grading.ErrValidation):
			s.countSubmission(kind, "rejected_validation")
			span.SetStatus(codes.Error, "validation_failed")
		default:
			s.countSubmission(kind, "error")
			span.SetStatus(codes.Error, "mutate_failed")
		}
		return dto.TeacherGradeResponse{}, mapNotFound(err, ErrResultNotFound)
	}
	s.countSubmission(kind, "accepted")

	studentResults, err := s.results.ListByStudent(ctx, key.JobID, key.StudentID)
	if err != nil {
		return dto.TeacherGradeResponse{}, err
	}
	summary := grading.SummarizeStudent(key.StudentID, studentResults, questionMeta(job))

	s.logger.Info().
		Str("job_id", key.JobID).
		Str("student_id", key.StudentID).
		Str("question_id", key.QuestionID).
		Str("kind", string(kind)).
		Str("prior_status", string(record.PriorStatus)).
		Uint("actor_id", scope.UserID).
		Msg("teacher grade applied")

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      scope,
		Action:     ActionQuestionReviewed,
		EntityType: "question_result",
		EntityID:   lockKey(key),
		JobID:      key.JobID,
		StudentID:  key.StudentID,
		Metadata: map[string]interface{}{
			"kind":         string(kind),
			"grade":        record.Grade,
			"prior_status": string(record.PriorStatus),
		},
	})
	s.notify(ctx, ReportEvent{
		JobID:      key.JobID,
		StudentID:  key.StudentID,
		QuestionID: key.QuestionID,
		Reason:     ReportReasonTeacherGrade,
		ActorID:    scope.UserID,
	})

	if job.Status == models.JobStatusPendingReview {
		if err := s.refreshJobStatus(ctx, job); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to refresh job status")
		}
	}

	return dto.TeacherGradeResponse{
		Question: dto.NewReviewQuestionResponse(updated, question.Prompt),
		Record:   record,
		Summary:  summary,
	}, nil
}

func (s *reviewService) RegenerateReport(ctx context.Context, scope Scope, jobID, studentID string, payload dto.ReportRequest) (dto.ReportResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ReportResponse{}, err
	}

	job, _, err := s.loadJobAndStudent(ctx, scope, jobID, studentID)
	if err != nil {
		return dto.ReportResponse{}, err
	}

	results, err := s.results.ListByStudent(ctx, jobID, studentID)
	if err != nil {
		return dto.ReportResponse{}, err
	}
	summary := grading.SummarizeStudent(studentID, results, questionMeta(job))

	reason := strings.TrimSpace(payload.Reason)
	if reason == "" {
		reason = ReportReasonManual
	}
	requestedAt := s.now().UTC()
	s.notify(ctx, ReportEvent{JobID: jobID, StudentID: studentID, Reason: reason, ActorID: scope.UserID, SentAt: requestedAt})

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      scope,
		Action:     ActionReportRegenerating,
		EntityType: "student",
		EntityID:   studentID,
		JobID:      jobID,
		StudentID:  studentID,
		Metadata:   map[string]interface{}{"reason": reason},
	})

	return dto.ReportResponse{
		JobID:       jobID,
		StudentID:   studentID,
		Status:      summary.Status,
		TotalScore:  summary.TotalScore,
		MaxScore:    summary.MaxScore,
		Percentage:  summary.Percentage,
		RequestedAt: requestedAt,
	}, nil
}

func (s *reviewService) loadJobAndStudent(ctx context.Context, scope Scope, jobID, studentID string) (models.AssessmentJob, models.Student, error) {
	job, err := s.assessments.GetJob(ctx, jobID, scope.OwnerFilter())
	if err != nil {
		return models.AssessmentJob{}, models.Student{}, mapNotFound(err, ErrJobNotFound)
	}
	student, err := s.assessments.GetStudent(ctx, jobID, studentID, scope.OwnerFilter())
	if err != nil {
		return models.AssessmentJob{}, models.Student{}, mapNotFound(err, ErrStudentNotFound)
	}
	return job, student, nil
}

func (s *reviewService) refreshJobStatus(ctx context.Context, job models.AssessmentJob) error {
	results, err := s.results.ListByJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if grading.Aggregate(results, questionMeta(job)).Status == grading.StatusPendingReview {
		return nil
	}
	return s.assessments.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted)
}

func (s *reviewService) notify(ctx context.Context, event ReportEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyStale(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("job_id", event.JobID).Str("student_id", event.StudentID).Msg("failed to publish report event")
	}
}

func (s *reviewService) countSubmission(kind grading.SubmissionKind, outcome string) {
	observability.ReviewSubmissions().WithLabelValues(string(kind), outcome).Inc()
}

func lockKey(key grading.ResultKey) string {
	return key.JobID + "/" + key.StudentID + "/" + key.QuestionID
}
