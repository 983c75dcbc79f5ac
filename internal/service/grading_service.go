package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/observability"
	"github.com/noah-isme/gema-grading-api/internal/repository"
	"github.com/noah-isme/gema-grading-api/pkg/ai"
)

const defaultGradingConcurrency = 4

// VoteDispatcher fans a grading request out to the model panel.
type VoteDispatcher interface {
	Dispatch(ctx context.Context, req ai.GradeRequest) ([]grading.GradeVote, error)
}

// GradeQuestionInput is everything needed to grade one question for one student.
type GradeQuestionInput struct {
	Key      grading.ResultKey
	Prompt   string
	MaxScore float64
	Images   []ai.Image
}

// GradingService runs the dispatch, consensus and initial-state pipeline.
type GradingService interface {
	GradeQuestion(ctx context.Context, input GradeQuestionInput) (grading.ConsensusVerdict, grading.QuestionResult, error)
	GradeStudent(ctx context.Context, scope Scope, jobID, studentID string, payload dto.GradeStudentRequest) (dto.GradeStudentResponse, error)
}

// GradingServiceConfig wires the grading pipeline.
type GradingServiceConfig struct {
	Dispatcher   VoteDispatcher
	Evaluator    *grading.Evaluator
	StateMachine *grading.StateMachine
	Assessments  repository.AssessmentRepository
	Results      repository.QuestionResultRepository
	Validator    *validator.Validate
	Activity     ActivityRecorder
	Notifier     ReportNotifier
	Concurrency  int
	Logger       zerolog.Logger
}

type gradingService struct {
	dispatcher  VoteDispatcher
	evaluator   *grading.Evaluator
	machine     *grading.StateMachine
	assessments repository.AssessmentRepository
	results     repository.QuestionResultRepository
	validator   *validator.Validate
	activity    ActivityRecorder
	notifier    ReportNotifier
	concurrency int
	tracer      trace.Tracer
	logger      zerolog.Logger
}

// NewGradingService constructs the grading service.
func NewGradingService(cfg GradingServiceConfig) GradingService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultGradingConcurrency
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = grading.NewEvaluator(grading.EvaluatorConfig{})
	}
	if cfg.StateMachine == nil {
		cfg.StateMachine = grading.NewStateMachine(nil)
	}

	return &gradingService{
		dispatcher:  cfg.Dispatcher,
		evaluator:   cfg.Evaluator,
		machine:     cfg.StateMachine,
		assessments: cfg.Assessments,
		results:     cfg.Results,
		validator:   cfg.Validator,
		activity:    cfg.Activity,
		notifier:    cfg.Notifier,
		concurrency: cfg.Concurrency,
		tracer:      otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/grading"),
		logger:      cfg.Logger.With().Str("component", "grading_service").Logger(),
	}
}

// GradeQuestion dispatches, evaluates and stores the initial result. When
// every model call fails the PENDING_REVIEW result is still stored and
// grading.ErrDispatchExhausted is returned with it. A question a teacher has
// already graded is returned unchanged with grading.ErrInvalidStateTransition
// and no model is called.
func (s *gradingService) GradeQuestion(ctx context.Context, input GradeQuestionInput) (grading.ConsensusVerdict, grading.QuestionResult, error) {
	ctx, span := s.tracer.Start(ctx, "grading.question", trace.WithAttributes(
		attribute.String("grading.job_id", input.Key.JobID),
		attribute.String("grading.student_id", input.Key.StudentID),
		attribute.String("grading.question_id", input.Key.QuestionID),
	))
	defer span.End()

	existing, err := s.results.LoadQuestionResult(ctx, input.Key, 0)
	switch {
	case err == nil:
		if err := grading.CheckRegrade(existing); err != nil {
			span.SetStatus(codes.Error, "regrade_rejected")
			return grading.ConsensusVerdict{}, existing, err
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		span.RecordError(err)
		return grading.ConsensusVerdict{}, grading.QuestionResult{}, err
	}

	votes, dispatchErr := s.dispatcher.Dispatch(ctx, ai.GradeRequest{
		Prompt:   input.Prompt,
		Images:   input.Images,
		MaxScore: input.MaxScore,
	})
	if dispatchErr != nil && !errors.Is(dispatchErr, grading.ErrDispatchExhausted) {
		span.RecordError(dispatchErr)
		span.SetStatus(codes.Error, "dispatch_failed")
		return grading.ConsensusVerdict{}, grading.QuestionResult{}, dispatchErr
	}

	verdict := s.evaluator.EvaluateWithin(input.Key.QuestionID, input.MaxScore, votes)
	result := s.machine.Initial(input.Key, verdict, input.MaxScore)
	observability.ConsensusOutcomes().WithLabelValues(string(verdict.Agreement)).Inc()
	span.SetAttributes(
		attribute.String("grading.agreement", string(verdict.Agreement)),
		attribute.Int("grading.successful_votes", verdict.SuccessfulVotes()),
	)

	if err := s.results.SaveQuestionResult(ctx, result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save_failed")
		return verdict, grading.QuestionResult{}, err
	}

	s.logger.Debug().
		Str("job_id", input.Key.JobID).
		Str("student_id", input.Key.StudentID).
		Str("question_id", input.Key.QuestionID).
		Str("agreement", string(verdict.Agreement)).
		Str("status", string(result.Status)).
		Msg("question graded")

	if dispatchErr != nil {
		span.SetStatus(codes.Error, "dispatch_exhausted")
		return verdict, result, dispatchErr
	}
	return verdict, result, nil
}

// GradeStudent grades the requested questions of one student in parallel.
// A failing question never aborts its siblings; only caller cancellation does.
func (s *gradingService) GradeStudent(ctx context.Context, scope Scope, jobID, studentID string, payload dto.GradeStudentRequest) (dto.GradeStudentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.student", trace.WithAttributes(
		attribute.String("grading.job_id", jobID),
		attribute.String("grading.student_id", studentID),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.GradeStudentResponse{}, err
	}

	job, err := s.assessments.GetJob(ctx, jobID, scope.OwnerFilter())
	if err != nil {
		return dto.GradeStudentResponse{}, mapNotFound(err, ErrJobNotFound)
	}
	if _, err := s.assessments.GetStudent(ctx, jobID, studentID, scope.OwnerFilter()); err != nil {
		return dto.GradeStudentResponse{}, mapNotFound(err, ErrStudentNotFound)
	}

	images, err := decodeImages(payload.Images)
	if err != nil {
		return dto.GradeStudentResponse{}, err
	}

	inputs, err := questionInputs(job, studentID, payload.Questions, images)
	if err != nil {
		return dto.GradeStudentResponse{}, err
	}
	if err := s.checkRegrades(ctx, jobID, studentID, inputs); err != nil {
		span.SetStatus(codes.Error, "regrade_rejected")
		return dto.GradeStudentResponse{}, err
	}

	if err := s.assessments.UpdateJobStatus(ctx, jobID, models.JobStatusProcessing); err != nil {
		return dto.GradeStudentResponse{}, err
	}

	responses := make([]dto.QuestionGradeResponse, len(inputs))
	group := new(errgroup.Group)
	group.SetLimit(s.concurrency)
	for i, input := range inputs {
		group.Go(func() error {
			verdict, result, err := s.GradeQuestion(ctx, input)
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}

			response := dto.NewQuestionGradeResponse(verdict, result)
			response.QuestionID = input.Key.QuestionID
			if err != nil {
				response.Error = err.Error()
				s.logger.Warn().Err(err).
					Str("job_id", jobID).
					Str("student_id", studentID).
					Str("question_id", input.Key.QuestionID).
					Msg("question grading degraded")
			}
			responses[i] = response
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancelled")
		if refreshErr := s.restoreJobStatus(context.WithoutCancel(ctx), job); refreshErr != nil {
			s.logger.Warn().Err(refreshErr).Str("job_id", jobID).Msg("failed to restore job status")
		}
		return dto.GradeStudentResponse{}, err
	}

	jobStatus, err := s.refreshJobStatus(ctx, job)
	if err != nil {
		return dto.GradeStudentResponse{}, err
	}

	studentResults, err := s.results.ListByStudent(ctx, jobID, studentID)
	if err != nil {
		return dto.GradeStudentResponse{}, err
	}
	studentStatus := grading.CategorizeStudent(studentResults)

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      scope,
		Action:     ActionStudentGraded,
		EntityType: "student",
		EntityID:   studentID,
		JobID:      jobID,
		StudentID:  studentID,
		Metadata:   map[string]interface{}{"questions": len(inputs), "status": string(studentStatus)},
	})

	if s.notifier != nil {
		if err := s.notifier.NotifyStale(ctx, ReportEvent{JobID: jobID, StudentID: studentID, Reason: ReportReasonGraded, ActorID: scope.UserID}); err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to publish report event")
		}
	}

	return dto.GradeStudentResponse{
		JobID:     jobID,
		StudentID: studentID,
		Status:    studentStatus,
		JobStatus: jobStatus,
		Questions: responses,
	}, nil
}

// checkRegrades rejects the whole request when any selected question has
// already been graded by a teacher.
func (s *gradingService) checkRegrades(ctx context.Context, jobID, studentID string, inputs []GradeQuestionInput) error {
	existing, err := s.results.ListByStudent(ctx, jobID, studentID)
	if err != nil {
		return err
	}
	selected := make(map[string]struct{}, len(inputs))
	for _, input := range inputs {
		selected[input.Key.QuestionID] = struct{}{}
	}
	for _, result := range existing {
		if _, ok := selected[result.Key.QuestionID]; !ok {
			continue
		}
		if err := grading.CheckRegrade(result); err != nil {
			return fmt.Errorf("question %s: %w", result.Key.QuestionID, err)
		}
	}
	return nil
}

// restoreJobStatus leaves Processing after an aborted run: back to the prior
// status when nothing is stored yet, otherwise recomputed from the results.
func (s *gradingService) restoreJobStatus(ctx context.Context, job models.AssessmentJob) error {
	results, err := s.results.ListByJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return s.assessments.UpdateJobStatus(ctx, job.ID, job.Status)
	}
	_, err = s.refreshJobStatus(ctx, job)
	return err
}

func (s *gradingService) refreshJobStatus(ctx context.Context, job models.AssessmentJob) (string, error) {
	results, err := s.results.ListByJob(ctx, job.ID)
	if err != nil {
		return "", err
	}

	status := models.JobStatusCompleted
	if grading.Aggregate(results, questionMeta(job)).Status == grading.StatusPendingReview {
		status = models.JobStatusPendingReview
	}
	if err := s.assessments.UpdateJobStatus(ctx, job.ID, status); err != nil {
		return "", err
	}
	return status, nil
}

func decodeImages(inputs []dto.ImageInput) ([]ai.Image, error) {
	images := make([]ai.Image, 0, len(inputs))
	for i, input := range inputs {
		data, err := base64.StdEncoding.DecodeString(input.Data)
		if err != nil {
			return nil, &grading.ValidationError{Field: fmt.Sprintf("images[%d].data", i), Message: "invalid base64 data"}
		}
		images = append(images, ai.Image{Data: data, MIMEType: input.MIMEType})
	}
	return images, nil
}

func questionInputs(job models.AssessmentJob, studentID string, selected []dto.GradeQuestionInput, images []ai.Image) ([]GradeQuestionInput, error) {
	build := func(question models.QuestionSpec, prompt string) GradeQuestionInput {
		if prompt == "" {
			prompt = question.Prompt
		}
		return GradeQuestionInput{
			Key:      grading.ResultKey{JobID: job.ID, StudentID: studentID, QuestionID: question.ID},
			Prompt:   prompt,
			MaxScore: question.MaxScore,
			Images:   images,
		}
	}

	if len(selected) == 0 {
		inputs := make([]GradeQuestionInput, 0, len(job.Questions))
		for _, question := range job.Questions {
			inputs = append(inputs, build(question, ""))
		}
		return inputs, nil
	}

	inputs := make([]GradeQuestionInput, 0, len(selected))
	for _, item := range selected {
		question, ok := job.Question(item.QuestionID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrQuestionNotFound, item.QuestionID)
		}
		inputs = append(inputs, build(question, item.Prompt))
	}
	return inputs, nil
}

func questionMeta(job models.AssessmentJob) []grading.QuestionMeta {
	meta := make([]grading.QuestionMeta, 0, len(job.Questions))
	for _, question := range job.Questions {
		meta = append(meta, grading.QuestionMeta{ID: question.ID, MaxScore: question.MaxScore})
	}
	return meta
}
