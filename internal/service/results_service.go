package service

import (
	"context"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

// ResultsService derives categorized views from the current question results.
type ResultsService interface {
	Overview(ctx context.Context, scope Scope, jobID string) (dto.ResultsResponse, error)
	StudentSummary(ctx context.Context, scope Scope, jobID, studentID string) (grading.StudentSummary, error)
}

type resultsService struct {
	assessments repository.AssessmentRepository
	results     repository.QuestionResultRepository
}

// NewResultsService constructs the results service.
func NewResultsService(assessments repository.AssessmentRepository, results repository.QuestionResultRepository) ResultsService {
	return &resultsService{assessments: assessments, results: results}
}

func (s *resultsService) Overview(ctx context.Context, scope Scope, jobID string) (dto.ResultsResponse, error) {
	job, err := s.assessments.GetJob(ctx, jobID, scope.OwnerFilter())
	if err != nil {
		return dto.ResultsResponse{}, mapNotFound(err, ErrJobNotFound)
	}

	results, err := s.results.ListByJob(ctx, jobID)
	if err != nil {
		return dto.ResultsResponse{}, err
	}

	return dto.ResultsResponse{
		Assessment: dto.NewAssessmentResponse(job),
		Summary:    grading.Aggregate(results, questionMeta(job)),
	}, nil
}

func (s *resultsService) StudentSummary(ctx context.Context, scope Scope, jobID, studentID string) (grading.StudentSummary, error) {
	job, err := s.assessments.GetJob(ctx, jobID, scope.OwnerFilter())
	if err != nil {
		return grading.StudentSummary{}, mapNotFound(err, ErrJobNotFound)
	}
	if _, err := s.assessments.GetStudent(ctx, jobID, studentID, scope.OwnerFilter()); err != nil {
		return grading.StudentSummary{}, mapNotFound(err, ErrStudentNotFound)
	}

	results, err := s.results.ListByStudent(ctx, jobID, studentID)
	if err != nil {
		return grading.StudentSummary{}, err
	}
	return grading.SummarizeStudent(studentID, results, questionMeta(job)), nil
}
