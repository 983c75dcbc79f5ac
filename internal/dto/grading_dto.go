package dto

import (
	"time"

	"github.com/noah-isme/gema-grading-api/internal/grading"
)

// ImageInput is one base64 encoded page of an answer sheet.
type ImageInput struct {
	Data     string `json:"data" validate:"required,base64"`
	MIMEType string `json:"mime_type" validate:"omitempty,max=64"`
}

// GradeQuestionInput selects a question to grade. Prompt, when set, replaces
// the question's stored prompt for this run.
type GradeQuestionInput struct {
	QuestionID string `json:"question_id" validate:"required"`
	Prompt     string `json:"prompt"`
}

// GradeStudentRequest is the ingestion hook payload. An empty question list
// grades every question of the job.
type GradeStudentRequest struct {
	Images    []ImageInput         `json:"images" validate:"required,min=1,dive"`
	Questions []GradeQuestionInput `json:"questions" validate:"omitempty,dive"`
}

// QuestionGradeResponse reports the outcome of grading one question.
type QuestionGradeResponse struct {
	QuestionID string              `json:"question_id"`
	Status     grading.Status      `json:"status"`
	Agreement  grading.Agreement   `json:"agreement"`
	Grade      *float64            `json:"grade"`
	Feedback   *string             `json:"feedback"`
	Votes      []grading.GradeVote `json:"votes"`
	Error      string              `json:"error,omitempty"`
	DecidedAt  time.Time           `json:"decided_at"`
}

// GradeStudentResponse aggregates the per-question outcomes for one student.
type GradeStudentResponse struct {
	JobID     string                  `json:"job_id"`
	StudentID string                  `json:"student_id"`
	Status    grading.Status          `json:"status"`
	JobStatus string                  `json:"job_status"`
	Questions []QuestionGradeResponse `json:"questions"`
}

// NewQuestionGradeResponse builds the response for one graded question.
func NewQuestionGradeResponse(verdict grading.ConsensusVerdict, result grading.QuestionResult) QuestionGradeResponse {
	return QuestionGradeResponse{
		QuestionID: verdict.QuestionID,
		Status:     result.Status,
		Agreement:  verdict.Agreement,
		Grade:      verdict.Grade,
		Feedback:   verdict.Feedback,
		Votes:      verdict.Votes,
		DecidedAt:  verdict.DecidedAt,
	}
}
