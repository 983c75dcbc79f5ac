package dto

import (
	"time"

	"github.com/noah-isme/gema-grading-api/internal/grading"
)

// TeacherGradeRequest is the payload for a pending-review grade or an override.
// Feedback is required for pending-review submissions; the state machine
// enforces it.
type TeacherGradeRequest struct {
	Grade    *float64 `json:"grade" validate:"required"`
	Feedback string   `json:"feedback" validate:"omitempty,max=5000"`
}

// ReportRequest asks for a student's report to be regenerated.
type ReportRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=255"`
}

// ReviewQuestionResponse is one question in the review bundle.
type ReviewQuestionResponse struct {
	QuestionID        string                   `json:"question_id"`
	Prompt            string                   `json:"prompt"`
	MaxScore          float64                  `json:"max_score"`
	Status            grading.Status           `json:"status"`
	Agreement         grading.Agreement        `json:"agreement"`
	ConsensusAchieved bool                     `json:"consensus_achieved"`
	CurrentGrade      *float64                 `json:"current_grade"`
	CurrentFeedback   *string                  `json:"current_feedback"`
	AIResponses       []grading.GradeVote      `json:"ai_responses"`
	TeacherOverride   *grading.OverrideRecord  `json:"teacher_override"`
	Overrides         []grading.OverrideRecord `json:"overrides"`
}

// PendingQuestionResponse is a question waiting for a teacher. Model output is
// withheld so the teacher grades from the answer sheet alone.
type PendingQuestionResponse struct {
	QuestionID string         `json:"question_id"`
	Prompt     string         `json:"prompt"`
	MaxScore   float64        `json:"max_score"`
	Status     grading.Status `json:"status"`
}

// ReviewDataResponse is everything a teacher needs to review one student.
// Pending holds PENDING_REVIEW questions; AIGraded holds the rest with their votes.
type ReviewDataResponse struct {
	Assessment AssessmentResponse        `json:"assessment"`
	Student    StudentResponse           `json:"student"`
	Summary    grading.StudentSummary    `json:"summary"`
	Pending    []PendingQuestionResponse `json:"pending"`
	AIGraded   []ReviewQuestionResponse  `json:"ai_graded"`
}

// TeacherGradeResponse returns the updated question and the student's new totals.
type TeacherGradeResponse struct {
	Question ReviewQuestionResponse `json:"question"`
	Record   grading.OverrideRecord `json:"record"`
	Summary  grading.StudentSummary `json:"summary"`
}

// ReportResponse acknowledges a report regeneration request.
type ReportResponse struct {
	JobID       string         `json:"job_id"`
	StudentID   string         `json:"student_id"`
	Status      grading.Status `json:"status"`
	TotalScore  float64        `json:"total_score"`
	MaxScore    float64        `json:"max_score"`
	Percentage  *float64       `json:"percentage"`
	RequestedAt time.Time      `json:"requested_at"`
}

// ResultsResponse is the categorized job overview.
type ResultsResponse struct {
	Assessment AssessmentResponse `json:"assessment"`
	Summary    grading.JobSummary `json:"summary"`
}

// NewPendingQuestionResponse keeps only the question definition and status.
func NewPendingQuestionResponse(result grading.QuestionResult, prompt string) PendingQuestionResponse {
	return PendingQuestionResponse{
		QuestionID: result.Key.QuestionID,
		Prompt:     prompt,
		MaxScore:   result.MaxScore,
		Status:     result.Status,
	}
}

// NewReviewQuestionResponse merges a stored result with its question definition.
func NewReviewQuestionResponse(result grading.QuestionResult, prompt string) ReviewQuestionResponse {
	overrides := result.Overrides
	if overrides == nil {
		overrides = []grading.OverrideRecord{}
	}
	votes := result.AIResponses
	if votes == nil {
		votes = []grading.GradeVote{}
	}

	return ReviewQuestionResponse{
		QuestionID:        result.Key.QuestionID,
		Prompt:            prompt,
		MaxScore:          result.MaxScore,
		Status:            result.Status,
		Agreement:         result.Agreement,
		ConsensusAchieved: result.ConsensusAchieved(),
		CurrentGrade:      result.CurrentGrade,
		CurrentFeedback:   result.CurrentFeedback,
		AIResponses:       votes,
		TeacherOverride:   result.TeacherOverride(),
		Overrides:         overrides,
	}
}
