package dto

import (
	"time"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// QuestionInput defines one question of a new assessment.
type QuestionInput struct {
	ID       string  `json:"id" validate:"required,max=128"`
	Prompt   string  `json:"prompt" validate:"required"`
	MaxScore float64 `json:"max_score" validate:"required,gt=0"`
}

// CreateAssessmentRequest is the payload for creating an assessment job.
type CreateAssessmentRequest struct {
	Name      string          `json:"name" validate:"required,min=3,max=255"`
	Questions []QuestionInput `json:"questions" validate:"required,min=1,unique=ID,dive"`
}

// RegisterStudentRequest adds a student to an assessment job.
type RegisterStudentRequest struct {
	StudentID string `json:"student_id" validate:"required,max=128"`
	Name      string `json:"name" validate:"omitempty,max=255"`
}

// QuestionResponse serializes a question definition.
type QuestionResponse struct {
	ID       string  `json:"id"`
	Prompt   string  `json:"prompt"`
	MaxScore float64 `json:"max_score"`
}

// AssessmentResponse serializes an assessment job.
type AssessmentResponse struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Status        string             `json:"status"`
	OwnerID       uint               `json:"owner_id"`
	TotalMaxScore float64            `json:"total_max_score"`
	Questions     []QuestionResponse `json:"questions"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// StudentResponse serializes a registered student.
type StudentResponse struct {
	JobID     string    `json:"job_id"`
	StudentID string    `json:"student_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAssessmentResponse converts a job model into its DTO.
func NewAssessmentResponse(job models.AssessmentJob) AssessmentResponse {
	questions := make([]QuestionResponse, 0, len(job.Questions))
	for _, question := range job.Questions {
		questions = append(questions, QuestionResponse{
			ID:       question.ID,
			Prompt:   question.Prompt,
			MaxScore: question.MaxScore,
		})
	}

	return AssessmentResponse{
		ID:            job.ID,
		Name:          job.Name,
		Status:        job.Status,
		OwnerID:       job.OwnerID,
		TotalMaxScore: job.TotalMaxScore(),
		Questions:     questions,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}
}

// NewAssessmentResponseSlice converts a slice of jobs.
func NewAssessmentResponseSlice(jobs []models.AssessmentJob) []AssessmentResponse {
	responses := make([]AssessmentResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, NewAssessmentResponse(job))
	}
	return responses
}

// NewStudentResponse converts a student model into its DTO.
func NewStudentResponse(student models.Student) StudentResponse {
	return StudentResponse{
		JobID:     student.JobID,
		StudentID: student.StudentID,
		Name:      student.Name,
		CreatedAt: student.CreatedAt,
	}
}
