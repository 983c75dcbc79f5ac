package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	// JobStatusCreated indicates no student has been graded yet.
	JobStatusCreated = "Created"
	// JobStatusProcessing indicates model calls are in flight for the job.
	JobStatusProcessing = "Processing"
	// JobStatusCompleted indicates every graded question has a usable grade.
	JobStatusCompleted = "Completed"
	// JobStatusPendingReview indicates at least one question waits for a teacher.
	JobStatusPendingReview = "Pending Review"
)

// QuestionSpec describes one question of an assessment.
type QuestionSpec struct {
	ID       string  `json:"id"`
	Prompt   string  `json:"prompt"`
	MaxScore float64 `json:"max_score"`
}

// AssessmentJob groups the students and questions graded together.
type AssessmentJob struct {
	ID        string                             `gorm:"primaryKey;size:36" json:"id"`
	OwnerID   uint                               `gorm:"index;not null" json:"owner_id"`
	Name      string                             `gorm:"size:255;not null" json:"name"`
	Status    string                             `gorm:"size:32;not null" json:"status"`
	Questions datatypes.JSONSlice[QuestionSpec] `json:"questions"`
	CreatedAt time.Time                          `json:"created_at"`
	UpdatedAt time.Time                          `json:"updated_at"`
	Students  []Student                          `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE" json:"-"`
}

// Question returns the question with the given id.
func (j AssessmentJob) Question(id string) (QuestionSpec, bool) {
	for _, question := range j.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return QuestionSpec{}, false
}

// TotalMaxScore sums the max score of every question.
func (j AssessmentJob) TotalMaxScore() float64 {
	total := 0.0
	for _, question := range j.Questions {
		total += question.MaxScore
	}
	return total
}
