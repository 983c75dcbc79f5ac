package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-grading-api/internal/grading"
)

// QuestionResult persists the state of one (job, student, question) triple.
type QuestionResult struct {
	ID              uint                                  `gorm:"primaryKey"`
	JobID           string                                `gorm:"size:36;not null;uniqueIndex:idx_result_key"`
	StudentID       string                                `gorm:"size:128;not null;uniqueIndex:idx_result_key"`
	QuestionID      string                                `gorm:"size:128;not null;uniqueIndex:idx_result_key"`
	Status          string                                `gorm:"size:32;not null;index"`
	Agreement       string                                `gorm:"size:16;not null"`
	CurrentGrade    *float64
	CurrentFeedback *string                               `gorm:"type:text"`
	MaxScore        float64                               `gorm:"not null"`
	AIResponses     datatypes.JSONSlice[grading.GradeVote]
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Overrides       []QuestionOverride `gorm:"foreignKey:ResultID;constraint:OnDelete:CASCADE"`
}

// QuestionOverride is an append-only audit row. Sequence orders the rows of
// one result starting at 1.
type QuestionOverride struct {
	ID            uint     `gorm:"primaryKey"`
	ResultID      uint     `gorm:"not null;uniqueIndex:idx_override_sequence"`
	Sequence      int      `gorm:"not null;uniqueIndex:idx_override_sequence"`
	Kind          string   `gorm:"size:32;not null"`
	Grade         float64  `gorm:"not null"`
	Feedback      string   `gorm:"type:text"`
	PriorGrade    *float64
	PriorFeedback *string  `gorm:"type:text"`
	PriorStatus   string   `gorm:"size:32;not null"`
	ActorID       uint     `gorm:"not null"`
	CreatedAt     time.Time
}

// NewQuestionResult maps a domain result onto a fresh row.
func NewQuestionResult(result grading.QuestionResult) QuestionResult {
	row := QuestionResult{
		JobID:      result.Key.JobID,
		StudentID:  result.Key.StudentID,
		QuestionID: result.Key.QuestionID,
	}
	row.Apply(result)
	return row
}

// Apply copies the mutable fields of a domain result onto the row. Overrides
// are not touched; they are inserted separately.
func (r *QuestionResult) Apply(result grading.QuestionResult) {
	r.Status = string(result.Status)
	r.Agreement = string(result.Agreement)
	r.CurrentGrade = result.CurrentGrade
	r.CurrentFeedback = result.CurrentFeedback
	r.MaxScore = result.MaxScore
	r.AIResponses = datatypes.NewJSONSlice(append([]grading.GradeVote{}, result.AIResponses...))
}

// ToDomain converts the row and its loaded overrides into a domain result.
func (r QuestionResult) ToDomain() grading.QuestionResult {
	result := grading.QuestionResult{
		Key: grading.ResultKey{
			JobID:      r.JobID,
			StudentID:  r.StudentID,
			QuestionID: r.QuestionID,
		},
		Status:          grading.Status(r.Status),
		Agreement:       grading.Agreement(r.Agreement),
		CurrentGrade:    r.CurrentGrade,
		CurrentFeedback: r.CurrentFeedback,
		MaxScore:        r.MaxScore,
		AIResponses:     append([]grading.GradeVote(nil), r.AIResponses...),
		Overrides:       make([]grading.OverrideRecord, 0, len(r.Overrides)),
	}

	for _, override := range r.Overrides {
		result.Overrides = append(result.Overrides, override.ToDomain())
	}
	return result
}

// NewQuestionOverride maps an audit record onto a row of the given result.
func NewQuestionOverride(resultID uint, sequence int, record grading.OverrideRecord) QuestionOverride {
	return QuestionOverride{
		ResultID:      resultID,
		Sequence:      sequence,
		Kind:          string(record.Kind),
		Grade:         record.Grade,
		Feedback:      record.Feedback,
		PriorGrade:    record.PriorGrade,
		PriorFeedback: record.PriorFeedback,
		PriorStatus:   string(record.PriorStatus),
		ActorID:       record.ActorID,
		CreatedAt:     record.Timestamp,
	}
}

// ToDomain converts the row into an audit record.
func (o QuestionOverride) ToDomain() grading.OverrideRecord {
	return grading.OverrideRecord{
		Kind:          grading.SubmissionKind(o.Kind),
		Grade:         o.Grade,
		Feedback:      o.Feedback,
		Timestamp:     o.CreatedAt.UTC(),
		PriorGrade:    o.PriorGrade,
		PriorFeedback: o.PriorFeedback,
		PriorStatus:   grading.Status(o.PriorStatus),
		ActorID:       o.ActorID,
	}
}
