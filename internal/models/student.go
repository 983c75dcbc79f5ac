package models

import "time"

// Student is a learner registered on an assessment job. StudentID is the
// caller-supplied identifier and is unique within a job.
type Student struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	JobID     string    `gorm:"size:36;not null;uniqueIndex:idx_job_student" json:"job_id"`
	StudentID string    `gorm:"size:128;not null;uniqueIndex:idx_job_student" json:"student_id"`
	Name      string    `gorm:"size:255" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
