package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog captures auditable job-level events triggered by teachers or by
// the grading pipeline. Per-question grade changes live in QuestionOverride.
type ActivityLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ActorID    uint              `gorm:"not null;index" json:"actor_id"`
	ActorRole  string            `gorm:"size:32;not null" json:"actor_role"`
	Action     string            `gorm:"size:64;not null" json:"action"`
	EntityType string            `gorm:"size:64;not null" json:"entity_type"`
	EntityID   string            `gorm:"size:128;index" json:"entity_id"`
	JobID      string            `gorm:"size:36;index" json:"job_id"`
	StudentID  string            `gorm:"size:128;index" json:"student_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}
