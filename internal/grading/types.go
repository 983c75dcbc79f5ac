package grading

import "time"

// Agreement classifies how far independent model votes agree on a grade.
type Agreement string

const (
	AgreementFull     Agreement = "FULL"
	AgreementMajority Agreement = "MAJORITY"
	AgreementNone     Agreement = "NONE"
)

// Status is the lifecycle state of a single question result.
type Status string

const (
	StatusAIGraded      Status = "AI_GRADED"
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusTeacherGraded Status = "TEACHER_GRADED"
)

// SubmissionKind names the teacher action applied to a question.
type SubmissionKind string

const (
	KindPendingReview SubmissionKind = "pending_review"
	KindOverride      SubmissionKind = "override"
	// KindRegrade is a fresh AI verdict for an already stored result. It is
	// never applied through Apply; see CheckRegrade.
	KindRegrade SubmissionKind = "regrade"
)

// GradeVote is one model instance's opinion on one question.
type GradeVote struct {
	ModelID       string   `json:"model_id"`
	NumericGrade  *float64 `json:"numeric_grade"`
	FeedbackText  string   `json:"feedback_text"`
	Succeeded     bool     `json:"succeeded"`
	FailureReason string   `json:"failure_reason,omitempty"`
}

// ConsensusVerdict is the outcome of evaluating the votes cast for a question.
// Grade and Feedback are nil whenever Agreement is NONE.
type ConsensusVerdict struct {
	QuestionID string      `json:"question_id"`
	Grade      *float64    `json:"grade"`
	Feedback   *string     `json:"feedback"`
	Agreement  Agreement   `json:"agreement"`
	Votes      []GradeVote `json:"votes"`
	DecidedAt  time.Time   `json:"decided_at"`
}

// Authoritative reports whether the verdict may be recorded as an AI grade.
func (v ConsensusVerdict) Authoritative() bool {
	return v.Agreement == AgreementFull || v.Agreement == AgreementMajority
}

// SuccessfulVotes counts the votes that produced a grade.
func (v ConsensusVerdict) SuccessfulVotes() int {
	count := 0
	for _, vote := range v.Votes {
		if vote.Succeeded {
			count++
		}
	}
	return count
}

// ResultKey identifies one (job, student, question) triple.
type ResultKey struct {
	JobID      string `json:"job_id"`
	StudentID  string `json:"student_id"`
	QuestionID string `json:"question_id"`
}

// OverrideRecord is an audit entry appended whenever a teacher changes a grade.
type OverrideRecord struct {
	Kind          SubmissionKind `json:"kind"`
	Grade         float64        `json:"grade"`
	Feedback      string         `json:"feedback"`
	Timestamp     time.Time      `json:"timestamp"`
	PriorGrade    *float64       `json:"prior_grade"`
	PriorFeedback *string        `json:"prior_feedback"`
	PriorStatus   Status         `json:"prior_status"`
	ActorID       uint           `json:"actor_id"`
}

// QuestionResult is the state owned by one (job, student, question) triple.
// It is changed only through StateMachine transitions.
type QuestionResult struct {
	Key             ResultKey
	Status          Status
	CurrentGrade    *float64
	CurrentFeedback *string
	MaxScore        float64
	Agreement       Agreement
	AIResponses     []GradeVote
	Overrides       []OverrideRecord
}

// ConsensusAchieved reports whether the initial AI verdict was authoritative.
func (r QuestionResult) ConsensusAchieved() bool {
	return r.Agreement == AgreementFull || r.Agreement == AgreementMajority
}

// TeacherOverride returns the most recent override, if any.
func (r QuestionResult) TeacherOverride() *OverrideRecord {
	if len(r.Overrides) == 0 {
		return nil
	}
	latest := r.Overrides[len(r.Overrides)-1]
	return &latest
}
