package grading

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Submission carries a teacher's grade for one question.
type Submission struct {
	Grade    float64
	Feedback string
	ActorID  uint
}

// StateMachine owns the legal transitions of a QuestionResult.
type StateMachine struct {
	now func() time.Time
}

// NewStateMachine constructs a state machine using the supplied clock.
func NewStateMachine(now func() time.Time) *StateMachine {
	if now == nil {
		now = time.Now
	}
	return &StateMachine{now: now}
}

// Initial is the only entry transition: an authoritative verdict becomes
// AI_GRADED, anything else waits for a teacher in PENDING_REVIEW with no AI
// grade or feedback attached.
func (m *StateMachine) Initial(key ResultKey, verdict ConsensusVerdict, maxScore float64) QuestionResult {
	result := QuestionResult{
		Key:         key,
		Status:      StatusPendingReview,
		MaxScore:    maxScore,
		Agreement:   verdict.Agreement,
		AIResponses: append([]GradeVote(nil), verdict.Votes...),
	}

	if verdict.Authoritative() {
		result.Status = StatusAIGraded
		result.CurrentGrade = copyPtr(verdict.Grade)
		result.CurrentFeedback = copyPtr(verdict.Feedback)
	}

	return result
}

// Apply dispatches to the transition matching kind.
func (m *StateMachine) Apply(result *QuestionResult, kind SubmissionKind, sub Submission) (OverrideRecord, error) {
	switch kind {
	case KindPendingReview:
		return m.SubmitPendingReview(result, sub)
	case KindOverride:
		return m.SubmitOverride(result, sub)
	default:
		return OverrideRecord{}, &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown submission kind %q", kind)}
	}
}

// SubmitPendingReview resolves a PENDING_REVIEW question. Feedback is required.
func (m *StateMachine) SubmitPendingReview(result *QuestionResult, sub Submission) (OverrideRecord, error) {
	if result.Status != StatusPendingReview {
		return OverrideRecord{}, &TransitionError{Kind: KindPendingReview, From: result.Status}
	}
	if err := validateGrade(sub.Grade, result.MaxScore); err != nil {
		return OverrideRecord{}, err
	}
	feedback := strings.TrimSpace(sub.Feedback)
	if feedback == "" {
		return OverrideRecord{}, &ValidationError{Field: "feedback", Message: "feedback is required"}
	}

	return m.commit(result, KindPendingReview, sub.Grade, feedback, sub.ActorID), nil
}

// SubmitOverride revises an AI_GRADED or TEACHER_GRADED question; the result
// always ends in TEACHER_GRADED. Empty feedback keeps the current feedback.
func (m *StateMachine) SubmitOverride(result *QuestionResult, sub Submission) (OverrideRecord, error) {
	if result.Status != StatusAIGraded && result.Status != StatusTeacherGraded {
		return OverrideRecord{}, &TransitionError{Kind: KindOverride, From: result.Status}
	}
	if err := validateGrade(sub.Grade, result.MaxScore); err != nil {
		return OverrideRecord{}, err
	}

	feedback := strings.TrimSpace(sub.Feedback)
	if feedback == "" && result.CurrentFeedback != nil {
		feedback = *result.CurrentFeedback
	}

	return m.commit(result, KindOverride, sub.Grade, feedback, sub.ActorID), nil
}

// CheckRegrade reports whether a stored result may be replaced by a new
// Initial result. A question a teacher has graded keeps its grade and history.
func CheckRegrade(existing QuestionResult) error {
	if existing.Status == StatusTeacherGraded || len(existing.Overrides) > 0 {
		return &TransitionError{Kind: KindRegrade, From: existing.Status}
	}
	return nil
}

func (m *StateMachine) commit(result *QuestionResult, kind SubmissionKind, grade float64, feedback string, actorID uint) OverrideRecord {
	record := OverrideRecord{
		Kind:          kind,
		Grade:         grade,
		Feedback:      feedback,
		Timestamp:     m.now().UTC(),
		PriorGrade:    copyPtr(result.CurrentGrade),
		PriorFeedback: copyPtr(result.CurrentFeedback),
		PriorStatus:   result.Status,
		ActorID:       actorID,
	}

	result.Status = StatusTeacherGraded
	result.CurrentGrade = &grade
	result.CurrentFeedback = &feedback
	result.Overrides = append(result.Overrides, record)

	return record
}

func validateGrade(grade, maxScore float64) error {
	if math.IsNaN(grade) || math.IsInf(grade, 0) {
		return &ValidationError{Field: "grade", Message: "grade must be a finite number"}
	}
	if grade < 0 || grade > maxScore {
		return &ValidationError{Field: "grade", Message: fmt.Sprintf("grade must be between 0 and %g", maxScore)}
	}
	return nil
}

func copyPtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}
