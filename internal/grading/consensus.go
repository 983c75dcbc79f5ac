package grading

import (
	"math"
	"time"
)

const (
	// DefaultGradeStep is the granularity grades are snapped to before comparison.
	DefaultGradeStep = 0.5
	// DefaultPanelSize is the number of model instances a question is sent to.
	DefaultPanelSize = 3
)

// EvaluatorConfig tunes the consensus rules.
type EvaluatorConfig struct {
	// GradeStep is the equality tolerance: two grades agree when they snap to
	// the same multiple of GradeStep.
	GradeStep float64
	// PanelSize is the baseline N used for the majority threshold, so that two
	// agreeing votes out of three count as a majority even if one call failed.
	PanelSize int
	Now       func() time.Time
}

// Evaluator turns the votes for one question into a ConsensusVerdict.
type Evaluator struct {
	step      float64
	panelSize int
	now       func() time.Time
}

// NewEvaluator constructs an evaluator, applying defaults for zero values.
func NewEvaluator(cfg EvaluatorConfig) *Evaluator {
	if cfg.GradeStep <= 0 {
		cfg.GradeStep = DefaultGradeStep
	}
	if cfg.PanelSize <= 0 {
		cfg.PanelSize = DefaultPanelSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Evaluator{
		step:      cfg.GradeStep,
		panelSize: cfg.PanelSize,
		now:       cfg.Now,
	}
}

// Snap rounds a grade to the evaluator's step.
func (e *Evaluator) Snap(grade float64) float64 {
	return math.Round(grade/e.step) * e.step
}

// Evaluate classifies the votes without an upper bound on the snapped grade.
func (e *Evaluator) Evaluate(questionID string, votes []GradeVote) ConsensusVerdict {
	return e.EvaluateWithin(questionID, 0, votes)
}

// EvaluateWithin classifies the votes. Snapped grades are clamped to
// [0, maxScore] when maxScore is positive, so a max score off the step grid
// still bounds the recorded grade. Feedback always comes from the first vote,
// in panel order, that carries the winning grade.
func (e *Evaluator) EvaluateWithin(questionID string, maxScore float64, votes []GradeVote) ConsensusVerdict {
	verdict := ConsensusVerdict{
		QuestionID: questionID,
		Agreement:  AgreementNone,
		Votes:      append([]GradeVote(nil), votes...),
		DecidedAt:  e.now(),
	}

	type bucket struct {
		grade    float64
		count    int
		feedback string
	}

	buckets := make([]*bucket, 0, len(votes))
	successes := 0
	for _, vote := range votes {
		if !vote.Succeeded || vote.NumericGrade == nil {
			continue
		}
		successes++
		snapped := math.Max(e.Snap(*vote.NumericGrade), 0)
		if maxScore > 0 {
			snapped = math.Min(snapped, maxScore)
		}

		var match *bucket
		for _, b := range buckets {
			if b.grade == snapped {
				match = b
				break
			}
		}
		if match == nil {
			match = &bucket{grade: snapped, feedback: vote.FeedbackText}
			buckets = append(buckets, match)
		}
		match.count++
	}

	if successes == 0 {
		return verdict
	}

	if successes >= 2 && len(buckets) == 1 {
		verdict.Agreement = AgreementFull
		verdict.Grade, verdict.Feedback = ptr(buckets[0].grade), ptr(buckets[0].feedback)
		return verdict
	}

	panel := e.panelSize
	if len(votes) > panel {
		panel = len(votes)
	}
	threshold := panel/2 + 1

	for _, b := range buckets {
		if b.count >= threshold {
			verdict.Agreement = AgreementMajority
			verdict.Grade, verdict.Feedback = ptr(b.grade), ptr(b.feedback)
			return verdict
		}
	}

	return verdict
}

func ptr[T any](v T) *T {
	return &v
}
