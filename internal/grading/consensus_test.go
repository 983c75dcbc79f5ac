package grading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func testEvaluator() *Evaluator {
	return NewEvaluator(EvaluatorConfig{Now: func() time.Time { return fixedNow }})
}

func ok(model string, grade float64, feedback string) GradeVote {
	return GradeVote{ModelID: model, NumericGrade: &grade, FeedbackText: feedback, Succeeded: true}
}

func failed(model, reason string) GradeVote {
	return GradeVote{ModelID: model, FailureReason: reason}
}

func TestEvaluateFullAgreement(t *testing.T) {
	verdict := testEvaluator().Evaluate("q1", []GradeVote{
		ok("m_1", 8, "clear working"),
		ok("m_2", 8, "good"),
		ok("m_3", 8, "fine"),
	})

	require.Equal(t, AgreementFull, verdict.Agreement)
	require.NotNil(t, verdict.Grade)
	require.Equal(t, 8.0, *verdict.Grade)
	require.Equal(t, "clear working", *verdict.Feedback)
	require.Len(t, verdict.Votes, 3)
	require.Equal(t, fixedNow, verdict.DecidedAt)
}

func TestEvaluateMajority(t *testing.T) {
	verdict := testEvaluator().Evaluate("q1", []GradeVote{
		ok("m_1", 8.5, "a"),
		ok("m_2", 8.5, "b"),
		ok("m_3", 8.0, "c"),
	})

	require.Equal(t, AgreementMajority, verdict.Agreement)
	require.Equal(t, 8.5, *verdict.Grade)
	require.Equal(t, "a", *verdict.Feedback)
}

func TestEvaluateMajorityFeedbackFollowsPanelOrder(t *testing.T) {
	verdict := testEvaluator().Evaluate("q1", []GradeVote{
		ok("m_1", 3, "outlier"),
		ok("m_2", 6, "second"),
		ok("m_3", 6, "third"),
	})

	require.Equal(t, AgreementMajority, verdict.Agreement)
	require.Equal(t, 6.0, *verdict.Grade)
	require.Equal(t, "second", *verdict.Feedback)
}

func TestEvaluateNoAgreement(t *testing.T) {
	verdict := testEvaluator().Evaluate("q1", []GradeVote{
		ok("m_1", 8.5, "a"),
		ok("m_2", 7.0, "b"),
		ok("m_3", 9.0, "c"),
	})

	require.Equal(t, AgreementNone, verdict.Agreement)
	require.Nil(t, verdict.Grade)
	require.Nil(t, verdict.Feedback)
	require.Len(t, verdict.Votes, 3)
	require.False(t, verdict.Authoritative())
}

func TestEvaluateTwoAgreeingWithFailedSibling(t *testing.T) {
	verdict := testEvaluator().Evaluate("q1", []GradeVote{
		ok("m_1", 8, "a"),
		ok("m_2", 8, "b"),
		failed("m_3", "timeout"),
	})

	require.Equal(t, AgreementFull, verdict.Agreement)
	require.Equal(t, 8.0, *verdict.Grade)
	require.Equal(t, 2, verdict.SuccessfulVotes())
}

func TestEvaluateSingleSuccessIsNotConsensus(t *testing.T) {
	verdict := testEvaluator().Evaluate("q1", []GradeVote{
		ok("m_1", 8, "a"),
		failed("m_2", "transport"),
		failed("m_3", "timeout"),
	})

	require.Equal(t, AgreementNone, verdict.Agreement)
	require.Nil(t, verdict.Grade)
}

func TestEvaluateAllFailed(t *testing.T) {
	verdict := testEvaluator().Evaluate("q1", []GradeVote{
		failed("m_1", "transport"),
		failed("m_2", "transport"),
		failed("m_3", "timeout"),
	})

	require.Equal(t, AgreementNone, verdict.Agreement)
	require.Nil(t, verdict.Grade)
	require.Nil(t, verdict.Feedback)
}

func TestEvaluateTwoSuccessesDisagreeing(t *testing.T) {
	verdict := testEvaluator().Evaluate("q1", []GradeVote{
		ok("m_1", 5, "a"),
		failed("m_2", "transport"),
		ok("m_3", 7, "c"),
	})

	require.Equal(t, AgreementNone, verdict.Agreement)
}

func TestEvaluateSnapsWithinStep(t *testing.T) {
	verdict := testEvaluator().Evaluate("q1", []GradeVote{
		ok("m_1", 7.9, "a"),
		ok("m_2", 8.1, "b"),
		ok("m_3", 8.0, "c"),
	})

	require.Equal(t, AgreementFull, verdict.Agreement)
	require.Equal(t, 8.0, *verdict.Grade)
}

func TestEvaluateLargerPanelThreshold(t *testing.T) {
	evaluator := NewEvaluator(EvaluatorConfig{PanelSize: 5, Now: func() time.Time { return fixedNow }})

	verdict := evaluator.Evaluate("q1", []GradeVote{
		ok("m_1", 4, "a"),
		ok("m_2", 4, "b"),
		ok("m_3", 5, "c"),
		failed("m_4", "timeout"),
		failed("m_5", "timeout"),
	})
	require.Equal(t, AgreementNone, verdict.Agreement)

	verdict = evaluator.Evaluate("q1", []GradeVote{
		ok("m_1", 4, "a"),
		ok("m_2", 4, "b"),
		ok("m_3", 4.1, "c"),
		ok("m_4", 6, "d"),
		failed("m_5", "timeout"),
	})
	require.Equal(t, AgreementMajority, verdict.Agreement)
	require.Equal(t, 4.0, *verdict.Grade)
}

func TestEvaluateWithinClampsToMaxScore(t *testing.T) {
	votes := []GradeVote{
		ok("m_1", 7.3, "full marks"),
		ok("m_2", 7.25, "b"),
		ok("m_3", 7.3, "c"),
	}

	unbounded := testEvaluator().Evaluate("q1", votes)
	require.Equal(t, 7.5, *unbounded.Grade)

	verdict := testEvaluator().EvaluateWithin("q1", 7.3, votes)
	require.Equal(t, AgreementFull, verdict.Agreement)
	require.Equal(t, 7.3, *verdict.Grade)
	require.Equal(t, "full marks", *verdict.Feedback)

	result := testStateMachine().Initial(testKey, verdict, 7.3)
	require.Equal(t, StatusAIGraded, result.Status)
	require.LessOrEqual(t, *result.CurrentGrade, result.MaxScore)

	_, err := testStateMachine().SubmitOverride(&result, Submission{Grade: *result.CurrentGrade, ActorID: 1})
	require.NoError(t, err)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	votes := []GradeVote{
		ok("m_1", 8.5, "a"),
		ok("m_2", 8.5, "b"),
		ok("m_3", 8.0, "c"),
	}
	evaluator := testEvaluator()

	first := evaluator.Evaluate("q1", votes)
	second := evaluator.Evaluate("q1", votes)
	require.Equal(t, first, second)
}

func TestEvaluateDoesNotAliasInput(t *testing.T) {
	votes := []GradeVote{ok("m_1", 8, "a"), ok("m_2", 8, "b")}
	verdict := testEvaluator().Evaluate("q1", votes)

	votes[0].FeedbackText = "mutated"
	require.Equal(t, "a", verdict.Votes[0].FeedbackText)
}
