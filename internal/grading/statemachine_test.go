package grading

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testStateMachine() *StateMachine {
	return NewStateMachine(func() time.Time { return fixedNow })
}

var testKey = ResultKey{JobID: "job-1", StudentID: "s-1", QuestionID: "q1"}

func pendingResult(t *testing.T) QuestionResult {
	t.Helper()
	verdict := testEvaluator().Evaluate("q1", []GradeVote{
		ok("m_1", 8.5, "a"),
		ok("m_2", 7.0, "b"),
		ok("m_3", 9.0, "c"),
	})
	result := testStateMachine().Initial(testKey, verdict, 10)
	require.Equal(t, StatusPendingReview, result.Status)
	return result
}

func aiGradedResult(t *testing.T) QuestionResult {
	t.Helper()
	verdict := testEvaluator().Evaluate("q1", []GradeVote{
		ok("m_1", 8, "solid"),
		ok("m_2", 8, "b"),
		ok("m_3", 8, "c"),
	})
	result := testStateMachine().Initial(testKey, verdict, 10)
	require.Equal(t, StatusAIGraded, result.Status)
	return result
}

func TestInitialAuthoritativeVerdict(t *testing.T) {
	result := aiGradedResult(t)

	require.Equal(t, 8.0, *result.CurrentGrade)
	require.Equal(t, "solid", *result.CurrentFeedback)
	require.Equal(t, AgreementFull, result.Agreement)
	require.True(t, result.ConsensusAchieved())
	require.Len(t, result.AIResponses, 3)
	require.Empty(t, result.Overrides)
}

func TestInitialWithoutConsensus(t *testing.T) {
	result := pendingResult(t)

	require.Nil(t, result.CurrentGrade)
	require.Nil(t, result.CurrentFeedback)
	require.False(t, result.ConsensusAchieved())
	require.Nil(t, result.TeacherOverride())
}

func TestSubmitPendingReview(t *testing.T) {
	result := pendingResult(t)

	record, err := testStateMachine().SubmitPendingReview(&result, Submission{Grade: 7.5, Feedback: "ok", ActorID: 42})
	require.NoError(t, err)

	require.Equal(t, StatusTeacherGraded, result.Status)
	require.Equal(t, 7.5, *result.CurrentGrade)
	require.Equal(t, "ok", *result.CurrentFeedback)
	require.Len(t, result.Overrides, 1)
	require.Equal(t, StatusPendingReview, record.PriorStatus)
	require.Nil(t, record.PriorGrade)
	require.Nil(t, record.PriorFeedback)
	require.Equal(t, uint(42), record.ActorID)
	require.Equal(t, KindPendingReview, record.Kind)
	require.Equal(t, fixedNow, record.Timestamp)
	require.Equal(t, record, *result.TeacherOverride())
}

func TestSubmitPendingReviewRejectsInvalidGrade(t *testing.T) {
	for _, grade := range []float64{-1, 10.5} {
		result := pendingResult(t)
		_, err := testStateMachine().SubmitPendingReview(&result, Submission{Grade: grade, Feedback: "ok"})

		require.Error(t, err)
		require.True(t, errors.Is(err, ErrValidation))
		var validationErr *ValidationError
		require.True(t, errors.As(err, &validationErr))
		require.Equal(t, "grade", validationErr.Field)
		require.Equal(t, StatusPendingReview, result.Status)
		require.Nil(t, result.CurrentGrade)
		require.Empty(t, result.Overrides)
	}
}

func TestSubmitPendingReviewRequiresFeedback(t *testing.T) {
	result := pendingResult(t)
	_, err := testStateMachine().SubmitPendingReview(&result, Submission{Grade: 5, Feedback: "   "})

	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, StatusPendingReview, result.Status)
	require.Empty(t, result.Overrides)
}

func TestSubmitPendingReviewFromWrongState(t *testing.T) {
	result := aiGradedResult(t)
	_, err := testStateMachine().SubmitPendingReview(&result, Submission{Grade: 5, Feedback: "ok"})

	require.ErrorIs(t, err, ErrInvalidStateTransition)
	require.Equal(t, StatusAIGraded, result.Status)
	require.Equal(t, 8.0, *result.CurrentGrade)
	require.Empty(t, result.Overrides)
}

func TestStateCheckPrecedesValidation(t *testing.T) {
	result := aiGradedResult(t)
	_, err := testStateMachine().SubmitPendingReview(&result, Submission{Grade: -1})

	require.ErrorIs(t, err, ErrInvalidStateTransition)
	require.NotErrorIs(t, err, ErrValidation)
}

func TestSubmitOverrideFromAIGraded(t *testing.T) {
	result := aiGradedResult(t)

	record, err := testStateMachine().SubmitOverride(&result, Submission{Grade: 6, Feedback: "missed a step", ActorID: 7})
	require.NoError(t, err)

	require.Equal(t, StatusTeacherGraded, result.Status)
	require.Equal(t, 6.0, *result.CurrentGrade)
	require.Equal(t, "missed a step", *result.CurrentFeedback)
	require.Equal(t, StatusAIGraded, record.PriorStatus)
	require.Equal(t, 8.0, *record.PriorGrade)
	require.Equal(t, "solid", *record.PriorFeedback)
	require.Len(t, result.AIResponses, 3)
}

func TestSubmitOverrideKeepsFeedbackWhenEmpty(t *testing.T) {
	result := aiGradedResult(t)

	_, err := testStateMachine().SubmitOverride(&result, Submission{Grade: 9})
	require.NoError(t, err)
	require.Equal(t, "solid", *result.CurrentFeedback)
}

func TestSubmitOverrideRepeatedAppendsHistory(t *testing.T) {
	result := pendingResult(t)
	machine := testStateMachine()

	_, err := machine.SubmitPendingReview(&result, Submission{Grade: 5, Feedback: "first"})
	require.NoError(t, err)
	_, err = machine.SubmitOverride(&result, Submission{Grade: 6, Feedback: "second"})
	require.NoError(t, err)
	_, err = machine.SubmitOverride(&result, Submission{Grade: 7, Feedback: "third"})
	require.NoError(t, err)

	require.Len(t, result.Overrides, 3)
	require.Equal(t, StatusPendingReview, result.Overrides[0].PriorStatus)
	require.Equal(t, StatusTeacherGraded, result.Overrides[1].PriorStatus)
	require.Equal(t, 5.0, *result.Overrides[1].PriorGrade)
	require.Equal(t, 6.0, *result.Overrides[2].PriorGrade)
	require.Equal(t, 7.0, *result.CurrentGrade)
}

func TestSubmitOverrideFromPendingIsRejected(t *testing.T) {
	result := pendingResult(t)
	_, err := testStateMachine().SubmitOverride(&result, Submission{Grade: 5, Feedback: "ok"})

	var transitionErr *TransitionError
	require.True(t, errors.As(err, &transitionErr))
	require.Equal(t, StatusPendingReview, transitionErr.From)
	require.Equal(t, KindOverride, transitionErr.Kind)
}

func TestCheckRegrade(t *testing.T) {
	machine := testStateMachine()
	require.NoError(t, CheckRegrade(pendingResult(t)))

	result := aiGradedResult(t)
	require.NoError(t, CheckRegrade(result))

	_, err := machine.SubmitOverride(&result, Submission{Grade: 7, ActorID: 1})
	require.NoError(t, err)

	err = CheckRegrade(result)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
	var transitionErr *TransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, KindRegrade, transitionErr.Kind)
}

func TestApplyRejectsUnknownKind(t *testing.T) {
	result := pendingResult(t)
	_, err := testStateMachine().Apply(&result, SubmissionKind("regrade"), Submission{Grade: 5, Feedback: "ok"})

	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, StatusPendingReview, result.Status)
}

func TestPriorValuesAreCopies(t *testing.T) {
	result := aiGradedResult(t)
	record, err := testStateMachine().SubmitOverride(&result, Submission{Grade: 3, Feedback: "x"})
	require.NoError(t, err)

	*result.CurrentGrade = 1
	require.Equal(t, 8.0, *record.PriorGrade)
	require.Equal(t, 8.0, *result.Overrides[0].PriorGrade)
}
