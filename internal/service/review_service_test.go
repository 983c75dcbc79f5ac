package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
)

func newTestReviewService(f fixture) ReviewService {
	return NewReviewService(ReviewServiceConfig{
		Assessments:  f.assessments,
		Results:      f.results,
		StateMachine: grading.NewStateMachine(testClock),
		Locker:       NewLocalKeyLocker(),
		Validator:    testValidator(),
		Activity:     f.activity,
		Notifier:     f.notifier,
		Logger:       testLogger(),
		Now:          testClock,
	})
}

func grade(v float64) *float64 {
	return &v
}

// seedGradedStudent leaves q1 AI_GRADED at 8 and q2 PENDING_REVIEW.
func seedGradedStudent(t *testing.T, f fixture) grading.ResultKey {
	t.Helper()
	job := f.seedJob(t, "job-1", 1, "s-1")
	require.NoError(t, f.assessments.UpdateJobStatus(context.Background(), job.ID, models.JobStatusPendingReview))

	evaluator := grading.NewEvaluator(grading.EvaluatorConfig{Now: testClock})
	machine := grading.NewStateMachine(testClock)
	vote := func(id string, g float64) grading.GradeVote {
		return grading.GradeVote{ModelID: id, NumericGrade: grade(g), FeedbackText: "from " + id, Succeeded: true}
	}

	agreed := evaluator.Evaluate("q1", []grading.GradeVote{vote("m_1", 8), vote("m_2", 8), vote("m_3", 8)})
	f.seedResult(t, machine.Initial(grading.ResultKey{JobID: "job-1", StudentID: "s-1", QuestionID: "q1"}, agreed, 10))

	split := evaluator.Evaluate("q2", []grading.GradeVote{vote("m_1", 8.5), vote("m_2", 7), vote("m_3", 9)})
	pendingKey := grading.ResultKey{JobID: "job-1", StudentID: "s-1", QuestionID: "q2"}
	f.seedResult(t, machine.Initial(pendingKey, split, 10))
	return pendingKey
}

func TestReviewServiceResolvesPendingQuestion(t *testing.T) {
	f := newFixture(t)
	key := seedGradedStudent(t, f)
	svc := newTestReviewService(f)
	scope := Scope{UserID: 1, Role: "teacher"}

	resp, err := svc.ApplyTeacherGrade(context.Background(), scope, key, grading.KindPendingReview, dto.TeacherGradeRequest{Grade: grade(7.5), Feedback: "ok"})
	require.NoError(t, err)

	require.Equal(t, grading.StatusTeacherGraded, resp.Question.Status)
	require.Equal(t, 7.5, *resp.Question.CurrentGrade)
	require.Equal(t, "ok", *resp.Question.CurrentFeedback)
	require.Len(t, resp.Question.Overrides, 1)
	require.Len(t, resp.Question.AIResponses, 3)
	require.Equal(t, grading.StatusPendingReview, resp.Record.PriorStatus)
	require.Equal(t, uint(1), resp.Record.ActorID)

	require.Equal(t, grading.StatusAIGraded, resp.Summary.Status)
	require.Equal(t, 15.5, resp.Summary.TotalScore)
	require.Equal(t, 77.5, *resp.Summary.Percentage)

	events := f.notifier.all()
	require.Len(t, events, 1)
	require.Equal(t, "q2", events[0].QuestionID)
	require.Equal(t, ReportReasonTeacherGrade, events[0].Reason)
	require.Contains(t, f.activity.actions(), ActionQuestionReviewed)

	job, err := f.assessments.GetJob(context.Background(), "job-1", 0)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, job.Status)
}

func TestReviewServiceRejectsInvalidGradeWithoutMutation(t *testing.T) {
	f := newFixture(t)
	key := seedGradedStudent(t, f)
	svc := newTestReviewService(f)

	_, err := svc.ApplyTeacherGrade(context.Background(), Scope{UserID: 1}, key, grading.KindPendingReview, dto.TeacherGradeRequest{Grade: grade(-1), Feedback: "ok"})
	require.ErrorIs(t, err, grading.ErrValidation)

	stored, err := f.results.LoadQuestionResult(context.Background(), key, 1)
	require.NoError(t, err)
	require.Equal(t, grading.StatusPendingReview, stored.Status)
	require.Nil(t, stored.CurrentGrade)
	require.Empty(t, stored.Overrides)
	require.Empty(t, f.notifier.all())
}

func TestReviewServiceSanitizesFeedback(t *testing.T) {
	f := newFixture(t)
	key := seedGradedStudent(t, f)
	svc := newTestReviewService(f)

	_, err := svc.ApplyTeacherGrade(context.Background(), Scope{UserID: 1}, key, grading.KindPendingReview, dto.TeacherGradeRequest{Grade: grade(5), Feedback: "<script>x</script>"})
	require.ErrorIs(t, err, grading.ErrValidation)

	resp, err := svc.ApplyTeacherGrade(context.Background(), Scope{UserID: 1}, key, grading.KindPendingReview, dto.TeacherGradeRequest{Grade: grade(5), Feedback: "<b>good</b> work"})
	require.NoError(t, err)
	require.Equal(t, "good work", *resp.Question.CurrentFeedback)
}

func TestReviewServiceStateErrors(t *testing.T) {
	f := newFixture(t)
	pending := seedGradedStudent(t, f)
	graded := grading.ResultKey{JobID: "job-1", StudentID: "s-1", QuestionID: "q1"}
	svc := newTestReviewService(f)
	ctx := context.Background()
	scope := Scope{UserID: 1}

	_, err := svc.ApplyTeacherGrade(ctx, scope, pending, grading.KindOverride, dto.TeacherGradeRequest{Grade: grade(5), Feedback: "x"})
	require.ErrorIs(t, err, grading.ErrInvalidStateTransition)

	_, err = svc.ApplyTeacherGrade(ctx, scope, graded, grading.KindPendingReview, dto.TeacherGradeRequest{Grade: grade(5), Feedback: "x"})
	require.ErrorIs(t, err, grading.ErrInvalidStateTransition)

	resp, err := svc.ApplyTeacherGrade(ctx, scope, graded, grading.KindOverride, dto.TeacherGradeRequest{Grade: grade(6)})
	require.NoError(t, err)
	require.Equal(t, grading.StatusTeacherGraded, resp.Question.Status)
	require.Equal(t, "from m_1", *resp.Question.CurrentFeedback)
	require.Equal(t, 8.0, *resp.Record.PriorGrade)

	_, err = svc.ApplyTeacherGrade(ctx, Scope{UserID: 7}, graded, grading.KindOverride, dto.TeacherGradeRequest{Grade: grade(6)})
	require.ErrorIs(t, err, ErrJobNotFound)

	_, err = svc.ApplyTeacherGrade(ctx, scope, grading.ResultKey{JobID: "job-1", StudentID: "s-2", QuestionID: "q1"}, grading.KindOverride, dto.TeacherGradeRequest{Grade: grade(6)})
	require.ErrorIs(t, err, ErrResultNotFound)

	_, err = svc.ApplyTeacherGrade(ctx, scope, grading.ResultKey{JobID: "job-1", StudentID: "s-1", QuestionID: "q7"}, grading.KindOverride, dto.TeacherGradeRequest{Grade: grade(6)})
	require.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestReviewServiceConcurrentOverridesSerialize(t *testing.T) {
	f := newFixture(t)
	seedGradedStudent(t, f)
	svc := newTestReviewService(f)
	key := grading.ResultKey{JobID: "job-1", StudentID: "s-1", QuestionID: "q1"}

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.ApplyTeacherGrade(context.Background(), Scope{UserID: uint(i + 1), Role: "admin"}, key, grading.KindOverride,
				dto.TeacherGradeRequest{Grade: grade(float64(i)), Feedback: fmt.Sprintf("pass %d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := f.results.LoadQuestionResult(context.Background(), key, 0)
	require.NoError(t, err)
	require.Len(t, stored.Overrides, 6)
	require.Equal(t, grading.StatusAIGraded, stored.Overrides[0].PriorStatus)
	for i := 1; i < len(stored.Overrides); i++ {
		require.Equal(t, grading.StatusTeacherGraded, stored.Overrides[i].PriorStatus)
		require.Equal(t, stored.Overrides[i-1].Grade, *stored.Overrides[i].PriorGrade)
	}
	require.Equal(t, stored.Overrides[5].Grade, *stored.CurrentGrade)
}

func TestReviewServiceGetReviewData(t *testing.T) {
	f := newFixture(t)
	seedGradedStudent(t, f)
	svc := newTestReviewService(f)

	data, err := svc.GetReviewData(context.Background(), Scope{UserID: 1}, "job-1", "s-1")
	require.NoError(t, err)
	require.Equal(t, "s-1", data.Student.StudentID)
	require.Len(t, data.AIGraded, 1)
	require.Equal(t, "q1", data.AIGraded[0].QuestionID)
	require.True(t, data.AIGraded[0].ConsensusAchieved)
	require.Equal(t, "agree", data.AIGraded[0].Prompt)
	require.Len(t, data.AIGraded[0].AIResponses, 3)

	require.Len(t, data.Pending, 1)
	require.Equal(t, "q2", data.Pending[0].QuestionID)
	require.Equal(t, "split", data.Pending[0].Prompt)
	require.Equal(t, grading.StatusPendingReview, data.Pending[0].Status)

	raw, err := json.Marshal(data.Pending[0])
	require.NoError(t, err)
	var pending map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &pending))
	for _, field := range []string{"ai_responses", "agreement", "consensus_achieved", "current_grade", "current_feedback"} {
		require.NotContains(t, pending, field)
	}
	require.Equal(t, grading.StatusPendingReview, data.Summary.Status)
	require.Equal(t, 1, data.Summary.PendingCount)

	_, err = svc.GetReviewData(context.Background(), Scope{UserID: 1}, "job-1", "nobody")
	require.ErrorIs(t, err, ErrStudentNotFound)
}

func TestReviewServiceRegenerateReport(t *testing.T) {
	f := newFixture(t)
	seedGradedStudent(t, f)
	svc := newTestReviewService(f)

	resp, err := svc.RegenerateReport(context.Background(), Scope{UserID: 1}, "job-1", "s-1", dto.ReportRequest{})
	require.NoError(t, err)
	require.Equal(t, grading.StatusPendingReview, resp.Status)
	require.Equal(t, 8.0, resp.TotalScore)
	require.Equal(t, 20.0, resp.MaxScore)
	require.Equal(t, testClock(), resp.RequestedAt)

	events := f.notifier.all()
	require.Len(t, events, 1)
	require.Equal(t, ReportReasonManual, events[0].Reason)
	require.Contains(t, f.activity.actions(), ActionReportRegenerating)
}
