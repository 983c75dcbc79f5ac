package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/repository"
	"github.com/noah-isme/gema-grading-api/pkg/ai"
)

var testClock = func() time.Time { return time.Date(2025, 5, 20, 8, 30, 0, 0, time.UTC) }

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.AssessmentJob{},
		&models.Student{},
		&models.QuestionResult{},
		&models.QuestionOverride{},
		&models.ActivityLog{},
	))
	return db
}

type fixture struct {
	db          *gorm.DB
	assessments repository.AssessmentRepository
	results     repository.QuestionResultRepository
	activity    *memoryActivity
	notifier    *recordingNotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := setupServiceDB(t)
	return fixture{
		db:          db,
		assessments: repository.NewAssessmentRepository(db),
		results:     repository.NewQuestionResultRepository(db),
		activity:    &memoryActivity{},
		notifier:    &recordingNotifier{},
	}
}

func (f fixture) seedJob(t *testing.T, id string, ownerID uint, students ...string) models.AssessmentJob {
	t.Helper()
	ctx := context.Background()
	job := models.AssessmentJob{
		ID:      id,
		OwnerID: ownerID,
		Name:    "Physics quiz",
		Status:  models.JobStatusCreated,
		Questions: []models.QuestionSpec{
			{ID: "q1", Prompt: "agree", MaxScore: 10},
			{ID: "q2", Prompt: "split", MaxScore: 10},
		},
	}
	require.NoError(t, f.assessments.CreateJob(ctx, &job))
	for _, student := range students {
		require.NoError(t, f.assessments.UpsertStudent(ctx, &models.Student{JobID: id, StudentID: student, Name: "Student " + student}))
	}
	return job
}

func (f fixture) seedResult(t *testing.T, result grading.QuestionResult) {
	t.Helper()
	require.NoError(t, f.results.SaveQuestionResult(context.Background(), result))
}

type memoryActivity struct {
	mu      sync.Mutex
	entries []ActivityEntry
}

func (m *memoryActivity) Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return dto.ActivityResponse{Action: entry.Action, JobID: entry.JobID}, nil
}

func (m *memoryActivity) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]string, 0, len(m.entries))
	for _, entry := range m.entries {
		actions = append(actions, entry.Action)
	}
	return actions
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []ReportEvent
}

func (r *recordingNotifier) NotifyStale(ctx context.Context, event ReportEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) all() []ReportEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ReportEvent(nil), r.events...)
}

// scriptedDispatcher answers by prompt: "agree" yields three matching votes,
// "split" three different ones, "block" waits for the caller to give up and
// anything else fails every call.
type scriptedDispatcher struct {
	mu    sync.Mutex
	calls int
}

func (d *scriptedDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *scriptedDispatcher) Dispatch(ctx context.Context, req ai.GradeRequest) ([]grading.GradeVote, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()

	vote := func(id string, grade float64) grading.GradeVote {
		return grading.GradeVote{ModelID: id, NumericGrade: &grade, FeedbackText: "from " + id, Succeeded: true}
	}

	switch req.Prompt {
	case "agree":
		return []grading.GradeVote{vote("m_1", 8), vote("m_2", 8), vote("m_3", 8)}, nil
	case "split":
		return []grading.GradeVote{vote("m_1", 8.5), vote("m_2", 7), vote("m_3", 9)}, nil
	case "majority":
		return []grading.GradeVote{vote("m_1", 8.5), vote("m_2", 8.5), vote("m_3", 8)}, nil
	case "block":
		<-ctx.Done()
		return nil, ctx.Err()
	default:
		failed := grading.GradeVote{ModelID: "m_1", FailureReason: "transport"}
		return []grading.GradeVote{failed, failed, failed}, grading.ErrDispatchExhausted
	}
}
