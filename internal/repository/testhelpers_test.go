package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
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

func seedJob(t *testing.T, db *gorm.DB, id string, ownerID uint) models.AssessmentJob {
	t.Helper()
	job := models.AssessmentJob{
		ID:      id,
		OwnerID: ownerID,
		Name:    "Midterm " + id,
		Status:  models.JobStatusCreated,
		Questions: []models.QuestionSpec{
			{ID: "q1", Prompt: "Solve 2x = 4", MaxScore: 10},
			{ID: "q2", Prompt: "Prove it", MaxScore: 10},
		},
	}
	require.NoError(t, NewAssessmentRepository(db).CreateJob(context.Background(), &job))
	return job
}

func pendingResult(jobID, studentID, questionID string) grading.QuestionResult {
	fail := grading.GradeVote{ModelID: "m_1", FailureReason: "timeout"}
	return grading.QuestionResult{
		Key:         grading.ResultKey{JobID: jobID, StudentID: studentID, QuestionID: questionID},
		Status:      grading.StatusPendingReview,
		MaxScore:    10,
		Agreement:   grading.AgreementNone,
		AIResponses: []grading.GradeVote{fail},
	}
}

func gradedResult(jobID, studentID, questionID string, grade float64) grading.QuestionResult {
	feedback := "consensus feedback"
	return grading.QuestionResult{
		Key:             grading.ResultKey{JobID: jobID, StudentID: studentID, QuestionID: questionID},
		Status:          grading.StatusAIGraded,
		CurrentGrade:    &grade,
		CurrentFeedback: &feedback,
		MaxScore:        10,
		Agreement:       grading.AgreementFull,
		AIResponses: []grading.GradeVote{
			{ModelID: "m_1", NumericGrade: &grade, FeedbackText: feedback, Succeeded: true},
			{ModelID: "m_2", NumericGrade: &grade, FeedbackText: "other", Succeeded: true},
		},
	}
}
