package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
)

// MutateFunc changes a loaded result in place. Returning an error aborts the
// transaction and leaves the stored row untouched.
type MutateFunc func(result *grading.QuestionResult) error

// QuestionResultRepository persists question results and their override history.
type QuestionResultRepository interface {
	LoadQuestionResult(ctx context.Context, key grading.ResultKey, ownerID uint) (grading.QuestionResult, error)
	SaveQuestionResult(ctx context.Context, result grading.QuestionResult) error
	ListByJob(ctx context.Context, jobID string) ([]grading.QuestionResult, error)
	ListByStudent(ctx context.Context, jobID, studentID string) ([]grading.QuestionResult, error)
	Mutate(ctx context.Context, key grading.ResultKey, ownerID uint, fn MutateFunc) (grading.QuestionResult, error)
}

type questionResultRepository struct {
	db *gorm.DB
}

// NewQuestionResultRepository constructs the question result repository.
func NewQuestionResultRepository(db *gorm.DB) QuestionResultRepository {
	return &questionResultRepository{db: db}
}

func keyQuery(db *gorm.DB, key grading.ResultKey, ownerID uint) *gorm.DB {
	query := db.Model(&models.QuestionResult{}).
		Where("question_results.job_id = ? AND question_results.student_id = ? AND question_results.question_id = ?",
			key.JobID, key.StudentID, key.QuestionID)
	if ownerID != 0 {
		query = query.
			Joins("JOIN assessment_jobs ON assessment_jobs.id = question_results.job_id").
			Where("assessment_jobs.owner_id = ?", ownerID)
	}
	return query
}

func preloadOverrides(db *gorm.DB) *gorm.DB {
	return db.Order("sequence ASC")
}

func (r *questionResultRepository) LoadQuestionResult(ctx context.Context, key grading.ResultKey, ownerID uint) (grading.QuestionResult, error) {
	var row models.QuestionResult
	err := keyQuery(r.db.WithContext(ctx), key, ownerID).
		Preload("Overrides", preloadOverrides).
		First(&row).Error
	if err != nil {
		return grading.QuestionResult{}, err
	}
	return row.ToDomain(), nil
}

// SaveQuestionResult stores the initial verdict for a key. An existing result
// is replaced only while grading.CheckRegrade allows it; override rows are
// never touched.
func (r *questionResultRepository) SaveQuestionResult(ctx context.Context, result grading.QuestionResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.QuestionResult
		err := keyQuery(tx, result.Key, 0).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&existing).Error
		switch {
		case err == nil:
			if err := tx.Where("result_id = ?", existing.ID).Order("sequence ASC").Find(&existing.Overrides).Error; err != nil {
				return err
			}
			if err := grading.CheckRegrade(existing.ToDomain()); err != nil {
				return err
			}
			existing.Apply(result)
			return tx.Omit(clause.Associations).Save(&existing).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			row := models.NewQuestionResult(result)
			return tx.Create(&row).Error
		default:
			return err
		}
	})
}

func (r *questionResultRepository) ListByJob(ctx context.Context, jobID string) ([]grading.QuestionResult, error) {
	return r.list(r.db.WithContext(ctx).Where("job_id = ?", jobID))
}

func (r *questionResultRepository) ListByStudent(ctx context.Context, jobID, studentID string) ([]grading.QuestionResult, error) {
	return r.list(r.db.WithContext(ctx).Where("job_id = ? AND student_id = ?", jobID, studentID))
}

func (r *questionResultRepository) list(query *gorm.DB) ([]grading.QuestionResult, error) {
	var rows []models.QuestionResult
	if err := query.
		Preload("Overrides", preloadOverrides).
		Order("student_id ASC, question_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	results := make([]grading.QuestionResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, row.ToDomain())
	}
	return results, nil
}

// Mutate loads the row under a write lock, applies fn and persists the
// result with every override record fn appended.
func (r *questionResultRepository) Mutate(ctx context.Context, key grading.ResultKey, ownerID uint, fn MutateFunc) (grading.QuestionResult, error) {
	var updated grading.QuestionResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.QuestionResult
		if err := keyQuery(tx, key, ownerID).
			Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "question_results"}}).
			First(&row).Error; err != nil {
			return err
		}
		if err := tx.Where("result_id = ?", row.ID).Order("sequence ASC").Find(&row.Overrides).Error; err != nil {
			return err
		}

		result := row.ToDomain()
		before := len(result.Overrides)
		if err := fn(&result); err != nil {
			return err
		}

		row.Apply(result)
		if err := tx.Omit(clause.Associations).Save(&row).Error; err != nil {
			return err
		}

		for i := before; i < len(result.Overrides); i++ {
			override := models.NewQuestionOverride(row.ID, i+1, result.Overrides[i])
			if err := tx.Create(&override).Error; err != nil {
				return err
			}
		}

		updated = result
		return nil
	})
	if err != nil {
		return grading.QuestionResult{}, err
	}
	return updated, nil
}
