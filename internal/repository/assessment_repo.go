package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// AssessmentRepository persists assessment jobs and their students.
// An ownerID of zero disables owner scoping.
type AssessmentRepository interface {
	CreateJob(ctx context.Context, job *models.AssessmentJob) error
	GetJob(ctx context.Context, jobID string, ownerID uint) (models.AssessmentJob, error)
	ListJobs(ctx context.Context, ownerID uint) ([]models.AssessmentJob, error)
	UpdateJobStatus(ctx context.Context, jobID, status string) error
	DeleteJob(ctx context.Context, jobID string, ownerID uint) error
	UpsertStudent(ctx context.Context, student *models.Student) error
	GetStudent(ctx context.Context, jobID, studentID string, ownerID uint) (models.Student, error)
	ListStudentsForJob(ctx context.Context, jobID string) ([]models.Student, error)
}

type assessmentRepository struct {
	db *gorm.DB
}

// NewAssessmentRepository constructs the assessment repository.
func NewAssessmentRepository(db *gorm.DB) AssessmentRepository {
	return &assessmentRepository{db: db}
}

func scopeOwner(query *gorm.DB, ownerID uint) *gorm.DB {
	if ownerID == 0 {
		return query
	}
	return query.Where("owner_id = ?", ownerID)
}

func (r *assessmentRepository) CreateJob(ctx context.Context, job *models.AssessmentJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *assessmentRepository) GetJob(ctx context.Context, jobID string, ownerID uint) (models.AssessmentJob, error) {
	var job models.AssessmentJob
	err := scopeOwner(r.db.WithContext(ctx), ownerID).
		Where("id = ?", jobID).
		First(&job).Error
	return job, err
}

func (r *assessmentRepository) ListJobs(ctx context.Context, ownerID uint) ([]models.AssessmentJob, error) {
	var jobs []models.AssessmentJob
	err := scopeOwner(r.db.WithContext(ctx).Model(&models.AssessmentJob{}), ownerID).
		Order("created_at DESC").
		Find(&jobs).Error
	return jobs, err
}

func (r *assessmentRepository) UpdateJobStatus(ctx context.Context, jobID, status string) error {
	result := r.db.WithContext(ctx).
		Model(&models.AssessmentJob{}).
		Where("id = ?", jobID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteJob removes the job, its students, its results and their overrides.
func (r *assessmentRepository) DeleteJob(ctx context.Context, jobID string, ownerID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.AssessmentJob
		if err := scopeOwner(tx, ownerID).Where("id = ?", jobID).First(&job).Error; err != nil {
			return err
		}

		resultIDs := tx.Model(&models.QuestionResult{}).Select("id").Where("job_id = ?", jobID)
		if err := tx.Where("result_id IN (?)", resultIDs).Delete(&models.QuestionOverride{}).Error; err != nil {
			return err
		}
		if err := tx.Where("job_id = ?", jobID).Delete(&models.QuestionResult{}).Error; err != nil {
			return err
		}
		if err := tx.Where("job_id = ?", jobID).Delete(&models.Student{}).Error; err != nil {
			return err
		}
		return tx.Delete(&job).Error
	})
}

func (r *assessmentRepository) UpsertStudent(ctx context.Context, student *models.Student) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}, {Name: "student_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
	}).Create(student).Error
}

func (r *assessmentRepository) GetStudent(ctx context.Context, jobID, studentID string, ownerID uint) (models.Student, error) {
	var student models.Student
	query := r.db.WithContext(ctx).
		Model(&models.Student{}).
		Where("students.job_id = ? AND students.student_id = ?", jobID, studentID)
	if ownerID != 0 {
		query = query.
			Joins("JOIN assessment_jobs ON assessment_jobs.id = students.job_id").
			Where("assessment_jobs.owner_id = ?", ownerID)
	}
	err := query.First(&student).Error
	return student, err
}

func (r *assessmentRepository) ListStudentsForJob(ctx context.Context, jobID string) ([]models.Student, error) {
	var students []models.Student
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("student_id ASC").
		Find(&students).Error
	return students, err
}
