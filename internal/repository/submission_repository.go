package repository

import (
	"time"

	"lingua_exam_backend/internal/model"

	"gorm.io/gorm"
)

type SubmissionRepository struct {
	DB *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: db}
}

// Create persists a submission and flips its attempt to submitted in the same
// transaction, so a crash between the two writes cannot leave a submitted
// attempt without its payload.
func (r *SubmissionRepository) Create(sub *model.ExamSubmission) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sub).Error; err != nil {
			return err
		}
		return tx.Model(&model.ExamAttempt{}).
			Where("id = ?", sub.AttemptID).
			Updates(map[string]interface{}{
				"phase":    model.AttemptSubmitted,
				"ended_at": sub.SubmittedAt,
			}).Error
	})
}

func (r *SubmissionRepository) FindByID(id string) (*model.ExamSubmission, error) {
	var sub model.ExamSubmission
	err := r.DB.Where("id = ?", id).First(&sub).Error
	return &sub, err
}

func (r *SubmissionRepository) FindByAttempt(attemptID string) (*model.ExamSubmission, error) {
	var sub model.ExamSubmission
	err := r.DB.Where("attempt_id = ?", attemptID).First(&sub).Error
	return &sub, err
}

func (r *SubmissionRepository) ListByUser(userID uint, page, pageSize int) ([]model.ExamSubmission, int64, error) {
	q := r.DB.Model(&model.ExamSubmission{}).Where("user_id = ?", userID)
	return r.list(q, page, pageSize)
}

// ListForReview returns writing and speaking submissions that have no review
// score yet, oldest first so the queue drains fairly.
func (r *SubmissionRepository) ListForReview(partType model.PartType, page, pageSize int) ([]model.ExamSubmission, int64, error) {
	q := r.DB.Model(&model.ExamSubmission{}).
		Where("part_type IN ?", []model.PartType{model.PartWriting, model.PartSpeaking}).
		Where("review_score IS NULL")
	if partType != "" {
		q = q.Where("part_type = ?", partType)
	}

	var subs []model.ExamSubmission
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("submitted_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&subs).Error
	return subs, total, err
}

func (r *SubmissionRepository) SaveReview(id string, reviewerID uint, score int, note string) error {
	now := time.Now()
	return r.DB.Model(&model.ExamSubmission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"review_score": score,
			"reviewer_id":  reviewerID,
			"reviewed_at":  now,
			"review_note":  note,
		}).Error
}

func (r *SubmissionRepository) list(q *gorm.DB, page, pageSize int) ([]model.ExamSubmission, int64, error) {
	var subs []model.ExamSubmission
	var total int64

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("submitted_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&subs).Error
	return subs, total, err
}
