package repository

import (
	"time"

	"lingua_exam_backend/internal/model"

	"gorm.io/gorm"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) Create(attempt *model.ExamAttempt) error {
	return r.DB.Create(attempt).Error
}

func (r *AttemptRepository) FindByID(id string) (*model.ExamAttempt, error) {
	var attempt model.ExamAttempt
	err := r.DB.Where("id = ?", id).First(&attempt).Error
	return &attempt, err
}

// SetPhase records a lifecycle transition; submitted and abandoned also stamp
// the end time.
func (r *AttemptRepository) SetPhase(id string, phase model.AttemptPhase) error {
	updates := map[string]interface{}{"phase": phase}
	if phase == model.AttemptSubmitted || phase == model.AttemptAbandoned {
		updates["ended_at"] = time.Now()
	}
	return r.DB.Model(&model.ExamAttempt{}).
		Where("id = ?", id).
		Updates(updates).
		Error
}

func (r *AttemptRepository) ListByUser(userID uint, page, pageSize int) ([]model.ExamAttempt, int64, error) {
	var attempts []model.ExamAttempt
	var total int64

	q := r.DB.Model(&model.ExamAttempt{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("started_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&attempts).Error
	return attempts, total, err
}

// AbandonStale marks in-progress attempts older than the cutoff abandoned and
// returns how many rows changed. Run at startup so sessions lost to a crash do
// not look live forever.
func (r *AttemptRepository) AbandonStale(cutoff time.Time) (int64, error) {
	res := r.DB.Model(&model.ExamAttempt{}).
		Where("phase = ? AND started_at < ?", model.AttemptInProgress, cutoff).
		Updates(map[string]interface{}{
			"phase":    model.AttemptAbandoned,
			"ended_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}
