package repository

import (
	"lingua_exam_backend/internal/model"

	"gorm.io/gorm"
)

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

func (r *ExamRepository) Create(exam *model.Exam) error {
	return r.DB.Create(exam).Error
}

func (r *ExamRepository) FindByID(id uint) (*model.Exam, error) {
	var exam model.Exam
	err := r.DB.First(&exam, id).Error
	return &exam, err
}

func (r *ExamRepository) Update(exam *model.Exam) error {
	return r.DB.Save(exam).Error
}

func (r *ExamRepository) Delete(id uint) error {
	return r.DB.Delete(&model.Exam{}, id).Error
}

// ListPublished returns published exams, optionally narrowed to one part type.
func (r *ExamRepository) ListPublished(partType model.PartType, page, pageSize int) ([]model.Exam, int64, error) {
	q := r.DB.Model(&model.Exam{}).Where("is_published = ?", true)
	if partType != "" {
		q = q.Where("part_type = ?", partType)
	}
	return r.list(q, page, pageSize)
}

// ListAll is the admin view, drafts included.
func (r *ExamRepository) ListAll(page, pageSize int) ([]model.Exam, int64, error) {
	return r.list(r.DB.Model(&model.Exam{}), page, pageSize)
}

func (r *ExamRepository) list(q *gorm.DB, page, pageSize int) ([]model.Exam, int64, error) {
	var exams []model.Exam
	var total int64

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&exams).Error
	return exams, total, err
}
