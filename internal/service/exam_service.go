package service

import (
	"encoding/json"
	"errors"
	"time"

	"lingua_exam_backend/internal/model"
	"lingua_exam_backend/internal/repository"
	"lingua_exam_backend/internal/util"

	"gorm.io/gorm"
)

type ExamService struct {
	ExamRepo *repository.ExamRepository
}

func NewExamService(examRepo *repository.ExamRepository) *ExamService {
	return &ExamService{ExamRepo: examRepo}
}

// ExamView is the candidate-facing exam payload: metadata plus the redacted
// definition.
type ExamView struct {
	ID          uint            `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	PartType    model.PartType  `json:"partType"`
	TimeLimit   int             `json:"time_limit"`
	Content     json.RawMessage `json:"content"`
}

// GetForCandidate serves a published exam with answer keys stripped. A stored
// definition that fails to resolve renders the exam unavailable rather than
// crashing the fetch.
func (s *ExamService) GetForCandidate(id uint) (*ExamView, error) {
	exam, err := s.ExamRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}
	if !exam.IsPublished {
		return nil, util.ErrExamNotPublished
	}

	def, err := model.ParseDefinition(exam.PartType, exam.Content)
	if err != nil {
		return nil, err
	}
	content, err := def.CandidateView()
	if err != nil {
		return nil, err
	}

	return &ExamView{
		ID:          exam.ID,
		Title:       exam.Title,
		Description: exam.Description,
		PartType:    exam.PartType,
		TimeLimit:   exam.TimeLimit,
		Content:     content,
	}, nil
}

func (s *ExamService) ListPublished(partType model.PartType, page, pageSize int) ([]model.Exam, int64, error) {
	exams, total, err := s.ExamRepo.ListPublished(partType, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	// listings never carry definitions; candidates fetch them per exam
	for i := range exams {
		exams[i].Content = nil
	}
	return exams, total, err
}

// Create validates the definition against the part type before the exam is
// stored, so a broken authoring payload is rejected up front.
func (s *ExamService) Create(exam *model.Exam, creatorID uint) error {
	if _, err := model.ParseDefinition(exam.PartType, exam.Content); err != nil {
		return err
	}
	exam.CreatorID = creatorID
	exam.IsPublished = false
	return s.ExamRepo.Create(exam)
}

func (s *ExamService) Update(id uint, updated *model.Exam) (*model.Exam, error) {
	exam, err := s.ExamRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}

	if updated.Content != nil {
		pt := exam.PartType
		if updated.PartType != "" {
			pt = updated.PartType
		}
		if _, err := model.ParseDefinition(pt, updated.Content); err != nil {
			return nil, err
		}
		exam.Content = updated.Content
	}
	if updated.Title != "" {
		exam.Title = updated.Title
	}
	if updated.Description != "" {
		exam.Description = updated.Description
	}
	if updated.PartType != "" {
		exam.PartType = updated.PartType
	}
	if updated.TimeLimit >= 0 {
		exam.TimeLimit = updated.TimeLimit
	}

	return exam, s.ExamRepo.Update(exam)
}

func (s *ExamService) SetPublished(id uint, published bool) (*model.Exam, error) {
	exam, err := s.ExamRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}

	if published {
		// a draft must resolve before it can face candidates
		if _, err := model.ParseDefinition(exam.PartType, exam.Content); err != nil {
			return nil, err
		}
		now := time.Now()
		exam.PublishedAt = &now
	} else {
		exam.PublishedAt = nil
	}
	exam.IsPublished = published

	return exam, s.ExamRepo.Update(exam)
}

func (s *ExamService) Delete(id uint) error {
	return s.ExamRepo.Delete(id)
}

func (s *ExamService) ListAll(page, pageSize int) ([]model.Exam, int64, error) {
	return s.ExamRepo.ListAll(page, pageSize)
}
