package service

import (
	"errors"

	"lingua_exam_backend/internal/model"
	"lingua_exam_backend/internal/repository"
	"lingua_exam_backend/internal/util"

	"gorm.io/gorm"
)

type SubmissionService struct {
	SubmissionRepo *repository.SubmissionRepository
}

func NewSubmissionService(submissionRepo *repository.SubmissionRepository) *SubmissionService {
	return &SubmissionService{SubmissionRepo: submissionRepo}
}

// Get returns one submission. Candidates may only see their own; reviewers and
// admins see everything.
func (s *SubmissionService) Get(id string, requester *util.Claims) (*model.ExamSubmission, error) {
	sub, err := s.SubmissionRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrSubmissionNotFound
		}
		return nil, err
	}
	if requester.Role == model.Candidate && sub.UserID != requester.UserID {
		return nil, util.ErrPermissionDenied
	}
	return sub, nil
}

func (s *SubmissionService) ListMine(userID uint, page, pageSize int) ([]model.ExamSubmission, int64, error) {
	return s.SubmissionRepo.ListByUser(userID, page, pageSize)
}

func (s *SubmissionService) ListForReview(partType model.PartType, page, pageSize int) ([]model.ExamSubmission, int64, error) {
	return s.SubmissionRepo.ListForReview(partType, page, pageSize)
}

// SaveReview records a reviewer's score for a writing or speaking submission.
// Objective parts already carry their computed score and cannot be overridden.
func (s *SubmissionService) SaveReview(id string, reviewerID uint, score int, note string) (*model.ExamSubmission, error) {
	sub, err := s.SubmissionRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrSubmissionNotFound
		}
		return nil, err
	}
	if sub.PartType != model.PartWriting && sub.PartType != model.PartSpeaking {
		return nil, util.ErrNotManuallyGraded
	}

	if err := s.SubmissionRepo.SaveReview(id, reviewerID, score, note); err != nil {
		return nil, err
	}
	return s.SubmissionRepo.FindByID(id)
}
