package model

import (
	"encoding/json"
	"time"
)

type SubmitReason string

const (
	SubmitManual  SubmitReason = "manual"
	SubmitTimeout SubmitReason = "timeout"
)

// SubmissionData is the json_data block of a submission, stored exactly as the
// runtime assembled it at submit time.
type SubmissionData struct {
	UserAnswers      map[string]string `json:"userAnswers"`
	UserPart2Answers map[string]string `json:"userPart2Answers,omitempty"`
	AudioPaths       []string          `json:"audioPaths,omitempty"`
	PartType         PartType          `json:"partType"`
	ExamID           uint              `json:"examId"`
	ExamData         json.RawMessage   `json:"examData"`
	SubmittedAt      string            `json:"submittedAt"` // ISO-8601
}

// swagger:model ExamSubmission
type ExamSubmission struct {
	UUIDBase
	AttemptID string       `gorm:"index;type:varchar(36)" json:"attemptId"`
	ExamID    uint         `gorm:"index;type:bigint unsigned" json:"examId"`
	UserID    uint         `gorm:"index;type:bigint unsigned" json:"userId"`
	PartType  PartType     `gorm:"size:20" json:"partType"`
	Reason    SubmitReason `gorm:"size:10" json:"reason"`

	// Score is "<correct>/<total>", present only for reading and listening parts.
	Score    string          `gorm:"size:20" json:"score,omitempty"`
	JSONData json.RawMessage `gorm:"type:json" json:"json_data"`

	// Manual review of writing/speaking responses, entered by a human reviewer.
	ReviewScore  *int       `json:"reviewScore,omitempty"`
	ReviewerID   *uint      `gorm:"type:bigint unsigned" json:"reviewerId,omitempty"`
	ReviewedAt   *time.Time `json:"reviewedAt,omitempty"`
	ReviewNote   string     `gorm:"type:text" json:"reviewNote,omitempty"`

	SubmittedAt time.Time `json:"submittedAt"`
}

func (ExamSubmission) TableName() string {
	return "exam_submissions"
}
