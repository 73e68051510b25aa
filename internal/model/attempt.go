package model

import (
	"encoding/json"
	"time"
)

// AttemptPhase tracks the session lifecycle. An attempt moves to submitted exactly
// once; abandoned attempts leave no submission behind.
type AttemptPhase string

const (
	AttemptNotStarted AttemptPhase = "not_started"
	AttemptInProgress AttemptPhase = "in_progress"
	AttemptSubmitted  AttemptPhase = "submitted"
	AttemptAbandoned  AttemptPhase = "abandoned"
)

// swagger:model ExamAttempt
type ExamAttempt struct {
	UUIDBase
	ExamID   uint         `gorm:"index;type:bigint unsigned" json:"examId"`
	UserID   uint         `gorm:"index;type:bigint unsigned" json:"userId"`
	PartType PartType     `gorm:"size:20" json:"partType"`
	Phase    AttemptPhase `gorm:"size:20;default:'not_started';index" json:"phase"`

	// ContentSnapshot is the exact definition served to the candidate at start.
	// Submissions embed it so later review renders what the candidate saw even if
	// the canonical exam content changes afterwards.
	ContentSnapshot json.RawMessage `gorm:"type:json" json:"contentSnapshot"`

	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

func (ExamAttempt) TableName() string {
	return "exam_attempts"
}
