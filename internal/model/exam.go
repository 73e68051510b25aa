package model

import (
	"encoding/json"
	"time"
)

// swagger:model Exam
type Exam struct {
	BaseModel
	Title       string          `gorm:"size:255;not null" json:"title"`
	Description string          `gorm:"type:text" json:"description"`
	PartType    PartType        `gorm:"size:20;index;not null" json:"partType"`
	TimeLimit   int             `gorm:"default:0" json:"time_limit"` // minutes; 0 = untimed
	Content     json.RawMessage `gorm:"type:json" json:"content"`    // part-type specific definition
	CreatorID   uint            `gorm:"index;type:bigint unsigned" json:"creatorId"`
	IsPublished bool            `gorm:"default:false" json:"isPublished"`
	PublishedAt *time.Time      `json:"publishedAt,omitempty"`
}

func (Exam) TableName() string {
	return "exams"
}
