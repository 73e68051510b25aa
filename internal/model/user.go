package model

import "time"

type UserRole string

const (
	Candidate UserRole = "candidate"
	Reviewer  UserRole = "reviewer"
	Admin     UserRole = "admin"
)

// swagger:model User
type User struct {
	BaseModel
	Name       string     `gorm:"size:100;not null" json:"name"`
	Email      string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password   string     `gorm:"size:255;not null" json:"-"`
	Role       UserRole   `gorm:"size:20;default:'candidate'" json:"role"`
	Disabled   bool       `gorm:"default:false" json:"disabled"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
}

func (User) TableName() string {
	return "users"
}
