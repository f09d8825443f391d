package models

import (
	"time"
)

// InternalPortfolioItem showcases a project completed on the platform.
type InternalPortfolioItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    uint      `gorm:"not null;index" json:"user"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	ProjectID uint      `gorm:"not null;uniqueIndex" json:"project"`
	Project   *Project  `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"project_detail,omitempty"`
	Notes     string    `gorm:"type:text" json:"notes"`
	Visible   bool      `gorm:"not null" json:"visible"`
}

// ExternalPortfolioItem is work done outside the platform, entered by hand.
type ExternalPortfolioItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	UserID      uint      `gorm:"not null;index" json:"user"`
	User        *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Title       string    `gorm:"not null;size:100" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	ImagePath   string    `gorm:"size:255" json:"image,omitempty"`
}
