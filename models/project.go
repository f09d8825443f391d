package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProjectStatus string

const (
	ProjectActive     ProjectStatus = "active"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectCancelled  ProjectStatus = "cancelled"
)

type Project struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ClientID     *uint           `gorm:"index" json:"client"`
	Client       *User           `gorm:"foreignKey:ClientID;constraint:OnDelete:SET NULL" json:"-"`
	ContractorID *uint           `gorm:"index" json:"contractor"`
	Contractor   *User           `gorm:"foreignKey:ContractorID;constraint:OnDelete:SET NULL" json:"-"`
	Title        string          `gorm:"not null;size:255" json:"title"`
	Description  string          `gorm:"type:text;not null" json:"description"`
	Category     string          `gorm:"not null;size:100" json:"category"`
	Location     string          `gorm:"not null;size:255" json:"location"`
	Budget       decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"budget"`
	Deadline     time.Time       `gorm:"type:date;not null" json:"deadline"`
	IsPublic     bool            `gorm:"not null" json:"is_public"`
	Status       ProjectStatus   `gorm:"not null;size:20;index" json:"status"`
	AIDrafted    bool            `gorm:"column:ai_drafted;not null" json:"ai_drafted"`
	Milestones   []Milestone     `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"milestones,omitempty"`
	Bids         []Bid           `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"-"`
}

func (p *Project) IsOwnedBy(userID uint) bool {
	return p.ClientID != nil && *p.ClientID == userID
}

func (p *Project) IsAwardedTo(userID uint) bool {
	return p.ContractorID != nil && *p.ContractorID == userID
}

// IsOpenForBids reports whether contractors may currently bid.
func (p *Project) IsOpenForBids() bool {
	return p.IsPublic && p.Status == ProjectActive
}

// CanBeViewedBy reports whether u may see the project. Private projects are
// only visible to the two parties.
func (p *Project) CanBeViewedBy(u *User) bool {
	if p.IsPublic {
		return true
	}
	if u == nil {
		return false
	}
	return p.IsOwnedBy(u.ID) || p.IsAwardedTo(u.ID)
}
