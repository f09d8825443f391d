package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
)

// Bid is a contractor's proposal against a project. A contractor holds at
// most one bid per project.
type Bid struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ProjectID    uint            `gorm:"not null;uniqueIndex:idx_bids_project_contractor" json:"project"`
	Project      *Project        `gorm:"foreignKey:ProjectID" json:"-"`
	ContractorID uint            `gorm:"not null;uniqueIndex:idx_bids_project_contractor;index" json:"contractor"`
	Contractor   *User           `gorm:"foreignKey:ContractorID;constraint:OnDelete:CASCADE" json:"-"`
	Amount       decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	Message      string          `gorm:"type:text;not null" json:"message"`
	Status       BidStatus       `gorm:"not null;size:10;index" json:"status"`
}
