package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "pending"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneCompleted  MilestoneStatus = "completed"
	MilestoneApproved   MilestoneStatus = "approved"
	MilestonePaid       MilestoneStatus = "paid"
)

type Milestone struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ProjectID      uint            `gorm:"not null;index" json:"project"`
	Project        *Project        `gorm:"foreignKey:ProjectID" json:"-"`
	Title          string          `gorm:"not null;size:255" json:"title"`
	Description    string          `gorm:"type:text" json:"description"`
	Amount         decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	DueDate        time.Time       `gorm:"type:date;not null" json:"due_date"`
	Status         MilestoneStatus `gorm:"not null;size:20" json:"status"`
	PaymentRequest *PaymentRequest `gorm:"foreignKey:MilestoneID;constraint:OnDelete:CASCADE" json:"payment_request,omitempty"`
}

// SumAmounts totals milestone amounts.
func SumAmounts(milestones []Milestone) decimal.Decimal {
	total := decimal.Zero
	for _, m := range milestones {
		total = total.Add(m.Amount)
	}
	return total
}
