package models

import (
	"time"
)

// DefaultAutoApproveAfter is how long a payment request may stay unanswered
// before it becomes eligible for automatic approval.
const DefaultAutoApproveAfter = 14 * 24 * time.Hour

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentDeclined PaymentStatus = "declined"
)

// PaymentRequest is a contractor's claim for one milestone. Approved and
// declined are terminal.
type PaymentRequest struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	CreatedAt        time.Time  `json:"-"`
	UpdatedAt        time.Time  `json:"updated_at"`
	MilestoneID      uint       `gorm:"not null;uniqueIndex" json:"milestone"`
	Milestone        *Milestone `gorm:"foreignKey:MilestoneID" json:"-"`
	ContractorID     uint       `gorm:"not null;index" json:"contractor"`
	Contractor       *User      `gorm:"foreignKey:ContractorID;constraint:OnDelete:CASCADE" json:"-"`
	Description      string     `gorm:"type:text" json:"description"`
	ImagePath        string     `gorm:"size:255" json:"image,omitempty"`
	ThumbnailPath    string     `gorm:"size:255" json:"thumbnail,omitempty"`
	RequestedAt      time.Time  `gorm:"not null;index" json:"requested_at"`
	Approved         bool       `gorm:"not null;index" json:"approved"`
	ApprovedAt       *time.Time `json:"approved_at"`
	AutoApproved     bool       `gorm:"not null" json:"auto_approved"`
	ReleasedByClient bool       `gorm:"not null" json:"released_by_client"`
	Declined         bool       `gorm:"not null;index" json:"declined"`
	DeclinedAt       *time.Time `json:"declined_at"`
	RefusalReason    string     `gorm:"type:text" json:"refusal_reason"`
	ClientRequests   string     `gorm:"type:text" json:"client_requests"`
}

func (p *PaymentRequest) IsPending() bool {
	return !p.Approved && !p.Declined
}

func (p *PaymentRequest) Status() PaymentStatus {
	switch {
	case p.Approved:
		return PaymentApproved
	case p.Declined:
		return PaymentDeclined
	default:
		return PaymentPending
	}
}

// ShouldAutoApprove reports whether the request has waited at least after
// without an answer. Answered requests never qualify, whatever their age.
func (p *PaymentRequest) ShouldAutoApprove(now time.Time, after time.Duration) bool {
	if !p.IsPending() {
		return false
	}
	if after <= 0 {
		after = DefaultAutoApproveAfter
	}
	return now.Sub(p.RequestedAt) >= after
}
