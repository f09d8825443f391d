package events

import (
	"github.com/shopspring/decimal"
)

const (
	ProjectCreated   = "project.created"
	BidSubmitted     = "bid.submitted"
	BidAccepted      = "bid.accepted"
	PaymentRequested = "payment.requested"
	PaymentApproved  = "payment.approved"
	PaymentDeclined  = "payment.declined"
)

const (
	AggregateProject = "project"
	AggregateBid     = "bid"
	AggregatePayment = "payment_request"
)

// Envelope is the part of every payload the dispatcher needs to route
// notifications.
type Envelope struct {
	RecipientIDs []uint `json:"recipient_ids"`
}

type ProjectCreatedPayload struct {
	Envelope
	ProjectID  uint            `json:"project_id"`
	ClientID   uint            `json:"client_id"`
	Title      string          `json:"title"`
	Budget     decimal.Decimal `json:"budget"`
	Milestones int             `json:"milestones"`
}

type BidSubmittedPayload struct {
	Envelope
	BidID        uint            `json:"bid_id"`
	ProjectID    uint            `json:"project_id"`
	ContractorID uint            `json:"contractor_id"`
	ClientID     uint            `json:"client_id"`
	Amount       decimal.Decimal `json:"amount"`
}

type BidAcceptedPayload struct {
	Envelope
	BidID          uint   `json:"bid_id"`
	ProjectID      uint   `json:"project_id"`
	ContractorID   uint   `json:"contractor_id"`
	ClientID       uint   `json:"client_id"`
	RejectedBidIDs []uint `json:"rejected_bid_ids"`
}

type PaymentPayload struct {
	Envelope
	PaymentID     uint            `json:"payment_id"`
	MilestoneID   uint            `json:"milestone_id"`
	ProjectID     uint            `json:"project_id"`
	ContractorID  uint            `json:"contractor_id"`
	ClientID      uint            `json:"client_id"`
	Amount        decimal.Decimal `json:"amount"`
	AutoApproved  bool            `json:"auto_approved,omitempty"`
	Released      bool            `json:"released,omitempty"`
	RefusalReason string          `json:"refusal_reason,omitempty"`
}

// Recipients drops zero ids and duplicates.
func Recipients(ids ...uint) Envelope {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return Envelope{RecipientIDs: out}
}
