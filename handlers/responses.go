package handlers

import (
	"time"

	"contractit/models"

	"github.com/shopspring/decimal"
)

// UserResponse is the public shape of an account. Contractor fields are
// omitted for accounts without the contractor role and client fields for
// accounts without the client role.
type UserResponse struct {
	ID          uint           `json:"id"`
	Username    string         `json:"username"`
	Email       string         `json:"email"`
	Phone       string         `json:"phone"`
	City        string         `json:"city"`
	Bio         string         `json:"bio"`
	Language    string         `json:"language"`
	CompanyName string         `json:"company_name"`
	IsVerified  bool           `json:"is_verified"`
	Roles       models.RoleSet `json:"roles"`
	DateJoined  time.Time      `json:"date_joined"`

	ProjectHistoryCount *uint `json:"project_history_count,omitempty"`

	Specialties    *string          `json:"specialties,omitempty"`
	HourlyRate     *decimal.Decimal `json:"hourly_rate,omitempty"`
	Availability   *string          `json:"availability,omitempty"`
	Certifications *string          `json:"certifications,omitempty"`
}

func NewUserResponse(u *models.User) UserResponse {
	resp := UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Phone:       u.Phone,
		City:        u.City,
		Bio:         u.Bio,
		Language:    u.Language,
		CompanyName: u.CompanyName,
		IsVerified:  u.IsVerified,
		Roles:       u.Roles,
		DateJoined:  u.CreatedAt,
	}
	if u.IsClient() {
		var count uint
		if u.ClientProfile != nil {
			count = u.ClientProfile.ProjectHistoryCount
		}
		resp.ProjectHistoryCount = &count
	}
	if u.IsContractor() {
		p := u.ContractorProfile
		if p == nil {
			p = &models.ContractorProfile{}
		}
		resp.Specialties = &p.Specialties
		resp.HourlyRate = p.HourlyRate
		resp.Availability = &p.Availability
		resp.Certifications = &p.Certifications
	}
	return resp
}

type authResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

type projectResponse struct {
	*models.Project
	BidCount      int64 `json:"bid_count"`
	HasAlreadyBid bool  `json:"has_already_bid"`
}

type bidResponse struct {
	models.Bid
	ContractorName string `json:"contractor_name,omitempty"`
	ProjectTitle   string `json:"project_title,omitempty"`
}

func newBidResponses(bids []models.Bid) []bidResponse {
	out := make([]bidResponse, len(bids))
	for i, b := range bids {
		out[i] = bidResponse{Bid: b}
		if b.Contractor != nil {
			out[i].ContractorName = b.Contractor.DisplayName()
		}
		if b.Project != nil {
			out[i].ProjectTitle = b.Project.Title
		}
	}
	return out
}

type paymentResponse struct {
	models.PaymentRequest
	Status            models.PaymentStatus `json:"status"`
	ShouldAutoApprove bool                 `json:"should_auto_approve"`
	ProjectID         uint                 `json:"project,omitempty"`
	MilestoneTitle    string               `json:"milestone_title,omitempty"`
	Amount            *decimal.Decimal     `json:"amount,omitempty"`
}

func (a *API) paymentResponse(p *models.PaymentRequest) paymentResponse {
	resp := paymentResponse{
		PaymentRequest:    *p,
		Status:            p.Status(),
		ShouldAutoApprove: a.services.Payments.ShouldAutoApprove(p),
	}
	if m := p.Milestone; m != nil {
		resp.ProjectID = m.ProjectID
		resp.MilestoneTitle = m.Title
		amount := m.Amount
		resp.Amount = &amount
	}
	return resp
}

func (a *API) paymentResponses(payments []models.PaymentRequest) []paymentResponse {
	out := make([]paymentResponse, len(payments))
	for i := range payments {
		out[i] = a.paymentResponse(&payments[i])
	}
	return out
}
