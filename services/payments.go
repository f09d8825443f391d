package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"contractit/events"
	"contractit/metrics"
	"contractit/models"
	"contractit/receipts"
	"contractit/uploads"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PaymentService struct {
	base
	autoApproveAfter time.Duration
}

type RequestPaymentInput struct {
	Description string
	// Image is an optional proof of work.
	Image io.Reader
}

type DeclineInput struct {
	RefusalReason  string
	ClientRequests string
}

func (s *PaymentService) AutoApproveAfter() time.Duration {
	return s.autoApproveAfter
}

// ShouldAutoApprove reports whether p is eligible for automatic approval now.
func (s *PaymentService) ShouldAutoApprove(p *models.PaymentRequest) bool {
	return p.ShouldAutoApprove(s.now(), s.autoApproveAfter)
}

func loadMilestone(tx *gorm.DB, milestoneID uint) (*models.Milestone, error) {
	var m models.Milestone
	if err := tx.Preload("Project").First(&m, milestoneID).Error; err != nil {
		return nil, lookup(err, "milestone")
	}
	if m.Project == nil {
		return nil, notFound("project")
	}
	return &m, nil
}

func loadPayment(tx *gorm.DB, paymentID uint) (*models.PaymentRequest, error) {
	var p models.PaymentRequest
	if err := tx.Preload("Milestone.Project").First(&p, paymentID).Error; err != nil {
		return nil, lookup(err, "payment request")
	}
	if p.Milestone == nil || p.Milestone.Project == nil {
		return nil, notFound("milestone")
	}
	return &p, nil
}

func hasPaymentRequest(tx *gorm.DB, milestoneID uint) (bool, error) {
	var n int64
	err := tx.Model(&models.PaymentRequest{}).Where("milestone_id = ?", milestoneID).Count(&n).Error
	return n > 0, err
}

func paymentPayload(p *models.PaymentRequest, m *models.Milestone) events.PaymentPayload {
	var clientID uint
	if m.Project.ClientID != nil {
		clientID = *m.Project.ClientID
	}
	return events.PaymentPayload{
		Envelope:     events.Recipients(clientID, p.ContractorID),
		PaymentID:    p.ID,
		MilestoneID:  m.ID,
		ProjectID:    m.ProjectID,
		ContractorID: p.ContractorID,
		ClientID:     clientID,
		Amount:       m.Amount,
		AutoApproved: p.AutoApproved,
		Released:     p.ReleasedByClient,
	}
}

// Request files a payment request for a milestone of a project awarded to
// the contractor. A milestone has at most one request.
func (s *PaymentService) Request(ctx context.Context, contractor *models.User, milestoneID uint, in RequestPaymentInput) (*models.PaymentRequest, error) {
	if !contractor.IsContractor() {
		return nil, forbidden("Only contractors can request payments")
	}
	db := s.db.WithContext(ctx)
	milestone, err := loadMilestone(db, milestoneID)
	if err != nil {
		return nil, err
	}
	if !milestone.Project.IsAwardedTo(contractor.ID) {
		return nil, forbidden("This milestone belongs to a project you were not awarded")
	}
	if exists, err := hasPaymentRequest(db, milestoneID); err != nil {
		return nil, fmt.Errorf("check payment request: %w", err)
	} else if exists {
		return nil, conflict("A payment request already exists for this milestone")
	}

	var stored *uploads.Stored
	if in.Image != nil {
		if s.uploads == nil {
			return nil, invalid("image", "Image uploads are not enabled")
		}
		stored, err = s.uploads.Save(in.Image, "payments")
		if errors.Is(err, uploads.ErrTooLarge) || errors.Is(err, uploads.ErrUnsupportedType) {
			return nil, invalid("image", "%s", capitalize(err.Error()))
		}
		if err != nil {
			return nil, err
		}
	}

	payment := &models.PaymentRequest{
		MilestoneID:  milestoneID,
		ContractorID: contractor.ID,
		Description:  strings.TrimSpace(in.Description),
		RequestedAt:  s.now(),
	}
	if stored != nil {
		payment.ImagePath = stored.Path
		payment.ThumbnailPath = stored.ThumbnailPath
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if exists, err := hasPaymentRequest(tx, milestoneID); err != nil {
			return err
		} else if exists {
			return conflict("A payment request already exists for this milestone")
		}
		if err := tx.Create(payment).Error; err != nil {
			if isDuplicate(err) {
				return conflict("A payment request already exists for this milestone")
			}
			return err
		}
		if err := tx.Model(&models.Milestone{}).Where("id = ?", milestoneID).
			Update("status", models.MilestoneCompleted).Error; err != nil {
			return err
		}
		return events.Enqueue(tx, events.AggregatePayment, payment.ID, events.PaymentRequested, paymentPayload(payment, milestone))
	})
	if err != nil {
		if s.uploads != nil {
			s.uploads.Remove(stored)
		}
		return nil, err
	}

	metrics.PaymentEvents.WithLabelValues("requested").Inc()
	s.log.Info("payment requested",
		zap.Uint("payment_id", payment.ID),
		zap.Uint("milestone_id", milestoneID),
		zap.Uint("contractor_id", contractor.ID),
	)
	return payment, nil
}

// Approve accepts a pending request. Answered requests are terminal.
func (s *PaymentService) Approve(ctx context.Context, client *models.User, paymentID uint) (*models.PaymentRequest, error) {
	var payment *models.PaymentRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = s.approveTx(tx, paymentID, &client.ID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.PaymentEvents.WithLabelValues("approved").Inc()
	s.log.Info("payment approved", zap.Uint("payment_id", paymentID), zap.Uint("client_id", client.ID))
	return payment, nil
}

// approveTx approves one pending request. A nil clientID skips the owner
// check, for the automatic sweep.
func (s *PaymentService) approveTx(tx *gorm.DB, paymentID uint, clientID *uint, auto bool) (*models.PaymentRequest, error) {
	payment, err := loadPayment(tx, paymentID)
	if err != nil {
		return nil, err
	}
	milestone := payment.Milestone
	if clientID != nil && !milestone.Project.IsOwnedBy(*clientID) {
		return nil, forbidden("Only the project owner can review payment requests")
	}

	now := s.now()
	res := tx.Model(&models.PaymentRequest{}).
		Where("id = ? AND approved = ? AND declined = ?", paymentID, false, false).
		Updates(map[string]interface{}{
			"approved":      true,
			"approved_at":   now,
			"auto_approved": auto,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, conflict("This payment request has already been answered")
	}
	if err := tx.Model(&models.Milestone{}).Where("id = ?", milestone.ID).
		Update("status", models.MilestoneApproved).Error; err != nil {
		return nil, err
	}

	payment.Approved = true
	payment.ApprovedAt = &now
	payment.AutoApproved = auto
	milestone.Status = models.MilestoneApproved
	if err := events.Enqueue(tx, events.AggregatePayment, payment.ID, events.PaymentApproved, paymentPayload(payment, milestone)); err != nil {
		return nil, err
	}
	return payment, nil
}

// Decline refuses a pending request with a reason and sends the milestone
// back to in_progress.
func (s *PaymentService) Decline(ctx context.Context, client *models.User, paymentID uint, in DeclineInput) (*models.PaymentRequest, error) {
	in.RefusalReason = strings.TrimSpace(in.RefusalReason)
	in.ClientRequests = strings.TrimSpace(in.ClientRequests)
	if in.RefusalReason == "" {
		return nil, invalid("refusal_reason", "Explain why the payment is declined")
	}

	var payment *models.PaymentRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = loadPayment(tx, paymentID)
		if err != nil {
			return err
		}
		milestone := payment.Milestone
		if !milestone.Project.IsOwnedBy(client.ID) {
			return forbidden("Only the project owner can review payment requests")
		}

		now := s.now()
		res := tx.Model(&models.PaymentRequest{}).
			Where("id = ? AND approved = ? AND declined = ?", paymentID, false, false).
			Updates(map[string]interface{}{
				"declined":        true,
				"declined_at":     now,
				"refusal_reason":  in.RefusalReason,
				"client_requests": in.ClientRequests,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict("This payment request has already been answered")
		}
		if err := tx.Model(&models.Milestone{}).Where("id = ?", milestone.ID).
			Update("status", models.MilestoneInProgress).Error; err != nil {
			return err
		}

		payment.Declined = true
		payment.DeclinedAt = &now
		payment.RefusalReason = in.RefusalReason
		payment.ClientRequests = in.ClientRequests
		milestone.Status = models.MilestoneInProgress
		body := paymentPayload(payment, milestone)
		body.RefusalReason = in.RefusalReason
		return events.Enqueue(tx, events.AggregatePayment, payment.ID, events.PaymentDeclined, body)
	})
	if err != nil {
		return nil, err
	}

	metrics.PaymentEvents.WithLabelValues("declined").Inc()
	s.log.Info("payment declined", zap.Uint("payment_id", paymentID), zap.Uint("client_id", client.ID))
	return payment, nil
}

// Release pays a milestone without waiting for a request by creating one
// already approved.
func (s *PaymentService) Release(ctx context.Context, client *models.User, milestoneID uint) (*models.PaymentRequest, error) {
	var payment *models.PaymentRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		milestone, err := loadMilestone(tx, milestoneID)
		if err != nil {
			return err
		}
		if !milestone.Project.IsOwnedBy(client.ID) {
			return forbidden("Only the project owner can release payments")
		}
		if milestone.Project.ContractorID == nil {
			return invalid("milestone", "This project has no contractor to pay")
		}
		if exists, err := hasPaymentRequest(tx, milestoneID); err != nil {
			return err
		} else if exists {
			return conflict("A payment request already exists for this milestone")
		}

		now := s.now()
		payment = &models.PaymentRequest{
			MilestoneID:      milestoneID,
			ContractorID:     *milestone.Project.ContractorID,
			Description:      "Payment released by client",
			RequestedAt:      now,
			Approved:         true,
			ApprovedAt:       &now,
			ReleasedByClient: true,
		}
		if err := tx.Create(payment).Error; err != nil {
			if isDuplicate(err) {
				return conflict("A payment request already exists for this milestone")
			}
			return err
		}
		if err := tx.Model(&models.Milestone{}).Where("id = ?", milestoneID).
			Update("status", models.MilestoneApproved).Error; err != nil {
			return err
		}
		return events.Enqueue(tx, events.AggregatePayment, payment.ID, events.PaymentApproved, paymentPayload(payment, milestone))
	})
	if err != nil {
		return nil, err
	}

	metrics.PaymentEvents.WithLabelValues("released").Inc()
	s.log.Info("payment released", zap.Uint("payment_id", payment.ID), zap.Uint("milestone_id", milestoneID))
	return payment, nil
}

// AutoApproveDue approves every pending request older than the
// auto-approval window and returns how many it approved. Running it again
// approves nothing new.
func (s *PaymentService) AutoApproveDue(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.autoApproveAfter)
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.PaymentRequest{}).
		Where("approved = ? AND declined = ? AND requested_at <= ?", false, false, cutoff).
		Order("requested_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("find due payment requests: %w", err)
	}

	approved := 0
	for _, id := range ids {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			_, err := s.approveTx(tx, id, nil, true)
			return err
		})
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			s.log.Error("auto-approval failed", zap.Uint("payment_id", id), zap.Error(err))
			continue
		}
		approved++
		metrics.PaymentEvents.WithLabelValues("auto_approved").Inc()
		s.log.Info("payment auto-approved", zap.Uint("payment_id", id))
	}
	return approved, nil
}

// Get returns a request visible to the project's client or contractor.
func (s *PaymentService) Get(ctx context.Context, viewer *models.User, paymentID uint) (*models.PaymentRequest, error) {
	payment, err := loadPayment(s.db.WithContext(ctx), paymentID)
	if err != nil {
		return nil, err
	}
	project := payment.Milestone.Project
	if !project.IsOwnedBy(viewer.ID) && payment.ContractorID != viewer.ID {
		return nil, forbidden("You are not a party to this payment")
	}
	return payment, nil
}

// ListForClient returns requests on the client's projects, newest first.
func (s *PaymentService) ListForClient(ctx context.Context, client *models.User) ([]models.PaymentRequest, error) {
	var payments []models.PaymentRequest
	err := s.db.WithContext(ctx).
		Preload("Milestone.Project").
		Joins("JOIN milestones ON milestones.id = payment_requests.milestone_id").
		Joins("JOIN projects ON projects.id = milestones.project_id").
		Where("projects.client_id = ?", client.ID).
		Order("payment_requests.requested_at DESC, payment_requests.id DESC").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("list payment requests: %w", err)
	}
	return payments, nil
}

func (s *PaymentService) ListForContractor(ctx context.Context, contractor *models.User) ([]models.PaymentRequest, error) {
	var payments []models.PaymentRequest
	err := s.db.WithContext(ctx).
		Preload("Milestone.Project").
		Where("contractor_id = ?", contractor.ID).
		Order("requested_at DESC, id DESC").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("list payment requests: %w", err)
	}
	return payments, nil
}

// Receipt gathers what is printed on the receipt of an approved request.
func (s *PaymentService) Receipt(ctx context.Context, viewer *models.User, paymentID uint) (*receipts.Receipt, error) {
	payment, err := s.Get(ctx, viewer, paymentID)
	if err != nil {
		return nil, err
	}
	if !payment.Approved || payment.ApprovedAt == nil {
		return nil, conflict("Receipts are only available for approved payments")
	}

	project := payment.Milestone.Project
	rc := &receipts.Receipt{
		PaymentID:      payment.ID,
		ProjectTitle:   project.Title,
		MilestoneTitle: payment.Milestone.Title,
		Amount:         payment.Milestone.Amount,
		RequestedAt:    payment.RequestedAt,
		ApprovedAt:     *payment.ApprovedAt,
		AutoApproved:   payment.AutoApproved,
		Released:       payment.ReleasedByClient,
	}
	var contractor models.User
	if err := s.db.WithContext(ctx).First(&contractor, payment.ContractorID).Error; err == nil {
		rc.ContractorName = contractor.DisplayName()
	}
	if project.ClientID != nil {
		var client models.User
		if err := s.db.WithContext(ctx).First(&client, *project.ClientID).Error; err == nil {
			rc.ClientName = client.DisplayName()
		}
	}
	return rc, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Approved loads an approved request without a viewer check, for public
// receipt verification.
func (s *PaymentService) Approved(ctx context.Context, paymentID uint) (*models.PaymentRequest, error) {
	payment, err := loadPayment(s.db.WithContext(ctx), paymentID)
	if err != nil {
		return nil, err
	}
	if !payment.Approved || payment.ApprovedAt == nil {
		return nil, notFound("approved payment")
	}
	return payment, nil
}

// Milestone returns a milestone with its project and payment request, for
// the project's client or contractor.
func (s *PaymentService) Milestone(ctx context.Context, viewer *models.User, milestoneID uint) (*models.Milestone, error) {
	var m models.Milestone
	err := s.db.WithContext(ctx).Preload("Project").Preload("PaymentRequest").First(&m, milestoneID).Error
	if err != nil {
		return nil, lookup(err, "milestone")
	}
	if m.Project == nil {
		return nil, notFound("project")
	}
	if !m.Project.IsOwnedBy(viewer.ID) && !m.Project.IsAwardedTo(viewer.ID) {
		return nil, forbidden("You are not a party to this project")
	}
	return &m, nil
}
