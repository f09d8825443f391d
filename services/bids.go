package services

import (
	"context"
	"fmt"
	"strings"

	"contractit/events"
	"contractit/metrics"
	"contractit/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type BidService struct {
	base
}

type SubmitBidInput struct {
	Amount  decimal.Decimal
	Message string
}

// Submit places a pending bid. A contractor holds at most one bid per
// project.
func (s *BidService) Submit(ctx context.Context, contractor *models.User, projectID uint, in SubmitBidInput) (*models.Bid, error) {
	if !contractor.IsContractor() {
		return nil, forbidden("Only contractors can submit bids")
	}
	in.Message = strings.TrimSpace(in.Message)
	if !in.Amount.IsPositive() {
		return nil, invalid("amount", "Bid amount must be greater than zero")
	}
	if in.Message == "" {
		return nil, invalid("message", "Tell the client about your proposal")
	}

	bid := &models.Bid{
		ProjectID:    projectID,
		ContractorID: contractor.ID,
		Amount:       in.Amount.Round(2),
		Message:      in.Message,
		Status:       models.BidPending,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.First(&project, projectID).Error; err != nil {
			return lookup(err, "project")
		}
		if project.IsOwnedBy(contractor.ID) {
			return forbidden("You cannot bid on your own project")
		}
		if !project.IsOpenForBids() {
			return conflict("This project is not accepting bids")
		}
		var existing int64
		if err := tx.Model(&models.Bid{}).
			Where("project_id = ? AND contractor_id = ?", projectID, contractor.ID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return conflict("You have already submitted a bid for this project")
		}
		if err := tx.Create(bid).Error; err != nil {
			if isDuplicate(err) {
				return conflict("You have already submitted a bid for this project")
			}
			return err
		}
		var clientID uint
		if project.ClientID != nil {
			clientID = *project.ClientID
		}
		return events.Enqueue(tx, events.AggregateBid, bid.ID, events.BidSubmitted, events.BidSubmittedPayload{
			Envelope:     events.Recipients(clientID),
			BidID:        bid.ID,
			ProjectID:    projectID,
			ContractorID: contractor.ID,
			ClientID:     clientID,
			Amount:       bid.Amount,
		})
	})
	if err != nil {
		s.log.Debug("bid refused", zap.Uint("project_id", projectID), zap.Uint("contractor_id", contractor.ID), zap.Error(err))
		return nil, err
	}

	metrics.BidEvents.WithLabelValues("submitted").Inc()
	s.log.Info("bid submitted",
		zap.Uint("bid_id", bid.ID),
		zap.Uint("project_id", projectID),
		zap.Uint("contractor_id", contractor.ID),
	)
	return bid, nil
}

// ListForProject returns the bids on a project, newest first. Only the
// project's client may see them.
func (s *BidService) ListForProject(ctx context.Context, client *models.User, projectID uint) ([]models.Bid, error) {
	var project models.Project
	if err := s.db.WithContext(ctx).First(&project, projectID).Error; err != nil {
		return nil, lookup(err, "project")
	}
	if !project.IsOwnedBy(client.ID) {
		return nil, forbidden("Only the project owner can review its bids")
	}
	var bids []models.Bid
	err := s.db.WithContext(ctx).
		Preload("Contractor").
		Preload("Contractor.ContractorProfile").
		Where("project_id = ?", projectID).
		Order("created_at DESC, id DESC").
		Find(&bids).Error
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	return bids, nil
}

func (s *BidService) ListMine(ctx context.Context, contractor *models.User) ([]models.Bid, error) {
	if !contractor.IsContractor() {
		return nil, forbidden("Only contractors have bids")
	}
	var bids []models.Bid
	err := s.db.WithContext(ctx).
		Preload("Project").
		Where("contractor_id = ?", contractor.ID).
		Order("created_at DESC, id DESC").
		Find(&bids).Error
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	return bids, nil
}

// Accept awards the project to the bid's contractor. In one transaction the
// bid becomes accepted, every other bid on the project is rejected, and the
// project moves to in_progress, assigned and private. Only the project's
// client may accept, and only while the project is active.
func (s *BidService) Accept(ctx context.Context, client *models.User, bidID uint) (*models.Bid, error) {
	var bid models.Bid
	var rejected []uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&bid, bidID).Error; err != nil {
			return lookup(err, "bid")
		}
		var project models.Project
		if err := tx.First(&project, bid.ProjectID).Error; err != nil {
			return lookup(err, "project")
		}
		if !project.IsOwnedBy(client.ID) {
			return forbidden("Only the project owner can accept bids")
		}
		if bid.Status != models.BidPending {
			return conflict("This bid is no longer pending")
		}

		// The status guard makes a concurrent acceptance on the same
		// project update zero rows.
		res := tx.Model(&models.Project{}).
			Where("id = ? AND status = ?", project.ID, models.ProjectActive).
			Updates(map[string]interface{}{
				"contractor_id": bid.ContractorID,
				"status":        models.ProjectInProgress,
				"is_public":     false,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict("This project has already been awarded or closed")
		}

		if err := tx.Model(&bid).Update("status", models.BidAccepted).Error; err != nil {
			return err
		}
		bid.Status = models.BidAccepted
		if err := tx.Model(&models.Bid{}).
			Where("project_id = ? AND id <> ?", project.ID, bid.ID).
			Pluck("id", &rejected).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Bid{}).
			Where("project_id = ? AND id <> ?", project.ID, bid.ID).
			Update("status", models.BidRejected).Error; err != nil {
			return err
		}

		var bidders []uint
		if err := tx.Model(&models.Bid{}).Where("project_id = ?", project.ID).Pluck("contractor_id", &bidders).Error; err != nil {
			return err
		}
		return events.Enqueue(tx, events.AggregateBid, bid.ID, events.BidAccepted, events.BidAcceptedPayload{
			Envelope:       events.Recipients(append([]uint{client.ID}, bidders...)...),
			BidID:          bid.ID,
			ProjectID:      project.ID,
			ContractorID:   bid.ContractorID,
			ClientID:       client.ID,
			RejectedBidIDs: rejected,
		})
	})
	if err != nil {
		s.log.Warn("bid acceptance refused", zap.Uint("bid_id", bidID), zap.Uint("client_id", client.ID), zap.Error(err))
		return nil, err
	}

	metrics.BidEvents.WithLabelValues("accepted").Inc()
	metrics.BidEvents.WithLabelValues("rejected").Add(float64(len(rejected)))
	s.log.Info("bid accepted",
		zap.Uint("bid_id", bid.ID),
		zap.Uint("project_id", bid.ProjectID),
		zap.Uint("contractor_id", bid.ContractorID),
		zap.Int("rejected", len(rejected)),
	)
	return &bid, nil
}
