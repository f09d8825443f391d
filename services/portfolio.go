package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"contractit/models"
	"contractit/uploads"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PortfolioService struct {
	base
}

// ToggleInternal shows or hides a completed project on the contractor's
// portfolio. The first call adds it as visible; later calls flip visibility.
func (s *PortfolioService) ToggleInternal(ctx context.Context, contractor *models.User, projectID uint) (*models.InternalPortfolioItem, error) {
	var item models.InternalPortfolioItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.First(&project, projectID).Error; err != nil {
			return lookup(err, "project")
		}
		if !project.IsAwardedTo(contractor.ID) {
			return forbidden("Only the project's contractor can showcase it")
		}
		if project.Status != models.ProjectCompleted {
			return conflict("Only completed projects can be added to a portfolio")
		}

		err := tx.Where("project_id = ? AND user_id = ?", projectID, contractor.ID).First(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			item = models.InternalPortfolioItem{UserID: contractor.ID, ProjectID: projectID, Visible: true}
			return tx.Create(&item).Error
		}
		if err != nil {
			return err
		}
		item.Visible = !item.Visible
		return tx.Model(&item).Update("visible", item.Visible).Error
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("portfolio item toggled",
		zap.Uint("project_id", projectID),
		zap.Uint("user_id", contractor.ID),
		zap.Bool("visible", item.Visible),
	)
	return &item, nil
}

type AddExternalInput struct {
	Title       string
	Description string
	Image       io.Reader
}

func (s *PortfolioService) AddExternal(ctx context.Context, contractor *models.User, in AddExternalInput) (*models.ExternalPortfolioItem, error) {
	if !contractor.IsContractor() {
		return nil, forbidden("Only contractors have a portfolio")
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || len(in.Title) > 100 {
		return nil, invalid("title", "Title is required (100 characters max)")
	}

	item := &models.ExternalPortfolioItem{
		UserID:      contractor.ID,
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
	}
	var stored *uploads.Stored
	if in.Image != nil && s.uploads != nil {
		var err error
		stored, err = s.uploads.Save(in.Image, "portfolio")
		if errors.Is(err, uploads.ErrTooLarge) || errors.Is(err, uploads.ErrUnsupportedType) {
			return nil, invalid("image", "%s", capitalize(err.Error()))
		}
		if err != nil {
			return nil, err
		}
		item.ImagePath = stored.Path
	}

	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		if s.uploads != nil {
			s.uploads.Remove(stored)
		}
		return nil, fmt.Errorf("add portfolio item: %w", err)
	}
	return item, nil
}

// PublicPortfolio is what visitors see on a contractor's profile.
type PublicPortfolio struct {
	User     *models.User                   `json:"user"`
	Internal []models.InternalPortfolioItem `json:"internal"`
	External []models.ExternalPortfolioItem `json:"external"`
}

// ListPublic returns the visible internal items and all external items of a
// contractor.
func (s *PortfolioService) ListPublic(ctx context.Context, userID uint) (*PublicPortfolio, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("ContractorProfile").First(&user, userID).Error; err != nil {
		return nil, lookup(err, "user")
	}
	if !user.IsContractor() {
		return nil, notFound("portfolio")
	}

	out := &PublicPortfolio{User: &user}
	if err := s.db.WithContext(ctx).
		Preload("Project").
		Where("user_id = ? AND visible = ?", userID, true).
		Order("created_at DESC, id DESC").
		Find(&out.Internal).Error; err != nil {
		return nil, fmt.Errorf("list portfolio: %w", err)
	}
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&out.External).Error; err != nil {
		return nil, fmt.Errorf("list portfolio: %w", err)
	}
	return out, nil
}
