package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"contractit/events"
	"contractit/metrics"
	"contractit/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

type ProjectService struct {
	base
}

type MilestoneInput struct {
	Title       string
	Description string
	DueDate     time.Time
	Amount      decimal.Decimal
}

type CreateProjectInput struct {
	Title       string
	Description string
	Category    string
	Location    string
	Budget      decimal.Decimal
	Deadline    time.Time
	IsPublic    bool
	AIDrafted   bool
	Milestones  []MilestoneInput
}

// UpdateProjectInput replaces the editable fields. Milestones are matched to
// the existing ones by position in due date order; none can be added or
// removed.
type UpdateProjectInput struct {
	CreateProjectInput
	// KeepVisibility leaves is_public as stored.
	KeepVisibility bool
}

// MilestoneRows builds milestone inputs from the parallel form columns
// submitted by the project form.
func MilestoneRows(titles, dueDates, amounts []string) ([]MilestoneInput, error) {
	if len(titles) != len(dueDates) || len(titles) != len(amounts) {
		return nil, invalid("milestones", "Every milestone needs a title, a due date and an amount")
	}
	rows := make([]MilestoneInput, 0, len(titles))
	for i := range titles {
		title := strings.TrimSpace(titles[i])
		if title == "" && strings.TrimSpace(dueDates[i]) == "" && strings.TrimSpace(amounts[i]) == "" {
			continue
		}
		due, err := time.Parse(dateLayout, strings.TrimSpace(dueDates[i]))
		if err != nil {
			return nil, invalid("milestones", "Milestone %d has an invalid due date", i+1)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(amounts[i]))
		if err != nil {
			return nil, invalid("milestones", "Milestone %d has an invalid amount", i+1)
		}
		rows = append(rows, MilestoneInput{Title: title, DueDate: due, Amount: amount})
	}
	return rows, nil
}

func validateProject(in *CreateProjectInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	in.Location = strings.TrimSpace(in.Location)

	switch {
	case in.Title == "" || len(in.Title) > 255:
		return invalid("title", "Title is required (255 characters max)")
	case in.Description == "":
		return invalid("description", "Description is required")
	case in.Category == "" || len(in.Category) > 100:
		return invalid("category", "Category is required (100 characters max)")
	case in.Location == "" || len(in.Location) > 255:
		return invalid("location", "Location is required (255 characters max)")
	case !in.Budget.IsPositive():
		return invalid("budget", "Budget must be greater than zero")
	case in.Deadline.IsZero():
		return invalid("deadline", "Deadline is required")
	case len(in.Milestones) == 0:
		return invalid("milestones", "Add at least one milestone")
	}

	for i, m := range in.Milestones {
		switch {
		case strings.TrimSpace(m.Title) == "":
			return invalid("milestones", "Milestone %d needs a title", i+1)
		case !m.Amount.IsPositive():
			return invalid("milestones", "Milestone %d must have an amount greater than zero", i+1)
		case m.DueDate.IsZero():
			return invalid("milestones", "Milestone %d needs a due date", i+1)
		}
	}
	return checkMilestoneSum(in.Budget, in.Milestones)
}

// checkMilestoneSum requires the milestone amounts to add up to the budget,
// compared at two decimal places.
func checkMilestoneSum(budget decimal.Decimal, milestones []MilestoneInput) error {
	total := decimal.Zero
	for _, m := range milestones {
		total = total.Add(m.Amount)
	}
	if !total.Round(2).Equal(budget.Round(2)) {
		return invalid("milestones", "Milestone amounts total %s but the budget is %s",
			total.StringFixed(2), budget.StringFixed(2))
	}
	return nil
}

// Create posts a project with its milestones. Nothing is written unless the
// milestone amounts add up to the budget.
func (s *ProjectService) Create(ctx context.Context, client *models.User, in CreateProjectInput) (*models.Project, error) {
	if !client.IsClient() {
		return nil, forbidden("Only clients can post projects")
	}
	if err := validateProject(&in); err != nil {
		return nil, err
	}

	clientID := client.ID
	project := &models.Project{
		ClientID:    &clientID,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Location:    in.Location,
		Budget:      in.Budget.Round(2),
		Deadline:    in.Deadline,
		IsPublic:    in.IsPublic,
		Status:      models.ProjectActive,
		AIDrafted:   in.AIDrafted,
	}
	for _, m := range in.Milestones {
		project.Milestones = append(project.Milestones, models.Milestone{
			Title:       strings.TrimSpace(m.Title),
			Description: strings.TrimSpace(m.Description),
			Amount:      m.Amount.Round(2),
			DueDate:     m.DueDate,
			Status:      models.MilestonePending,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.ClientProfile{}).
			Where("user_id = ?", client.ID).
			Update("project_history_count", gorm.Expr("project_history_count + ?", 1)).Error; err != nil {
			return err
		}
		return events.Enqueue(tx, events.AggregateProject, project.ID, events.ProjectCreated, events.ProjectCreatedPayload{
			Envelope:   events.Recipients(client.ID),
			ProjectID:  project.ID,
			ClientID:   client.ID,
			Title:      project.Title,
			Budget:     project.Budget,
			Milestones: len(project.Milestones),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	metrics.ProjectsCreated.Inc()
	s.log.Info("project created",
		zap.Uint("project_id", project.ID),
		zap.Uint("client_id", client.ID),
		zap.String("budget", project.Budget.StringFixed(2)),
	)
	return project, nil
}

// Update edits a project the client owns. Visibility is frozen once the
// project is awarded, and a milestone with a pending or approved payment
// request keeps its amount.
func (s *ProjectService) Update(ctx context.Context, client *models.User, projectID uint, in UpdateProjectInput) (*models.Project, error) {
	if err := validateProject(&in.CreateProjectInput); err != nil {
		return nil, err
	}

	var project models.Project
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Milestones", func(db *gorm.DB) *gorm.DB {
			return db.Order("due_date ASC, id ASC")
		}).Preload("Milestones.PaymentRequest").First(&project, projectID).Error; err != nil {
			return lookup(err, "project")
		}
		if !project.IsOwnedBy(client.ID) {
			return forbidden("You can only edit your own projects")
		}
		if project.Status == models.ProjectCompleted || project.Status == models.ProjectCancelled {
			return conflict("Closed projects cannot be edited")
		}
		if len(in.Milestones) != len(project.Milestones) {
			return invalid("milestones", "Project has %d milestones, got %d", len(project.Milestones), len(in.Milestones))
		}
		for i, m := range project.Milestones {
			if amountLocked(&m) && !in.Milestones[i].Amount.Round(2).Equal(m.Amount.Round(2)) {
				return conflict(fmt.Sprintf("Milestone %d has a payment request, its amount cannot change", i+1))
			}
		}

		isPublic := in.IsPublic
		if in.KeepVisibility || project.ContractorID != nil || project.Status != models.ProjectActive {
			isPublic = project.IsPublic
		}

		if err := tx.Model(&models.Project{}).Where("id = ?", project.ID).
			Updates(map[string]interface{}{
				"title":       in.Title,
				"description": in.Description,
				"category":    in.Category,
				"location":    in.Location,
				"budget":      in.Budget.Round(2),
				"deadline":    in.Deadline,
				"is_public":   isPublic,
				"ai_drafted":  in.AIDrafted,
			}).Error; err != nil {
			return err
		}
		project.Title, project.Description = in.Title, in.Description
		project.Category, project.Location = in.Category, in.Location
		project.Budget, project.Deadline = in.Budget.Round(2), in.Deadline
		project.IsPublic, project.AIDrafted = isPublic, in.AIDrafted

		for i := range project.Milestones {
			m := &project.Milestones[i]
			m.Title = strings.TrimSpace(in.Milestones[i].Title)
			m.Description = strings.TrimSpace(in.Milestones[i].Description)
			m.Amount = in.Milestones[i].Amount.Round(2)
			m.DueDate = in.Milestones[i].DueDate
			if err := tx.Model(&models.Milestone{}).Where("id = ?", m.ID).
				Updates(map[string]interface{}{
					"title":       m.Title,
					"description": m.Description,
					"amount":      m.Amount,
					"due_date":    m.DueDate,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("project updated", zap.Uint("project_id", project.ID))
	return &project, nil
}

// amountLocked reports whether a payment request already claims the
// milestone's amount. A declined request releases it.
func amountLocked(m *models.Milestone) bool {
	return m.PaymentRequest != nil && !m.PaymentRequest.Declined
}

// ProjectView is a project as seen by one viewer.
type ProjectView struct {
	Project       *models.Project
	BidCount      int64
	HasAlreadyBid bool
}

// Get loads a project with milestones ordered by due date. Private projects
// are only visible to their client and contractor.
func (s *ProjectService) Get(ctx context.Context, viewer *models.User, projectID uint) (*ProjectView, error) {
	var project models.Project
	err := s.db.WithContext(ctx).
		Preload("Milestones", func(db *gorm.DB) *gorm.DB {
			return db.Order("due_date ASC, id ASC")
		}).
		Preload("Milestones.PaymentRequest").
		Preload("Client").
		First(&project, projectID).Error
	if err != nil {
		return nil, lookup(err, "project")
	}
	if !project.CanBeViewedBy(viewer) {
		return nil, forbidden("This project is private")
	}

	view := &ProjectView{Project: &project}
	if err := s.db.WithContext(ctx).Model(&models.Bid{}).Where("project_id = ?", project.ID).Count(&view.BidCount).Error; err != nil {
		return nil, fmt.Errorf("count bids: %w", err)
	}
	if viewer != nil && viewer.IsContractor() {
		var mine int64
		if err := s.db.WithContext(ctx).Model(&models.Bid{}).
			Where("project_id = ? AND contractor_id = ?", project.ID, viewer.ID).
			Count(&mine).Error; err != nil {
			return nil, fmt.Errorf("count bids: %w", err)
		}
		view.HasAlreadyBid = mine > 0
	}
	return view, nil
}

// JobFilter narrows the job search. Empty fields match everything.
type JobFilter struct {
	BudgetMin *decimal.Decimal
	BudgetMax *decimal.Decimal
	Location  string
	Category  string
}

// FindJobs lists public, active projects for contractors, newest first.
func (s *ProjectService) FindJobs(ctx context.Context, contractor *models.User, f JobFilter) ([]models.Project, error) {
	if !contractor.IsContractor() {
		return nil, forbidden("Only contractors can browse jobs")
	}
	q := s.db.WithContext(ctx).
		Where("is_public = ? AND status = ?", true, models.ProjectActive)
	if f.BudgetMin != nil {
		q = q.Where("budget >= ?", *f.BudgetMin)
	}
	if f.BudgetMax != nil {
		q = q.Where("budget <= ?", *f.BudgetMax)
	}
	if loc := strings.TrimSpace(f.Location); loc != "" {
		q = q.Where("LOWER(location) LIKE ?", "%"+strings.ToLower(loc)+"%")
	}
	if cat := strings.TrimSpace(f.Category); cat != "" {
		q = q.Where("LOWER(category) LIKE ?", "%"+strings.ToLower(cat)+"%")
	}

	var projects []models.Project
	if err := q.Order("created_at DESC, id DESC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("find jobs: %w", err)
	}
	return projects, nil
}

type ProjectSummary struct {
	models.Project
	BidCount int64 `json:"bid_count"`
}

// ListForClient returns the client's projects, newest first, with bid counts.
func (s *ProjectService) ListForClient(ctx context.Context, client *models.User) ([]ProjectSummary, error) {
	if !client.IsClient() {
		return nil, forbidden("Only clients have posted projects")
	}
	var projects []models.Project
	if err := s.db.WithContext(ctx).
		Where("client_id = ?", client.ID).
		Order("created_at DESC, id DESC").
		Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	if len(projects) == 0 {
		return []ProjectSummary{}, nil
	}

	ids := make([]uint, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	var counts []struct {
		ProjectID uint
		Total     int64
	}
	if err := s.db.WithContext(ctx).Model(&models.Bid{}).
		Select("project_id, COUNT(*) AS total").
		Where("project_id IN ?", ids).
		Group("project_id").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("count bids: %w", err)
	}
	byProject := make(map[uint]int64, len(counts))
	for _, c := range counts {
		byProject[c.ProjectID] = c.Total
	}

	out := make([]ProjectSummary, len(projects))
	for i, p := range projects {
		out[i] = ProjectSummary{Project: p, BidCount: byProject[p.ID]}
	}
	return out, nil
}

// ListAwarded returns the projects the contractor won, with milestones and
// their payment requests.
func (s *ProjectService) ListAwarded(ctx context.Context, contractor *models.User) ([]models.Project, error) {
	if !contractor.IsContractor() {
		return nil, forbidden("Only contractors are awarded projects")
	}
	var projects []models.Project
	err := s.db.WithContext(ctx).
		Preload("Milestones", func(db *gorm.DB) *gorm.DB {
			return db.Order("due_date ASC, id ASC")
		}).
		Preload("Milestones.PaymentRequest").
		Where("contractor_id = ?", contractor.ID).
		Order("updated_at DESC, id DESC").
		Find(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("list awarded projects: %w", err)
	}
	return projects, nil
}

// Complete closes an in-progress project.
func (s *ProjectService) Complete(ctx context.Context, client *models.User, projectID uint) (*models.Project, error) {
	return s.transition(ctx, client, projectID, models.ProjectInProgress, models.ProjectCompleted)
}

// Cancel withdraws an active project and rejects its pending bids.
func (s *ProjectService) Cancel(ctx context.Context, client *models.User, projectID uint) (*models.Project, error) {
	return s.transition(ctx, client, projectID, models.ProjectActive, models.ProjectCancelled)
}

func (s *ProjectService) transition(ctx context.Context, client *models.User, projectID uint, from, to models.ProjectStatus) (*models.Project, error) {
	var project models.Project
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&project, projectID).Error; err != nil {
			return lookup(err, "project")
		}
		if !project.IsOwnedBy(client.ID) {
			return forbidden("You can only manage your own projects")
		}
		res := tx.Model(&models.Project{}).
			Where("id = ? AND status = ?", projectID, from).
			Update("status", to)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict(fmt.Sprintf("Only %s projects can be marked %s", from, to))
		}
		if to == models.ProjectCancelled {
			if err := tx.Model(&models.Bid{}).
				Where("project_id = ? AND status = ?", projectID, models.BidPending).
				Update("status", models.BidRejected).Error; err != nil {
				return err
			}
		}
		project.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("project status changed",
		zap.Uint("project_id", projectID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return &project, nil
}
