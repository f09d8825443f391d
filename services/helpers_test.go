package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"contractit/database"
	"contractit/models"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type fixture struct {
	db  *gorm.DB
	svc *Services
	now time.Time
	seq int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:  database.OpenTest(t),
		now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = New(f.db, nil, Options{
		BcryptCost: bcrypt.MinCost,
		Now:        func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) user(t *testing.T, roles ...models.Role) *models.User {
	t.Helper()
	f.seq++
	u, err := f.svc.Accounts.Register(context.Background(), RegisterInput{
		Username: fmt.Sprintf("user%d", f.seq),
		Email:    fmt.Sprintf("user%d@example.com", f.seq),
		Password: "password123",
		Roles:    models.NewRoleSet(roles...),
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return u
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func projectInput(budget string, amounts ...string) CreateProjectInput {
	in := CreateProjectInput{
		Title:       "Kitchen renovation",
		Description: "Replace cabinets and counters",
		Category:    "Renovation",
		Location:    "Montreal",
		Budget:      dec(budget),
		Deadline:    time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		IsPublic:    true,
	}
	for i, a := range amounts {
		in.Milestones = append(in.Milestones, MilestoneInput{
			Title:   fmt.Sprintf("Step %d", i+1),
			DueDate: time.Date(2024, 6, 1+i, 0, 0, 0, 0, time.UTC),
			Amount:  dec(a),
		})
	}
	return in
}

func (f *fixture) project(t *testing.T, client *models.User) *models.Project {
	t.Helper()
	p, err := f.svc.Projects.Create(context.Background(), client, projectInput("1000.00", "400.00", "600.00"))
	if err != nil {
		t.Fatalf("Create project: %v", err)
	}
	return p
}

func (f *fixture) bid(t *testing.T, contractor *models.User, projectID uint) *models.Bid {
	t.Helper()
	b, err := f.svc.Bids.Submit(context.Background(), contractor, projectID, SubmitBidInput{Amount: dec("950"), Message: "I can do it"})
	if err != nil {
		t.Fatalf("Submit bid: %v", err)
	}
	return b
}

// awarded returns a project in progress with its first milestone.
func (f *fixture) awarded(t *testing.T) (client, contractor *models.User, project *models.Project, milestone models.Milestone) {
	t.Helper()
	client = f.user(t, models.RoleClient)
	contractor = f.user(t, models.RoleContractor)
	project = f.project(t, client)
	b := f.bid(t, contractor, project.ID)
	if _, err := f.svc.Bids.Accept(context.Background(), client, b.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	return client, contractor, project, project.Milestones[0]
}

func (f *fixture) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func wantErr(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("err = %v, want %v", err, kind)
	}
}
