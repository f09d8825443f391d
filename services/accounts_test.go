package services

import (
	"context"
	"errors"
	"testing"

	"contractit/models"

	"github.com/shopspring/decimal"
)

func TestRegisterRequiresRole(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Accounts.Register(context.Background(), RegisterInput{
		Username: "nobody",
		Email:    "nobody@example.com",
		Password: "password123",
	})
	wantErr(t, err, ErrValidation)
	if n := f.count(t, &models.User{}, ""); n != 0 {
		t.Fatalf("users = %d, want 0", n)
	}
}

func TestRegisterCreatesProfilesPerRole(t *testing.T) {
	f := newFixture(t)
	hybrid := f.user(t, models.RoleClient, models.RoleContractor)

	if !hybrid.IsClient() || !hybrid.IsContractor() {
		t.Fatalf("roles = %v", hybrid.Roles.Roles())
	}
	if n := f.count(t, &models.ClientProfile{}, "user_id = ?", hybrid.ID); n != 1 {
		t.Errorf("client profiles = %d", n)
	}
	if n := f.count(t, &models.ContractorProfile{}, "user_id = ?", hybrid.ID); n != 1 {
		t.Errorf("contractor profiles = %d", n)
	}

	client := f.user(t, models.RoleClient)
	if n := f.count(t, &models.ContractorProfile{}, "user_id = ?", client.ID); n != 0 {
		t.Errorf("client-only account got a contractor profile")
	}

	loaded, err := f.svc.Accounts.Get(context.Background(), hybrid.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Language != "fr" {
		t.Errorf("language = %q, want fr", loaded.Language)
	}
	if loaded.Roles != models.NewRoleSet(models.RoleContractor, models.RoleClient) {
		t.Errorf("stored roles = %v", loaded.Roles.Roles())
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	in := RegisterInput{Username: "alice", Email: "Alice@Example.com", Password: "password123", Roles: models.NewRoleSet(models.RoleClient)}
	if _, err := f.svc.Accounts.Register(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	in.Username = "alice2"
	in.Email = " alice@example.com "
	_, err := f.svc.Accounts.Register(context.Background(), in)
	wantErr(t, err, ErrConflict)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, models.RoleClient)

	got, err := f.svc.Accounts.Authenticate(context.Background(), "USER1@example.com", "password123")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("got user %d, want %d", got.ID, u.ID)
	}

	for _, tc := range []struct{ email, password string }{
		{"user1@example.com", "wrong-password"},
		{"missing@example.com", "password123"},
	} {
		_, err := f.svc.Accounts.Authenticate(context.Background(), tc.email, tc.password)
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("%s: err = %v, want ErrInvalidCredentials", tc.email, err)
		}
	}
}

func TestUpdateProfileRoleFields(t *testing.T) {
	f := newFixture(t)
	client := f.user(t, models.RoleClient)
	contractor := f.user(t, models.RoleContractor)
	ctx := context.Background()

	specialties := "Plumbing"
	_, err := f.svc.Accounts.UpdateProfile(ctx, client, UpdateProfileInput{Specialties: &specialties})
	wantErr(t, err, ErrValidation)

	count := uint(3)
	_, err = f.svc.Accounts.UpdateProfile(ctx, contractor, UpdateProfileInput{ProjectHistoryCount: &count})
	wantErr(t, err, ErrValidation)

	city := "Quebec"
	rate := decimal.RequireFromString("45.50")
	updated, err := f.svc.Accounts.UpdateProfile(ctx, contractor, UpdateProfileInput{City: &city, Specialties: &specialties, HourlyRate: &rate})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.City != "Quebec" || updated.ContractorProfile == nil || updated.ContractorProfile.Specialties != "Plumbing" {
		t.Fatalf("updated = %+v", updated)
	}
	if !updated.ContractorProfile.HourlyRate.Equal(rate) {
		t.Errorf("hourly rate = %v", updated.ContractorProfile.HourlyRate)
	}
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	client, contractor, project, _ := f.awarded(t)
	ctx := context.Background()

	err := f.svc.Accounts.Delete(ctx, contractor, "not-my-password")
	wantErr(t, err, ErrValidation)

	if err := f.svc.Accounts.Delete(ctx, contractor, "password123"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n := f.count(t, &models.Bid{}, "contractor_id = ?", contractor.ID); n != 0 {
		t.Errorf("bids left = %d", n)
	}
	var p models.Project
	f.db.First(&p, project.ID)
	if p.ContractorID != nil {
		t.Errorf("project still references deleted contractor")
	}
	if p.ClientID == nil || *p.ClientID != client.ID {
		t.Errorf("project lost its client")
	}

	if err := f.svc.Accounts.Delete(ctx, client, "password123"); err != nil {
		t.Fatalf("Delete client: %v", err)
	}
	if n := f.count(t, &models.Project{}, "id = ?", project.ID); n != 1 {
		t.Errorf("project should survive its client")
	}
	if n := f.count(t, &models.Milestone{}, "project_id = ?", project.ID); n != 2 {
		t.Errorf("milestones = %d, want 2", n)
	}
}
