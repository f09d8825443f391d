package services

import (
	"context"
	"testing"

	"contractit/models"
)

func TestToggleInternal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client, contractor, project, _ := f.awarded(t)

	_, err := f.svc.Portfolio.ToggleInternal(ctx, contractor, project.ID)
	wantErr(t, err, ErrConflict)

	if _, err := f.svc.Projects.Complete(ctx, client, project.ID); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.Portfolio.ToggleInternal(ctx, client, project.ID)
	wantErr(t, err, ErrForbidden)

	item, err := f.svc.Portfolio.ToggleInternal(ctx, contractor, project.ID)
	if err != nil || !item.Visible {
		t.Fatalf("first toggle = %+v, %v; want visible", item, err)
	}
	item, err = f.svc.Portfolio.ToggleInternal(ctx, contractor, project.ID)
	if err != nil || item.Visible {
		t.Fatalf("second toggle = %+v, %v; want hidden", item, err)
	}
	if n := f.count(t, &models.InternalPortfolioItem{}, ""); n != 1 {
		t.Errorf("items = %d, want 1", n)
	}

	public, err := f.svc.Portfolio.ListPublic(ctx, contractor.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(public.Internal) != 0 {
		t.Errorf("hidden item is listed publicly")
	}

	if _, err := f.svc.Portfolio.ToggleInternal(ctx, contractor, project.ID); err != nil {
		t.Fatal(err)
	}
	public, _ = f.svc.Portfolio.ListPublic(ctx, contractor.ID)
	if len(public.Internal) != 1 || public.Internal[0].Project == nil {
		t.Errorf("visible item missing: %+v", public.Internal)
	}
}

func TestAddExternal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contractor := f.user(t, models.RoleContractor)
	client := f.user(t, models.RoleClient)

	_, err := f.svc.Portfolio.AddExternal(ctx, client, AddExternalInput{Title: "Deck"})
	wantErr(t, err, ErrForbidden)
	_, err = f.svc.Portfolio.AddExternal(ctx, contractor, AddExternalInput{})
	wantErr(t, err, ErrValidation)

	if _, err := f.svc.Portfolio.AddExternal(ctx, contractor, AddExternalInput{Title: "Cedar deck", Description: "2019"}); err != nil {
		t.Fatal(err)
	}
	public, err := f.svc.Portfolio.ListPublic(ctx, contractor.ID)
	if err != nil || len(public.External) != 1 {
		t.Fatalf("ListPublic = %+v, %v", public, err)
	}

	_, err = f.svc.Portfolio.ListPublic(ctx, client.ID)
	wantErr(t, err, ErrNotFound)
}
