package services

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"
	"time"

	"contractit/events"
	"contractit/models"
	"contractit/uploads"
)

func TestRequestPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, contractor, _, m := f.awarded(t)

	p, err := f.svc.Payments.Request(ctx, contractor, m.ID, RequestPaymentInput{Description: "Done"})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !p.IsPending() || !p.RequestedAt.Equal(f.now) {
		t.Errorf("payment = %+v", p)
	}
	var milestone models.Milestone
	f.db.First(&milestone, m.ID)
	if milestone.Status != models.MilestoneCompleted {
		t.Errorf("milestone status = %q, want completed", milestone.Status)
	}

	_, err = f.svc.Payments.Request(ctx, contractor, m.ID, RequestPaymentInput{Description: "Again"})
	wantErr(t, err, ErrConflict)
	if n := f.count(t, &models.PaymentRequest{}, "milestone_id = ?", m.ID); n != 1 {
		t.Fatalf("payment requests = %d, want 1", n)
	}
}

func TestRequestPaymentNotAwarded(t *testing.T) {
	f := newFixture(t)
	_, _, _, m := f.awarded(t)
	other := f.user(t, models.RoleContractor)

	_, err := f.svc.Payments.Request(context.Background(), other, m.ID, RequestPaymentInput{})
	wantErr(t, err, ErrForbidden)
}

func TestRequestPaymentWithImage(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	f.svc = New(f.db, nil, Options{BcryptCost: 4, Now: func() time.Time { return f.now }, Uploads: uploads.NewStore(dir, 1<<20)})
	_, contractor, _, m := f.awarded(t)

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 400, 400))); err != nil {
		t.Fatal(err)
	}
	p, err := f.svc.Payments.Request(context.Background(), contractor, m.ID, RequestPaymentInput{Image: &buf})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if p.ImagePath == "" || p.ThumbnailPath == "" {
		t.Errorf("image paths not recorded: %+v", p)
	}
}

func TestApproveAndDecline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client, contractor, project, m := f.awarded(t)
	p, err := f.svc.Payments.Request(ctx, contractor, m.ID, RequestPaymentInput{})
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.Payments.Approve(ctx, contractor, p.ID)
	wantErr(t, err, ErrForbidden)

	approved, err := f.svc.Payments.Approve(ctx, client, p.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if !approved.Approved || approved.ApprovedAt == nil || approved.AutoApproved {
		t.Errorf("approved = %+v", approved)
	}
	var milestone models.Milestone
	f.db.First(&milestone, m.ID)
	if milestone.Status != models.MilestoneApproved {
		t.Errorf("milestone = %q, want approved", milestone.Status)
	}

	_, err = f.svc.Payments.Decline(ctx, client, p.ID, DeclineInput{RefusalReason: "late"})
	wantErr(t, err, ErrConflict)

	second := project.Milestones[1]
	p2, err := f.svc.Payments.Request(ctx, contractor, second.ID, RequestPaymentInput{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.Payments.Decline(ctx, client, p2.ID, DeclineInput{})
	wantErr(t, err, ErrValidation)

	declined, err := f.svc.Payments.Decline(ctx, client, p2.ID, DeclineInput{RefusalReason: "Tiles are cracked", ClientRequests: "Replace row 3"})
	if err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if !declined.Declined || declined.RefusalReason != "Tiles are cracked" {
		t.Errorf("declined = %+v", declined)
	}
	var reopened models.Milestone
	if err := f.db.First(&reopened, second.ID).Error; err != nil {
		t.Fatal(err)
	}
	if reopened.Status != models.MilestoneInProgress {
		t.Errorf("milestone = %q, want in_progress", reopened.Status)
	}
	_, err = f.svc.Payments.Approve(ctx, client, p2.ID)
	wantErr(t, err, ErrConflict)

	if n := f.count(t, &models.OutboxEvent{}, "routing_key = ?", events.PaymentDeclined); n != 1 {
		t.Errorf("payment.declined events = %d", n)
	}
}

func TestRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client, contractor, project, m := f.awarded(t)

	p, err := f.svc.Payments.Release(ctx, client, m.ID)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !p.Approved || !p.ReleasedByClient || p.ContractorID != contractor.ID {
		t.Errorf("released = %+v", p)
	}

	_, err = f.svc.Payments.Release(ctx, client, m.ID)
	wantErr(t, err, ErrConflict)

	second := project.Milestones[1]
	if _, err := f.svc.Payments.Request(ctx, contractor, second.ID, RequestPaymentInput{}); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.Payments.Release(ctx, client, second.ID)
	wantErr(t, err, ErrConflict)

	unassigned := f.project(t, client)
	_, err = f.svc.Payments.Release(ctx, client, unassigned.Milestones[0].ID)
	wantErr(t, err, ErrValidation)
}

func TestAutoApproveDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client, contractor, project, m := f.awarded(t)

	old, err := f.svc.Payments.Request(ctx, contractor, m.ID, RequestPaymentInput{})
	if err != nil {
		t.Fatal(err)
	}
	f.now = f.now.Add(10 * 24 * time.Hour)
	fresh, err := f.svc.Payments.Request(ctx, contractor, project.Milestones[1].ID, RequestPaymentInput{})
	if err != nil {
		t.Fatal(err)
	}

	f.now = f.now.Add(4 * 24 * time.Hour)
	if !f.svc.Payments.ShouldAutoApprove(old) {
		t.Error("14 day old request should be eligible")
	}
	if f.svc.Payments.ShouldAutoApprove(fresh) {
		t.Error("4 day old request should not be eligible")
	}

	n, err := f.svc.Payments.AutoApproveDue(ctx, f.now)
	if err != nil || n != 1 {
		t.Fatalf("AutoApproveDue = %d, %v; want 1", n, err)
	}
	var gotOld, gotFresh models.PaymentRequest
	if err := f.db.First(&gotOld, old.ID).Error; err != nil {
		t.Fatal(err)
	}
	if !gotOld.Approved || !gotOld.AutoApproved {
		t.Errorf("old request = %+v", gotOld)
	}
	if err := f.db.First(&gotFresh, fresh.ID).Error; err != nil {
		t.Fatal(err)
	}
	if !gotFresh.IsPending() {
		t.Errorf("fresh request should still be pending")
	}

	n, err = f.svc.Payments.AutoApproveDue(ctx, f.now)
	if err != nil || n != 0 {
		t.Fatalf("second sweep = %d, %v; want 0", n, err)
	}

	// A declined request never auto-approves, however old.
	if _, err := f.svc.Payments.Decline(ctx, client, fresh.ID, DeclineInput{RefusalReason: "no"}); err != nil {
		t.Fatal(err)
	}
	f.now = f.now.Add(60 * 24 * time.Hour)
	if n, _ := f.svc.Payments.AutoApproveDue(ctx, f.now); n != 0 {
		t.Errorf("declined request was auto-approved")
	}
}

func TestPaymentVisibilityAndReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client, contractor, _, m := f.awarded(t)
	stranger := f.user(t, models.RoleClient)

	p, err := f.svc.Payments.Request(ctx, contractor, m.ID, RequestPaymentInput{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.Payments.Get(ctx, stranger, p.ID)
	wantErr(t, err, ErrForbidden)

	_, err = f.svc.Payments.Receipt(ctx, client, p.ID)
	wantErr(t, err, ErrConflict)

	if _, err := f.svc.Payments.Approve(ctx, client, p.ID); err != nil {
		t.Fatal(err)
	}
	rc, err := f.svc.Payments.Receipt(ctx, contractor, p.ID)
	if err != nil {
		t.Fatalf("Receipt: %v", err)
	}
	if rc.ClientName != client.Username || rc.ContractorName != contractor.Username || !rc.Amount.Equal(dec("400")) {
		t.Errorf("receipt = %+v", rc)
	}

	forClient, err := f.svc.Payments.ListForClient(ctx, client)
	if err != nil || len(forClient) != 1 {
		t.Fatalf("ListForClient = %v, %v", forClient, err)
	}
	forContractor, err := f.svc.Payments.ListForContractor(ctx, contractor)
	if err != nil || len(forContractor) != 1 || forContractor[0].Milestone == nil {
		t.Fatalf("ListForContractor = %v, %v", forContractor, err)
	}
}
