package services

import (
	"context"
	"encoding/json"
	"testing"

	"contractit/events"
	"contractit/models"
)

func TestSubmitBidRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.user(t, models.RoleClient, models.RoleContractor)
	contractor := f.user(t, models.RoleContractor)
	p := f.project(t, client)

	_, err := f.svc.Bids.Submit(ctx, client, p.ID, SubmitBidInput{Amount: dec("10"), Message: "me"})
	wantErr(t, err, ErrForbidden)

	_, err = f.svc.Bids.Submit(ctx, contractor, p.ID, SubmitBidInput{Amount: dec("0"), Message: "free"})
	wantErr(t, err, ErrValidation)

	_, err = f.svc.Bids.Submit(ctx, contractor, 4242, SubmitBidInput{Amount: dec("10"), Message: "hi"})
	wantErr(t, err, ErrNotFound)

	onlyClient := f.user(t, models.RoleClient)
	_, err = f.svc.Bids.Submit(ctx, onlyClient, p.ID, SubmitBidInput{Amount: dec("10"), Message: "hi"})
	wantErr(t, err, ErrForbidden)

	b := f.bid(t, contractor, p.ID)
	if b.Status != models.BidPending {
		t.Errorf("status = %q, want pending", b.Status)
	}
}

func TestSubmitBidDuplicateRefused(t *testing.T) {
	f := newFixture(t)
	client := f.user(t, models.RoleClient)
	contractor := f.user(t, models.RoleContractor)
	p := f.project(t, client)
	f.bid(t, contractor, p.ID)

	_, err := f.svc.Bids.Submit(context.Background(), contractor, p.ID, SubmitBidInput{Amount: dec("800"), Message: "again"})
	wantErr(t, err, ErrConflict)
	if n := f.count(t, &models.Bid{}, "project_id = ?", p.ID); n != 1 {
		t.Fatalf("bids = %d, want 1", n)
	}
}

func TestSubmitBidPrivateProject(t *testing.T) {
	f := newFixture(t)
	client := f.user(t, models.RoleClient)
	in := projectInput("100", "100")
	in.IsPublic = false
	p, err := f.svc.Projects.Create(context.Background(), client, in)
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.Bids.Submit(context.Background(), f.user(t, models.RoleContractor), p.ID, SubmitBidInput{Amount: dec("90"), Message: "hi"})
	wantErr(t, err, ErrConflict)
}

func TestAcceptBid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.user(t, models.RoleClient)
	a := f.user(t, models.RoleContractor)
	b := f.user(t, models.RoleContractor)
	p := f.project(t, client)
	bidA := f.bid(t, a, p.ID)
	bidB := f.bid(t, b, p.ID)

	accepted, err := f.svc.Bids.Accept(ctx, client, bidA.ID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if accepted.Status != models.BidAccepted {
		t.Errorf("returned status = %q", accepted.Status)
	}

	var gotA, gotB models.Bid
	f.db.First(&gotA, bidA.ID)
	f.db.First(&gotB, bidB.ID)
	if gotA.Status != models.BidAccepted || gotB.Status != models.BidRejected {
		t.Fatalf("A=%q B=%q", gotA.Status, gotB.Status)
	}

	var project models.Project
	f.db.First(&project, p.ID)
	if project.ContractorID == nil || *project.ContractorID != a.ID {
		t.Errorf("contractor = %v, want %d", project.ContractorID, a.ID)
	}
	if project.Status != models.ProjectInProgress || project.IsPublic {
		t.Errorf("project status=%q public=%v", project.Status, project.IsPublic)
	}

	var ev models.OutboxEvent
	if err := f.db.Where("routing_key = ?", events.BidAccepted).First(&ev).Error; err != nil {
		t.Fatalf("bid.accepted event missing: %v", err)
	}
	var payload events.BidAcceptedPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.RejectedBidIDs) != 1 || payload.RejectedBidIDs[0] != bidB.ID {
		t.Errorf("rejected ids = %v", payload.RejectedBidIDs)
	}
	if len(payload.RecipientIDs) != 3 {
		t.Errorf("recipients = %v, want client and both bidders", payload.RecipientIDs)
	}
}

func TestAcceptBidByNonOwnerLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	client := f.user(t, models.RoleClient)
	intruder := f.user(t, models.RoleClient)
	contractor := f.user(t, models.RoleContractor)
	p := f.project(t, client)
	b := f.bid(t, contractor, p.ID)

	_, err := f.svc.Bids.Accept(context.Background(), intruder, b.ID)
	wantErr(t, err, ErrForbidden)

	var bid models.Bid
	f.db.First(&bid, b.ID)
	var project models.Project
	f.db.First(&project, p.ID)
	if bid.Status != models.BidPending || project.Status != models.ProjectActive || !project.IsPublic || project.ContractorID != nil {
		t.Fatalf("state changed: bid=%q project=%+v", bid.Status, project)
	}
	if n := f.count(t, &models.OutboxEvent{}, "routing_key = ?", events.BidAccepted); n != 0 {
		t.Errorf("refused acceptance wrote an event")
	}
}

func TestAcceptSecondBidRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.user(t, models.RoleClient)
	a := f.user(t, models.RoleContractor)
	b := f.user(t, models.RoleContractor)
	p := f.project(t, client)
	bidA := f.bid(t, a, p.ID)
	bidB := f.bid(t, b, p.ID)

	if _, err := f.svc.Bids.Accept(ctx, client, bidA.ID); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.Bids.Accept(ctx, client, bidB.ID)
	wantErr(t, err, ErrConflict)
	_, err = f.svc.Bids.Accept(ctx, client, bidA.ID)
	wantErr(t, err, ErrConflict)

	var project models.Project
	f.db.First(&project, p.ID)
	if *project.ContractorID != a.ID {
		t.Errorf("project reassigned to %d", *project.ContractorID)
	}
}

func TestListBids(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.user(t, models.RoleClient)
	contractor := f.user(t, models.RoleContractor)
	p := f.project(t, client)
	f.bid(t, contractor, p.ID)

	bids, err := f.svc.Bids.ListForProject(ctx, client, p.ID)
	if err != nil || len(bids) != 1 || bids[0].Contractor == nil {
		t.Fatalf("ListForProject: %v %+v", err, bids)
	}
	_, err = f.svc.Bids.ListForProject(ctx, contractor, p.ID)
	wantErr(t, err, ErrForbidden)

	mine, err := f.svc.Bids.ListMine(ctx, contractor)
	if err != nil || len(mine) != 1 || mine[0].Project == nil || mine[0].Project.ID != p.ID {
		t.Fatalf("ListMine: %v %+v", err, mine)
	}
}
