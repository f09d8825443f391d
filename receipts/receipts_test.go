package receipts

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRenderProducesPDF(t *testing.T) {
	r := NewRenderer("http://localhost:8080/", "secret")
	approved := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	out, err := r.Render(Receipt{
		PaymentID:      7,
		ProjectTitle:   "Kitchen renovation",
		MilestoneTitle: "Demolition",
		Amount:         decimal.RequireFromString("400.00"),
		ClientName:     "alice",
		ContractorName: "bob",
		RequestedAt:    approved.Add(-48 * time.Hour),
		ApprovedAt:     approved,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Fatalf("output is not a pdf: %q", out[:8])
	}
}

func TestVerify(t *testing.T) {
	r := NewRenderer("http://localhost", "secret")
	at := time.Unix(1700000000, 0)
	code := r.Code(3, at)

	if !r.Verify(3, at, code) {
		t.Error("code should verify")
	}
	if r.Verify(4, at, code) {
		t.Error("code for another payment must not verify")
	}
	if NewRenderer("http://localhost", "other").Verify(3, at, code) {
		t.Error("code signed with another secret must not verify")
	}
}
