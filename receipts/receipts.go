package receipts

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

// Receipt is the data printed on a payment receipt.
type Receipt struct {
	PaymentID      uint
	ProjectTitle   string
	MilestoneTitle string
	Amount         decimal.Decimal
	ClientName     string
	ContractorName string
	RequestedAt    time.Time
	ApprovedAt     time.Time
	AutoApproved   bool
	Released       bool
}

// Renderer produces PDF receipts carrying a signed verification QR code.
type Renderer struct {
	baseURL string
	secret  []byte
}

func NewRenderer(baseURL, secret string) *Renderer {
	return &Renderer{baseURL: strings.TrimRight(baseURL, "/"), secret: []byte(secret)}
}

// Code returns the verification code for a payment.
func (r *Renderer) Code(paymentID uint, approvedAt time.Time) string {
	data := fmt.Sprintf("%d|%d", paymentID, approvedAt.Unix())
	h := hmac.New(sha256.New, r.secret)
	h.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func (r *Renderer) Verify(paymentID uint, approvedAt time.Time, code string) bool {
	return hmac.Equal([]byte(r.Code(paymentID, approvedAt)), []byte(code))
}

func (r *Renderer) Render(rc Receipt) ([]byte, error) {
	code := r.Code(rc.PaymentID, rc.ApprovedAt)
	qrPayload := fmt.Sprintf("%s/api/receipts/%d/verify?code=%s", r.baseURL, rc.PaymentID, code)
	qrPNG, err := qrcode.Encode(qrPayload, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("generate qr code: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Payment receipt #%d", rc.PaymentID), true)
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "CONTRACT-IT payment receipt")
	pdf.Ln(14)

	method := "Approved by client"
	switch {
	case rc.Released:
		method = "Released by client"
	case rc.AutoApproved:
		method = "Approved automatically"
	}

	pdf.SetFont("Arial", "", 12)
	lines := []string{
		fmt.Sprintf("Receipt: #%d", rc.PaymentID),
		fmt.Sprintf("Project: %s", rc.ProjectTitle),
		fmt.Sprintf("Milestone: %s", rc.MilestoneTitle),
		fmt.Sprintf("Amount: %s", rc.Amount.StringFixed(2)),
		fmt.Sprintf("Client: %s", rc.ClientName),
		fmt.Sprintf("Contractor: %s", rc.ContractorName),
		fmt.Sprintf("Requested: %s", rc.RequestedAt.Format("2006-01-02 15:04")),
		fmt.Sprintf("Approved: %s", rc.ApprovedAt.Format("2006-01-02 15:04")),
		method,
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for _, line := range lines {
		pdf.Cell(0, 10, tr(line))
		pdf.Ln(8)
	}
	pdf.Ln(4)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 10, "Verification code: "+code)

	imageOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", imageOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 150, 40, 40, 40, false, imageOpts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
