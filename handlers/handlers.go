package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"contractit/logger"
	"contractit/models"
	"contractit/receipts"
	"contractit/services"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type transitionFunc func(ctx context.Context, client *models.User, projectID uint) (*models.Project, error)

func idParam(r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func parseDecimal(s string) (*decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, true
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, false
	}
	return &d, true
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(s))
}

// fail answers a failed form action. Input problems and conflicts go back to
// the form, everything else gets an error page.
func (p pages) fail(w http.ResponseWriter, r *http.Request, err error, back string) {
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrConflict):
		redirectError(w, r, back, services.UserMessage(err))
	default:
		p.failPage(w, r, err)
	}
}

// failPage renders the error page for err.
func (p pages) failPage(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrConflict):
		status = http.StatusBadRequest
	default:
		logger.FromContext(r.Context(), nil).Error("request failed", zap.Error(err))
	}
	p.renderStatus(w, r, status, "error", map[string]interface{}{
		"Status":  status,
		"Message": services.UserMessage(err),
	})
}

func (p pages) notFound(w http.ResponseWriter, r *http.Request) {
	p.renderStatus(w, r, http.StatusNotFound, "error", map[string]interface{}{
		"Status":  http.StatusNotFound,
		"Message": "Page not found",
	})
}

func receiptPDF(ctx context.Context, svc *services.Services, renderer *receipts.Renderer, user *models.User, paymentID uint) ([]byte, error) {
	rc, err := svc.Payments.Receipt(ctx, user, paymentID)
	if err != nil {
		return nil, err
	}
	return renderer.Render(*rc)
}

func writePDF(w http.ResponseWriter, paymentID uint, pdf []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=receipt-%d.pdf", paymentID))
	_, _ = w.Write(pdf)
}
