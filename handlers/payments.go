package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"time"

	"contractit/config"
	"contractit/middleware"
	"contractit/models"
	"contractit/receipts"
	"contractit/services"
)

// PaymentHandler serves the payment request, review and portfolio forms.
type PaymentHandler struct {
	config    *config.Config
	templates pages
	services  *services.Services
	receipts  *receipts.Renderer
}

func NewPaymentHandler(cfg *config.Config, templates map[string]*template.Template, svc *services.Services, renderer *receipts.Renderer) *PaymentHandler {
	return &PaymentHandler{config: cfg, templates: templates, services: svc, receipts: renderer}
}

// formImage returns the optional image of a multipart form. The returned
// closer is never nil.
func formImage(r *http.Request, field string) (io.Reader, func(), error) {
	file, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, err
	}
	return file, func() { file.Close() }, nil
}

func parseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	return r.ParseMultipartForm(maxBytes)
}

func (h *PaymentHandler) RequestPage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		h.templates.notFound(w, r)
		return
	}
	milestone, err := h.services.Payments.Milestone(r.Context(), user, id)
	if err != nil {
		h.templates.failPage(w, r, err)
		return
	}
	data := pageData(r, user)
	data["Milestone"] = milestone
	h.templates.render(w, r, "payment-request", data)
}

func (h *PaymentHandler) RequestPayment(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		h.templates.notFound(w, r)
		return
	}
	back := fmt.Sprintf("/milestones/%d/payment", id)
	if err := parseMultipart(w, r, h.config.Uploads.MaxBytes); err != nil {
		redirectError(w, r, back, "The upload is too large or malformed")
		return
	}
	image, closeImage, err := formImage(r, "image")
	if err != nil {
		redirectError(w, r, back, "Could not read the uploaded image")
		return
	}
	defer closeImage()

	_, err = h.services.Payments.Request(r.Context(), user, id, services.RequestPaymentInput{
		Description: r.FormValue("description"),
		Image:       image,
	})
	if err != nil {
		h.templates.fail(w, r, err, back)
		return
	}
	redirectSuccess(w, r, "/projects/awarded", "Payment requested")
}

func (h *PaymentHandler) Release(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		h.templates.notFound(w, r)
		return
	}
	milestone, err := h.services.Payments.Milestone(r.Context(), user, id)
	if err != nil {
		h.templates.failPage(w, r, err)
		return
	}
	back := fmt.Sprintf("/projects/%d", milestone.ProjectID)
	if _, err := h.services.Payments.Release(r.Context(), user, id); err != nil {
		h.templates.fail(w, r, err, back)
		return
	}
	redirectSuccess(w, r, back, "Payment released")
}

func (h *PaymentHandler) ReviewPage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		h.templates.notFound(w, r)
		return
	}
	payment, err := h.services.Payments.Get(r.Context(), user, id)
	if err != nil {
		h.templates.failPage(w, r, err)
		return
	}
	data := pageData(r, user)
	data["Payment"] = payment
	data["ShouldAutoApprove"] = h.services.Payments.ShouldAutoApprove(payment)
	h.templates.render(w, r, "payment-review", data)
}

// Review approves or declines a request depending on the submitted action.
func (h *PaymentHandler) Review(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		h.templates.notFound(w, r)
		return
	}
	back := fmt.Sprintf("/payments/%d/review", id)
	if err := r.ParseForm(); err != nil {
		redirectError(w, r, back, "Invalid form data")
		return
	}

	var err error
	var success string
	switch r.FormValue("action") {
	case "approve":
		_, err = h.services.Payments.Approve(r.Context(), user, id)
		success = "Payment approved"
	case "decline":
		_, err = h.services.Payments.Decline(r.Context(), user, id, services.DeclineInput{
			RefusalReason:  r.FormValue("refusal_reason"),
			ClientRequests: r.FormValue("client_requests"),
		})
		success = "Payment declined"
	default:
		redirectError(w, r, back, "Choose approve or decline")
		return
	}
	if err != nil {
		h.templates.fail(w, r, err, back)
		return
	}
	redirectSuccess(w, r, "/dashboard", success)
}

func (h *PaymentHandler) TogglePortfolio(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		h.templates.notFound(w, r)
		return
	}
	item, err := h.services.Portfolio.ToggleInternal(r.Context(), user, id)
	if err != nil {
		h.templates.fail(w, r, err, "/projects/awarded")
		return
	}
	msg := "Project hidden from your portfolio"
	if item.Visible {
		msg = "Project shown in your portfolio"
	}
	redirectSuccess(w, r, "/projects/awarded", msg)
}

func (h *PaymentHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		h.templates.notFound(w, r)
		return
	}
	pdf, err := receiptPDF(r.Context(), h.services, h.receipts, user, id)
	if err != nil {
		h.templates.failPage(w, r, err)
		return
	}
	writePDF(w, id, pdf)
}

// ExportCSV downloads the payment requests of one month the user is party
// to.
func (h *PaymentHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		http.Error(w, "Invalid month", http.StatusBadRequest)
		return
	}
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil || year < 2000 || year > 2100 {
		http.Error(w, "Invalid year", http.StatusBadRequest)
		return
	}
	startDate := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	endDate := startDate.AddDate(0, 1, 0)

	var payments []models.PaymentRequest
	if user.IsClient() {
		list, err := h.services.Payments.ListForClient(r.Context(), user)
		if err != nil {
			h.templates.failPage(w, r, err)
			return
		}
		payments = append(payments, list...)
	}
	if user.IsContractor() {
		list, err := h.services.Payments.ListForContractor(r.Context(), user)
		if err != nil {
			h.templates.failPage(w, r, err)
			return
		}
		payments = append(payments, list...)
	}

	filename := fmt.Sprintf("payments_%d_%02d.csv", year, month)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	writer.Write([]string{"Payment", "Project", "Milestone", "Amount", "Requested", "Status", "Approved"})
	for _, p := range payments {
		if p.RequestedAt.Before(startDate) || !p.RequestedAt.Before(endDate) {
			continue
		}
		var project, milestone, amount string
		if m := p.Milestone; m != nil {
			milestone = m.Title
			amount = m.Amount.StringFixed(2)
			if m.Project != nil {
				project = m.Project.Title
			}
		}
		approved := ""
		if p.ApprovedAt != nil {
			approved = p.ApprovedAt.Format("2006-01-02")
		}
		writer.Write([]string{
			strconv.FormatUint(uint64(p.ID), 10),
			project,
			milestone,
			amount,
			p.RequestedAt.Format("2006-01-02"),
			string(p.Status()),
			approved,
		})
	}
}
