package handlers

import (
	"net/http"

	"contractit/middleware"
	"contractit/models"
	"contractit/services"
)

type declineRequest struct {
	RefusalReason  string `json:"refusal_reason" validate:"required"`
	ClientRequests string `json:"client_requests"`
}

func (a *API) RequestPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := parseMultipart(w, r, a.config.Uploads.MaxBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "The upload is too large or malformed"})
		return
	}
	image, closeImage, err := formImage(r, "image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Could not read the uploaded image", Field: "image"})
		return
	}
	defer closeImage()

	payment, err := a.services.Payments.Request(r.Context(), middleware.GetUserFromContext(r.Context()), id, services.RequestPaymentInput{
		Description: r.FormValue("description"),
		Image:       image,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a.paymentResponse(payment))
}

func (a *API) ReleasePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	payment, err := a.services.Payments.Release(r.Context(), middleware.GetUserFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a.paymentResponse(payment))
}

// ListPayments returns the requests the user is party to. Hybrid accounts
// may narrow the list with ?as=client or ?as=contractor.
func (a *API) ListPayments(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	as := r.URL.Query().Get("as")

	payments := make([]models.PaymentRequest, 0)
	if user.IsClient() && as != string(models.RoleContractor) {
		list, err := a.services.Payments.ListForClient(r.Context(), user)
		if err != nil {
			writeError(w, r, err)
			return
		}
		payments = append(payments, list...)
	}
	if user.IsContractor() && as != string(models.RoleClient) {
		list, err := a.services.Payments.ListForContractor(r.Context(), user)
		if err != nil {
			writeError(w, r, err)
			return
		}
		payments = append(payments, list...)
	}
	writeJSON(w, http.StatusOK, a.paymentResponses(payments))
}

func (a *API) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	payment, err := a.services.Payments.Get(r.Context(), middleware.GetUserFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.paymentResponse(payment))
}

func (a *API) ApprovePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	payment, err := a.services.Payments.Approve(r.Context(), middleware.GetUserFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.paymentResponse(payment))
}

func (a *API) DeclinePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req declineRequest
	if !decode(w, r, &req) {
		return
	}
	payment, err := a.services.Payments.Decline(r.Context(), middleware.GetUserFromContext(r.Context()), id, services.DeclineInput{
		RefusalReason:  req.RefusalReason,
		ClientRequests: req.ClientRequests,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.paymentResponse(payment))
}

func (a *API) Receipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	pdf, err := receiptPDF(r.Context(), a.services, a.receipts, middleware.GetUserFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePDF(w, id, pdf)
}

// VerifyReceipt checks the code printed in a receipt's QR code.
func (a *API) VerifyReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	payment, err := a.services.Payments.Approved(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !a.receipts.Verify(payment.ID, *payment.ApprovedAt, r.URL.Query().Get("code")) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"valid": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":       true,
		"payment_id":  payment.ID,
		"milestone":   payment.Milestone.Title,
		"project":     payment.Milestone.Project.Title,
		"amount":      payment.Milestone.Amount,
		"approved_at": payment.ApprovedAt,
	})
}
