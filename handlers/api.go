package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"contractit/config"
	"contractit/events"
	"contractit/logger"
	"contractit/middleware"
	"contractit/models"
	"contractit/receipts"
	"contractit/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var validate = validator.New()

// API serves the JSON interface under /api.
type API struct {
	config   *config.Config
	services *services.Services
	auth     *middleware.Authenticator
	receipts *receipts.Renderer
	hub      *events.Hub
	limiter  *middleware.RateLimiter
	redis    *redis.Client
}

// NewAPI wires the JSON handlers. hub, limiter and rdb may be nil.
func NewAPI(cfg *config.Config, svc *services.Services, auth *middleware.Authenticator, renderer *receipts.Renderer, hub *events.Hub, limiter *middleware.RateLimiter, rdb *redis.Client) *API {
	return &API{
		config:   cfg,
		services: svc,
		auth:     auth,
		receipts: renderer,
		hub:      hub,
		limiter:  limiter,
		redis:    rdb,
	}
}

// Routes returns the /api router.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if a.limiter != nil {
			r.Use(a.limiter.Limit)
		}
		r.Post("/auth/register", a.Register)
		r.Post("/auth/login", a.Login)
	})
	r.Get("/users/{id}/portfolio", a.PublicPortfolio)
	r.Get("/receipts/{id}/verify", a.VerifyReceipt)
	r.Get("/ws", a.Websocket)

	r.Group(func(r chi.Router) {
		r.Use(a.auth.APIAuth)
		r.Use(middleware.Idempotency(a.redis, a.config.Redis.IdempotencyTTL))

		r.Get("/me", a.Me)
		r.Patch("/me", a.UpdateMe)
		r.Delete("/me", a.DeleteMe)
		r.Get("/projects/{id}", a.GetProject)
		r.Get("/payments", a.ListPayments)
		r.Get("/payments/{id}", a.GetPayment)
		r.Get("/payments/{id}/receipt", a.Receipt)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAPIRole(models.RoleClient))
			r.Get("/dashboard/client", a.ClientDashboard)
			r.Post("/projects", a.CreateProject)
			r.Put("/projects/{id}", a.UpdateProject)
			r.Post("/projects/{id}/complete", a.CompleteProject)
			r.Post("/projects/{id}/cancel", a.CancelProject)
			r.Get("/projects/{id}/bids", a.ProjectBids)
			r.Post("/bids/{id}/accept", a.AcceptBid)
			r.Post("/milestones/{id}/release", a.ReleasePayment)
			r.Post("/payments/{id}/approve", a.ApprovePayment)
			r.Post("/payments/{id}/decline", a.DeclinePayment)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAPIRole(models.RoleContractor))
			r.Get("/dashboard/contractor", a.ContractorDashboard)
			r.Get("/jobs", a.Jobs)
			r.Post("/projects/{id}/bids", a.SubmitBid)
			r.Get("/bids/mine", a.MyBids)
			r.Post("/milestones/{id}/payment-request", a.RequestPayment)
			r.Post("/projects/{id}/portfolio/toggle", a.TogglePortfolio)
			r.Post("/portfolio/external", a.AddExternalPortfolio)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error   string   `json:"error"`
	Field   string   `json:"field,omitempty"`
	Details []string `json:"details,omitempty"`
}

// writeError maps a service error to its HTTP status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Error: services.UserMessage(err)}
	status := http.StatusInternalServerError

	var ve *services.ValidationError
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		resp.Field = ve.Field
	case errors.Is(err, services.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		status = http.StatusConflict
	default:
		logger.FromContext(r.Context(), nil).Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, resp)
}

// FormatValidationErrors lists the failed constraints of a validator error.
func FormatValidationErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("Field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s (value: %s)", msg, fe.Param())
		}
		out = append(out, msg)
	}
	return out
}

// decode reads a JSON body into dst and validates it. It writes the 400
// response itself and reports false on failure.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "Validation failed",
			Details: FormatValidationErrors(err),
		})
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, ok := idParam(r, "id")
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
	}
	return id, ok
}
