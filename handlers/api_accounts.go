package handlers

import (
	"net/http"
	"time"

	"contractit/middleware"
	"contractit/models"
	"contractit/services"

	"github.com/shopspring/decimal"
)

type registerRequest struct {
	Username    string   `json:"username" validate:"required,min=3,max=150"`
	Email       string   `json:"email" validate:"required,email"`
	Password    string   `json:"password" validate:"required,min=8"`
	Roles       []string `json:"roles" validate:"required,min=1,dive,oneof=client contractor"`
	Phone       string   `json:"phone" validate:"max=15"`
	City        string   `json:"city" validate:"max=100"`
	CompanyName string   `json:"company_name" validate:"max=255"`
	Language    string   `json:"language" validate:"omitempty,oneof=fr en"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type updateMeRequest struct {
	Phone       *string `json:"phone" validate:"omitempty,max=15"`
	City        *string `json:"city" validate:"omitempty,max=100"`
	Bio         *string `json:"bio"`
	Language    *string `json:"language" validate:"omitempty,oneof=fr en"`
	CompanyName *string `json:"company_name" validate:"omitempty,max=255"`

	Specialties    *string          `json:"specialties" validate:"omitempty,max=255"`
	HourlyRate     *decimal.Decimal `json:"hourly_rate"`
	Availability   *string          `json:"availability" validate:"omitempty,max=100"`
	Certifications *string          `json:"certifications"`

	ProjectHistoryCount *uint `json:"project_history_count"`
}

type deleteMeRequest struct {
	Password string `json:"password" validate:"required"`
}

func (a *API) issue(w http.ResponseWriter, r *http.Request, status int, user *models.User) {
	token, err := a.auth.GenerateToken(user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, authResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(a.auth.Expiration()),
		User:      NewUserResponse(user),
	})
}

func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	var roles models.RoleSet
	for _, name := range req.Roles {
		role, err := models.ParseRole(name)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: "roles"})
			return
		}
		roles = roles.With(role)
	}

	user, err := a.services.Accounts.Register(r.Context(), services.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		Roles:       roles,
		Phone:       req.Phone,
		City:        req.City,
		CompanyName: req.CompanyName,
		Language:    req.Language,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.issue(w, r, http.StatusCreated, user)
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	user, err := a.services.Accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.issue(w, r, http.StatusOK, user)
}

func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	current := middleware.GetUserFromContext(r.Context())
	user, err := a.services.Accounts.Get(r.Context(), current.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewUserResponse(user))
}

func (a *API) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if !decode(w, r, &req) {
		return
	}
	user, err := a.services.Accounts.UpdateProfile(r.Context(), middleware.GetUserFromContext(r.Context()), services.UpdateProfileInput{
		Phone:               req.Phone,
		City:                req.City,
		Bio:                 req.Bio,
		Language:            req.Language,
		CompanyName:         req.CompanyName,
		Specialties:         req.Specialties,
		HourlyRate:          req.HourlyRate,
		Availability:        req.Availability,
		Certifications:      req.Certifications,
		ProjectHistoryCount: req.ProjectHistoryCount,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewUserResponse(user))
}

func (a *API) DeleteMe(w http.ResponseWriter, r *http.Request) {
	var req deleteMeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := a.services.Accounts.Delete(r.Context(), middleware.GetUserFromContext(r.Context()), req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) PublicPortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	portfolio, err := a.services.Portfolio.ListPublic(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":     NewUserResponse(portfolio.User),
		"internal": portfolio.Internal,
		"external": portfolio.External,
	})
}

// Websocket upgrades to the notification stream. Browsers cannot set headers
// on the upgrade request, so the token may also come from the query string.
func (a *API) Websocket(w http.ResponseWriter, r *http.Request) {
	if a.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "Notifications are disabled"})
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = middleware.BearerToken(r)
	}
	claims, err := a.auth.ValidateToken(token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Invalid or expired token"})
		return
	}
	a.hub.ServeWS(w, r, claims.UserID)
}
