package handlers

import (
	"html/template"
	"net/http"

	"contractit/config"
	"contractit/middleware"
	"contractit/models"
	"contractit/services"
)

type AuthHandler struct {
	config    *config.Config
	templates pages
	services  *services.Services
	auth      *middleware.Authenticator
}

func NewAuthHandler(cfg *config.Config, templates map[string]*template.Template, svc *services.Services, auth *middleware.Authenticator) *AuthHandler {
	return &AuthHandler{
		config:    cfg,
		templates: templates,
		services:  svc,
		auth:      auth,
	}
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.templates.render(w, r, "login", pageData(r, nil))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectError(w, r, "/login", "Invalid form data")
		return
	}

	user, err := h.services.Accounts.Authenticate(r.Context(), r.FormValue("email"), r.FormValue("password"))
	if err != nil {
		h.templates.fail(w, r, err, "/login")
		return
	}
	h.startSession(w, r, user)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, user *models.User) {
	token, err := h.auth.GenerateToken(user)
	if err != nil {
		redirectError(w, r, "/login", "Failed to generate token")
		return
	}
	h.auth.SetSessionCookie(w, token)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	data := pageData(r, nil)
	data["Roles"] = models.AllRoles
	h.templates.render(w, r, "register", data)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectError(w, r, "/register", "Invalid form data")
		return
	}

	password := r.FormValue("password")
	if password != r.FormValue("confirm_password") {
		redirectError(w, r, "/register", "Passwords do not match")
		return
	}

	var roles models.RoleSet
	for _, name := range r.Form["roles"] {
		role, err := models.ParseRole(name)
		if err != nil {
			redirectError(w, r, "/register", "Unknown role")
			return
		}
		roles = roles.With(role)
	}

	user, err := h.services.Accounts.Register(r.Context(), services.RegisterInput{
		Username:    r.FormValue("username"),
		Email:       r.FormValue("email"),
		Password:    password,
		Roles:       roles,
		Phone:       r.FormValue("phone"),
		City:        r.FormValue("city"),
		CompanyName: r.FormValue("company_name"),
		Language:    r.FormValue("language"),
	})
	if err != nil {
		h.templates.fail(w, r, err, "/register")
		return
	}
	h.startSession(w, r, user)
}

// Dashboard shows the client and contractor sections the user is entitled
// to.
func (h *AuthHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	ctx := r.Context()
	data := pageData(r, user)

	if user.IsClient() {
		projects, err := h.services.Projects.ListForClient(ctx, user)
		if err != nil {
			h.templates.failPage(w, r, err)
			return
		}
		payments, err := h.services.Payments.ListForClient(ctx, user)
		if err != nil {
			h.templates.failPage(w, r, err)
			return
		}
		var pending []models.PaymentRequest
		for _, p := range payments {
			if p.IsPending() {
				pending = append(pending, p)
			}
		}
		data["Projects"] = projects
		data["PendingPayments"] = pending
	}

	if user.IsContractor() {
		bids, err := h.services.Bids.ListMine(ctx, user)
		if err != nil {
			h.templates.failPage(w, r, err)
			return
		}
		awarded, err := h.services.Projects.ListAwarded(ctx, user)
		if err != nil {
			h.templates.failPage(w, r, err)
			return
		}
		data["Bids"] = bids
		data["Awarded"] = awarded
	}

	h.templates.render(w, r, "dashboard", data)
}
