package handlers

import (
	"net/http"

	"contractit/middleware"
	"contractit/services"

	"github.com/shopspring/decimal"
)

type milestoneRequest struct {
	Title       string          `json:"title" validate:"required,max=255"`
	Description string          `json:"description"`
	DueDate     string          `json:"due_date" validate:"required,datetime=2006-01-02"`
	Amount      decimal.Decimal `json:"amount"`
}

type projectRequest struct {
	Title       string             `json:"title" validate:"required,max=255"`
	Description string             `json:"description" validate:"required"`
	Category    string             `json:"category" validate:"required,max=100"`
	Location    string             `json:"location" validate:"required,max=255"`
	Budget      decimal.Decimal    `json:"budget"`
	Deadline    string             `json:"deadline" validate:"required,datetime=2006-01-02"`
	IsPublic    *bool              `json:"is_public"`
	AIDrafted   bool               `json:"ai_drafted"`
	Milestones  []milestoneRequest `json:"milestones" validate:"required,min=1,dive"`
}

// input converts the request. Dates were checked by the validator.
func (req projectRequest) input() services.CreateProjectInput {
	deadline, _ := parseDate(req.Deadline)
	in := services.CreateProjectInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Location:    req.Location,
		Budget:      req.Budget,
		Deadline:    deadline,
		IsPublic:    req.IsPublic == nil || *req.IsPublic,
		AIDrafted:   req.AIDrafted,
	}
	for _, m := range req.Milestones {
		due, _ := parseDate(m.DueDate)
		in.Milestones = append(in.Milestones, services.MilestoneInput{
			Title:       m.Title,
			Description: m.Description,
			DueDate:     due,
			Amount:      m.Amount,
		})
	}
	return in
}

type bidRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Message string          `json:"message" validate:"required"`
}

func (a *API) ClientDashboard(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	projects, err := a.services.Projects.ListForClient(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	payments, err := a.services.Payments.ListForClient(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pending := make([]paymentResponse, 0)
	for i := range payments {
		if payments[i].IsPending() {
			pending = append(pending, a.paymentResponse(&payments[i]))
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"projects":         projects,
		"pending_payments": pending,
	})
}

func (a *API) ContractorDashboard(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	bids, err := a.services.Bids.ListMine(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	awarded, err := a.services.Projects.ListAwarded(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bids":             newBidResponses(bids),
		"awarded_projects": awarded,
	})
}

func (a *API) Jobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := services.JobFilter{Location: q.Get("location"), Category: q.Get("category")}
	var ok bool
	if filter.BudgetMin, ok = parseDecimal(q.Get("budget_min")); !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid budget_min", Field: "budget_min"})
		return
	}
	if filter.BudgetMax, ok = parseDecimal(q.Get("budget_max")); !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid budget_max", Field: "budget_max"})
		return
	}
	jobs, err := a.services.Projects.FindJobs(r.Context(), middleware.GetUserFromContext(r.Context()), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (a *API) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !decode(w, r, &req) {
		return
	}
	project, err := a.services.Projects.Create(r.Context(), middleware.GetUserFromContext(r.Context()), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (a *API) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	view, err := a.services.Projects.Get(r.Context(), middleware.GetUserFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectResponse{
		Project:       view.Project,
		BidCount:      view.BidCount,
		HasAlreadyBid: view.HasAlreadyBid,
	})
}

func (a *API) UpdateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req projectRequest
	if !decode(w, r, &req) {
		return
	}
	// A missing is_public keeps the stored visibility.
	project, err := a.services.Projects.Update(r.Context(), middleware.GetUserFromContext(r.Context()), id, services.UpdateProjectInput{
		CreateProjectInput: req.input(),
		KeepVisibility:     req.IsPublic == nil,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (a *API) CompleteProject(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.services.Projects.Complete)
}

func (a *API) CancelProject(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.services.Projects.Cancel)
}

func (a *API) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	project, err := fn(r.Context(), middleware.GetUserFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (a *API) SubmitBid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req bidRequest
	if !decode(w, r, &req) {
		return
	}
	bid, err := a.services.Bids.Submit(r.Context(), middleware.GetUserFromContext(r.Context()), id, services.SubmitBidInput{
		Amount:  req.Amount,
		Message: req.Message,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bid)
}

func (a *API) ProjectBids(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	bids, err := a.services.Bids.ListForProject(r.Context(), middleware.GetUserFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBidResponses(bids))
}

func (a *API) MyBids(w http.ResponseWriter, r *http.Request) {
	bids, err := a.services.Bids.ListMine(r.Context(), middleware.GetUserFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBidResponses(bids))
}

func (a *API) AcceptBid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	bid, err := a.services.Bids.Accept(r.Context(), middleware.GetUserFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

func (a *API) TogglePortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	item, err := a.services.Portfolio.ToggleInternal(r.Context(), middleware.GetUserFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) AddExternalPortfolio(w http.ResponseWriter, r *http.Request) {
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

	item, err := a.services.Portfolio.AddExternal(r.Context(), middleware.GetUserFromContext(r.Context()), services.AddExternalInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Image:       image,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}
