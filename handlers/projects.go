package handlers

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"contractit/middleware"
	"contractit/services"

	"github.com/shopspring/decimal"
)

// ProjectHandler serves the project, job search and bid pages.
type ProjectHandler struct {
	templates pages
	services  *services.Services
}

func NewProjectHandler(templates map[string]*template.Template, svc *services.Services) *ProjectHandler {
	return &ProjectHandler{templates: templates, services: svc}
}

func (h *ProjectHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	q := r.URL.Query()

	filter := services.JobFilter{
		Location: q.Get("location"),
		Category: q.Get("category"),
	}
	var ok bool
	if filter.BudgetMin, ok = parseDecimal(q.Get("budget_min")); !ok {
		redirectError(w, r, "/jobs", "Invalid minimum budget")
		return
	}
	if filter.BudgetMax, ok = parseDecimal(q.Get("budget_max")); !ok {
		redirectError(w, r, "/jobs", "Invalid maximum budget")
		return
	}

	jobs, err := h.services.Projects.FindJobs(r.Context(), user, filter)
	if err != nil {
		h.templates.failPage(w, r, err)
		return
	}

	data := pageData(r, user)
	data["Jobs"] = jobs
	data["Filter"] = map[string]string{
		"BudgetMin": q.Get("budget_min"),
		"BudgetMax": q.Get("budget_max"),
		"Location":  filter.Location,
		"Category":  filter.Category,
	}
	h.templates.render(w, r, "jobs", data)
}

// projectForm reads the project form, including the parallel milestone
// columns.
func projectForm(r *http.Request) (services.CreateProjectInput, error) {
	in := services.CreateProjectInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		Location:    r.FormValue("location"),
		IsPublic:    r.FormValue("is_public") != "",
	}
	budget, err := decimal.NewFromString(strings.TrimSpace(r.FormValue("budget")))
	if err != nil {
		return in, &services.ValidationError{Field: "budget", Message: "Invalid budget"}
	}
	in.Budget = budget
	deadline, err := parseDate(r.FormValue("deadline"))
	if err != nil {
		return in, &services.ValidationError{Field: "deadline", Message: "Invalid deadline"}
	}
	in.Deadline = deadline

	rows, err := services.MilestoneRows(r.Form["milestone_title"], r.Form["milestone_due_date"], r.Form["milestone_amount"])
	if err != nil {
		return in, err
	}
	descriptions := r.Form["milestone_description"]
	for i := range rows {
		if i < len(descriptions) {
			rows[i].Description = descriptions[i]
		}
	}
	in.Milestones = rows
	return in, nil
}

func (h *ProjectHandler) NewProjectPage(w http.ResponseWriter, r *http.Request) {
	data := pageData(r, middleware.GetUserFromContext(r.Context()))
	data["Action"] = "/projects/new"
	data["BlankRows"] = make([]struct{}, 3)
	h.templates.render(w, r, "project-form", data)
}

func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		redirectError(w, r, "/projects/new", "Invalid form data")
		return
	}
	in, err := projectForm(r)
	if err != nil {
		h.templates.fail(w, r, err, "/projects/new")
		return
	}

	project, err := h.services.Projects.Create(r.Context(), user, in)
	if err != nil {
		h.templates.fail(w, r, err, "/projects/new")
		return
	}
	redirectSuccess(w, r, fmt.Sprintf("/projects/%d", project.ID), "Project created")
}

func (h *ProjectHandler) ProjectDetail(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		h.templates.notFound(w, r)
		return
	}
	view, err := h.services.Projects.Get(r.Context(), user, id)
	if err != nil {
		h.templates.failPage(w, r, err)
		return
	}

	data := pageData(r, user)
	data["View"] = view
	data["Project"] = view.Project
	data["IsOwner"] = view.Project.IsOwnedBy(user.ID)
	data["IsAwarded"] = view.Project.IsAwardedTo(user.ID)
	data["CanBid"] = user.IsContractor() && view.Project.IsOpenForBids() && !view.HasAlreadyBid && !view.Project.IsOwnedBy(user.ID)
	h.templates.render(w, r, "project-detail", data)
}

func (h *ProjectHandler) EditProjectPage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		h.templates.notFound(w, r)
		return
	}
	view, err := h.services.Projects.Get(r.Context(), user, id)
	if err != nil {
		h.templates.failPage(w, r, err)
		return
	}
	if !view.Project.IsOwnedBy(user.ID) {
		h.templates.failPage(w, r, &services.Error{Kind: services.ErrForbidden, Message: "You can only edit your own projects"})
		return
	}

	data := pageData(r, user)
	data["Project"] = view.Project
	data["Action"] = fmt.Sprintf("/projects/%d/edit", id)
	h.templates.render(w, r, "project-form", data)
}

func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		h.templates.notFound(w, r)
		return
	}
	back := fmt.Sprintf("/projects/%d/edit", id)
	if err := r.ParseForm(); err != nil {
		redirectError(w, r, back, "Invalid form data")
		return
	}
	in, err := projectForm(r)
	if err != nil {
		h.templates.fail(w, r, err, back)
		return
	}

	if _, err := h.services.Projects.Update(r.Context(), user, id, services.UpdateProjectInput{CreateProjectInput: in}); err != nil {
		h.templates.fail(w, r, err, back)
		return
	}
	redirectSuccess(w, r, fmt.Sprintf("/projects/%d", id), "Project updated")
}

func (h *ProjectHandler) CompleteProject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.services.Projects.Complete, "Project marked as completed")
}

func (h *ProjectHandler) CancelProject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.services.Projects.Cancel, "Project cancelled")
}

func (h *ProjectHandler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc, success string) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		h.templates.notFound(w, r)
		return
	}
	back := fmt.Sprintf("/projects/%d", id)
	if _, err := fn(r.Context(), user, id); err != nil {
		h.templates.fail(w, r, err, back)
		return
	}
	redirectSuccess(w, r, back, success)
}

func (h *ProjectHandler) MyProjects(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	projects, err := h.services.Projects.ListForClient(r.Context(), user)
	if err != nil {
		h.templates.failPage(w, r, err)
		return
	}
	data := pageData(r, user)
	data["Projects"] = projects
	h.templates.render(w, r, "projects-mine", data)
}

func (h *ProjectHandler) AwardedProjects(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	projects, err := h.services.Projects.ListAwarded(r.Context(), user)
	if err != nil {
		h.templates.failPage(w, r, err)
		return
	}
	data := pageData(r, user)
	data["Projects"] = projects
	h.templates.render(w, r, "projects-awarded", data)
}

func (h *ProjectHandler) BidPage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		h.templates.notFound(w, r)
		return
	}
	view, err := h.services.Projects.Get(r.Context(), user, id)
	if err != nil {
		h.templates.failPage(w, r, err)
		return
	}
	data := pageData(r, user)
	data["Project"] = view.Project
	data["HasAlreadyBid"] = view.HasAlreadyBid
	h.templates.render(w, r, "bid-form", data)
}

func (h *ProjectHandler) SubmitBid(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		h.templates.notFound(w, r)
		return
	}
	back := fmt.Sprintf("/projects/%d/bid", id)
	if err := r.ParseForm(); err != nil {
		redirectError(w, r, back, "Invalid form data")
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(r.FormValue("amount")))
	if err != nil {
		redirectError(w, r, back, "Invalid amount")
		return
	}

	_, err = h.services.Bids.Submit(r.Context(), user, id, services.SubmitBidInput{
		Amount:  amount,
		Message: r.FormValue("message"),
	})
	if err != nil {
		h.templates.fail(w, r, err, back)
		return
	}
	redirectSuccess(w, r, "/bids/mine", "Bid submitted")
}

func (h *ProjectHandler) ProjectBids(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		h.templates.notFound(w, r)
		return
	}
	view, err := h.services.Projects.Get(r.Context(), user, id)
	if err != nil {
		h.templates.failPage(w, r, err)
		return
	}
	bids, err := h.services.Bids.ListForProject(r.Context(), user, id)
	if err != nil {
		h.templates.failPage(w, r, err)
		return
	}
	data := pageData(r, user)
	data["Project"] = view.Project
	data["Bids"] = bids
	h.templates.render(w, r, "project-bids", data)
}

func (h *ProjectHandler) AcceptBid(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		h.templates.notFound(w, r)
		return
	}
	bid, err := h.services.Bids.Accept(r.Context(), user, id)
	if err != nil {
		back := "/projects/mine"
		if projectID := r.FormValue("project_id"); projectID != "" {
			back = "/projects/" + projectID + "/bids"
		}
		h.templates.fail(w, r, err, back)
		return
	}
	redirectSuccess(w, r, fmt.Sprintf("/projects/%d", bid.ProjectID), "Bid accepted")
}

func (h *ProjectHandler) MyBids(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	bids, err := h.services.Bids.ListMine(r.Context(), user)
	if err != nil {
		h.templates.failPage(w, r, err)
		return
	}
	data := pageData(r, user)
	data["Bids"] = bids
	h.templates.render(w, r, "bids-mine", data)
}
