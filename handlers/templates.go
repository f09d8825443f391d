package handlers

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"contractit/logger"
	"contractit/models"

	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// Pages lists every page template. Each one is paired with base.html.
var Pages = []string{
	"login", "register", "dashboard", "error",
	"jobs", "project-form", "project-detail", "projects-mine", "projects-awarded",
	"bid-form", "project-bids", "bids-mine",
	"payment-request", "payment-review",
}

var funcMap = template.FuncMap{
	"deref": func(p *uint) uint {
		if p == nil {
			return 0
		}
		return *p
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02")
	},
	"datetime": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("2006-01-02 15:04")
	},
	"isClient": func(u *models.User) bool {
		return u != nil && u.IsClient()
	},
	"isContractor": func(u *models.User) bool {
		return u != nil && u.IsContractor()
	},
}

// LoadTemplates parses the embedded page templates.
func LoadTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template, len(Pages))
	for _, page := range Pages {
		t, err := template.New("").Funcs(funcMap).ParseFS(templateFS,
			"templates/base.html",
			"templates/"+page+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", page, err)
		}
		templates[page] = t
	}
	return templates, nil
}

type pages map[string]*template.Template

func (p pages) render(w http.ResponseWriter, r *http.Request, page string, data map[string]interface{}) {
	p.renderStatus(w, r, http.StatusOK, page, data)
}

func (p pages) renderStatus(w http.ResponseWriter, r *http.Request, status int, page string, data map[string]interface{}) {
	t, ok := p[page]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		logger.FromContext(r.Context(), nil).Error("render template", zap.String("page", page), zap.Error(err))
	}
}

func redirectError(w http.ResponseWriter, r *http.Request, path, msg string) {
	http.Redirect(w, r, path+"?error="+url.QueryEscape(msg), http.StatusSeeOther)
}

func redirectSuccess(w http.ResponseWriter, r *http.Request, path, msg string) {
	http.Redirect(w, r, path+"?success="+url.QueryEscape(msg), http.StatusSeeOther)
}

// pageData starts the data map every page receives.
func pageData(r *http.Request, user *models.User) map[string]interface{} {
	return map[string]interface{}{
		"User":    user,
		"Error":   r.URL.Query().Get("error"),
		"Success": r.URL.Query().Get("success"),
	}
}
