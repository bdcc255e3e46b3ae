package bff

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"path"
	"sync"

	"cacviun/internal/models"
	"cacviun/internal/reports"

	"github.com/a-h/templ"
	"github.com/rs/zerolog/log"
)

//go:embed templates static
var assets embed.FS

var (
	templateFuncs template.FuncMap
	funcsOnce     sync.Once

	pages     map[string]*template.Template
	pagesErr  error
	pagesOnce sync.Once
)

// getTemplateFuncs returns the function map used by all templates
func getTemplateFuncs() template.FuncMap {
	funcsOnce.Do(func() {
		templateFuncs = template.FuncMap{
			"formatDate":    FormatDate,
			"formatAge":     FormatAge,
			"formatPercent": FormatPercent,
			"truncate":      Truncate,
			"roleLabel":     RoleLabel,
			"pageURL":       PageURL,
			"dict":          Dict,
			"reportID":      ReportID,
			"add":           func(a, b int) int { return a + b },
		}
	})
	return templateFuncs
}

// parsePages parses every page once. A page file is rendered inside the
// layout and sees every partial.
func parsePages() (map[string]*template.Template, error) {
	pagesOnce.Do(func() {
		names, err := fs.Glob(assets, "templates/pages/*.html")
		if err != nil {
			pagesErr = err
			return
		}
		pages = make(map[string]*template.Template, len(names))
		for _, name := range names {
			base := path.Base(name)
			t, err := template.New(base).Funcs(getTemplateFuncs()).ParseFS(assets,
				"templates/layout.html",
				"templates/partials/*.html",
				name,
			)
			if err != nil {
				pagesErr = fmt.Errorf("parse %s: %w", base, err)
				return
			}
			pages[base] = t
		}
	})
	return pages, pagesErr
}

// Flash is a one-shot notification shown at the top of a page.
type Flash struct {
	Kind    string
	Message string
}

// PageData contains data for rendering pages
type PageData struct {
	Title     string
	Session   models.Session
	CSRFToken string
	Nonce     string
	Flash     *Flash
	Errors    map[string]string
	Form      map[string]string
	Content   any
}

// HistoryContent backs the personal and admin history pages.
type HistoryContent struct {
	Heading    string
	BasePath   string
	Admin      bool
	Snapshot   reports.Snapshot
	Categories []string
	Zones      []string
	// Problem is shown above the table when the last refresh failed.
	Problem string
}

// StatisticsContent backs the statistics page.
type StatisticsContent struct {
	Summary    reports.Summary
	Criteria   reports.Criteria
	Categories []string
	Zones      []string
	Problem    string
}

// MapContent backs the map page. Layers are fetched from /api/map.
type MapContent struct {
	DataURL string
}

// RegisterContent backs the two register steps.
type RegisterContent struct {
	// Step is "form" or "code"
	Step  string
	Name  string
	Email string
}

// ForgotContent backs the two forgot password steps.
type ForgotContent struct {
	// Step is "email" or "code"
	Step  string
	Email string
}

// LoginContent backs the login page.
type LoginContent struct {
	Email string
}

// DefineAdminContent backs the define admin page.
type DefineAdminContent struct {
	Email   string
	Message string
}

// ErrorContent backs the error page.
type ErrorContent struct {
	Status  int
	Message string
}

// Page returns the page template as a templ component.
func Page(name string, data *PageData) templ.Component {
	set, err := parsePages()
	if err != nil {
		return errorComponent(err)
	}
	t, ok := set[name]
	if !ok {
		return errorComponent(fmt.Errorf("unknown page %q", name))
	}
	return templ.FromGoHTML(t, data)
}

func errorComponent(err error) templ.Component {
	return templ.ComponentFunc(func(context.Context, io.Writer) error {
		return err
	})
}

// Render writes a page with the given status. Rendering is buffered, so a
// template failure still produces a clean 500.
func Render(w http.ResponseWriter, r *http.Request, status int, name string, data *PageData) {
	templ.Handler(Page(name, data),
		templ.WithStatus(status),
		templ.WithErrorHandler(func(r *http.Request, err error) http.Handler {
			log.Error().Err(err).Str("page", name).Msg("Failed to render page")
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			})
		}),
	).ServeHTTP(w, r)
}

// StaticHandler serves the embedded stylesheet and scripts.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
