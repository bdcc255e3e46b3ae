package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"cacviun/internal/backend"
	"cacviun/internal/bff"
	"cacviun/internal/database/sqlitestore"
	"cacviun/internal/middleware"
	"cacviun/internal/models"
	"cacviun/internal/reports"
	"cacviun/internal/session"

	"github.com/rs/zerolog/log"
)

// Backend is the part of the REST client the handlers use.
type Backend interface {
	Login(ctx context.Context, email, password string) (models.Session, error)
	Register(ctx context.Context, name, email, password string, role models.Role) error
	SendVerificationCode(ctx context.Context, name, email string, typ models.CodeType) error
	VerifyCode(ctx context.Context, email, code string, typ models.CodeType) error
	ResetPassword(ctx context.Context, email, password string) error
	EmailExists(ctx context.Context, email string) (bool, error)
	DefineAdmin(ctx context.Context, email string) (string, error)

	ReportHistory(ctx context.Context, email string) ([]*models.Report, error)
	AdminHistory(ctx context.Context) ([]*models.Report, error)
	EditReport(ctx context.Context, id string, edit models.ReportEdit) error
	DeleteReport(ctx context.Context, id string) error

	DashboardData(ctx context.Context) ([]*models.Report, error)
	DashboardLocations(ctx context.Context) ([]models.Location, error)
	RecentViolence(ctx context.Context) ([]models.RecentReport, error)
}

// AuditLog records report mutations and lists them for admins.
type AuditLog interface {
	reports.AuditRecorder
	List(ctx context.Context, limit int) ([]sqlitestore.Entry, error)
	ListForReport(ctx context.Context, reportID string) ([]sqlitestore.Entry, error)
}

// Config holds handler configuration options
type Config struct {
	// SecureCookies sets the Secure flag on cookies set by handlers
	SecureCookies bool

	// EmailDomain is the institutional domain accepted for accounts
	EmailDomain string

	// TopN is how many buckets the statistics histograms keep
	TopN int
}

// Handler contains all HTTP handler methods and their dependencies.
// Dependencies are injected via the constructor for better testability.
type Handler struct {
	backend      Backend
	sessions     *session.Store
	flows        *session.FlowStore
	views        *reports.ViewCache
	orchestrator *reports.Orchestrator
	audit        AuditLog
	config       Config
	now          func() time.Time
}

// NewHandler creates a new Handler with all required dependencies.
// audit may be nil, in which case mutations are not recorded.
func NewHandler(
	be Backend,
	sessions *session.Store,
	flows *session.FlowStore,
	views *reports.ViewCache,
	audit AuditLog,
	config Config,
) *Handler {
	if config.TopN < 1 {
		config.TopN = 5
	}
	var recorder reports.AuditRecorder
	if audit != nil {
		recorder = audit
	}
	return &Handler{
		backend:      be,
		sessions:     sessions,
		flows:        flows,
		views:        views,
		orchestrator: reports.NewOrchestrator(be, recorder),
		audit:        audit,
		config:       config,
		now:          time.Now,
	}
}

// writeJSON encodes and writes a JSON response
func writeJSON(w http.ResponseWriter, status int, v any, entityName string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode " + entityName + " response")
	}
}

// apiError is the body of every JSON error response.
type apiError struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// errorStatus maps an error onto the HTTP status reported to the browser.
func errorStatus(err error) int {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, reports.ErrInvalidID):
		return http.StatusBadRequest
	case backend.IsBusiness(err):
		return http.StatusUnprocessableEntity
	case backend.IsNetwork(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage is the user-facing text for err.
func errorMessage(err error) string {
	var ve *models.ValidationError
	switch {
	case errors.Is(err, reports.ErrInvalidID):
		return "The report could not be identified."
	case errors.As(err, &ve):
		return ve.Message()
	case backend.IsBusiness(err), backend.IsNetwork(err):
		return backend.UserMessage(err)
	default:
		return "Something went wrong. Please try again."
	}
}

// fieldErrors splits a validation failure into per-field messages. A failure
// that belongs to no field is returned as general.
func fieldErrors(err error) (fields map[string]string, general string) {
	var errs models.ValidationErrors
	if errors.As(err, &errs) {
		fields = errs.Fields()
		general = fields[""]
		delete(fields, "")
		return fields, general
	}
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		if ve.Field == "" {
			return nil, ve.Message()
		}
		return map[string]string{ve.Field: ve.Message()}, ""
	}
	return nil, errorMessage(err)
}

// writeAPIError writes err as a JSON error body with its mapped status.
func writeAPIError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	body := apiError{Message: errorMessage(err)}
	if status == http.StatusBadRequest {
		fields, general := fieldErrors(err)
		body.Errors = fields
		if general != "" {
			body.Message = general
		}
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	writeJSON(w, status, body, "error")
}

// pageData builds the data shared by every page: session, CSRF token, CSP
// nonce and the pending flash, if any.
func (h *Handler) pageData(w http.ResponseWriter, r *http.Request, title string, content any) *bff.PageData {
	data := &bff.PageData{
		Title:     title,
		Session:   session.FromContext(r.Context()),
		CSRFToken: middleware.GetCSRFToken(r),
		Nonce:     middleware.CSPNonceFromContext(r.Context()),
		Content:   content,
	}
	if f, ok := middleware.PopFlash(w, r); ok {
		data.Flash = &bff.Flash{Kind: f.Kind, Message: f.Message}
	}
	return data
}

// redirect answers a form post with 303 See Other.
func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// redirectWithFlash sets a flash and redirects.
func redirectWithFlash(w http.ResponseWriter, r *http.Request, to, kind, message string) {
	middleware.SetFlash(w, kind, message)
	redirect(w, r, to)
}

// renderError renders the error page.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	data := h.pageData(w, r, http.StatusText(status), bff.ErrorContent{Status: status, Message: message})
	bff.Render(w, r, status, "error.html", data)
}

// HandleNotFound renders the 404 page for unknown paths.
func (h *Handler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.renderError(w, r, http.StatusNotFound, "The page you are looking for does not exist.")
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "health")
}

// Role checks used for gating. They mirror the navigation: the backend stays
// the authority on what a role may do.
func canSeeHistory(r models.Role) bool { return r.IsLogged() && !r.IsValidator() }
func isAdmin(r models.Role) bool       { return r.IsAdmin() }
func isLogged(r models.Role) bool      { return r.IsLogged() }

// RequirePage wraps a page or form handler. Anonymous visitors are sent to
// the sign-in page and other roles get a 403 page.
func (h *Handler) RequirePage(allowed func(models.Role) bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := session.FromContext(r.Context()).Role
		if !role.IsLogged() {
			redirectWithFlash(w, r, "/", middleware.FlashInfo, "Please sign in to continue.")
			return
		}
		if !allowed(role) {
			h.renderError(w, r, http.StatusForbidden, "Your role does not have access to this page.")
			return
		}
		next(w, r)
	}
}

// RequireAPI wraps a JSON handler with 401 and 403 responses.
func (h *Handler) RequireAPI(allowed func(models.Role) bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := session.FromContext(r.Context()).Role
		if !role.IsLogged() {
			writeJSON(w, http.StatusUnauthorized, apiError{Message: "Authentication required"}, "error")
			return
		}
		if !allowed(role) {
			writeJSON(w, http.StatusForbidden, apiError{Message: "Forbidden"}, "error")
			return
		}
		next(w, r)
	}
}

// RequireHistoryPage, RequireAdminPage and the API variants are the gates the
// router applies.
func (h *Handler) RequireHistoryPage(next http.HandlerFunc) http.HandlerFunc {
	return h.RequirePage(canSeeHistory, next)
}

func (h *Handler) RequireAdminPage(next http.HandlerFunc) http.HandlerFunc {
	return h.RequirePage(isAdmin, next)
}

func (h *Handler) RequireLoggedPage(next http.HandlerFunc) http.HandlerFunc {
	return h.RequirePage(isLogged, next)
}

func (h *Handler) RequireHistoryAPI(next http.HandlerFunc) http.HandlerFunc {
	return h.RequireAPI(canSeeHistory, next)
}

func (h *Handler) RequireAdminAPI(next http.HandlerFunc) http.HandlerFunc {
	return h.RequireAPI(isAdmin, next)
}

func (h *Handler) RequireLoggedAPI(next http.HandlerFunc) http.HandlerFunc {
	return h.RequireAPI(isLogged, next)
}
