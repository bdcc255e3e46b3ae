package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"cacviun/internal/bff"
	"cacviun/internal/middleware"
	"cacviun/internal/models"
	"cacviun/internal/reports"
	"cacviun/internal/session"

	"github.com/rs/zerolog/log"
)

// loader returns the fetch behind a view scope for the signed-in user.
func (h *Handler) loader(sess models.Session, scope string) reports.Loader {
	switch scope {
	case reports.ScopeAdmin:
		return h.backend.AdminHistory
	case reports.ScopeDashboard:
		return h.backend.DashboardData
	default:
		email := sess.Email
		return func(ctx context.Context) ([]*models.Report, error) {
			if email == "" {
				return nil, &models.ValidationError{Field: "email", Err: models.ErrMissingSessionEmail}
			}
			return h.backend.ReportHistory(ctx, email)
		}
	}
}

// viewRequest is the outcome of resolving a view for a request.
type viewRequest struct {
	view *reports.View
	// refreshErr is the failure of a refetch, if one was needed. The view
	// still holds the previous collection.
	refreshErr error
	// criteriaErr is set when the filter parameters were rejected; the view
	// keeps its previous criteria.
	criteriaErr error
}

// resolveView returns the cached view for scope, refetching it when it is
// not fresh or the request asks for ?refresh, and applies the filter and
// page from the query string.
func (h *Handler) resolveView(r *http.Request, scope string) viewRequest {
	ctx := r.Context()
	sid := session.IDFromContext(ctx)
	q := r.URL.Query()

	view, fresh := h.views.Get(sid, scope)
	var vr viewRequest
	vr.view = view

	if !fresh || q.Has("refresh") {
		err := view.Refresh(ctx, h.loader(session.FromContext(ctx), scope))
		if err != nil && !errors.Is(err, reports.ErrSuperseded) {
			log.Warn().Err(err).Str("scope", scope).Msg("Failed to fetch reports")
			vr.refreshErr = err
		}
	}

	criteria := reports.ParseCriteria(q)
	if err := criteria.Validate(); err != nil {
		vr.criteriaErr = err
		return vr
	}
	view.Apply(criteria, reports.ParsePage(q))
	return vr
}

// problem is the notice shown above a page whose data is incomplete.
func (vr viewRequest) problem() string {
	switch {
	case vr.criteriaErr != nil:
		return errorMessage(vr.criteriaErr)
	case vr.refreshErr != nil:
		return errorMessage(vr.refreshErr)
	}
	return ""
}

// HandleHistory renders the signed-in user's own reports.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	h.renderHistory(w, r, reports.ScopeHistory, bff.HistoryContent{
		Heading:  "My reports",
		BasePath: "/history",
	})
}

// HandleAdminHistory renders every report.
func (h *Handler) HandleAdminHistory(w http.ResponseWriter, r *http.Request) {
	h.renderHistory(w, r, reports.ScopeAdmin, bff.HistoryContent{
		Heading:  "All reports",
		BasePath: "/admin/history",
		Admin:    true,
	})
}

func (h *Handler) renderHistory(w http.ResponseWriter, r *http.Request, scope string, content bff.HistoryContent) {
	vr := h.resolveView(r, scope)

	content.Snapshot = vr.view.Snapshot()
	content.Categories = models.ViolenceTypes
	content.Zones = models.Zones
	content.Problem = vr.problem()

	status := http.StatusOK
	switch {
	case vr.criteriaErr != nil:
		status = http.StatusBadRequest
	case vr.refreshErr != nil && !content.Snapshot.Loaded:
		status = errorStatus(vr.refreshErr)
	}
	bff.Render(w, r, status, "history.html", h.pageData(w, r, content.Heading, content))
}

// HandleAPIHistory returns the current page of the user's reports.
func (h *Handler) HandleAPIHistory(w http.ResponseWriter, r *http.Request) {
	h.writeSnapshot(w, r, reports.ScopeHistory)
}

// HandleAPIAdminHistory returns the current page of all reports.
func (h *Handler) HandleAPIAdminHistory(w http.ResponseWriter, r *http.Request) {
	h.writeSnapshot(w, r, reports.ScopeAdmin)
}

func (h *Handler) writeSnapshot(w http.ResponseWriter, r *http.Request, scope string) {
	vr := h.resolveView(r, scope)
	if vr.criteriaErr != nil {
		writeAPIError(w, vr.criteriaErr)
		return
	}
	snap := vr.view.Snapshot()
	if vr.refreshErr != nil && !snap.Loaded {
		writeAPIError(w, vr.refreshErr)
		return
	}
	writeJSON(w, http.StatusOK, snap, "history")
}

// mutationScope picks the view a mutation refreshes. Only admins may target
// the admin view.
func mutationScope(requested string, role models.Role) string {
	if requested == reports.ScopeAdmin && role.IsAdmin() {
		return reports.ScopeAdmin
	}
	return reports.ScopeHistory
}

// refresher refetches the owning view after a successful mutation and marks
// every other cached view stale, since they may all contain the report.
func (h *Handler) refresher(r *http.Request, scope string) reports.Refresher {
	sid := session.IDFromContext(r.Context())
	sess := session.FromContext(r.Context())
	return func(ctx context.Context) error {
		h.views.Expire(reports.ScopeHistory, reports.ScopeAdmin, reports.ScopeDashboard)
		view, _ := h.views.Get(sid, scope)
		return view.Refresh(ctx, h.loader(sess, scope))
	}
}

// historyPath is where a form mutation returns to.
func historyPath(scope string) string {
	if scope == reports.ScopeAdmin {
		return "/admin/history"
	}
	return "/history"
}

// HandleReportEditSubmit edits a report from the history page form.
func (h *Handler) HandleReportEditSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	sess := session.FromContext(r.Context())
	scope := mutationScope(r.FormValue("scope"), sess.Role)
	edit := models.ReportEdit{
		Category:    r.FormValue("category"),
		Description: r.FormValue("description"),
	}

	err := h.orchestrator.Edit(r.Context(), sess.Email, r.PathValue("id"), edit, h.refresher(r, scope))
	if err != nil {
		redirectWithFlash(w, r, historyPath(scope), middleware.FlashError, errorMessage(err))
		return
	}
	redirectWithFlash(w, r, historyPath(scope), middleware.FlashSuccess, "Report updated.")
}

// HandleReportDeleteSubmit deletes a report from the history page form.
func (h *Handler) HandleReportDeleteSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	sess := session.FromContext(r.Context())
	scope := mutationScope(r.FormValue("scope"), sess.Role)

	err := h.orchestrator.Delete(r.Context(), sess.Email, r.PathValue("id"), h.refresher(r, scope))
	if err != nil {
		redirectWithFlash(w, r, historyPath(scope), middleware.FlashError, errorMessage(err))
		return
	}
	redirectWithFlash(w, r, historyPath(scope), middleware.FlashSuccess, "Report deleted.")
}

// mutationResponse is the body of a successful JSON mutation.
type mutationResponse struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Snapshot reports.Snapshot `json:"snapshot"`
}

// HandleAPIReportUpdate edits a report. The body is JSON
// {"category", "description"}; ?scope=admin refreshes the admin view.
func (h *Handler) HandleAPIReportUpdate(w http.ResponseWriter, r *http.Request) {
	var edit models.ReportEdit
	if err := json.NewDecoder(r.Body).Decode(&edit); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Message: "Invalid request body"}, "error")
		return
	}
	sess := session.FromContext(r.Context())
	scope := mutationScope(r.URL.Query().Get("scope"), sess.Role)

	if err := h.orchestrator.Edit(r.Context(), sess.Email, r.PathValue("id"), edit, h.refresher(r, scope)); err != nil {
		writeAPIError(w, err)
		return
	}
	h.writeMutation(w, r, scope, "Report updated.")
}

// HandleAPIReportDelete deletes a report.
func (h *Handler) HandleAPIReportDelete(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	scope := mutationScope(r.URL.Query().Get("scope"), sess.Role)

	if err := h.orchestrator.Delete(r.Context(), sess.Email, r.PathValue("id"), h.refresher(r, scope)); err != nil {
		writeAPIError(w, err)
		return
	}
	h.writeMutation(w, r, scope, "Report deleted.")
}

func (h *Handler) writeMutation(w http.ResponseWriter, r *http.Request, scope, message string) {
	view, _ := h.views.Get(session.IDFromContext(r.Context()), scope)
	writeJSON(w, http.StatusOK, mutationResponse{
		Success:  true,
		Message:  message,
		Snapshot: view.Snapshot(),
	}, "mutation")
}
