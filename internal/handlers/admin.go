package handlers

import (
	"net/http"
	"strconv"

	"cacviun/internal/bff"
	"cacviun/internal/database/sqlitestore"
	"cacviun/internal/middleware"
	"cacviun/internal/models"
	"cacviun/internal/session"

	"github.com/rs/zerolog/log"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// HandleDefineAdmin renders the define administrator form.
func (h *Handler) HandleDefineAdmin(w http.ResponseWriter, r *http.Request) {
	bff.Render(w, r, http.StatusOK, "define_admin.html",
		h.pageData(w, r, "Define administrator", bff.DefineAdminContent{}))
}

// HandleDefineAdminSubmit grants the admin role to a registered email.
func (h *Handler) HandleDefineAdminSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	email := models.NormalizeEmail(r.FormValue("email"))
	content := bff.DefineAdminContent{Email: email}

	if err := models.ValidateInstitutionalEmail(email, h.config.EmailDomain); err != nil {
		h.renderFormError(w, r, http.StatusBadRequest, "define_admin.html", "Define administrator", content, err)
		return
	}

	message, err := h.backend.DefineAdmin(r.Context(), email)
	if err != nil {
		log.Warn().Err(err).Str("email", email).Msg("Failed to define administrator")
		h.renderFormError(w, r, errorStatus(err), "define_admin.html", "Define administrator", content, err)
		return
	}
	if message == "" {
		message = email + " is now an administrator."
	}

	log.Info().
		Str("email", email).
		Str("by", session.FromContext(r.Context()).Email).
		Msg("Administrator defined")

	redirectWithFlash(w, r, "/admin/define-admin", middleware.FlashSuccess, message)
}

// auditResponse lists audit entries, newest first.
type auditResponse struct {
	Entries []sqlitestore.Entry `json:"entries"`
}

// HandleAPIAudit returns recent report mutations. ?report=<id> narrows the
// list to one report and ?limit bounds it.
func (h *Handler) HandleAPIAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusOK, auditResponse{Entries: []sqlitestore.Entry{}}, "audit")
		return
	}

	q := r.URL.Query()
	var (
		entries []sqlitestore.Entry
		err     error
	)
	if id := q.Get("report"); id != "" {
		entries, err = h.audit.ListForReport(r.Context(), id)
	} else {
		limit := defaultAuditLimit
		if n, convErr := strconv.Atoi(q.Get("limit")); convErr == nil && n > 0 {
			limit = min(n, maxAuditLimit)
		}
		entries, err = h.audit.List(r.Context(), limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to list audit entries")
		writeJSON(w, http.StatusInternalServerError, apiError{Message: "Failed to load audit log"}, "error")
		return
	}
	if entries == nil {
		entries = []sqlitestore.Entry{}
	}
	writeJSON(w, http.StatusOK, auditResponse{Entries: entries}, "audit")
}
