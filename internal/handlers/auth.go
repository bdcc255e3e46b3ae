package handlers

import (
	"net/http"

	"cacviun/internal/bff"
	"cacviun/internal/metrics"
	"cacviun/internal/middleware"
	"cacviun/internal/models"
	"cacviun/internal/session"

	"github.com/rs/zerolog/log"
)

// landingPath is where a signed-in user goes from the sign-in page.
const landingPath = "/map"

// HandleLogin renders the sign-in page, or sends signed-in users on.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if session.FromContext(r.Context()).Role.IsLogged() {
		redirect(w, r, landingPath)
		return
	}
	bff.Render(w, r, http.StatusOK, "login.html", h.pageData(w, r, "Sign in", bff.LoginContent{}))
}

// HandleLoginSubmit validates the credentials locally, signs in against the
// backend and stores the returned session.
func (h *Handler) HandleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	req := models.LoginRequest{
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
	}
	req.Normalize()

	fail := func(status int, err error) {
		h.renderFormError(w, r, status, "login.html", "Sign in", bff.LoginContent{Email: req.Email}, err)
	}

	if err := req.Validate(h.config.EmailDomain); err != nil {
		metrics.AuthLoginsTotal.WithLabelValues("invalid").Inc()
		fail(http.StatusBadRequest, err)
		return
	}

	sess, err := h.backend.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		metrics.AuthLoginsTotal.WithLabelValues("failure").Inc()
		log.Warn().Err(err).Str("email", req.Email).Msg("Login failed")
		fail(errorStatus(err), err)
		return
	}

	// The id presented before sign-in is retired.
	old := session.IDFromContext(r.Context())
	if session.FromContext(r.Context()).IsZero() {
		h.sessions.Forget(old)
	} else if err := h.sessions.Clear(r.Context(), old); err != nil {
		log.Warn().Err(err).Msg("Failed to clear previous session")
	}
	h.flows.Finish(old)

	sid := session.Rotate(w, h.config.SecureCookies)
	if err := h.sessions.Set(r.Context(), sid, sess); err != nil {
		// The in-memory session is in place; only persistence failed.
		log.Error().Err(err).Str("email", sess.Email).Msg("Failed to persist session")
	}
	metrics.AuthLoginsTotal.WithLabelValues("success").Inc()

	log.Info().
		Str("email", sess.Email).
		Str("role", sess.Role.Label()).
		Msg("User logged in")

	redirectWithFlash(w, r, landingPath, middleware.FlashSuccess, "Welcome, "+sess.Name+".")
}

// HandleLogout clears the session and any pending verification flow.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sid := session.IDFromContext(r.Context())
	email := session.FromContext(r.Context()).Email

	if err := h.sessions.Clear(r.Context(), sid); err != nil {
		log.Error().Err(err).Msg("Failed to clear persisted session")
	}
	h.flows.Finish(sid)

	if email != "" {
		log.Info().Str("email", email).Msg("User logged out")
	}
	redirectWithFlash(w, r, "/", middleware.FlashInfo, "You have signed out.")
}

// meResponse is the session as the browser sees it.
type meResponse struct {
	Authenticated bool        `json:"authenticated"`
	Name          string      `json:"name"`
	Email         string      `json:"email"`
	Role          models.Role `json:"role"`
	RoleLabel     string      `json:"roleLabel,omitempty"`
}

// HandleAPIMe returns the current session. Anonymous visitors get an empty
// session rather than an error.
func (h *Handler) HandleAPIMe(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	resp := meResponse{
		Authenticated: sess.Role.IsLogged(),
		Name:          sess.Name,
		Email:         sess.Email,
		Role:          sess.Role,
	}
	if resp.Authenticated {
		resp.RoleLabel = sess.Role.Label()
	}
	writeJSON(w, http.StatusOK, resp, "session")
}
