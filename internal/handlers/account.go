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

// Register and password reset both run in two steps: a code is mailed, then
// the code is confirmed. The first step's input waits in the FlowStore,
// keyed by session id, until the second.

// HandleRegister renders the register form, or the code step when a
// registration is pending.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	sid := session.IDFromContext(r.Context())
	if r.URL.Query().Has("restart") {
		h.flows.Finish(sid)
	}

	content := bff.RegisterContent{Step: "form"}
	if flow, ok := h.flows.Pending(sid, models.CodeRegister); ok {
		content = bff.RegisterContent{Step: "code", Name: flow.Name, Email: flow.Email}
	}
	bff.Render(w, r, http.StatusOK, "register.html", h.pageData(w, r, "Create an account", content))
}

// HandleRegisterCode validates the form and asks the backend to mail a
// register code.
func (h *Handler) HandleRegisterCode(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	req := models.RegisterRequest{
		Name:            r.FormValue("name"),
		Email:           r.FormValue("email"),
		Password:        r.FormValue("password"),
		ConfirmPassword: r.FormValue("confirm_password"),
	}
	req.Normalize()
	content := bff.RegisterContent{Step: "form", Name: req.Name, Email: req.Email}

	if err := req.Validate(h.config.EmailDomain); err != nil {
		metrics.RegistrationsTotal.WithLabelValues("code", "invalid").Inc()
		h.renderFormError(w, r, http.StatusBadRequest, "register.html", "Create an account", content, err)
		return
	}

	if err := h.backend.SendVerificationCode(r.Context(), req.Name, req.Email, models.CodeRegister); err != nil {
		metrics.RegistrationsTotal.WithLabelValues("code", "failure").Inc()
		log.Warn().Err(err).Str("email", req.Email).Msg("Failed to send register code")
		h.renderFormError(w, r, errorStatus(err), "register.html", "Create an account", content, err)
		return
	}
	metrics.RegistrationsTotal.WithLabelValues("code", "success").Inc()

	h.flows.Begin(session.IDFromContext(r.Context()), session.Flow{
		Type:     models.CodeRegister,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	redirectWithFlash(w, r, "/register", middleware.FlashInfo, "We sent a verification code to "+req.Email+".")
}

// HandleRegisterVerify confirms the code and creates the account with the
// user role.
func (h *Handler) HandleRegisterVerify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	sid := session.IDFromContext(r.Context())
	flow, ok := h.flows.Pending(sid, models.CodeRegister)
	if !ok {
		redirectWithFlash(w, r, "/register", middleware.FlashError, "Your registration expired. Please start again.")
		return
	}
	content := bff.RegisterContent{Step: "code", Name: flow.Name, Email: flow.Email}

	req := models.VerifyCodeRequest{Email: flow.Email, Code: r.FormValue("code"), Type: models.CodeRegister}
	if err := req.Validate(h.config.EmailDomain); err != nil {
		metrics.RegistrationsTotal.WithLabelValues("verify", "invalid").Inc()
		h.renderFormError(w, r, http.StatusBadRequest, "register.html", "Create an account", content, err)
		return
	}

	if err := h.backend.VerifyCode(r.Context(), flow.Email, req.Code, models.CodeRegister); err != nil {
		metrics.RegistrationsTotal.WithLabelValues("verify", "failure").Inc()
		h.renderFormError(w, r, errorStatus(err), "register.html", "Create an account", content, err)
		return
	}
	if err := h.backend.Register(r.Context(), flow.Name, flow.Email, flow.Password, models.RoleUser); err != nil {
		metrics.RegistrationsTotal.WithLabelValues("verify", "failure").Inc()
		log.Warn().Err(err).Str("email", flow.Email).Msg("Registration failed after code verification")
		h.renderFormError(w, r, errorStatus(err), "register.html", "Create an account", content, err)
		return
	}
	metrics.RegistrationsTotal.WithLabelValues("verify", "success").Inc()
	h.flows.Finish(sid)

	log.Info().Str("email", flow.Email).Msg("User registered")
	redirectWithFlash(w, r, "/", middleware.FlashSuccess, "Your account was created. You can sign in now.")
}

// HandleForgot renders the email step, or the code step when a reset is
// pending.
func (h *Handler) HandleForgot(w http.ResponseWriter, r *http.Request) {
	sid := session.IDFromContext(r.Context())
	if r.URL.Query().Has("restart") {
		h.flows.Finish(sid)
	}

	content := bff.ForgotContent{Step: "email"}
	if flow, ok := h.flows.Pending(sid, models.CodeForgot); ok {
		content = bff.ForgotContent{Step: "code", Email: flow.Email}
	}
	bff.Render(w, r, http.StatusOK, "forgot.html", h.pageData(w, r, "Reset your password", content))
}

// HandleForgotCode checks the account exists and asks the backend to mail a
// reset code.
func (h *Handler) HandleForgotCode(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	email := models.NormalizeEmail(r.FormValue("email"))
	content := bff.ForgotContent{Step: "email", Email: email}

	if err := models.ValidateInstitutionalEmail(email, h.config.EmailDomain); err != nil {
		metrics.PasswordResetsTotal.WithLabelValues("code", "invalid").Inc()
		h.renderFormError(w, r, http.StatusBadRequest, "forgot.html", "Reset your password", content, err)
		return
	}

	exists, err := h.backend.EmailExists(r.Context(), email)
	if err != nil {
		metrics.PasswordResetsTotal.WithLabelValues("code", "failure").Inc()
		h.renderFormError(w, r, errorStatus(err), "forgot.html", "Reset your password", content, err)
		return
	}
	if !exists {
		metrics.PasswordResetsTotal.WithLabelValues("code", "unknown").Inc()
		data := h.pageData(w, r, "Reset your password", content)
		data.Errors = map[string]string{"email": "No account uses this email."}
		bff.Render(w, r, http.StatusUnprocessableEntity, "forgot.html", data)
		return
	}

	if err := h.backend.SendVerificationCode(r.Context(), "", email, models.CodeForgot); err != nil {
		metrics.PasswordResetsTotal.WithLabelValues("code", "failure").Inc()
		log.Warn().Err(err).Str("email", email).Msg("Failed to send reset code")
		h.renderFormError(w, r, errorStatus(err), "forgot.html", "Reset your password", content, err)
		return
	}
	metrics.PasswordResetsTotal.WithLabelValues("code", "success").Inc()

	h.flows.Begin(session.IDFromContext(r.Context()), session.Flow{Type: models.CodeForgot, Email: email})
	redirectWithFlash(w, r, "/forgot-password", middleware.FlashInfo, "We sent a verification code to "+email+".")
}

// HandleForgotVerify confirms the code and sets the new password.
func (h *Handler) HandleForgotVerify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	sid := session.IDFromContext(r.Context())
	flow, ok := h.flows.Pending(sid, models.CodeForgot)
	if !ok {
		redirectWithFlash(w, r, "/forgot-password", middleware.FlashError, "Your reset request expired. Please start again.")
		return
	}
	content := bff.ForgotContent{Step: "code", Email: flow.Email}

	req := models.PasswordResetRequest{
		Email:           flow.Email,
		Code:            r.FormValue("code"),
		Password:        r.FormValue("password"),
		ConfirmPassword: r.FormValue("confirm_password"),
	}
	req.Normalize()
	if err := req.Validate(h.config.EmailDomain); err != nil {
		metrics.PasswordResetsTotal.WithLabelValues("verify", "invalid").Inc()
		h.renderFormError(w, r, http.StatusBadRequest, "forgot.html", "Reset your password", content, err)
		return
	}

	if err := h.backend.VerifyCode(r.Context(), req.Email, req.Code, models.CodeForgot); err != nil {
		metrics.PasswordResetsTotal.WithLabelValues("verify", "failure").Inc()
		h.renderFormError(w, r, errorStatus(err), "forgot.html", "Reset your password", content, err)
		return
	}
	if err := h.backend.ResetPassword(r.Context(), req.Email, req.Password); err != nil {
		metrics.PasswordResetsTotal.WithLabelValues("verify", "failure").Inc()
		log.Warn().Err(err).Str("email", req.Email).Msg("Password reset failed after code verification")
		h.renderFormError(w, r, errorStatus(err), "forgot.html", "Reset your password", content, err)
		return
	}
	metrics.PasswordResetsTotal.WithLabelValues("verify", "success").Inc()
	h.flows.Finish(sid)

	log.Info().Str("email", req.Email).Msg("Password reset")
	redirectWithFlash(w, r, "/", middleware.FlashSuccess, "Your password was updated. You can sign in now.")
}

// renderFormError re-renders a form page with field errors inline and any
// other failure as an error flash.
func (h *Handler) renderFormError(w http.ResponseWriter, r *http.Request, status int, page, title string, content any, err error) {
	data := h.pageData(w, r, title, content)
	fields, general := fieldErrors(err)
	data.Errors = fields
	if general != "" {
		data.Flash = &bff.Flash{Kind: middleware.FlashError, Message: general}
	}
	bff.Render(w, r, status, page, data)
}
