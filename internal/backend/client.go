// Package backend is the HTTP client for the CACVi-UN REST API.
//
// Every call takes a context, sends and receives JSON, and maps failures onto
// two error types: NetworkError for transport failures and non-2xx
// responses, BusinessError for 2xx responses that carry success:false.
// Nothing is retried.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cacviun/internal/metrics"
	"cacviun/internal/models"
	"cacviun/internal/tracing"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

// Client talks to the backend on behalf of a signed-in browser.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient creates a client for the backend at baseURL. Outbound requests
// are traced and transparently decompressed.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(gzhttp.Transport(http.DefaultTransport)),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend origin.
func (c *Client) BaseURL() string { return c.baseURL }

// envelope is the status part shared by most backend responses.
type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// check maps success:false to a BusinessError. When strict, a missing
// success field is also a failure.
func (e envelope) check(op string, strict bool) error {
	if e.Success == nil {
		if strict {
			return &BusinessError{Op: op, Message: "Unexpected response from server"}
		}
		return nil
	}
	if !*e.Success {
		msg := e.Message
		if msg == "" {
			msg = "The request was rejected"
		}
		return &BusinessError{Op: op, Message: msg}
	}
	return nil
}

// do performs one request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (err error) {
	ctx, span := tracing.BackendSpan(ctx, op, method, path)
	start := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case IsBusiness(err):
			outcome = "business"
		case err != nil:
			outcome = "network"
		}
		metrics.BackendRequestsTotal.WithLabelValues(op, outcome).Inc()
		metrics.BackendRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		tracing.EndWithError(span, err)
		span.End()
	}()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &NetworkError{Op: op, Err: fmt.Errorf("encoding request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("op", op).Msg("Backend request failed")
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	log.Debug().
		Str("op", op).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Backend request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(data, &env)
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Message: env.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// call is do followed by the success envelope check.
func (c *Client) call(ctx context.Context, op, method, path string, body any, strict bool) error {
	var env envelope
	if err := c.do(ctx, op, method, path, body, &env); err != nil {
		return err
	}
	return env.check(op, strict)
}

// Login authenticates and returns the session the backend assigns.
func (c *Client) Login(ctx context.Context, email, password string) (models.Session, error) {
	var resp struct {
		envelope
		Session models.Session `json:"session"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, "login", http.MethodPost, "/user/login", body, &resp); err != nil {
		return models.Session{}, err
	}
	if err := resp.check("login", true); err != nil {
		return models.Session{}, err
	}
	if resp.Session.Email == "" {
		return models.Session{}, &BusinessError{Op: "login", Message: "Unexpected response from server"}
	}
	return resp.Session, nil
}

// Register creates an account with the given role.
func (c *Client) Register(ctx context.Context, name, email, password string, role models.Role) error {
	body := map[string]string{"name": name, "email": email, "password": password, "role": string(role)}
	return c.call(ctx, "register", http.MethodPost, "/user/register", body, false)
}

// SendVerificationCode asks the backend to email a code for the given flow.
func (c *Client) SendVerificationCode(ctx context.Context, name, email string, typ models.CodeType) error {
	body := map[string]string{"email": email, "type": string(typ)}
	if name != "" {
		body["name"] = name
	}
	return c.call(ctx, "send_verification_code", http.MethodPost, "/user/send-verification-code", body, false)
}

// VerifyCode checks a code previously sent for the given flow.
func (c *Client) VerifyCode(ctx context.Context, email, code string, typ models.CodeType) error {
	body := map[string]string{"email": email, "code": code, "type": string(typ)}
	return c.call(ctx, "verify_code", http.MethodPost, "/user/verify-code", body, true)
}

// ResetPassword sets a new password for email.
func (c *Client) ResetPassword(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	return c.call(ctx, "reset_password", http.MethodPost, "/user/reset-password", body, false)
}

// EmailExists reports whether an account is registered for email.
func (c *Client) EmailExists(ctx context.Context, email string) (bool, error) {
	var resp struct {
		Exist bool `json:"exist"`
	}
	if err := c.do(ctx, "exist_email", http.MethodGet, "/user/exist-email/"+url.PathEscape(email), nil, &resp); err != nil {
		return false, err
	}
	return resp.Exist, nil
}

// DefineAdmin promotes the account for email to administrator.
func (c *Client) DefineAdmin(ctx context.Context, email string) (string, error) {
	var env envelope
	if err := c.do(ctx, "define_admin", http.MethodPost, "/user/define-admin", map[string]string{"email": email}, &env); err != nil {
		return "", err
	}
	if err := env.check("define_admin", true); err != nil {
		return "", err
	}
	return env.Message, nil
}

type historyResponse struct {
	envelope
	ReportHistory []*models.Report `json:"reportHistory"`
}

func (c *Client) history(ctx context.Context, op, path string) ([]*models.Report, error) {
	var resp historyResponse
	if err := c.do(ctx, op, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if err := resp.check(op, false); err != nil {
		return nil, err
	}
	if resp.ReportHistory == nil {
		return []*models.Report{}, nil
	}
	return resp.ReportHistory, nil
}

// ReportHistory returns the reports submitted by email.
func (c *Client) ReportHistory(ctx context.Context, email string) ([]*models.Report, error) {
	return c.history(ctx, "report_history", "/report/history/"+url.PathEscape(email))
}

// AdminHistory returns every report in the system.
func (c *Client) AdminHistory(ctx context.Context) ([]*models.Report, error) {
	return c.history(ctx, "admin_history", "/report/admin-history")
}

// EditReport sends the two editable fields of a report. A response without
// an explicit success:true is treated as a failure.
func (c *Client) EditReport(ctx context.Context, id string, edit models.ReportEdit) error {
	body := models.ReportEdit{Category: edit.Category, Description: edit.Description}
	return c.call(ctx, "edit_report", http.MethodPut, "/report/edit/"+url.PathEscape(id), body, true)
}

// DeleteReport removes a report.
func (c *Client) DeleteReport(ctx context.Context, id string) error {
	return c.call(ctx, "delete_report", http.MethodDelete, "/report/delete/"+url.PathEscape(id), nil, true)
}

// DashboardData returns the reports used for statistics.
func (c *Client) DashboardData(ctx context.Context) ([]*models.Report, error) {
	return c.history(ctx, "dashboard_data", "/dashboard/get-data")
}

// DashboardLocations returns the heat map points.
func (c *Client) DashboardLocations(ctx context.Context) ([]models.Location, error) {
	var resp struct {
		envelope
		Data []models.Location `json:"data"`
	}
	if err := c.do(ctx, "dashboard_locations", http.MethodGet, "/dashboard/get-locations", nil, &resp); err != nil {
		return nil, err
	}
	if err := resp.check("dashboard_locations", false); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// RecentViolence returns the latest incidents for the map markers.
func (c *Client) RecentViolence(ctx context.Context) ([]models.RecentReport, error) {
	var resp struct {
		envelope
		Data []models.RecentReport `json:"data"`
	}
	if err := c.do(ctx, "recent_violence", http.MethodGet, "/dashboard/recent-violence", nil, &resp); err != nil {
		return nil, err
	}
	if err := resp.check("recent_violence", false); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
