package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"cacviun/internal/database/sqlitestore"
	"cacviun/internal/middleware"
	"cacviun/internal/models"
	"cacviun/internal/reports"
	"cacviun/internal/session"

	"github.com/stretchr/testify/require"
)

const testSessionID = "6f1c7a5e-2b1d-4c55-9a0e-6c1d2f3e4a5b"

var (
	testUser      = models.Session{Name: "Ana", Email: "ana@unal.edu.co", Role: models.RoleUser}
	testAdmin     = models.Session{Name: "Root", Email: "root@unal.edu.co", Role: models.RoleAdmin}
	testValidator = models.Session{Name: "Val", Email: "val@unal.edu.co", Role: models.RoleValidator}
)

// MockBackend is a mock implementation of Backend for testing.
// Uses function fields to allow tests to inject custom behavior.
type MockBackend struct {
	LoginFunc                func(ctx context.Context, email, password string) (models.Session, error)
	RegisterFunc             func(ctx context.Context, name, email, password string, role models.Role) error
	SendVerificationCodeFunc func(ctx context.Context, name, email string, typ models.CodeType) error
	VerifyCodeFunc           func(ctx context.Context, email, code string, typ models.CodeType) error
	ResetPasswordFunc        func(ctx context.Context, email, password string) error
	EmailExistsFunc          func(ctx context.Context, email string) (bool, error)
	DefineAdminFunc          func(ctx context.Context, email string) (string, error)
	ReportHistoryFunc        func(ctx context.Context, email string) ([]*models.Report, error)
	AdminHistoryFunc         func(ctx context.Context) ([]*models.Report, error)
	EditReportFunc           func(ctx context.Context, id string, edit models.ReportEdit) error
	DeleteReportFunc         func(ctx context.Context, id string) error
	DashboardDataFunc        func(ctx context.Context) ([]*models.Report, error)
	DashboardLocationsFunc   func(ctx context.Context) ([]models.Location, error)
	RecentViolenceFunc       func(ctx context.Context) ([]models.RecentReport, error)

	mu    sync.Mutex
	calls []string
}

func (m *MockBackend) record(name string) {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	m.mu.Unlock()
}

// Calls returns how many times the named method ran.
func (m *MockBackend) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}

// TotalCalls returns the number of backend calls of any kind.
func (m *MockBackend) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *MockBackend) Login(ctx context.Context, email, password string) (models.Session, error) {
	m.record("Login")
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password)
	}
	return models.Session{}, nil
}

func (m *MockBackend) Register(ctx context.Context, name, email, password string, role models.Role) error {
	m.record("Register")
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, name, email, password, role)
	}
	return nil
}

func (m *MockBackend) SendVerificationCode(ctx context.Context, name, email string, typ models.CodeType) error {
	m.record("SendVerificationCode")
	if m.SendVerificationCodeFunc != nil {
		return m.SendVerificationCodeFunc(ctx, name, email, typ)
	}
	return nil
}

func (m *MockBackend) VerifyCode(ctx context.Context, email, code string, typ models.CodeType) error {
	m.record("VerifyCode")
	if m.VerifyCodeFunc != nil {
		return m.VerifyCodeFunc(ctx, email, code, typ)
	}
	return nil
}

func (m *MockBackend) ResetPassword(ctx context.Context, email, password string) error {
	m.record("ResetPassword")
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, email, password)
	}
	return nil
}

func (m *MockBackend) EmailExists(ctx context.Context, email string) (bool, error) {
	m.record("EmailExists")
	if m.EmailExistsFunc != nil {
		return m.EmailExistsFunc(ctx, email)
	}
	return true, nil
}

func (m *MockBackend) DefineAdmin(ctx context.Context, email string) (string, error) {
	m.record("DefineAdmin")
	if m.DefineAdminFunc != nil {
		return m.DefineAdminFunc(ctx, email)
	}
	return "", nil
}

func (m *MockBackend) ReportHistory(ctx context.Context, email string) ([]*models.Report, error) {
	m.record("ReportHistory")
	if m.ReportHistoryFunc != nil {
		return m.ReportHistoryFunc(ctx, email)
	}
	return nil, nil
}

func (m *MockBackend) AdminHistory(ctx context.Context) ([]*models.Report, error) {
	m.record("AdminHistory")
	if m.AdminHistoryFunc != nil {
		return m.AdminHistoryFunc(ctx)
	}
	return nil, nil
}

func (m *MockBackend) EditReport(ctx context.Context, id string, edit models.ReportEdit) error {
	m.record("EditReport")
	if m.EditReportFunc != nil {
		return m.EditReportFunc(ctx, id, edit)
	}
	return nil
}

func (m *MockBackend) DeleteReport(ctx context.Context, id string) error {
	m.record("DeleteReport")
	if m.DeleteReportFunc != nil {
		return m.DeleteReportFunc(ctx, id)
	}
	return nil
}

func (m *MockBackend) DashboardData(ctx context.Context) ([]*models.Report, error) {
	m.record("DashboardData")
	if m.DashboardDataFunc != nil {
		return m.DashboardDataFunc(ctx)
	}
	return nil, nil
}

func (m *MockBackend) DashboardLocations(ctx context.Context) ([]models.Location, error) {
	m.record("DashboardLocations")
	if m.DashboardLocationsFunc != nil {
		return m.DashboardLocationsFunc(ctx)
	}
	return nil, nil
}

func (m *MockBackend) RecentViolence(ctx context.Context) ([]models.RecentReport, error) {
	m.record("RecentViolence")
	if m.RecentViolenceFunc != nil {
		return m.RecentViolenceFunc(ctx)
	}
	return nil, nil
}

// fakeAudit keeps audit entries in memory.
type fakeAudit struct {
	mu      sync.Mutex
	entries []sqlitestore.Entry
	listErr error
}

func (f *fakeAudit) Record(_ context.Context, e sqlitestore.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = int64(len(f.entries) + 1)
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAudit) List(_ context.Context, limit int) ([]sqlitestore.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]sqlitestore.Entry, 0, len(f.entries))
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.entries[i])
	}
	return out, nil
}

func (f *fakeAudit) ListForReport(_ context.Context, reportID string) ([]sqlitestore.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sqlitestore.Entry
	for _, e := range f.entries {
		if e.ReportID == reportID {
			out = append(out, e)
		}
	}
	return out, nil
}

// TestContext contains test dependencies
type TestContext struct {
	Handler  *Handler
	Backend  *MockBackend
	Sessions *session.Store
	Flows    *session.FlowStore
	Views    *reports.ViewCache
	Audit    *fakeAudit
}

// NewTestContext creates a test context with mock dependencies. Views page
// by 2 so pagination shows up with small fixtures.
func NewTestContext() *TestContext {
	mock := &MockBackend{}
	sessions := session.NewStore(nil)
	flows := session.NewFlowStore(session.FlowTTL)
	views := reports.NewViewCache(time.Minute, 2)
	audit := &fakeAudit{}

	h := NewHandler(mock, sessions, flows, views, audit, Config{
		EmailDomain: models.DefaultEmailDomain,
		TopN:        5,
	})
	h.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	return &TestContext{
		Handler:  h,
		Backend:  mock,
		Sessions: sessions,
		Flows:    flows,
		Views:    views,
		Audit:    audit,
	}
}

// newRequest builds a request carrying the test session id and sess.
func newRequest(method, target string, body io.Reader, sess models.Session) *http.Request {
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(session.NewContext(req.Context(), testSessionID, sess))
}

// formRequest builds a url-encoded POST.
func formRequest(target string, form url.Values, sess models.Session) *http.Request {
	req := newRequest(http.MethodPost, target, strings.NewReader(form.Encode()), sess)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// jsonRequest builds a request with a JSON body.
func jsonRequest(method, target string, body any, sess models.Session) *http.Request {
	raw, _ := json.Marshal(body)
	req := newRequest(method, target, strings.NewReader(string(raw)), sess)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// sessionCookie returns the session id set on the response.
func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c.Value
		}
	}
	t.Fatal("no session cookie")
	return ""
}

// flashFrom decodes the flash cookie set on the response.
func flashFrom(t *testing.T, rec *httptest.ResponseRecorder) middleware.Flash {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.FlashCookieName && c.Value != "" {
			raw, err := base64.RawURLEncoding.DecodeString(c.Value)
			require.NoError(t, err)
			var f middleware.Flash
			require.NoError(t, json.Unmarshal(raw, &f))
			return f
		}
	}
	t.Fatalf("no flash cookie set")
	return middleware.Flash{}
}

// decodeJSON decodes the response body into T.
func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func fixtureReports() []*models.Report {
	return []*models.Report{
		{MongoID: "r1", UserEmail: "ana@unal.edu.co", Age: 21, Date: "2024-05-02", Category: "Discrimination", Description: "Comments about my origin", Zone: "Universidad Nacional"},
		{MongoID: "r2", UserEmail: "ana@unal.edu.co", Age: 19, Date: "2024-05-10", Category: "Sexual Violence", Description: "Unwanted touching on the bus", Zone: "Universidad Nacional"},
		{MongoID: "r3", UserEmail: "luis@unal.edu.co", Age: 34, Date: "2024-03-15", Category: "Discrimination", Description: "Excluded from a study group", Zone: "Universidad Nacional"},
	}
}
