package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"cacviun/internal/backend"
	"cacviun/internal/middleware"
	"cacviun/internal/models"
	"cacviun/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleLogin_Page(t *testing.T) {
	tc := NewTestContext()
	rec := httptest.NewRecorder()
	tc.Handler.HandleLogin(rec, newRequest(http.MethodGet, "/", nil, models.Session{}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/auth/login"`)
}

func TestHandleLogin_SignedInRedirects(t *testing.T) {
	tc := NewTestContext()
	rec := httptest.NewRecorder()
	tc.Handler.HandleLogin(rec, newRequest(http.MethodGet, "/", nil, testUser))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/map", rec.Header().Get("Location"))
}

func TestHandleLoginSubmit(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		password   string
		loginErr   error
		wantStatus int
		wantBody   string
		wantCalls  int
	}{
		{
			name:       "non institutional email",
			email:      "ana@gmail.com",
			password:   "secret",
			wantStatus: http.StatusBadRequest,
			wantBody:   "Invalid institutional email.",
		},
		{
			name:       "missing password",
			email:      "ana@unal.edu.co",
			wantStatus: http.StatusBadRequest,
			wantBody:   "All fields are required.",
		},
		{
			name:       "inner spaces",
			email:      "ana@unal.edu.co",
			password:   "se cret",
			wantStatus: http.StatusBadRequest,
			wantBody:   "Fields must not contain spaces.",
		},
		{
			name:       "rejected by backend",
			email:      "ana@unal.edu.co",
			password:   "wrong",
			loginErr:   &backend.BusinessError{Op: "login", Message: "Incorrect password"},
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   "Incorrect password",
			wantCalls:  1,
		},
		{
			name:       "backend unreachable",
			email:      "ana@unal.edu.co",
			password:   "secret",
			loginErr:   &backend.NetworkError{Op: "login", StatusCode: http.StatusServiceUnavailable},
			wantStatus: http.StatusBadGateway,
			wantBody:   "Could not reach the server.",
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := NewTestContext()
			tc.Backend.LoginFunc = func(ctx context.Context, email, password string) (models.Session, error) {
				return models.Session{}, tt.loginErr
			}

			rec := httptest.NewRecorder()
			form := url.Values{"email": {tt.email}, "password": {tt.password}}
			tc.Handler.HandleLoginSubmit(rec, formRequest("/auth/login", form, models.Session{}))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			assert.Equal(t, tt.wantCalls, tc.Backend.Calls("Login"))
			assert.True(t, tc.Sessions.Get(context.Background(), testSessionID).IsZero())
		})
	}
}

func TestHandleLoginSubmit_Success(t *testing.T) {
	tc := NewTestContext()
	var gotEmail string
	tc.Backend.LoginFunc = func(ctx context.Context, email, password string) (models.Session, error) {
		gotEmail = email
		return testAdmin, nil
	}

	var notified models.Session
	tc.Sessions.Subscribe(func(sid string, s models.Session) { notified = s })

	rec := httptest.NewRecorder()
	form := url.Values{"email": {"  Root@UNAL.edu.co "}, "password": {"secret"}}
	tc.Handler.HandleLoginSubmit(rec, formRequest("/auth/login", form, models.Session{}))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/map", rec.Header().Get("Location"))
	assert.Equal(t, "root@unal.edu.co", gotEmail, "email is normalized before sending")
	assert.Equal(t, testAdmin, notified)

	sid := sessionCookie(t, rec)
	assert.NotEqual(t, testSessionID, sid, "the pre-login id is replaced")
	assert.Equal(t, testAdmin, tc.Sessions.Get(context.Background(), sid))
	assert.True(t, tc.Sessions.Get(context.Background(), testSessionID).IsZero())

	flash := flashFrom(t, rec)
	assert.Equal(t, middleware.FlashSuccess, flash.Kind)
	assert.Equal(t, "Welcome, Root.", flash.Message)
}

func TestHandleLoginSubmit_RetiresSignedInID(t *testing.T) {
	tc := NewTestContext()
	ctx := context.Background()
	require.NoError(t, tc.Sessions.Set(ctx, testSessionID, testUser))
	tc.Flows.Begin(testSessionID, session.Flow{Type: models.CodeForgot, Email: testUser.Email})
	tc.Backend.LoginFunc = func(ctx context.Context, email, password string) (models.Session, error) {
		return testAdmin, nil
	}

	rec := httptest.NewRecorder()
	form := url.Values{"email": {"root@unal.edu.co"}, "password": {"secret"}}
	tc.Handler.HandleLoginSubmit(rec, formRequest("/auth/login", form, testUser))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	sid := sessionCookie(t, rec)
	assert.NotEqual(t, testSessionID, sid)
	assert.Equal(t, testAdmin, tc.Sessions.Get(ctx, sid))
	assert.True(t, tc.Sessions.Get(ctx, testSessionID).IsZero(), "the old id keeps no identity")
	assert.Equal(t, 0, tc.Flows.Len())
}

func TestHandleLogout(t *testing.T) {
	tc := NewTestContext()
	ctx := context.Background()
	require.NoError(t, tc.Sessions.Set(ctx, testSessionID, testUser))
	tc.Flows.Begin(testSessionID, session.Flow{Type: models.CodeForgot, Email: testUser.Email})

	rec := httptest.NewRecorder()
	tc.Handler.HandleLogout(rec, newRequest(http.MethodPost, "/logout", nil, testUser))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.True(t, tc.Sessions.Get(ctx, testSessionID).IsZero())
	assert.Equal(t, 0, tc.Flows.Len())
	assert.Equal(t, "You have signed out.", flashFrom(t, rec).Message)
}

func TestHandleAPIMe(t *testing.T) {
	tc := NewTestContext()

	rec := httptest.NewRecorder()
	tc.Handler.HandleAPIMe(rec, newRequest(http.MethodGet, "/api/me", nil, models.Session{}))
	assert.Equal(t, http.StatusOK, rec.Code)
	anon := decodeJSON[meResponse](t, rec)
	assert.False(t, anon.Authenticated)
	assert.Empty(t, anon.RoleLabel)

	rec = httptest.NewRecorder()
	tc.Handler.HandleAPIMe(rec, newRequest(http.MethodGet, "/api/me", nil, testValidator))
	me := decodeJSON[meResponse](t, rec)
	assert.True(t, me.Authenticated)
	assert.Equal(t, "val@unal.edu.co", me.Email)
	assert.Equal(t, models.RoleValidator, me.Role)
	assert.Equal(t, "Validator", me.RoleLabel)
}
