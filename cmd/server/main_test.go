package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"expense-ledger/internal/config"
	"expense-ledger/internal/handlers"
	"expense-ledger/internal/metrics"
	"expense-ledger/internal/storage"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router   http.Handler
	users    *storage.UserStore
	sessions *storage.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{DataDir: dir}

	users, err := storage.NewUserStore(cfg.UsersPath())
	require.NoError(t, err)
	expenses, err := storage.NewExpenseStore(cfg.ExpensesPath())
	require.NoError(t, err)
	sessions, err := storage.NewDB(filepath.Join(dir, "sessions.db"))
	require.NoError(t, err, "failed to create database")
	t.Cleanup(func() { sessions.Close() })

	templates, static, err := assets(cfg)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	m := metrics.New()
	h := handlers.NewHandlers(sessions, users, expenses, m, templates, false)
	return &testServer{
		router:   setupRouter(h, m, logger, static),
		users:    users,
		sessions: sessions,
	}
}

func TestSetupRouter(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"Root redirects to /expenses", "GET", "/", http.StatusFound},
		{"Static file access", "GET", "/static/style.css", http.StatusOK},
		{"Health", "GET", "/health", http.StatusOK},
		{"Metrics", "GET", "/metrics", http.StatusOK},
		{"Login page", "GET", "/login", http.StatusOK},
		{"Register page", "GET", "/register", http.StatusOK},
		{"List Expenses requires auth", "GET", "/expenses", http.StatusFound},
		{"Stats requires auth", "GET", "/stats", http.StatusFound},
		{"Export requires auth", "GET", "/expenses/export", http.StatusFound},
		{"Delete requires auth", "POST", "/expenses/1/delete", http.StatusFound},
		{"Unknown route", "GET", "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			w := httptest.NewRecorder()

			srv.router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code, "%s %s returned unexpected status", tt.method, tt.path)
		})
	}
}

func TestLoginThenListExpenses(t *testing.T) {
	srv := newTestServer(t)
	_, err := srv.users.Register("alice", "Secret123")
	require.NoError(t, err)

	form := url.Values{"username": {"alice"}, "password": {"Secret123"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusFound, w.Code)

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	add := url.Values{"amount": {"42.50"}, "date": {"2024-03-05"}, "category": {"Food"}, "description": {"lunch"}}
	req = httptest.NewRequest(http.MethodPost, "/expenses", strings.NewReader(add.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusSeeOther, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/expenses", http.NoBody)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lunch")
	assert.Contains(t, w.Body.String(), "42.50")

	req = httptest.NewRequest(http.MethodGet, "/expenses/1/edit", http.NoBody)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBootstrapAdmin(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{DataDir: dir, AdminUser: "admin", AdminPassword: "Admin1234"}
	users, err := storage.NewUserStore(cfg.UsersPath())
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	require.NoError(t, bootstrapAdmin(users, cfg, logger))
	require.NoError(t, bootstrapAdmin(users, cfg, logger), "second run is a no-op")

	n, err := users.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = users.Authenticate("admin", "Admin1234")
	assert.NoError(t, err)
}

func TestBootstrapAdmin_WeakPassword(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{DataDir: dir, AdminUser: "admin", AdminPassword: "admin"}
	users, err := storage.NewUserStore(cfg.UsersPath())
	require.NoError(t, err)

	err = bootstrapAdmin(users, cfg, logrus.New())
	assert.ErrorIs(t, err, storage.ErrWeakPassword)
}
