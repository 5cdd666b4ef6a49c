package handlers

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/logging"
	"expense-ledger/internal/metrics"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
	// SessionDuration is how long sessions last (30 days).
	SessionDuration = 30 * 24 * time.Hour
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	sessions     *storage.DB
	users        *storage.UserStore
	expenses     *storage.ExpenseStore
	metrics      *metrics.Metrics
	templates    fs.FS
	secureCookie bool
}

// NewHandlers creates a new Handlers instance. templates must contain base.html
// and one file per view.
func NewHandlers(sessions *storage.DB, users *storage.UserStore, expenses *storage.ExpenseStore, m *metrics.Metrics, templates fs.FS, secureCookie bool) *Handlers {
	return &Handlers{
		sessions:     sessions,
		users:        users,
		expenses:     expenses,
		metrics:      m,
		templates:    templates,
		secureCookie: secureCookie,
	}
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// AuthMiddleware wraps handlers to require authentication.
// It also implements rolling sessions: if a session is past the halfway point
// of its lifetime, it automatically renews the session.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		sessionInfo, err := h.sessions.ValidateSessionWithInfo(cookie.Value)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				logging.FromRequest(r).WithError(err).Error("validate session")
			}
			h.clearSessionCookie(w)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		user, err := h.users.FindByID(sessionInfo.UserID)
		if err != nil {
			logging.FromRequest(r).WithError(err).WithField("user_id", sessionInfo.UserID).Warn("session for unknown user")
			h.clearSessionCookie(w)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		// Rolling session: renew once past the halfway point
		now := time.Now()
		if sessionInfo.ExpiresAt.Sub(now) < SessionDuration/2 {
			if err := h.sessions.RenewSession(cookie.Value, now.Add(SessionDuration)); err == nil {
				h.setSessionCookie(w, cookie.Value)
			} else {
				logging.FromRequest(r).WithError(err).Warn("renew session")
			}
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthViewModel holds data for the login and register pages.
type AuthViewModel struct {
	Error    string
	Notice   string
	Username string
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	// If already logged in, redirect to expenses
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if _, err := h.sessions.ValidateSession(cookie.Value); err == nil {
			http.Redirect(w, r, "/expenses", http.StatusFound)
			return
		}
	}
	vm := AuthViewModel{}
	if r.URL.Query().Get("registered") == "1" {
		vm.Notice = "Account created, please log in"
	}
	h.render(w, r, http.StatusOK, "login.html", vm)
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, "login.html", AuthViewModel{Error: "Invalid form submission"})
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")

	if strings.TrimSpace(username) == "" || password == "" {
		h.render(w, r, http.StatusBadRequest, "login.html", AuthViewModel{Error: "Username and password are required", Username: username})
		return
	}

	user, err := h.users.Authenticate(username, password)
	h.metrics.ObserveAuth("login", err)
	if err != nil {
		if !errors.Is(err, storage.ErrInvalidCredentials) {
			logging.FromRequest(r).WithError(err).Error("authenticate")
		}
		h.render(w, r, http.StatusUnauthorized, "login.html", AuthViewModel{Error: "Invalid username or password", Username: username})
		return
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		logging.FromRequest(r).WithError(err).Error("generate session token")
		h.render(w, r, http.StatusInternalServerError, "login.html", AuthViewModel{Error: "An error occurred. Please try again."})
		return
	}

	if err := h.sessions.CreateSession(token, user.ID, time.Now().Add(SessionDuration)); err != nil {
		logging.FromRequest(r).WithError(err).Error("create session")
		h.render(w, r, http.StatusInternalServerError, "login.html", AuthViewModel{Error: "An error occurred. Please try again."})
		return
	}

	h.setSessionCookie(w, token)
	http.Redirect(w, r, "/expenses", http.StatusFound)
}

// RegisterForm renders the account creation page.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "register.html", AuthViewModel{})
}

// Register creates an account and sends the user to the login page.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, "register.html", AuthViewModel{Error: "Invalid form submission"})
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")
	vm := AuthViewModel{Username: username}

	switch {
	case strings.TrimSpace(username) == "" || password == "":
		vm.Error = "Username and password are required"
	case password != r.FormValue("confirm"):
		vm.Error = "Passwords do not match"
	case auth.ValidatePasswordPolicy(password) != nil:
		vm.Error = "Password must be at least 8 characters, contain upper, lower, and digit"
	}
	if vm.Error != "" {
		h.render(w, r, http.StatusBadRequest, "register.html", vm)
		return
	}

	_, err := h.users.Register(username, password)
	h.metrics.ObserveAuth("register", err)
	switch {
	case errors.Is(err, storage.ErrDuplicateUsername):
		vm.Error = "Username already exists"
		h.render(w, r, http.StatusConflict, "register.html", vm)
		return
	case errors.Is(err, storage.ErrValidation):
		vm.Error = err.Error()
		h.render(w, r, http.StatusBadRequest, "register.html", vm)
		return
	case err != nil:
		logging.FromRequest(r).WithError(err).Error("register user")
		vm.Error = "An error occurred. Please try again."
		h.render(w, r, http.StatusInternalServerError, "register.html", vm)
		return
	}

	http.Redirect(w, r, "/login?registered=1", http.StatusFound)
}

// Logout handles user logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.sessions.DeleteSession(cookie.Value); err != nil {
			logging.FromRequest(r).WithError(err).Error("delete session")
		}
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionDuration.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, status int, viewName string, data any) {
	tmpl, err := template.ParseFS(h.templates, "base.html", viewName)
	if err != nil {
		logging.FromRequest(r).WithError(err).Error("template parse")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	target := "base.html"
	if r.Header.Get("HX-Request") == "true" {
		target = "content"
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, target, data); err != nil {
		logging.FromRequest(r).WithError(err).Error("template execution")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
