package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expense-ledger/internal/config"
	"expense-ledger/internal/handlers"
	"expense-ledger/internal/logging"
	"expense-ledger/internal/metrics"
	"expense-ledger/internal/storage"
	"expense-ledger/web"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	config.LoadEnvFile()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	users, err := storage.NewUserStore(cfg.UsersPath(), storage.WithLogger(logger))
	if err != nil {
		return err
	}
	expenses, err := storage.NewExpenseStore(cfg.ExpensesPath(), storage.WithLogger(logger))
	if err != nil {
		return err
	}

	sessions, err := storage.NewDB(cfg.SessionDBPath)
	if err != nil {
		return fmt.Errorf("open session database: %w", err)
	}
	defer sessions.Close()

	if err := bootstrapAdmin(users, cfg, logger); err != nil {
		return err
	}

	templates, static, err := assets(cfg)
	if err != nil {
		return err
	}

	m := metrics.New()
	h := handlers.NewHandlers(sessions, users, expenses, m, templates, cfg.SecureCookie)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(h, m, logger, static),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithFields(logrus.Fields{"port": cfg.Port, "data_dir": cfg.DataDir}).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		sweepSessions(ctx, sessions, m, logger, cfg.SessionCleanupInterval)
		return nil
	})
	return g.Wait()
}

// bootstrapAdmin creates the configured admin account when no users exist yet.
func bootstrapAdmin(users *storage.UserStore, cfg *config.Config, logger logrus.FieldLogger) error {
	if cfg.AdminUser == "" {
		return nil
	}
	n, err := users.Count()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	user, err := users.Register(cfg.AdminUser, cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap admin user: %w", err)
	}
	logger.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("admin user created")
	return nil
}

// assets returns the template and static file systems, preferring on-disk
// directories when configured so templates can be edited without a rebuild.
func assets(cfg *config.Config) (templates, static fs.FS, err error) {
	if cfg.TemplateDir != "" {
		templates = os.DirFS(cfg.TemplateDir)
	} else if templates, err = fs.Sub(web.TemplatesFS, "templates"); err != nil {
		return nil, nil, err
	}
	if cfg.StaticDir != "" {
		static = os.DirFS(cfg.StaticDir)
	} else if static, err = fs.Sub(web.StaticFS, "static"); err != nil {
		return nil, nil, err
	}
	return templates, static, nil
}

func sweepSessions(ctx context.Context, sessions *storage.DB, m *metrics.Metrics, logger logrus.FieldLogger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.CleanExpiredSessions()
			if err != nil {
				logger.WithError(err).Error("clean expired sessions")
				continue
			}
			if n > 0 {
				m.SessionsCleaned.Add(float64(n))
				logger.WithField("count", n).Info("expired sessions removed")
			}
		}
	}
}

func setupRouter(h *handlers.Handlers, m *metrics.Metrics, logger logrus.FieldLogger, static fs.FS) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/expenses", http.StatusFound)
	})
	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Get("/login", h.LoginForm)
	r.Post("/login", h.Login)
	r.Get("/register", h.RegisterForm)
	r.Post("/register", h.Register)
	r.Get("/logout", h.Logout)
	r.Post("/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Get("/expenses", h.ListExpenses)
		r.Post("/expenses", h.CreateExpense)
		r.Get("/expenses/new", h.CreateExpenseForm)
		r.Get("/expenses/export", h.ExportExpenses)
		r.Get("/expenses/{id}/edit", h.EditExpenseForm)
		r.Post("/expenses/{id}", h.UpdateExpense)
		r.Post("/expenses/{id}/delete", h.DeleteExpense)
		r.Get("/stats", h.Statistics)
	})

	return r
}
