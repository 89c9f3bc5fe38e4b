// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/stackalert/stackalert/internal/alerting"
	"github.com/stackalert/stackalert/internal/alerting/email"
	alertingpostgres "github.com/stackalert/stackalert/internal/alerting/postgres"
	"github.com/stackalert/stackalert/internal/config"
	"github.com/stackalert/stackalert/internal/pkg/ctxlog"
	"github.com/stackalert/stackalert/internal/pkg/httputil"
	"github.com/stackalert/stackalert/internal/pkg/metrics"
	"github.com/stackalert/stackalert/internal/pkg/postgres"
	"github.com/stackalert/stackalert/internal/statuspage"
	"github.com/stackalert/stackalert/internal/version"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	scheduler     *cron.Cron
	pipeline      *alerting.Pipeline
	services      []statuspage.Service
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MinIdleConns:    cfg.Database.MinIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := postgres.Migrate(cfg.Database.URL); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
		services:      buildServices(cfg.Services),
	}

	go app.collectDBMetrics(metricsCtx)

	router, err := app.setupRouter(metricsCtx)
	if err != nil {
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	if cfg.Trigger.Schedule != "" {
		if err := app.setupScheduler(cfg.Trigger.Schedule); err != nil {
			db.Close()
			metricsCancel()
			return nil, fmt.Errorf("setup scheduler: %w", err)
		}
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers and the optional scheduler.
func (a *App) Run() error {
	if a.scheduler != nil {
		a.logger.Info("starting scheduler", "schedule", a.config.Trigger.Schedule)
		a.scheduler.Start()
	}

	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"services", len(a.services),
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	if a.scheduler != nil {
		// Wait for an in-flight scheduled pass to finish.
		stopCtx := a.scheduler.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setupRouter(metricsCtx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	repo := alertingpostgres.NewRepository(a.db)

	client := statuspage.NewClient(statuspage.ClientConfig{
		FetchTimeout:      a.config.Poll.FetchTimeout,
		CacheTTL:          a.config.Poll.CacheTTL,
		BatchSize:         a.config.Poll.BatchSize,
		RequestsPerSecond: a.config.Poll.RequestsPerSecond,
	})

	sender, err := email.NewSender(email.Config{
		Enabled:        a.config.Email.Enabled,
		SMTPHost:       a.config.Email.SMTPHost,
		SMTPPort:       a.config.Email.SMTPPort,
		SMTPUser:       a.config.Email.SMTPUser,
		SMTPPassword:   a.config.Email.SMTPPassword,
		FromAddress:    a.config.Email.FromAddress,
		UnsubscribeURL: a.config.Email.UnsubscribeURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create email sender: %w", err)
	}

	if !a.config.Email.Enabled {
		slog.Warn("email sender is disabled: alerts will be detected but not delivered")
	}

	composer, err := alerting.NewComposer()
	if err != nil {
		return nil, fmt.Errorf("create alert composer: %w", err)
	}

	a.pipeline = alerting.NewPipeline(client, repo, composer, sender)
	handler := alerting.NewHandler(a.pipeline, a.services)

	go a.collectQueueMetrics(metricsCtx, repo)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httputil.SecretAuth(a.config.Trigger.Secret))
			r.Use(middleware.Timeout(4 * time.Minute))

			handler.RegisterRoutes(r)
		})
	})

	return r, nil
}

func (a *App) setupScheduler(schedule string) error {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
		defer cancel()

		summary, err := a.pipeline.Run(ctxlog.WithLogger(ctx, a.logger), a.services)
		if err != nil {
			a.logger.Error("scheduled pass failed", "error", err)
			return
		}
		a.logger.Info("scheduled pass complete",
			"checked", summary.Checked,
			"events", summary.Events,
			"emails_sent", summary.EmailsSent,
		)
	})
	if err != nil {
		return fmt.Errorf("parse cron schedule %q: %w", schedule, err)
	}

	a.scheduler = c

	return nil
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) collectQueueMetrics(ctx context.Context, repo alerting.Repository) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			count, err := repo.CountPending(ctx)
			if err != nil {
				a.logger.Error("failed to count pending events", "error", err)
				continue
			}
			alerting.RecordPendingDepth(count)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func buildServices(services []config.Service) []statuspage.Service {
	out := make([]statuspage.Service, 0, len(services))
	for _, svc := range services {
		out = append(out, statuspage.Service{
			Slug:      svc.Slug,
			Name:      svc.Name,
			StatusURL: svc.StatusURL,
		})
	}
	return out
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
