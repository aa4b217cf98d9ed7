package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"hrbenefits/internal/domain/audit"
	"hrbenefits/internal/domain/auth"
	"hrbenefits/internal/domain/benefits"
	"hrbenefits/internal/domain/notifications"
	"hrbenefits/internal/platform/config"
	"hrbenefits/internal/platform/db"
	"hrbenefits/internal/platform/disbursement"
	"hrbenefits/internal/platform/email"
	"hrbenefits/internal/platform/jobs"
	"hrbenefits/internal/platform/metrics"
	"hrbenefits/internal/platform/storage"
	"hrbenefits/internal/transport/http/api"
	benefitshandler "hrbenefits/internal/transport/http/handlers/benefits"
	"hrbenefits/internal/transport/http/middleware"
)

type App struct {
	Config   config.Config
	DB       *pgxpool.Pool
	Benefits *benefits.Service
	Jobs     *jobs.Service
	Metrics  *metrics.Collector
	Router   http.Handler
}

// New wires the stores, the disbursement provider and the HTTP router.
// Callers own the returned App and must Close it.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg, Metrics: metrics.New()}

	var (
		benefitStore benefits.StoreAPI
		auditStore   audit.StoreAPI
		notifyStore  notifications.StoreAPI
		runStore     jobs.RunStore
		idem         middleware.Idempotency
		tenants      jobs.TenantSource
	)
	switch cfg.StorageDriver {
	case config.StorageDriverPostgres:
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		app.DB = pool
		if cfg.RunMigrations {
			applied, err := db.Migrate(ctx, pool, cfg.MigrationsDir)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrations: %w", err)
			}
			if len(applied) > 0 {
				slog.Info("migrations applied", "versions", applied)
			}
		}
		benefitStore = benefits.NewStore(pool)
		auditStore = audit.NewStore(pool)
		notifyStore = notifications.NewStore(pool)
		runStore = jobs.NewPGRunStore(pool)
		idem = middleware.NewIdempotencyStore(pool)
		tenants = func(ctx context.Context) ([]string, error) { return db.ListTenants(ctx, pool) }
	default:
		benefitStore = benefits.NewMemoryStore()
		auditStore = audit.NewMemoryStore()
		notifyStore = notifications.NewMemoryStore()
		runStore = jobs.NewMemoryRunStore()
		idem = middleware.NewMemoryIdempotencyStore()
		tenants = jobs.StaticTenants(nil)
	}
	if len(cfg.SchedulerTenants) > 0 {
		tenants = jobs.StaticTenants(cfg.SchedulerTenants)
	}

	provider, err := disbursement.New(cfg)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("disbursement provider: %w", err)
	}
	statements, err := storage.New(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("statement storage: %w", err)
	}

	auditSvc := audit.New(auditStore)
	notifySvc := notifications.New(notifyStore, email.New(cfg), cfg.EmailFrom, cfg.NotifyRecipients)
	app.Benefits = benefits.NewService(benefitStore, provider,
		benefits.WithNotifier(notifySvc),
		benefits.WithAuditor(auditSvc),
	)
	app.Jobs = jobs.New(app.Benefits, runStore, tenants)

	handler := benefitshandler.NewHandler(app.Benefits, auth.StaticPermissions{}, auditSvc, statements, idem, app.Metrics)
	app.Router = app.routes(handler)
	return app, nil
}

func (a *App) routes(handler *benefitshandler.Handler) http.Handler {
	cfg := a.Config
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(a.Metrics))
	router.Use(chimw.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	if len(cfg.CORSAllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if a.DB == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.DB.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.With(middleware.RequirePermission(auth.PermSystemAdmin, auth.StaticPermissions{})).Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, a.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.DisbursementRateLimit(cfg.RateLimitPerMinute, time.Minute))
		handler.RegisterRoutes(r)
	})
	return router
}

// Run serves HTTP and the scheduler until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Jobs.Start(ctx, jobs.Schedules{
		Calculation:   a.Config.CalculationSchedule,
		StatusRefresh: a.Config.StatusRefreshSchedule,
	}); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("benefits server listening", "addr", a.Config.Addr, "storage", a.Config.StorageDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
