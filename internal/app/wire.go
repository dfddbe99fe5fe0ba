package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/cascadeprojects/crm221/internal/auth"
	"github.com/cascadeprojects/crm221/internal/mockdata"
	"github.com/cascadeprojects/crm221/internal/observability"
	"github.com/cascadeprojects/crm221/internal/platform/cache"
	"github.com/cascadeprojects/crm221/internal/platform/db"
	"github.com/cascadeprojects/crm221/internal/portfolio"
	"github.com/cascadeprojects/crm221/internal/query"
	"github.com/cascadeprojects/crm221/internal/query/pgstore"
	"github.com/cascadeprojects/crm221/internal/records"
	"github.com/cascadeprojects/crm221/jobs"
)

// DataLayer is the remote store selected by DATA_BACKEND plus the matching
// auth audit repository.
type DataLayer struct {
	Store query.Store
	Audit auth.Repository
	close func()
}

// Close releases the data layer's connections.
func (d *DataLayer) Close() {
	if d != nil && d.close != nil {
		d.close()
	}
}

// OpenDataLayer connects the configured backend. Store calls are
// instrumented against registerer.
func OpenDataLayer(ctx context.Context, cfg *Config, logger *slog.Logger, registerer prometheus.Registerer) (*DataLayer, error) {
	var out DataLayer
	switch cfg.DataBackend {
	case DataBackendPostgres:
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{ApplicationName: "crm221"})
		if err != nil {
			return nil, err
		}
		out.Store = pgstore.New(pool, auth.PostgresClaims, logger)
		out.Audit = auth.NewRepository(pool)
		out.close = pool.Close
	default:
		store, err := mockdata.NewStore(time.Now())
		if err != nil {
			return nil, err
		}
		out.Store = store
		out.Audit = auth.NopRepository{}
	}
	out.Store = query.Instrument(out.Store, query.NewStoreMetrics(registerer))
	logger.Info("data layer ready", slog.String("backend", cfg.DataBackend))
	return &out, nil
}

// Runtime holds the assembled HTTP server dependencies.
type Runtime struct {
	Handler   http.Handler
	Store     query.Store
	Portfolio *portfolio.Service
	Sessions  *auth.Sessions
	Metrics   *observability.Metrics

	closers []func()
}

// Close releases everything Assemble opened, newest first.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// Assemble builds the HTTP runtime described by cfg.
func Assemble(ctx context.Context, cfg *Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{Metrics: observability.NewMetrics()}

	data, err := OpenDataLayer(ctx, cfg, logger, rt.Metrics.Registerer())
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, data.Close)
	rt.Store = data.Store

	allowList := auth.DefaultAllowList()
	if cfg.AllowListFile != "" {
		if allowList, err = auth.LoadAllowList(cfg.AllowListFile); err != nil {
			rt.Close()
			return nil, err
		}
	}
	tokens, err := auth.NewTokenIssuer(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		rt.Close()
		return nil, err
	}

	var (
		storage    auth.Storage
		redisCli   *redis.Client
		jobHandler *jobs.Handler
	)
	switch cfg.SessionBackend {
	case SessionBackendRedis:
		if redisCli, err = cache.New(ctx, cfg.RedisAddr); err != nil {
			rt.Close()
			return nil, fmt.Errorf("session storage: %w", err)
		}
		rt.closers = append(rt.closers, func() {
			if err := redisCli.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		})
		storage = auth.NewRedisStorage(redisCli, "")

		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		rt.closers = append(rt.closers, func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		})
		jobHandler = jobs.NewHandler(inspector, logger)
	default:
		storage = auth.NewMemoryStorage()
		jobHandler = jobs.NewHandler(nil, logger)
	}

	sessions, err := auth.NewSessions(auth.Options{
		Verifier: allowList,
		Tokens:   tokens,
		Storage:  storage,
		Audit:    data.Audit,
		Logger:   logger,
	}, cfg.SessionCookie, cfg.IsProduction())
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Sessions = sessions

	oauth := auth.OAuthConfig{
		RedirectBase:   cfg.OAuthRedirectBase,
		GoogleClientID: cfg.OAuthGoogleClientID,
		FacebookAppID:  cfg.OAuthFacebookAppID,
		AppleClientID:  cfg.OAuthAppleClientID,
	}

	rt.Portfolio = portfolio.NewService(rt.Store, cfg.LeaseReminderDays, logger)
	paging := records.Paging{DefaultSize: cfg.DefaultPageSize, MaxSize: cfg.MaxPageSize}
	rt.Handler = NewRouter(RouterParams{
		Logger:           logger,
		Config:           cfg,
		Sessions:         rt.Sessions,
		AuthHandler:      auth.NewHandler(logger, rt.Sessions, oauth),
		DashboardHandler: portfolio.NewHandler(logger, rt.Portfolio),
		RecordsHandler:   records.NewHandler(logger, rt.Store, portfolio.Collections, paging),
		JobHandler:       jobHandler,
		Metrics:          rt.Metrics,
	})
	return rt, nil
}
