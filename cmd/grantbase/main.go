package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/grantbase/grantbase/pkg/auth"
	"github.com/grantbase/grantbase/pkg/authz"
	"github.com/grantbase/grantbase/pkg/collaborative"
	"github.com/grantbase/grantbase/pkg/config"
	"github.com/grantbase/grantbase/pkg/membership"
	"github.com/grantbase/grantbase/pkg/middleware"
	"github.com/grantbase/grantbase/pkg/observability"
	"github.com/grantbase/grantbase/pkg/sponsorship"
	"github.com/grantbase/grantbase/pkg/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "grantbase: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting grantbase API server")

	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing opentelemetry: %w", err)
	}

	connections, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Storage.PostgresURL,
		ReplicaURLs: postgres.ParseReplicaURLs(cfg.Storage.PostgresReplicaURLs),
		MaxConns:    cfg.Storage.PostgresMaxConns,
		MinConns:    cfg.Storage.PostgresMinConns,
		Timeout:     cfg.Storage.PostgresTimeout,
	})
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	db := connections.Primary()
	connections.StartHealthCheckRoutine(ctx, 30*time.Second)

	if err := applyAllMigrations(ctx, db); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	logger.Info("database migrations applied")

	var redisClient *postgres.RedisClient
	if cfg.Storage.CacheEnabled {
		redisClient, err = postgres.NewRedisClient(cfg.Storage)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		logger.Info("redis cache enabled")
	}

	tokenManager := auth.NewTokenManager(db)

	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)
	go pollDBStats(ctx, connections, metrics)
	go pollEntityCounts(ctx, db, metrics, logger)

	registry := authz.NewRegistry()
	decisionCache := authz.NewDecisionCache(10000, cfg.Storage.CacheTTL["decision"])
	decisionCache.Instrument(
		metrics.DecisionCacheHitsTotal.Inc,
		metrics.DecisionCacheMissesTotal.Inc,
		metrics.DecisionCacheInvalidationsTotal.Inc,
	)

	// The list cache clears before the decision generation bumps, so a
	// decision cached into the new generation can never come from a stale
	// redis list. Both run synchronously inside the mutation.
	var grantListCache *authz.GrantListCache
	invalidate := func() {
		if grantListCache != nil {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := grantListCache.Invalidate(cacheCtx); err != nil {
				logger.WithError(err).Error("grant list cache invalidation failed")
			}
		}
		decisionCache.Invalidate()
	}

	grantStore := authz.NewStore(db, registry, authz.WithChangeHook(invalidate))
	membershipStore := membership.NewStore(db, membership.WithChangeHook(invalidate))
	sponsorshipStore := sponsorship.NewStore(db, sponsorship.WithChangeHook(invalidate))
	collaborativeStore := collaborative.NewStore(db, collaborative.WithChangeHook(invalidate))

	var grants authz.GrantReader = grantStore
	if redisClient != nil {
		grantListCache = authz.NewGrantListCache(grantStore, redisClient.GetClient(), cfg.Storage.CacheTTL["grant_list"])
		grants = grantListCache
	}

	resolver := authz.NewResolver(grants, membershipStore, sponsorshipStore, collaborativeStore,
		authz.WithDecisionCache(decisionCache),
		authz.WithDecisionObserver(func(verb authz.Verb, kind authz.EntityKind, allowed bool, path string, depth int, elapsed time.Duration) {
			metrics.ObserveAuthzDecision(string(verb), string(kind), allowed, path, depth, elapsed)
		}))

	router := mux.NewRouter()
	router.Use(observability.HTTPMetricsMiddleware(metrics))
	router.Use(middleware.NewAuthMiddleware(tokenManager, false).Handler)
	// Rate limit tiers key on the authenticated actor, so this sits after auth.
	if redisClient != nil {
		router.Use(middleware.NewDistributedRateLimitMiddleware(redisClient.GetClient()).Handler)
	} else {
		rateLimit := middleware.NewRateLimitMiddleware()
		rateLimit.StartCleanup(ctx)
		router.Use(rateLimit.Handler)
	}
	router.Use(middleware.NewPermissionsMiddleware(resolver).Handler)

	authz.NewHandlers(grantStore, resolver, tokenManager).RegisterRoutes(router)
	membership.NewHandlers(membershipStore).RegisterRoutes(router)
	sponsorship.NewHandlers(sponsorshipStore, resolver).RegisterRoutes(router)
	collaborative.NewHandlers(collaborativeStore, resolver).RegisterRoutes(router)

	var handler http.Handler = router
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(router, "grantbase-api")
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, newHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, promRegistry)
	}
	healthServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	var sweeper *membership.Sweeper
	if cfg.Sweeper.Enabled {
		sweeper = membership.NewSweeper(membershipStore, cfg.Sweeper.Schedule)
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("starting membership sweeper: %w", err)
		}
		logger.WithField("schedule", cfg.Sweeper.Schedule).Info("membership sweeper started")
	}

	shutdown := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	if sweeper != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			sweeper.Stop()
			return nil
		})
	}
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return connections.Close()
	})
	if otelProviders != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()
	go func() {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
			os.Exit(1)
		}
	}()

	return shutdown.WaitForShutdown()
}

// applyAllMigrations runs each package's schema migrations against its own
// tracking table so packages can evolve their schemas independently.
func applyAllMigrations(ctx context.Context, db *sql.DB) error {
	sets := []struct {
		table      string
		migrations []postgres.Migration
	}{
		{auth.MigrationsTable, auth.GetMigrations()},
		{authz.MigrationsTable, authz.GetMigrations()},
		{membership.MigrationsTable, membership.GetMigrations()},
		{sponsorship.MigrationsTable, sponsorship.GetMigrations()},
		{collaborative.MigrationsTable, collaborative.GetMigrations()},
	}
	for _, set := range sets {
		if err := postgres.ApplyMigrations(ctx, db, set.table, set.migrations); err != nil {
			return fmt.Errorf("%s: %w", set.table, err)
		}
	}
	return nil
}

func newHealthChecker(db *sql.DB, redisClient *postgres.RedisClient) *observability.HealthChecker {
	if redisClient != nil {
		return observability.NewHealthChecker(db, redisClient.GetClient())
	}
	return observability.NewHealthChecker(db, nil)
}

func pollDBStats(ctx context.Context, connections *postgres.ConnectionManager, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBStats(connections.Primary().Stats())
		}
	}
}

func pollEntityCounts(ctx context.Context, db *sql.DB, metrics *observability.Metrics, logger *observability.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts, err := countEntities(ctx, db)
			if err != nil {
				logger.WithError(err).Error("counting entities for metrics failed")
				continue
			}
			metrics.UpdateEntityCounts(counts)
		}
	}
}

func countEntities(ctx context.Context, db *sql.DB) (observability.EntityCounts, error) {
	var counts observability.EntityCounts
	queries := []struct {
		dest  *int64
		query string
	}{
		{&counts.Grants, `SELECT COUNT(*) FROM permission_grants`},
		{&counts.ActiveMemberships, `SELECT COUNT(*) FROM ephemeral_memberships WHERE not_after > NOW()`},
		{&counts.Collaboratives, `SELECT COUNT(*) FROM funder_collaboratives`},
		{&counts.PendingInvitations, `SELECT COUNT(*) FROM collaborative_invitations WHERE status = 'pending'`},
		{&counts.ActiveTokens, `SELECT COUNT(*) FROM api_tokens WHERE revoked_at IS NULL AND (expires_at IS NULL OR expires_at > NOW())`},
	}
	for _, q := range queries {
		if err := db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return counts, err
		}
	}
	return counts, nil
}
