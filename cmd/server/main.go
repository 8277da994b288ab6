package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/turtacn/authcore/internal/application"
	"github.com/turtacn/authcore/internal/application/service"
	"github.com/turtacn/authcore/internal/config"
	"github.com/turtacn/authcore/internal/domain/repository"
	domainService "github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/internal/infrastructure/audit"
	"github.com/turtacn/authcore/internal/infrastructure/consumers"
	"github.com/turtacn/authcore/internal/infrastructure/crypto"
	"github.com/turtacn/authcore/internal/infrastructure/kms"
	"github.com/turtacn/authcore/internal/infrastructure/monitoring"
	"github.com/turtacn/authcore/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/authcore/internal/infrastructure/ratelimit"
	"github.com/turtacn/authcore/internal/infrastructure/redis"
	grpcserver "github.com/turtacn/authcore/internal/interfaces/grpc"
	httpserver "github.com/turtacn/authcore/internal/interfaces/http"
	"github.com/turtacn/authcore/internal/interfaces/http/handlers"
	"github.com/turtacn/authcore/pkg/logger"
)

const (
	auditQueueSize = 1024
	jwksCacheTTL   = 5 * time.Minute
)

func main() {
	var configFile string
	cmd := &cobra.Command{
		Use:           "authcore-server",
		Short:         "Run the authcore OAuth 2.1 authorization server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, configFile)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to the configuration file")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile string) error {
	loader := config.NewLoader(configFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, level, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	loader.Watch(func(next *config.Config) {
		if lvl, err := zapcore.ParseLevel(next.Log.Level); err == nil {
			level.SetLevel(lvl)
		}
		log.Info(ctx, "configuration reloaded; settings other than log.level apply on restart",
			logger.String("log_level", next.Log.Level))
	}, func(err error) {
		log.Warn(ctx, "configuration reload rejected", logger.Err(err))
	})

	app, err := build(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "startup failed", err)
		return err
	}
	defer app.close()
	return app.serve(ctx)
}

// app holds the long-running components and the resources they release on exit.
type app struct {
	cfg       *config.Config
	log       logger.Logger
	http      *httpserver.Router
	grpc      *grpcserver.Server
	scheduler *application.KeyRotationScheduler
	consumer  *consumers.RevocationConsumer
	closers   []func(context.Context) error
}

func build(ctx context.Context, cfg *config.Config, log logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	clock := domainService.SystemClock{}

	tracing, err := monitoring.SetupTracing(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.onClose(tracing.Shutdown)
	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	db, err := postgres.NewDB(ctx, &cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return postgres.Close(db) })

	var rdb goredis.UniversalClient
	if cfg.Redis.Enabled {
		rdb, err = redis.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			a.close()
			return nil, err
		}
		a.onClose(func(context.Context) error { return rdb.Close() })
	}

	mek, err := loadMasterKey(ctx, cfg, db, log)
	if err != nil {
		a.close()
		return nil, err
	}

	ringOpts := []crypto.KeyRingOption{crypto.WithKeyRingMetrics(metrics)}
	if cfg.Keys.Persist {
		ringOpts = append(ringOpts, crypto.WithKeyPersistence(postgres.NewSigningKeyRepository(db), mek))
	}
	keys := crypto.NewKeyRing(crypto.KeyRingConfig{
		KeyBits:          cfg.Keys.RSAKeyBits,
		Retention:        cfg.JWT.MaxTokenTTL(),
		RotationInterval: cfg.Keys.RotationInterval,
	}, clock, log, ringOpts...)
	if err := keys.Bootstrap(ctx); err != nil {
		a.close()
		return nil, err
	}

	var revocations domainService.RevocationStore
	if rdb != nil {
		revocations = redis.NewRevocationStore(rdb, clock)
	} else {
		memory := redis.NewMemoryRevocationStore(clock)
		revocations = memory
		if cfg.Kafka.RevocationFanout {
			a.consumer = consumers.NewRevocationConsumer(cfg.Kafka, memory, clock, log)
		}
	}

	tokens := domainService.NewTokenService(keys, domainService.TokenConfig{
		Issuer:               cfg.JWT.Issuer,
		UserTokenTTL:         cfg.JWT.UserTokenTTL,
		AdminTokenTTL:        cfg.JWT.AdminTokenTTL,
		AdminTokenMaxTTL:     cfg.JWT.AdminTokenMaxTTL,
		AccessTokenTTL:       cfg.JWT.AccessTokenTTL,
		ClientCredentialsTTL: cfg.JWT.ClientCredentialsTTL,
		RefreshWindow:        cfg.JWT.SessionRefreshWindow,
	}, clock, log,
		domainService.WithRevocationStore(revocations),
		domainService.WithTokenMetrics(metrics),
	)

	var codes repository.AuthorizationCodeStore = postgres.NewCodeRepository(db)
	if cfg.OAuth.CodeStore == "redis" {
		codes = redis.NewCodeStore(rdb, clock)
	}

	limiter, err := newRateLimiter(cfg, rdb, clock, metrics, log)
	if err != nil {
		a.close()
		return nil, err
	}

	sink, closeSink, err := audit.NewSink(cfg, postgres.NewAuditRepository(db), log)
	if err != nil {
		a.close()
		return nil, err
	}
	auditor := audit.NewAsyncService(sink, auditQueueSize, log)
	a.onClose(func(ctx context.Context) error {
		if err := auditor.Close(ctx); err != nil {
			return err
		}
		return closeSink()
	})

	hasher, err := service.NewSecretHasher(cfg.OAuth.Argon2, nil)
	if err != nil {
		a.close()
		return nil, err
	}
	oauthServer := service.NewOAuth2Server(service.OAuth2ConfigFrom(cfg),
		postgres.NewClientRepository(db), codes, postgres.NewRefreshTokenRepository(db),
		tokens, hasher, clock, log,
		service.WithOAuthAudit(auditor),
		service.WithOAuthMetrics(metrics),
		service.WithOAuthTracer(tracing.Tracer()),
	)

	tenants := postgres.NewTenantRepository(db)
	authz := service.NewTenantAuthorizer(tokens, tenants, log)
	credentials := service.NewTenantCredentialService(postgres.NewCredentialRepository(db), mek, clock, log)

	adminRepo := postgres.NewAdminTokenRepository(db)
	adminAuth := service.NewAdminAuthenticator(tokens, adminRepo, cfg.Admin.CacheTTL, clock, log)
	adminTokens := service.NewAdminTokenService(tokens, adminRepo, adminAuth, auditor, clock, log)

	keyMgmt := application.NewKeyManagementService(keys, auditor, log)
	a.scheduler = application.NewKeyRotationScheduler(keyMgmt, codes, clock, cfg.Keys.RotationCheckPeriod, log)

	checks := map[string]handlers.HealthCheck{
		"database": func(ctx context.Context) error { return postgres.Ping(ctx, db) },
		"keys":     handlers.KeyRingCheck(keys),
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	a.http = httpserver.NewRouter(cfg, httpserver.Dependencies{
		OAuth:       handlers.NewOAuthHandler(oauthServer, crypto.NewJWKSPublisher(keys, jwksCacheTTL), log),
		Tenant:      handlers.NewTenantHandler(tokens, authz, credentials, log),
		Admin:       handlers.NewAdminHandler(keyMgmt, adminTokens, log),
		Health:      handlers.NewHealthHandler(checks, clock, log),
		Authorizer:  authz,
		AdminAuth:   adminAuth,
		RateLimiter: limiter,
		Metrics:     metrics,
		Tracer:      tracing.Tracer(),
	}, log)
	a.grpc = grpcserver.NewServer(cfg, grpcserver.NewInterceptorChain(log, authz, limiter), log)

	return a, nil
}

// loadMasterKey resolves the MEK from Vault or configuration and unwraps the DEK.
func loadMasterKey(ctx context.Context, cfg *config.Config, db *gorm.DB, log logger.Logger) (*crypto.MasterKeyManager, error) {
	src, err := kms.NewSecretSource(cfg, log)
	if err != nil {
		return nil, err
	}
	mek, err := crypto.LoadOrGenerate(ctx, src, crypto.MasterKeyOptions{
		Production:           cfg.Server.IsProduction(),
		DebugLogEphemeralKey: cfg.Keys.DebugLogEphemeralKey,
	}, log)
	if err != nil {
		return nil, err
	}
	if err := mek.InitDataKey(ctx, postgres.NewDataKeyRepository(db)); err != nil {
		return nil, err
	}
	return mek, nil
}

// newRateLimiter returns nil when rate limiting is disabled.
func newRateLimiter(cfg *config.Config, rdb goredis.UniversalClient, clock domainService.Clock, metrics domainService.Metrics, log logger.Logger) (domainService.RateLimiter, error) {
	if !cfg.RateLimit.Enabled {
		return nil, nil
	}
	rlCfg := ratelimit.ConfigFrom(cfg.RateLimit)
	if rdb == nil {
		log.Warn(context.Background(), "redis disabled, rate limits are per instance")
		return ratelimit.NewLocalRateLimiter(rlCfg, clock, metrics), nil
	}
	limiter, err := ratelimit.NewRedisRateLimiter(rdb, rlCfg, clock, metrics, log)
	if err != nil {
		return nil, err
	}
	return limiter, nil
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Warn(ctx, "shutdown step failed", logger.Err(err))
		}
	}
	a.closers = nil
}

// serve runs every server and background loop until ctx is cancelled or one fails.
func (a *app) serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(a.http.Start)
	g.Go(a.grpc.Start)
	g.Go(func() error { return a.scheduler.Run(gctx) })
	if a.consumer != nil {
		g.Go(func() error { return a.consumer.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info(context.Background(), "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		a.grpc.Stop(shutdownCtx)
		return a.http.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		a.log.Error(context.Background(), "server exited with error", err)
		return err
	}
	a.log.Info(context.Background(), "server stopped")
	return nil
}
