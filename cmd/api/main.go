package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Piyushhbhutoria/memory-wall/internal/di"
	"github.com/Piyushhbhutoria/memory-wall/internal/guard"
	"github.com/Piyushhbhutoria/memory-wall/internal/handlers"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/alerts"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/auth"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/config"
	pfirestore "github.com/Piyushhbhutoria/memory-wall/internal/platform/firestore"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/jobs"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/observability"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/secrets"
	platformstorage "github.com/Piyushhbhutoria/memory-wall/internal/platform/storage"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/throttle"
	"github.com/Piyushhbhutoria/memory-wall/internal/repositories"
	firestoreRepo "github.com/Piyushhbhutoria/memory-wall/internal/repositories/firestore"
	"github.com/Piyushhbhutoria/memory-wall/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	metrics := observability.NewMetrics("wishwall")

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	storageClient, err := cloudstorage.NewClient(ctx)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()
	mediaStore, err := platformstorage.NewMediaStore(storageClient, cfg.Storage.MediaBucket, cfg.Storage.PublicBaseURL)
	if err != nil {
		logger.Fatal("failed to initialise media store", zap.Error(err))
	}

	infra := di.Infrastructure{
		Media:   mediaStore,
		Metrics: metrics,
		Logger:  logger,
		Build:   buildInfo,
		Clock:   time.Now,
	}

	var redisClient *redis.Client
	if cfg.RateLimit.Backend == config.BackendRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		store, err := guard.NewRedisWindowStore(redisClient, guard.WithRedisPrefix(cfg.Redis.Prefix))
		if err != nil {
			logger.Fatal("failed to initialise redis window store", zap.Error(err))
		}
		infra.WindowStore = store
	}

	var pubsubClient *pubsub.Client
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.SecurityTopic != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		topic := pubsubClient.Topic(cfg.PubSub.SecurityTopic)
		defer func() {
			topic.Stop()
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		publisher, err := jobs.NewPubSubSecurityEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise security event publisher", zap.Error(err))
		}
		infra.Publisher = publisher
	} else {
		logger.Warn("pubsub: security topic not configured; events are stored only")
	}

	if webhook := strings.TrimSpace(cfg.Alerts.DiscordWebhookURL); webhook != "" {
		notifier, err := alerts.NewDiscordNotifier(webhook)
		if err != nil {
			logger.Fatal("failed to initialise discord notifier", zap.Error(err))
		}
		infra.Notifier = notifier
	}

	healthRepo, err := newHealthRepository(firestoreClient, redisClient, pubsubClient, cfg, fetcher)
	if err != nil {
		logger.Warn("health: dependency checks unavailable", zap.Error(err))
	}
	registry, err := firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, registry, infra)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	svc := container.Services

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier,
		auth.WithAuthLogger(observability.EventLogger(logger.Named("auth"), zap.InfoLevel)),
	)
	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg, metrics)

	ipThrottle := throttle.New(cfg.RateLimit.IPRatePerSecond, cfg.RateLimit.IPBurst,
		throttle.WithTrustedHops(cfg.RateLimit.TrustedProxyHops),
	)
	identities := guard.NewIdentityGenerator(nil)

	publicHandlers := handlers.NewPublicHandlers(handlers.PublicHandlerDeps{
		Walls:      svc.Walls,
		Memories:   svc.Memories,
		Comments:   svc.Comments,
		Reactions:  svc.Reactions,
		Media:      svc.Media,
		Identities: identities,
		Validation: metrics,
	})
	hostHandlers := handlers.NewHostWallHandlers(authenticator, svc.Walls, metrics)
	maintenanceHandlers := handlers.NewMaintenanceHandlers(svc.Walls, container.Limiter, cfg.Walls.ExpiryBatchSize, time.Now)

	var healthOpts []handlers.HealthOption
	healthOpts = append(healthOpts, handlers.WithHealthBuildInfo(buildInfo))
	if svc.System != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(svc.System))
	}
	healthHandlers := handlers.NewHealthHandlers(healthOpts...)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		metrics.Middleware,
	}

	var opts []handlers.Option
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithMetricsHandler(metrics.Handler()))
	opts = append(opts, handlers.WithPublicRoutes(publicHandlers.Routes))
	opts = append(opts, handlers.WithHostRoutes(hostHandlers.Routes))
	opts = append(opts, handlers.WithWriteMiddlewares(ipThrottle.Middleware()))
	if oidcMiddleware != nil {
		opts = append(opts,
			handlers.WithInternalRoutes(maintenanceHandlers.Routes),
			handlers.WithInternalMiddlewares(oidcMiddleware),
		)
	} else {
		logger.Warn("internal maintenance routes disabled: API_SECURITY_OIDC_JWKS_URL not set")
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	jobsCtx, jobsCancel := context.WithCancel(context.Background())
	var jobsWG sync.WaitGroup
	jobLogger := logger.Named("jobs")
	runEvery(jobsCtx, &jobsWG, cfg.RateLimit.PruneInterval, func(ctx context.Context) {
		pruned, err := container.Limiter.Prune(ctx)
		if err != nil {
			jobLogger.Error("rate limit prune error", zap.Error(err))
			return
		}
		removed := ipThrottle.Cleanup()
		if pruned > 0 || removed > 0 {
			jobLogger.Debug("rate limit windows pruned", zap.Int("windows", pruned), zap.Int("ip_buckets", removed))
		}
	})
	runEvery(jobsCtx, &jobsWG, cfg.Walls.ExpiryInterval, func(ctx context.Context) {
		expired, err := svc.Walls.ExpireWalls(ctx, time.Now().UTC(), cfg.Walls.ExpiryBatchSize)
		if err != nil {
			jobLogger.Error("wall expiry error", zap.Error(err))
			return
		}
		if expired > 0 {
			jobLogger.Info("walls expired", zap.Int("count", expired))
		}
	})

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("wish wall api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	jobsCancel()
	jobsWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("repository close error", zap.Error(err))
	}
}

// runEvery calls fn on every tick until ctx is cancelled. A non-positive interval disables the job.
func runEvery(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(ctx, time.Minute)
				fn(runCtx)
				cancel()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newHealthRepository(client *firestore.Client, rdb *redis.Client, ps *pubsub.Client, cfg config.Config, fetcher *secrets.Fetcher) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 4)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if rdb != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
		})
	}
	if ps != nil {
		topic := cfg.PubSub.SecurityTopic
		checks = append(checks, repositories.DependencyCheck{
			Name:     "pubsub",
			Timeout:  1500 * time.Millisecond,
			Optional: true,
			Check: func(ctx context.Context) error {
				ok, err := ps.Topic(topic).Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s not found", topic)
				}
				return nil
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:     "secretManager",
			Timeout:  time.Second,
			Optional: true,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config, metrics auth.MetricsRecorder) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	adapter := observability.NewPrintfAdapter(logger)
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(adapter))
	validator := auth.NewOIDCValidator(cache,
		auth.WithOIDCLogger(adapter),
		auth.WithOIDCMetrics(metrics),
		auth.WithOIDCServiceAccounts(cfg.Security.OIDC.ServiceAccounts...),
	)

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projectMap := parseKeyValueList(lookup("API_SECRET_PROJECT_IDS")); len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(lowerKeys(projectMap)))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if pins := secretVersionPins(lookup("API_SECRET_VERSION_PINS")); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists secrets that must resolve for the configured backends.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if strings.EqualFold(strings.TrimSpace(env["API_RATELIMIT_BACKEND"]), config.BackendRedis) &&
		strings.TrimSpace(env["API_REDIS_PASSWORD"]) != "" {
		required = append(required, "Redis.Password")
	}
	if strings.TrimSpace(env["API_ALERTS_DISCORD_WEBHOOK_URL"]) != "" {
		required = append(required, "Alerts.DiscordWebhookURL")
	}
	return required
}

func secretVersionPins(raw string) map[string]string {
	pins := make(map[string]string)
	for ref, version := range parseKeyValueList(raw) {
		var prefix string
		if idx := strings.Index(ref, ":"); idx > 0 {
			schemeSplit := strings.Index(ref, "://")
			if schemeSplit == -1 || idx < schemeSplit {
				prefix = strings.ToLower(strings.TrimSpace(ref[:idx])) + ":"
				ref = strings.TrimSpace(ref[idx+1:])
			}
		}
		if strings.HasPrefix(ref, "sm://") {
			ref = "secret://" + strings.TrimPrefix(ref, "sm://")
		} else if !strings.HasPrefix(ref, "secret://") {
			ref = "secret://" + ref
		}
		pins[prefix+ref] = version
	}
	return pins
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return result
	}
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}

func lowerKeys(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[strings.ToLower(k)] = v
	}
	return out
}
