package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Piyushhbhutoria/memory-wall/internal/guard"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/config"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/observability"
	"github.com/Piyushhbhutoria/memory-wall/internal/repositories"
	"github.com/Piyushhbhutoria/memory-wall/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Walls     services.WallService
	Memories  services.MemoryService
	Comments  services.CommentService
	Reactions services.ReactionService
	Media     services.MediaService
	Security  *services.SecurityEvents
	System    services.SystemService
}

// Infrastructure carries the clients built by main. Publisher, Notifier and Media are optional;
// the services degrade without them.
type Infrastructure struct {
	WindowStore guard.WindowStore
	Media       services.MediaObjectStore
	Publisher   services.SecurityEventPublisher
	Notifier    services.SecurityAlertNotifier
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Build       services.BuildInfo
	Clock       func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Limiter      *guard.RateLimiter
	Services     Services
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if infra.Logger == nil {
		infra.Logger = zap.NewNop()
	}
	if infra.Clock == nil {
		infra.Clock = time.Now
	}

	security, err := buildSecurityEvents(reg, infra)
	if err != nil {
		return nil, err
	}
	limiter := buildLimiter(cfg, infra, security)

	svc, err := buildServices(ctx, cfg, reg, infra, limiter, security)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Limiter:      limiter,
		Services:     svc,
	}, nil
}

// Close waits for in-flight security fan-out and releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.Services.Security != nil {
		c.Services.Security.Wait()
	}
	if c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

// VisitorLimits maps the rate limit config onto per-action windows.
func VisitorLimits(cfg config.RateLimitConfig) services.VisitorLimits {
	window := cfg.Window
	return services.VisitorLimits{
		Memory:   guard.Limit{Window: window, MaxEvents: cfg.MaxEvents},
		Comment:  guard.Limit{Window: window, MaxEvents: cfg.CommentMaxEvents},
		Reaction: guard.Limit{Window: window, MaxEvents: cfg.ReactionMaxEvents},
		Upload:   guard.Limit{Window: window, MaxEvents: cfg.UploadMaxEvents},
	}
}

func buildSecurityEvents(reg repositories.Registry, infra Infrastructure) (*services.SecurityEvents, error) {
	deps := services.SecurityEventServiceDeps{
		Repository: reg.SecurityEvents(),
		Publisher:  infra.Publisher,
		Notifier:   infra.Notifier,
		Clock:      infra.Clock,
		Logger:     observability.EventLogger(infra.Logger.Named("security"), zapcore.WarnLevel),
	}
	if infra.Metrics != nil {
		deps.OnSinkFailure = infra.Metrics.ObserveSinkFailure
	}
	security, err := services.NewSecurityEventService(deps)
	if err != nil {
		return nil, fmt.Errorf("build security event service: %w", err)
	}
	return security, nil
}

func buildLimiter(cfg config.Config, infra Infrastructure, security *services.SecurityEvents) *guard.RateLimiter {
	opts := []guard.RateLimiterOption{
		guard.WithDefaultLimit(guard.Limit{Window: cfg.RateLimit.Window, MaxEvents: cfg.RateLimit.MaxEvents}),
		guard.WithClock(infra.Clock),
		guard.WithStore(infra.WindowStore),
		guard.WithSuspicionNotifier(security.SuspicionNotifier(), cfg.RateLimit.SuspicionMultiplier),
		guard.WithLogger(observability.EventLogger(infra.Logger.Named("ratelimit"), zapcore.WarnLevel)),
	}
	if infra.Metrics != nil {
		opts = append(opts, guard.WithObserver(infra.Metrics))
	}
	return guard.NewRateLimiter(opts...)
}

func buildServices(_ context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure, limiter *guard.RateLimiter, security *services.SecurityEvents) (Services, error) {
	svc := Services{Security: security}
	limits := VisitorLimits(cfg.RateLimit)

	walls, err := services.NewWallService(services.WallServiceDeps{
		Walls:              reg.Walls(),
		Memories:           reg.Memories(),
		Media:              infra.Media,
		Clock:              infra.Clock,
		DefaultTTL:         cfg.Walls.DefaultTTL,
		DefaultMaxMemories: cfg.Walls.DefaultMaxMemories,
		Logger:             observability.EventLogger(infra.Logger.Named("walls"), zapcore.InfoLevel),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build wall service: %w", err)
	}
	svc.Walls = walls

	memories, err := services.NewMemoryService(services.MemoryServiceDeps{
		Walls:    reg.Walls(),
		Memories: reg.Memories(),
		Limiter:  limiter,
		Limits:   limits,
		Security: security,
		Clock:    infra.Clock,
		Logger:   observability.EventLogger(infra.Logger.Named("memories"), zapcore.DebugLevel),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build memory service: %w", err)
	}
	svc.Memories = memories

	comments, reactions, err := services.NewEngagementService(services.EngagementServiceDeps{
		Memories:  reg.Memories(),
		Comments:  reg.Comments(),
		Reactions: reg.Reactions(),
		Limiter:   limiter,
		Limits:    limits,
		Security:  security,
		Clock:     infra.Clock,
		Logger:    observability.EventLogger(infra.Logger.Named("engagement"), zapcore.DebugLevel),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build engagement service: %w", err)
	}
	svc.Comments = comments
	svc.Reactions = reactions

	if infra.Media != nil {
		media, err := services.NewMediaService(services.MediaServiceDeps{
			Walls:    reg.Walls(),
			Store:    infra.Media,
			Limiter:  limiter,
			Limits:   limits,
			Security: security,
			Clock:    infra.Clock,
			Logger:   observability.EventLogger(infra.Logger.Named("media"), zapcore.DebugLevel),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build media service: %w", err)
		}
		svc.Media = media
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            infra.Clock,
			Build:            infra.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}

	return svc, nil
}
