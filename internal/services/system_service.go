package services

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	domain "github.com/Piyushhbhutoria/memory-wall/internal/domain"
	"github.com/Piyushhbhutoria/memory-wall/internal/repositories"
)

const defaultHealthCacheTTL = 5 * time.Second

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service. CacheTTL bounds
// how long a collected report is reused; a negative value disables caching.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
	CacheTTL         time.Duration
}

type systemService struct {
	healthRepo repositories.HealthRepository
	clock      func() time.Time
	build      BuildInfo
	ttl        time.Duration

	mu        sync.Mutex
	cached    domain.SystemHealthReport
	cachedAt  time.Time
	hasCached bool
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service behind /readyz.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	ttl := deps.CacheTTL
	if ttl == 0 {
		ttl = defaultHealthCacheTTL
	}
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}
	return &systemService{
		healthRepo: deps.HealthRepository,
		clock:      func() time.Time { return clock().UTC() },
		build:      build,
		ttl:        ttl,
	}, nil
}

// HealthReport probes dependencies, reusing a recent report so load balancer probes do not fan
// out to Firestore on every call. Uptime is always computed fresh.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasCached || s.ttl < 0 || now.Sub(s.cachedAt) >= s.ttl {
		report, err := s.healthRepo.Collect(ctx)
		if err != nil {
			return SystemHealthReport{}, err
		}
		if report.GeneratedAt.IsZero() {
			report.GeneratedAt = now
		}
		if report.Status == "" {
			report.Status = domain.HealthStatusOK
		}
		s.cached = report
		s.cachedAt = now
		s.hasCached = true
	}

	report := s.cached
	report.Checks = maps.Clone(s.cached.Checks)
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	report.GeneratedAt = report.GeneratedAt.UTC()
	report.Version = s.build.Version
	report.CommitSHA = s.build.CommitSHA
	report.Environment = s.build.Environment
	report.Uptime = now.Sub(s.build.StartedAt)
	return report, nil
}
