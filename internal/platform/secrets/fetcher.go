package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	meterName       = "github.com/Piyushhbhutoria/memory-wall/internal/platform/secrets"
	defaultCacheTTL = 10 * time.Minute
)

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (accessor, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references against Secret Manager. Values are cached for a bounded
// time so rotated secrets are eventually picked up; a dotenv fallback file serves local runs and
// outages where the caller lacks access.
type Fetcher struct {
	client     accessor
	ownsClient bool
	logger     *zap.Logger
	clock      func() time.Time

	env         string
	project     string
	projects    map[string]string
	pins        map[string]string
	ttl         time.Duration
	fallbackSrc string

	fallbackOnce sync.Once
	fallback     map[string]string
	fallbackErr  error

	mu    sync.Mutex
	cache map[string]cachedSecret

	latency metric.Float64Histogram
	hits    metric.Int64Counter
}

type cachedSecret struct {
	value   string
	expires time.Time
}

type settings struct {
	logger     *zap.Logger
	clock      func() time.Time
	env        string
	project    string
	projects   map[string]string
	pins       map[string]string
	ttl        time.Duration
	fallback   string
	meter      metric.Meter
	client     accessor
	clientOpts []option.ClientOption
}

// Option customises a Fetcher.
type Option func(*settings)

func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithEnvironment selects the key used for per-environment project and version pins.
func WithEnvironment(env string) Option {
	return func(s *settings) { s.env = strings.ToLower(strings.TrimSpace(env)) }
}

func WithDefaultProject(projectID string) Option {
	return func(s *settings) { s.project = strings.TrimSpace(projectID) }
}

// WithProjectMap maps environment names to Secret Manager project IDs.
func WithProjectMap(m map[string]string) Option {
	return func(s *settings) { s.projects = cloneMap(m) }
}

// WithVersionPins pins secrets to explicit versions. Keys are `secret://name` or
// `env:secret://name`; the environment-scoped key wins.
func WithVersionPins(pins map[string]string) Option {
	return func(s *settings) { s.pins = cloneMap(pins) }
}

func WithFallbackFile(path string) Option {
	return func(s *settings) { s.fallback = strings.TrimSpace(path) }
}

// WithCacheTTL bounds how long a resolved value is reused. Zero keeps the default.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithMeter(m metric.Meter) Option {
	return func(s *settings) { s.meter = m }
}

// WithSecretManagerClient injects a client, mostly for tests.
func WithSecretManagerClient(client accessor) Option {
	return func(s *settings) { s.client = client }
}

// WithClientOptions forwards options to the Secret Manager client constructor.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *settings) { s.clientOpts = append(s.clientOpts, opts...) }
}

// NewFetcher never fails on a missing Secret Manager client; it logs and serves the fallback file.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	s := settings{
		logger:   zap.NewNop(),
		clock:    time.Now,
		env:      "local",
		fallback: ".secrets.local",
		ttl:      defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.meter == nil {
		s.meter = otel.GetMeterProvider().Meter(meterName)
	}

	f := &Fetcher{
		logger:      s.logger,
		clock:       s.clock,
		env:         s.env,
		project:     s.project,
		projects:    cloneMap(s.projects),
		pins:        cloneMap(s.pins),
		ttl:         s.ttl,
		fallbackSrc: s.fallback,
		cache:       map[string]cachedSecret{},
	}

	var err error
	if f.latency, err = s.meter.Float64Histogram("secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Secret resolution latency by source")); err != nil {
		s.logger.Warn("secrets: latency metric unavailable", zap.Error(err))
	}
	if f.hits, err = s.meter.Int64Counter("secrets.fetch.cache_hits",
		metric.WithDescription("Secret resolutions served from cache")); err != nil {
		s.logger.Warn("secrets: cache hit metric unavailable", zap.Error(err))
	}

	switch {
	case s.client != nil:
		f.client = s.client
	default:
		client, err := newSecretManagerClient(ctx, s.clientOpts...)
		if err != nil {
			s.logger.Warn("secrets: secret manager unavailable, serving fallback file only", zap.Error(err))
			break
		}
		f.client = client
		f.ownsClient = true
	}
	return f, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the value behind ref (secret://name or sm://name, with optional version and
// project query parameters).
func (f *Fetcher) Resolve(ctx context.Context, raw string) (string, error) {
	started := f.clock()
	ref, err := parseReference(raw)
	if err != nil {
		return "", err
	}
	version := f.version(ref)
	key := ref.versioned(version)

	if value, ok := f.cached(key); ok {
		if f.hits != nil {
			f.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", ref.name)))
		}
		f.observe(ctx, started, "cache")
		return value, nil
	}

	project := f.projectFor(ref)
	if project != "" && f.client != nil {
		value, err := f.access(ctx, project, ref.name, version)
		if err == nil {
			f.store(key, value)
			f.observe(ctx, started, "remote")
			return value, nil
		}
		if !fallbackEligible(err) {
			f.observe(ctx, started, "error")
			return "", fmt.Errorf("secrets: fetch %s: %w", ref.key, err)
		}
		f.logger.Debug("secrets: secret manager refused, using fallback file", zap.String("secret", ref.name), zap.Error(err))
	}

	value, ok := f.fromFallback(ref)
	if !ok {
		f.observe(ctx, started, "error")
		return "", fmt.Errorf("secrets: no value for %s", ref.key)
	}
	f.store(key, value)
	f.observe(ctx, started, "fallback")
	return value, nil
}

// Invalidate drops every cached version of ref.
func (f *Fetcher) Invalidate(raw string) {
	ref, err := parseReference(raw)
	if err != nil {
		return
	}
	prefix := ref.key + "#"
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.cache {
		if strings.HasPrefix(key, prefix) {
			delete(f.cache, key)
		}
	}
}

func (f *Fetcher) cached(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.cache[key]
	if !ok {
		return "", false
	}
	if !f.clock().Before(entry.expires) {
		delete(f.cache, key)
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) store(key, value string) {
	f.mu.Lock()
	f.cache[key] = cachedSecret{value: value, expires: f.clock().Add(f.ttl)}
	f.mu.Unlock()
}

func (f *Fetcher) access(ctx context.Context, project, name, version string) (string, error) {
	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, name, version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", errors.New("secrets: empty payload for " + resource)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) fromFallback(ref reference) (string, bool) {
	f.fallbackOnce.Do(func() {
		f.fallback, f.fallbackErr = loadFallbackFile(f.fallbackSrc)
	})
	if f.fallbackErr != nil {
		f.logger.Warn("secrets: fallback file unreadable", zap.Error(f.fallbackErr))
		return "", false
	}
	value, ok := f.fallback[envKey(ref.name)]
	return value, ok
}

func (f *Fetcher) version(ref reference) string {
	if ref.version != "" {
		return ref.version
	}
	for _, key := range []string{f.env + ":" + ref.key, ref.key} {
		if pin := strings.TrimSpace(f.pins[key]); pin != "" {
			return pin
		}
	}
	return latestVersion
}

func (f *Fetcher) projectFor(ref reference) string {
	if ref.project != "" {
		return ref.project
	}
	if id := strings.TrimSpace(f.projects[f.env]); id != "" {
		return id
	}
	return f.project
}

func (f *Fetcher) observe(ctx context.Context, started time.Time, source string) {
	if f.latency == nil {
		return
	}
	elapsed := f.clock().Sub(started)
	f.latency.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(attribute.String("source", source)))
}

// fallbackEligible reports whether a Secret Manager error means "no access" rather than "no secret".
func fallbackEligible(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

func cloneMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
