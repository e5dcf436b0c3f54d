package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "wishwall-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "wishwall-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "wishwall-dev" {
		t.Errorf("expected pubsub project to default to firebase project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Storage.MediaBucket != "wall-media" {
		t.Errorf("unexpected media bucket %s", cfg.Storage.MediaBucket)
	}
	if cfg.RateLimit.Window != time.Minute || cfg.RateLimit.MaxEvents != 10 {
		t.Errorf("unexpected default window %s/%d", cfg.RateLimit.Window, cfg.RateLimit.MaxEvents)
	}
	if cfg.RateLimit.UploadMaxEvents != 5 {
		t.Errorf("unexpected upload limit %d", cfg.RateLimit.UploadMaxEvents)
	}
	if cfg.RateLimit.Backend != BackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.RateLimit.Backend)
	}
	if cfg.RateLimit.SuspicionMultiplier != 2 {
		t.Errorf("unexpected suspicion multiplier %d", cfg.RateLimit.SuspicionMultiplier)
	}
	if cfg.PubSub.SecurityTopic != "security-events" {
		t.Errorf("unexpected security topic %s", cfg.PubSub.SecurityTopic)
	}
	if cfg.Walls.DefaultTTL != 30*24*time.Hour {
		t.Errorf("unexpected wall ttl %s", cfg.Walls.DefaultTTL)
	}
	if cfg.Walls.DefaultMaxMemories != 50 {
		t.Errorf("unexpected max memories %d", cfg.Walls.DefaultMaxMemories)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if cfg.Security.OIDC.JWKSURL != defaultOIDCJWKSURL {
		t.Errorf("expected default jwks url %s, got %s", defaultOIDCJWKSURL, cfg.Security.OIDC.JWKSURL)
	}
	if len(cfg.Security.OIDC.Issuers) != 2 {
		t.Errorf("expected default issuers, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Alerts.DiscordWebhookURL != "" {
		t.Errorf("expected discord alerts disabled by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("unexpected log level %s", cfg.Logging.Level)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                    "9090",
		"API_SERVER_IDLE_TIMEOUT":            "2m",
		"API_FIREBASE_PROJECT_ID":            "wishwall-prod",
		"API_FIRESTORE_PROJECT_ID":           "wishwall-db",
		"API_STORAGE_MEDIA_BUCKET":           "prod-media",
		"API_STORAGE_PUBLIC_BASE_URL":        "https://cdn.example.com/",
		"API_RATELIMIT_WINDOW":               "30s",
		"API_RATELIMIT_MAX_EVENTS":           "4",
		"API_RATELIMIT_UPLOAD_MAX_EVENTS":    "2",
		"API_RATELIMIT_SUSPICION_MULTIPLIER": "3",
		"API_RATELIMIT_BACKEND":              "Redis",
		"API_RATELIMIT_IP_RATE":              "2.5",
		"API_RATELIMIT_IP_BURST":             "8",
		"API_RATELIMIT_TRUSTED_HOPS":         "1",
		"API_REDIS_ADDR":                     "10.0.0.5:6379",
		"API_REDIS_PASSWORD":                 "secret://redis/password",
		"API_REDIS_DB":                       "2",
		"API_PUBSUB_SECURITY_TOPIC":          "abuse",
		"API_ALERTS_DISCORD_WEBHOOK_URL":     "sm://alerts/discord",
		"API_WALLS_DEFAULT_TTL":              "72h",
		"API_WALLS_DEFAULT_MAX_MEMORIES":     "100",
		"API_SECURITY_ENVIRONMENT":           "PROD",
		"API_SECURITY_OIDC_AUDIENCES":        "stg=https://stg.example.com,prod=https://api.example.com",
		"LOG_LEVEL":                          "DEBUG",
	}

	secrets := map[string]string{
		"secret://redis/password": "hunter2",
		"secret://alerts/discord": "https://discord.com/api/webhooks/1/abc",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Firestore.ProjectID != "wishwall-db" {
		t.Errorf("unexpected firestore project %s", cfg.Firestore.ProjectID)
	}
	if cfg.Storage.PublicBaseURL != "https://cdn.example.com" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.Storage.PublicBaseURL)
	}
	if cfg.RateLimit.Window != 30*time.Second || cfg.RateLimit.MaxEvents != 4 || cfg.RateLimit.UploadMaxEvents != 2 {
		t.Errorf("unexpected rate limit config %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.Backend != BackendRedis {
		t.Errorf("expected redis backend, got %s", cfg.RateLimit.Backend)
	}
	if cfg.RateLimit.IPRatePerSecond != 2.5 || cfg.RateLimit.IPBurst != 8 || cfg.RateLimit.TrustedProxyHops != 1 {
		t.Errorf("unexpected ip throttle %+v", cfg.RateLimit)
	}
	if cfg.Redis.Password != "hunter2" {
		t.Errorf("expected resolved redis password, got %s", cfg.Redis.Password)
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("unexpected redis db %d", cfg.Redis.DB)
	}
	if cfg.Alerts.DiscordWebhookURL != "https://discord.com/api/webhooks/1/abc" {
		t.Errorf("expected resolved discord webhook, got %s", cfg.Alerts.DiscordWebhookURL)
	}
	if cfg.PubSub.SecurityTopic != "abuse" {
		t.Errorf("unexpected topic %s", cfg.PubSub.SecurityTopic)
	}
	if cfg.Walls.DefaultTTL != 72*time.Hour || cfg.Walls.DefaultMaxMemories != 100 {
		t.Errorf("unexpected wall defaults %+v", cfg.Walls)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected lowercase environment, got %s", cfg.Security.Environment)
	}
	if cfg.Security.OIDC.Audience != "https://api.example.com" {
		t.Errorf("expected audience picked by environment, got %s", cfg.Security.OIDC.Audience)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("unexpected log level %s", cfg.Logging.Level)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local overrides\nAPI_SERVER_PORT=7070\nexport API_FIREBASE_PROJECT_ID=\"wishwall-dot\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "wishwall-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadIgnoresMissingDotEnv(t *testing.T) {
	env := map[string]string{"API_FIREBASE_PROJECT_ID": "wishwall-dev"}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(filepath.Join(t.TempDir(), "absent.env")))
	if err != nil {
		t.Fatalf("expected missing dotenv to be ignored, got %v", err)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	if len(fields) != 2 || fields[0] != "Firebase.ProjectID" || fields[1] != "Firestore.ProjectID" {
		t.Fatalf("unexpected invalid fields %v", fields)
	}
}

func TestLoadRejectsInvalidRateLimits(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":            "wishwall-dev",
		"API_RATELIMIT_BACKEND":              "redis",
		"API_RATELIMIT_SUSPICION_MULTIPLIER": "1",
		"API_RATELIMIT_MAX_EVENTS":           "0",
		"API_RATELIMIT_TRUSTED_HOPS":         "-1",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := map[string]bool{"RateLimit.MaxEvents": true, "RateLimit.SuspicionMultiplier": true, "RateLimit.TrustedProxyHops": true, "Redis.Addr": true}
	got := validation.Fields()
	if len(got) != len(want) {
		t.Fatalf("unexpected invalid fields %v", got)
	}
	for _, field := range got {
		if !want[field] {
			t.Errorf("unexpected invalid field %s", field)
		}
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "wishwall-dev",
		"API_RATELIMIT_BACKEND":   "memcached",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if fields := validation.Fields(); len(fields) != 1 || fields[0] != "RateLimit.Backend" {
		t.Fatalf("unexpected invalid fields %v", fields)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "wishwall-dev",
		"API_REDIS_PASSWORD":      "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Errorf("expected resolver-not-configured cause, got %v", err)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "wishwall-dev",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Alerts.DiscordWebhookURL", "Alerts.DiscordWebhookURL"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	expectedRedacted := redactSecretName("Alerts.DiscordWebhookURL")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
	if got := missing.Names(); len(got) != 1 || got[0] != "Alerts.DiscordWebhookURL" {
		t.Fatalf("unexpected names %v", got)
	}
}

func TestLoadHostAndSchedulerAuthSettings(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":            "wishwall-prod",
		"API_FIREBASE_CHECK_REVOKED":         "true",
		"API_SECURITY_OIDC_SERVICE_ACCOUNTS": "scheduler@wishwall.iam.gserviceaccount.com, ops@wishwall.iam.gserviceaccount.com",
	}
	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.Firebase.CheckRevoked {
		t.Errorf("expected revoked-session checks enabled")
	}
	accounts := cfg.Security.OIDC.ServiceAccounts
	if len(accounts) != 2 || accounts[0] != "scheduler@wishwall.iam.gserviceaccount.com" || accounts[1] != "ops@wishwall.iam.gserviceaccount.com" {
		t.Errorf("unexpected service accounts %v", accounts)
	}

	env["API_FIREBASE_CHECK_REVOKED"] = "maybe"
	cfg, err = Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firebase.CheckRevoked {
		t.Errorf("unparseable booleans must keep the default")
	}
}
