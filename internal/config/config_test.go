package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"API_BASE_URL", "API_TIMEOUT", "TEST_ID",
		"PROGRESS_BACKEND", "DB_PATH", "REDIS_URL",
		"AUTOSAVE_INTERVAL", "RECOVERY_WINDOW",
		"MIC_SAMPLE_RATE", "MIC_SAMPLE_RATES",
		"LISTEN_ADDR", "STATIC_DIR", "LOG_LEVEL", "LOG_FILE",
		"API_TOKEN", "API_TOKEN_EXPIRY",
	} {
		t.Setenv(EnvPrefix+key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DBPath != "data/exam-runner.db" {
		t.Fatalf("expected default db_path, got %q", cfg.DBPath)
	}
	if cfg.ProgressBackend != BackendSQLite {
		t.Fatalf("expected default progress_backend sqlite, got %q", cfg.ProgressBackend)
	}
	if cfg.ParsedAutosaveInterval() != 2*time.Minute {
		t.Fatalf("expected default autosave 2m, got %v", cfg.ParsedAutosaveInterval())
	}
	if cfg.ParsedRecoveryWindow() != 24*time.Hour {
		t.Fatalf("expected default recovery window 24h, got %v", cfg.ParsedRecoveryWindow())
	}
	if cfg.ParsedAPITimeout() != 15*time.Second {
		t.Fatalf("expected default api timeout 15s, got %v", cfg.ParsedAPITimeout())
	}
	if cfg.ListenAddr != "127.0.0.1:8080" {
		t.Fatalf("expected default listen_addr, got %q", cfg.ListenAddr)
	}
	if cfg.MicSampleRate != 16000 {
		t.Fatalf("expected default mic_sample_rate 16000, got %d", cfg.MicSampleRate)
	}
}

func TestYAMLLoading(t *testing.T) {
	clearEnv(t)

	configPath := writeConfig(t, `
api_base_url: https://exams.example.com/api
api_timeout: 5s
test_id: 42
progress_backend: redis
redis_url: redis://localhost:6379/2
autosave_interval: 30s
recovery_window: 12h
mic_sample_rate: 48000
mic_sample_rates: [44100, 32000]
listen_addr: 0.0.0.0:9090
log_level: debug
log_file: /var/log/exam-runner.log
`)

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.APIBaseURL != "https://exams.example.com/api" {
		t.Fatalf("expected yaml api_base_url, got %q", cfg.APIBaseURL)
	}
	if cfg.ParsedAPITimeout() != 5*time.Second {
		t.Fatalf("expected yaml api_timeout, got %v", cfg.ParsedAPITimeout())
	}
	if cfg.TestID != 42 {
		t.Fatalf("expected yaml test_id, got %d", cfg.TestID)
	}
	if cfg.ProgressBackend != BackendRedis || cfg.RedisURL != "redis://localhost:6379/2" {
		t.Fatalf("expected yaml redis backend, got %q %q", cfg.ProgressBackend, cfg.RedisURL)
	}
	if cfg.ParsedAutosaveInterval() != 30*time.Second {
		t.Fatalf("expected yaml autosave_interval, got %v", cfg.ParsedAutosaveInterval())
	}
	if cfg.ParsedRecoveryWindow() != 12*time.Hour {
		t.Fatalf("expected yaml recovery_window, got %v", cfg.ParsedRecoveryWindow())
	}
	if cfg.MicSampleRate != 48000 {
		t.Fatalf("expected yaml mic_sample_rate, got %d", cfg.MicSampleRate)
	}
	if !reflect.DeepEqual(cfg.MicSampleRates, []int{44100, 32000}) {
		t.Fatalf("expected yaml mic_sample_rates, got %v", cfg.MicSampleRates)
	}
	if cfg.ListenAddr != "0.0.0.0:9090" {
		t.Fatalf("expected yaml listen_addr, got %q", cfg.ListenAddr)
	}
	if cfg.LogLevel != "debug" || cfg.LogFile != "/var/log/exam-runner.log" {
		t.Fatalf("expected yaml logging settings, got %q %q", cfg.LogLevel, cfg.LogFile)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	configPath := writeConfig(t, `
db_path: /from/yaml
test_id: 1
`)

	clearEnv(t)
	t.Setenv(EnvPrefix+"DB_PATH", "/from/env")
	t.Setenv(EnvPrefix+"TEST_ID", "9")
	t.Setenv(EnvPrefix+"PROGRESS_BACKEND", "Memory")
	t.Setenv(EnvPrefix+"LOG_LEVEL", "WARN")

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DBPath != "/from/env" {
		t.Fatalf("expected env override for db_path, got %q", cfg.DBPath)
	}
	if cfg.TestID != 9 {
		t.Fatalf("expected env override for test_id, got %d", cfg.TestID)
	}
	if cfg.ProgressBackend != BackendMemory {
		t.Fatalf("expected normalized env backend, got %q", cfg.ProgressBackend)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected normalized env log level, got %q", cfg.LogLevel)
	}
}

func TestSecretsFromEnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"API_TOKEN", "bearer-secret")
	t.Setenv(EnvPrefix+"API_TOKEN_EXPIRY", "2099-01-01T00:00:00Z")

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.APIToken != "bearer-secret" {
		t.Fatalf("expected token from env, got %q", cfg.APIToken)
	}
	want := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	if !cfg.APITokenExpiry.Equal(want) {
		t.Fatalf("expected token expiry %v, got %v", want, cfg.APITokenExpiry)
	}
}

func TestSecretsIgnoredInYAML(t *testing.T) {
	clearEnv(t)

	configPath := writeConfig(t, `
api_token: should-be-ignored
api_token_expiry: 2099-01-01T00:00:00Z
`)

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.APIToken != "" {
		t.Fatalf("expected empty token (yaml should be ignored), got %q", cfg.APIToken)
	}
	if !cfg.APITokenExpiry.IsZero() {
		t.Fatalf("expected zero expiry (yaml should be ignored), got %v", cfg.APITokenExpiry)
	}
}

func TestValidationWarnings(t *testing.T) {
	clearEnv(t)

	_, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var tokenWarning bool
	for _, w := range warnings {
		if strings.Contains(w, "API token") {
			tokenWarning = true
		}
	}
	if !tokenWarning {
		t.Fatalf("expected API token warning when token is missing, got warnings: %v", warnings)
	}
}

func TestValidationNoWarningsWhenConfigured(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"API_TOKEN", "key")

	_, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(warnings) != 0 {
		t.Fatalf("expected no warnings when fully configured, got: %v", warnings)
	}
}

func TestExpiredTokenWarning(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"API_TOKEN", "key")
	t.Setenv(EnvPrefix+"API_TOKEN_EXPIRY", "2001-01-01T00:00:00Z")

	_, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "expired") {
		t.Fatalf("expected expired token warning, got: %v", warnings)
	}
}

func TestInvalidTokenExpiryWarning(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"API_TOKEN", "key")
	t.Setenv(EnvPrefix+"API_TOKEN_EXPIRY", "tomorrow")

	cfg, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "API_TOKEN_EXPIRY") {
		t.Fatalf("expected token expiry warning, got: %v", warnings)
	}
	if !cfg.APITokenExpiry.IsZero() {
		t.Fatalf("expected zero expiry, got %v", cfg.APITokenExpiry)
	}
}

func TestInvalidDurationWarnings(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"API_TOKEN", "key")
	t.Setenv(EnvPrefix+"AUTOSAVE_INTERVAL", "not-a-duration")
	t.Setenv(EnvPrefix+"RECOVERY_WINDOW", "-1h")

	cfg, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(warnings) != 2 {
		t.Fatalf("expected two duration warnings, got: %v", warnings)
	}
	if !strings.Contains(warnings[0], "autosave_interval") || !strings.Contains(warnings[1], "recovery_window") {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if cfg.ParsedAutosaveInterval() != 2*time.Minute {
		t.Fatalf("expected fallback to 2m, got %v", cfg.ParsedAutosaveInterval())
	}
	if cfg.ParsedRecoveryWindow() != 24*time.Hour {
		t.Fatalf("expected fallback to 24h, got %v", cfg.ParsedRecoveryWindow())
	}
}

func TestHardValidationErrors(t *testing.T) {
	cases := []struct {
		name  string
		yaml  string
		field string
	}{
		{"unknown backend", "progress_backend: mongo\n", "progress_backend"},
		{"redis without url", "progress_backend: redis\n", "redis_url"},
		{"sqlite without path", "progress_backend: sqlite\ndb_path: \"\"\n", "db_path"},
		{"bad base url", "api_base_url: not a url\n", "api_base_url"},
		{"bad listen addr", "listen_addr: nowhere\n", "listen_addr"},
		{"bad log level", "log_level: loud\n", "log_level"},
		{"negative sample rate", "mic_sample_rates: [44100, -1]\n", "mic_sample_rates"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			_, _, err := Load(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Fatalf("expected error to name %s, got %v", tc.field, err)
			}
		})
	}
}

func TestMemoryBackendNeedsNoPath(t *testing.T) {
	clearEnv(t)
	_, _, err := Load(writeConfig(t, "progress_backend: memory\ndb_path: \"\"\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
}

func TestMissingStaticDirWarning(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"API_TOKEN", "key")
	t.Setenv(EnvPrefix+"STATIC_DIR", filepath.Join(t.TempDir(), "missing"))

	_, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "static_dir") {
		t.Fatalf("expected static_dir warning, got: %v", warnings)
	}
}

func TestMissingConfigFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, _, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("Load should not fail for missing config file, got: %v", err)
	}

	if cfg.DBPath != "data/exam-runner.db" {
		t.Fatalf("expected defaults when config file missing, got db_path=%q", cfg.DBPath)
	}
}

func TestInvalidConfigFileReturnsError(t *testing.T) {
	configPath := writeConfig(t, ":::invalid yaml")

	clearEnv(t)

	_, _, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid yaml, got nil")
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	envPath := filepath.Join(t.TempDir(), ".env")
	content := EnvPrefix + "API_TOKEN=from-dotenv\n" + EnvPrefix + "TEST_ID=77\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	// godotenv only fills unset variables.
	os.Unsetenv(EnvPrefix + "API_TOKEN")
	os.Unsetenv(EnvPrefix + "TEST_ID")

	if err := LoadEnvFile(envPath); err != nil {
		t.Fatalf("LoadEnvFile failed: %v", err)
	}

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIToken != "from-dotenv" || cfg.TestID != 77 {
		t.Fatalf("expected values from .env, got token=%q test_id=%d", cfg.APIToken, cfg.TestID)
	}
}

func TestLoadEnvFileMissingIsNotAnError(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("expected nil for missing env file, got %v", err)
	}
	if err := LoadEnvFile(""); err != nil {
		t.Fatalf("expected nil for empty path, got %v", err)
	}
}

func TestSampleRateCandidatesDefault(t *testing.T) {
	cfg := defaults()
	got := cfg.SampleRateCandidates()
	want := []int{16000, 48000, 44100, 32000, 24000}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected default sample rates: got=%v want=%v", got, want)
	}
}

func TestSampleRateCandidatesCustom(t *testing.T) {
	cfg := defaults()
	cfg.MicSampleRate = 48000
	cfg.MicSampleRates = []int{44100, 16000, 48000, 32000}

	got := cfg.SampleRateCandidates()
	want := []int{48000, 44100, 16000, 32000, 24000}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected custom sample rates: got=%v want=%v", got, want)
	}
}

func TestSampleRateCandidatesEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"MIC_SAMPLE_RATE", "48000")
	t.Setenv(EnvPrefix+"MIC_SAMPLE_RATES", "44100,16000,48000,abc,32000")

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got := cfg.SampleRateCandidates()
	want := []int{48000, 44100, 16000, 32000, 24000}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected env sample rates: got=%v want=%v", got, want)
	}
}

func TestParseSampleRates(t *testing.T) {
	got := parseSampleRates(" 16000,  ,invalid,0,-1,44100,16000 ")
	want := []int{16000, 44100}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected parsed sample rates: got=%v want=%v", got, want)
	}
}
