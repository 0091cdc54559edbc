package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all exam-runner environment variables.
const EnvPrefix = "EXAM_RUNNER_"

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

var validate = validator.New()

// Config holds all application configuration. The backend credential is
// loaded exclusively from environment variables and never appears in the
// config file.
type Config struct {
	APIBaseURL       string `yaml:"api_base_url" validate:"required,url"`
	APITimeout       string `yaml:"api_timeout"`
	TestID           int    `yaml:"test_id" validate:"gte=0"`
	ProgressBackend  string `yaml:"progress_backend" validate:"oneof=sqlite redis memory"`
	DBPath           string `yaml:"db_path" validate:"required_if=ProgressBackend sqlite"`
	RedisURL         string `yaml:"redis_url" validate:"required_if=ProgressBackend redis"`
	AutosaveInterval string `yaml:"autosave_interval"`
	RecoveryWindow   string `yaml:"recovery_window"`
	MicSampleRate    int    `yaml:"mic_sample_rate" validate:"gte=0"`
	MicSampleRates   []int  `yaml:"mic_sample_rates" validate:"dive,gt=0"`
	ListenAddr       string `yaml:"listen_addr" validate:"required,hostname_port"`
	StaticDir        string `yaml:"static_dir"`
	LogLevel         string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFile          string `yaml:"log_file"`

	// Secrets, env vars only, never serialized to YAML.
	APIToken       string    `yaml:"-"`
	APITokenExpiry time.Time `yaml:"-"`
}

func defaults() Config {
	return Config{
		APIBaseURL:       "http://localhost:8000/api",
		APITimeout:       "15s",
		ProgressBackend:  BackendSQLite,
		DBPath:           "data/exam-runner.db",
		AutosaveInterval: "2m",
		RecoveryWindow:   "24h",
		MicSampleRate:    16000,
		MicSampleRates:   []int{48000, 44100, 32000, 24000},
		ListenAddr:       "127.0.0.1:8080",
		LogLevel:         "info",
	}
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment. Variables already set win, and a missing file is not an
// error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any soft warnings, and an error if the file cannot
// be read or parsed or a setting is unusable.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	warnings := loadSecrets(&cfg)

	if err := validate.Struct(cfg); err != nil {
		return cfg, warnings, fmt.Errorf("invalid config: %w", describe(err))
	}

	warnings = append(warnings, softChecks(&cfg)...)
	return cfg, warnings, nil
}

// ParsedAPITimeout returns APITimeout as a time.Duration, falling back to
// 15s if the value is invalid.
func (c *Config) ParsedAPITimeout() time.Duration {
	return parseDuration(c.APITimeout, 15*time.Second)
}

// ParsedAutosaveInterval returns AutosaveInterval as a time.Duration,
// falling back to 2m if the value is invalid.
func (c *Config) ParsedAutosaveInterval() time.Duration {
	return parseDuration(c.AutosaveInterval, 2*time.Minute)
}

// ParsedRecoveryWindow returns RecoveryWindow as a time.Duration, falling
// back to 24h if the value is invalid.
func (c *Config) ParsedRecoveryWindow() time.Duration {
	return parseDuration(c.RecoveryWindow, 24*time.Hour)
}

// SampleRateCandidates returns a deduplicated ordered list of sample rates
// to try: preferred rate first, then configured alternatives, then defaults.
func (c *Config) SampleRateCandidates() []int {
	hardcoded := []int{16000, 48000, 44100, 32000, 24000}

	combined := make([]int, 0, 1+len(c.MicSampleRates)+len(hardcoded))
	combined = append(combined, c.MicSampleRate)
	combined = append(combined, c.MicSampleRates...)
	combined = append(combined, hardcoded...)

	seen := make(map[int]struct{}, len(combined))
	result := make([]int, 0, len(combined))
	for _, rate := range combined {
		if rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}
	return result
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "API_TIMEOUT"); v != "" {
		cfg.APITimeout = v
	}
	if v := os.Getenv(EnvPrefix + "TEST_ID"); v != "" {
		if id, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && id > 0 {
			cfg.TestID = id
		}
	}
	if v := os.Getenv(EnvPrefix + "PROGRESS_BACKEND"); v != "" {
		cfg.ProgressBackend = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv(EnvPrefix + "AUTOSAVE_INTERVAL"); v != "" {
		cfg.AutosaveInterval = v
	}
	if v := os.Getenv(EnvPrefix + "RECOVERY_WINDOW"); v != "" {
		cfg.RecoveryWindow = v
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.MicSampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATES"); v != "" {
		cfg.MicSampleRates = parseSampleRates(v)
	}
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "STATIC_DIR"); v != "" {
		cfg.StaticDir = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvPrefix + "LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
}

func loadSecrets(cfg *Config) []string {
	var warnings []string

	cfg.APIToken = os.Getenv(EnvPrefix + "API_TOKEN")
	if raw := os.Getenv(EnvPrefix + "API_TOKEN_EXPIRY"); raw != "" {
		expiry, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("Invalid %sAPI_TOKEN_EXPIRY %q: the token is treated as non-expiring.", EnvPrefix, raw))
		} else {
			cfg.APITokenExpiry = expiry
		}
	}
	return warnings
}

func softChecks(cfg *Config) []string {
	var warnings []string

	if cfg.APIToken == "" {
		warnings = append(warnings, "API token not configured: the backend will reject requests until you log in. Set "+EnvPrefix+"API_TOKEN.")
	}
	if !cfg.APITokenExpiry.IsZero() && !cfg.APITokenExpiry.After(time.Now()) {
		warnings = append(warnings, "API token has already expired: submission will ask you to log in again.")
	}
	checks := []struct {
		name, raw, fallback string
	}{
		{"api_timeout", cfg.APITimeout, "15s"},
		{"autosave_interval", cfg.AutosaveInterval, "2m"},
		{"recovery_window", cfg.RecoveryWindow, "24h"},
	}
	for _, c := range checks {
		if d, err := time.ParseDuration(c.raw); err != nil || d <= 0 {
			warnings = append(warnings, fmt.Sprintf("Invalid %s %q: using default %s.", c.name, c.raw, c.fallback))
		}
	}
	if cfg.StaticDir != "" {
		if info, err := os.Stat(cfg.StaticDir); err != nil || !info.IsDir() {
			warnings = append(warnings, fmt.Sprintf("static_dir %q is not a directory: the web UI is disabled.", cfg.StaticDir))
		}
	}

	return warnings
}

// describe flattens validator errors into one readable error naming each
// offending yaml field.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", yamlName(fe.StructField()), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func yamlName(field string) string {
	field, _, _ = strings.Cut(field, "[")
	names := map[string]string{
		"APIBaseURL":      "api_base_url",
		"TestID":          "test_id",
		"ProgressBackend": "progress_backend",
		"DBPath":          "db_path",
		"RedisURL":        "redis_url",
		"MicSampleRate":   "mic_sample_rate",
		"MicSampleRates":  "mic_sample_rates",
		"ListenAddr":      "listen_addr",
		"LogLevel":        "log_level",
	}
	if name, ok := names[field]; ok {
		return name
	}
	return field
}

func parseSampleRates(raw string) []int {
	parts := strings.Split(raw, ",")
	seen := make(map[int]struct{}, len(parts))
	result := make([]int, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		rate, err := strconv.Atoi(trimmed)
		if err != nil || rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}

	return result
}
