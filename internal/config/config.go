package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	LLM         LLMConfig         `yaml:"llm"`
	Auth        AuthConfig        `yaml:"auth"`
	Log         LogConfig         `yaml:"log"`
	Coverage    CoverageConfig    `yaml:"coverage"`
	Generation  GenerationConfig  `yaml:"generation"`
	Credibility CredibilityConfig `yaml:"credibility"`
	Quality     QualityConfig     `yaml:"quality"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Export      ExportConfig      `yaml:"export"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LLMConfig contains chat model settings shared by the generator, the
// plausibility scorer and the quality checker.
type LLMConfig struct {
	APIKey            string  `yaml:"-"` // env-only, never in YAML
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	QualityModel      string  `yaml:"quality_model"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	Temperature       float64 `yaml:"temperature"`

	// Per-1K-token prices in USD. Zero leaves call cost unknown.
	PromptPricePer1K     float64 `yaml:"prompt_price_per_1k"`
	CompletionPricePer1K float64 `yaml:"completion_price_per_1k"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CoverageConfig contains per-goal coverage thresholds and the default
// selection strategy.
type CoverageConfig struct {
	Minimum      int                `yaml:"minimum"`
	Target       int                `yaml:"target"`
	Maximum      int                `yaml:"maximum"`
	Strategy     string             `yaml:"strategy"`
	ArenaOrder   []string           `yaml:"arena_order"`
	ArenaWeights map[string]float64 `yaml:"arena_weights"`
	Seed         uint64             `yaml:"seed"`
}

// GenerationConfig contains generation run settings.
type GenerationConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Interval       Duration `yaml:"interval"`
	GoalsPerRun    int      `yaml:"goals_per_run"`
	PerCategory    int      `yaml:"per_category"`
	Concurrency    int      `yaml:"concurrency"`
	Categories     []string `yaml:"categories"`
	MaxRetries     int      `yaml:"max_retries"`
	RetryBaseDelay Duration `yaml:"retry_base_delay"`
}

// CategoryThresholds overrides the credibility thresholds of one category.
type CategoryThresholds struct {
	MinEffectiveness  float64 `yaml:"min_effectiveness"`
	MaxNewConnections int     `yaml:"max_new_connections"`
}

// CredibilityConfig contains credibility gate settings.
type CredibilityConfig struct {
	Threshold float64                       `yaml:"threshold"`
	Overrides map[string]CategoryThresholds `yaml:"overrides"`
}

// QualityConfig contains quality orchestrator settings. Every value is
// passed through to the orchestrator unchanged.
type QualityConfig struct {
	Enabled            bool     `yaml:"enabled"`
	BatchSize          int      `yaml:"batch_size"`
	TriggerThreshold   int      `yaml:"trigger_threshold"`
	PollInterval       Duration `yaml:"poll_interval"`
	RunInterval        Duration `yaml:"run_interval"`
	ScoreThreshold     float64  `yaml:"score_threshold"`
	MaxSpendPerRun     float64  `yaml:"max_spend_per_run"`
	MaxSpendPerDay     float64  `yaml:"max_spend_per_day"`
	EstimatedBatchCost float64  `yaml:"estimated_batch_cost"`
}

// PersistenceConfig contains store write retry settings.
type PersistenceConfig struct {
	MaxRetries     int      `yaml:"max_retries"`
	RetryBaseDelay Duration `yaml:"retry_base_delay"`
}

// ExportConfig contains S3-compatible audit export settings.
// An empty Bucket disables uploads.
type ExportConfig struct {
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	AccessKey string   `yaml:"-"` // env-only, never in YAML
	SecretKey string   `yaml:"-"` // env-only, never in YAML
	UseSSL    *bool    `yaml:"use_ssl"`
	Prefix    string   `yaml:"prefix"`
	URLExpiry Duration `yaml:"url_expiry"`
	Interval  Duration `yaml:"interval"`
	Window    Duration `yaml:"window"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("WWFM_CONFIG_PATH", "config/wwfm.yaml")

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/wwfm.db",
		},
		LLM: LLMConfig{
			Model:             "gpt-4o-mini",
			QualityModel:      "gpt-4o-mini",
			RequestsPerSecond: 2,
			Burst:             2,
			Temperature:       0.3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Coverage: CoverageConfig{
			Minimum:  3,
			Target:   8,
			Maximum:  15,
			Strategy: "breadth_first",
		},
		Generation: GenerationConfig{
			Interval:       Duration(6 * time.Hour),
			GoalsPerRun:    10,
			PerCategory:    3,
			Concurrency:    2,
			MaxRetries:     3,
			RetryBaseDelay: Duration(2 * time.Second),
		},
		Credibility: CredibilityConfig{
			Threshold: 70,
		},
		Quality: QualityConfig{
			BatchSize:          10,
			TriggerThreshold:   50,
			PollInterval:       Duration(1 * time.Minute),
			RunInterval:        Duration(1 * time.Hour),
			ScoreThreshold:     7,
			MaxSpendPerRun:     1.00,
			MaxSpendPerDay:     5.00,
			EstimatedBatchCost: 0.05,
		},
		Persistence: PersistenceConfig{
			MaxRetries:     3,
			RetryBaseDelay: Duration(100 * time.Millisecond),
		},
		Export: ExportConfig{
			Prefix:    "audit",
			URLExpiry: Duration(15 * time.Minute),
			Interval:  Duration(24 * time.Hour),
			Window:    Duration(24 * time.Hour),
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	envInt("WWFM_PORT", &cfg.Server.Port)
	envDuration("WWFM_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("WWFM_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("WWFM_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Database
	envString("WWFM_DB_PATH", &cfg.Database.Path)

	// LLM (OPENAI_API_KEY is industry convention)
	envString("OPENAI_API_KEY", &cfg.LLM.APIKey)
	envString("WWFM_LLM_BASE_URL", &cfg.LLM.BaseURL)
	envString("WWFM_LLM_MODEL", &cfg.LLM.Model)
	envString("WWFM_LLM_QUALITY_MODEL", &cfg.LLM.QualityModel)
	envFloat("WWFM_LLM_REQUESTS_PER_SECOND", &cfg.LLM.RequestsPerSecond)

	// Auth
	envString("WWFM_API_KEY", &cfg.Auth.APIKey)

	// Log
	envString("WWFM_LOG_LEVEL", &cfg.Log.Level)
	envString("WWFM_LOG_FORMAT", &cfg.Log.Format)

	// Coverage
	envInt("WWFM_COVERAGE_MINIMUM", &cfg.Coverage.Minimum)
	envInt("WWFM_COVERAGE_TARGET", &cfg.Coverage.Target)
	envInt("WWFM_COVERAGE_MAXIMUM", &cfg.Coverage.Maximum)
	envString("WWFM_COVERAGE_STRATEGY", &cfg.Coverage.Strategy)

	// Generation
	envBool("WWFM_GENERATION_ENABLED", &cfg.Generation.Enabled)
	envDuration("WWFM_GENERATION_INTERVAL", &cfg.Generation.Interval)
	envInt("WWFM_GENERATION_GOALS_PER_RUN", &cfg.Generation.GoalsPerRun)
	envInt("WWFM_GENERATION_CONCURRENCY", &cfg.Generation.Concurrency)
	if v := os.Getenv("WWFM_GENERATION_CATEGORIES"); v != "" {
		cfg.Generation.Categories = splitList(v)
	}

	// Credibility
	envFloat("WWFM_CREDIBILITY_THRESHOLD", &cfg.Credibility.Threshold)

	// Quality
	envBool("WWFM_QUALITY_ENABLED", &cfg.Quality.Enabled)
	envInt("WWFM_QUALITY_BATCH_SIZE", &cfg.Quality.BatchSize)
	envInt("WWFM_QUALITY_TRIGGER_THRESHOLD", &cfg.Quality.TriggerThreshold)
	envDuration("WWFM_QUALITY_POLL_INTERVAL", &cfg.Quality.PollInterval)
	envDuration("WWFM_QUALITY_RUN_INTERVAL", &cfg.Quality.RunInterval)
	envFloat("WWFM_QUALITY_SCORE_THRESHOLD", &cfg.Quality.ScoreThreshold)
	envFloat("WWFM_QUALITY_MAX_SPEND_PER_RUN", &cfg.Quality.MaxSpendPerRun)
	envFloat("WWFM_QUALITY_MAX_SPEND_PER_DAY", &cfg.Quality.MaxSpendPerDay)
	envFloat("WWFM_QUALITY_ESTIMATED_BATCH_COST", &cfg.Quality.EstimatedBatchCost)

	// Export
	envString("WWFM_EXPORT_BUCKET", &cfg.Export.Bucket)
	envString("WWFM_S3_ENDPOINT", &cfg.Export.Endpoint)
	envString("WWFM_S3_REGION", &cfg.Export.Region)
	envString("WWFM_S3_ACCESS_KEY", &cfg.Export.AccessKey)
	envString("WWFM_S3_SECRET_KEY", &cfg.Export.SecretKey)
	if v := os.Getenv("WWFM_S3_USE_SSL"); v != "" {
		b := v == "true" || v == "1"
		cfg.Export.UseSSL = &b
	}
	envDuration("WWFM_S3_URL_EXPIRY", &cfg.Export.URLExpiry)
	envDuration("WWFM_EXPORT_INTERVAL", &cfg.Export.Interval)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validate checks that required configuration values are set and that
// thresholds are consistent. In dev mode (WWFM_DEV_MODE=true), API key
// validation is skipped.
func (c *Config) validate() error {
	var errs []error

	cv := c.Coverage
	if cv.Minimum <= 0 || cv.Target < cv.Minimum || cv.Maximum < cv.Target {
		errs = append(errs, fmt.Errorf("coverage thresholds must satisfy 0 < minimum <= target <= maximum (got %d/%d/%d)",
			cv.Minimum, cv.Target, cv.Maximum))
	}
	if c.Credibility.Threshold < 0 || c.Credibility.Threshold > 100 {
		errs = append(errs, fmt.Errorf("credibility threshold %.1f outside [0, 100]", c.Credibility.Threshold))
	}

	q := c.Quality
	if q.BatchSize <= 0 || q.TriggerThreshold <= 0 || q.PollInterval <= 0 || q.RunInterval <= 0 {
		errs = append(errs, errors.New("quality batch size, trigger threshold and intervals must be positive"))
	}
	if q.ScoreThreshold <= 0 || q.MaxSpendPerRun <= 0 || q.MaxSpendPerDay <= 0 || q.EstimatedBatchCost <= 0 {
		errs = append(errs, errors.New("quality score threshold and spend limits must be positive"))
	}
	if q.MaxSpendPerRun > q.MaxSpendPerDay {
		errs = append(errs, errors.New("quality max spend per run exceeds max spend per day"))
	}

	if c.Generation.Interval <= 0 || c.Persistence.RetryBaseDelay <= 0 || c.Generation.RetryBaseDelay <= 0 {
		errs = append(errs, errors.New("generation interval and retry delays must be positive"))
	}
	if c.Generation.MaxRetries < 0 || c.Persistence.MaxRetries < 0 {
		errs = append(errs, errors.New("retry counts must not be negative"))
	}

	if os.Getenv("WWFM_DEV_MODE") != "true" {
		if c.LLM.APIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required"))
		}
		if c.Auth.APIKey == "" {
			errs = append(errs, errors.New("WWFM_API_KEY is required"))
		}
	}
	return errors.Join(errs...)
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
