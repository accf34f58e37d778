// Package config provides configuration management for the interaction miner.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "MINER"

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// LLM provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds all configuration for the interaction miner.
type Config struct {
	// Server contains ops HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Temporal contains Temporal dispatch settings.
	Temporal TemporalConfig `mapstructure:"temporal"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Kafka contains event publishing and control consumer settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// LLM contains language model client settings.
	LLM LLMConfig `mapstructure:"llm"`
	// PubMed contains literature search settings.
	PubMed PubMedConfig `mapstructure:"pubmed"`
	// Acquire contains full-text acquisition settings.
	Acquire AcquireConfig `mapstructure:"acquire"`
	// Engine bounds each job's workflow run.
	Engine EngineConfig `mapstructure:"engine"`
	// Jobs contains job dispatch settings.
	Jobs JobsConfig `mapstructure:"jobs"`
}

// ServerConfig holds ops server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the ops HTTP port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	User string `mapstructure:"user"`
	// Password is loaded from MINER_DATABASE_PASSWORD only.
	Password string `mapstructure:"-"`
	Name     string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun applies pending migrations when the worker starts.
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// TemporalConfig holds Temporal dispatch configuration. When disabled, jobs
// run on the worker's in-process pool.
type TemporalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// KafkaConfig holds Kafka settings for job events and remote control.
type KafkaConfig struct {
	// Enabled controls whether events are published and control messages consumed.
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	// EventsTopic receives job lifecycle events.
	EventsTopic string `mapstructure:"events_topic"`
	// ControlTopic carries stop commands.
	ControlTopic string `mapstructure:"control_topic"`
	// GroupID is the consumer group of the control listener.
	GroupID      string        `mapstructure:"group_id"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// LLMConfig holds language model client configuration.
type LLMConfig struct {
	// Provider is openai (any OpenAI-compatible endpoint) or anthropic.
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
	// APIKey is loaded from MINER_LLM_API_KEY only.
	APIKey      string        `mapstructure:"-"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
}

// PubMedConfig holds NCBI E-utilities configuration.
type PubMedConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// APIKey is optional and raises the NCBI rate limit (MINER_PUBMED_API_KEY).
	APIKey     string        `mapstructure:"-"`
	Email      string        `mapstructure:"email"`
	Tool       string        `mapstructure:"tool"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	MaxResults int           `mapstructure:"max_results"`
}

// AcquireConfig holds document acquisition configuration.
type AcquireConfig struct {
	// UnpaywallEmail identifies the caller to the Unpaywall API.
	UnpaywallEmail   string        `mapstructure:"unpaywall_email"`
	UnpaywallBaseURL string        `mapstructure:"unpaywall_base_url"`
	PMCBaseURL       string        `mapstructure:"pmc_base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxPDFSize       int64         `mapstructure:"max_pdf_size"`
	UserAgent        string        `mapstructure:"user_agent"`
	// Unlocker routes PDF fetches through a web unlocker proxy first.
	UnlockerEnabled bool   `mapstructure:"unlocker_enabled"`
	UnlockerURL     string `mapstructure:"unlocker_url"`
	UnlockerZone    string `mapstructure:"unlocker_zone"`
	// UnlockerAPIKey is loaded from MINER_ACQUIRE_UNLOCKER_API_KEY only.
	UnlockerAPIKey string `mapstructure:"-"`
}

// EngineConfig bounds a single job's workflow run.
type EngineConfig struct {
	StepLimit           int `mapstructure:"step_limit"`
	MaxSearchResults    int `mapstructure:"max_search_results"`
	MaxDocumentChars    int `mapstructure:"max_document_chars"`
	MaxExtractionRounds int `mapstructure:"max_extraction_rounds"`
	MaxQueryAttempts    int `mapstructure:"max_query_attempts"`
}

// JobsConfig holds job dispatch configuration.
type JobsConfig struct {
	// MaxConcurrent caps jobs running at once on one worker.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// PollInterval is how often the worker claims pending jobs.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// StuckAfter is how long a job may stay running before the sweeper fails it.
	StuckAfter    time.Duration `mapstructure:"stuck_after"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// StopPollInterval is how often a running job re-reads its stop flag
	// between node boundaries.
	StopPollInterval       time.Duration `mapstructure:"stop_poll_interval"`
	DefaultMinInteractions int           `mapstructure:"default_min_interactions"`
	DefaultWorkspace       string        `mapstructure:"default_workspace"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the ops HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/interaction-miner")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" so a config file cannot set them.
func loadSecrets(cfg *Config) {
	cfg.Database.Password = os.Getenv(EnvPrefix + "_DATABASE_PASSWORD")
	cfg.LLM.APIKey = os.Getenv(EnvPrefix + "_LLM_API_KEY")
	cfg.PubMed.APIKey = os.Getenv(EnvPrefix + "_PUBMED_API_KEY")
	cfg.Acquire.UnlockerAPIKey = os.Getenv(EnvPrefix + "_ACQUIRE_UNLOCKER_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults. Use MINER_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "miner")
	v.SetDefault("database.name", "interaction_miner")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "internal/database/migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Temporal defaults
	v.SetDefault("temporal.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "interaction-miner-jobs")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "interaction_miner")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.events_topic", "events.interaction_miner.jobs")
	v.SetDefault("kafka.control_topic", "control.interaction_miner.jobs")
	v.SetDefault("kafka.group_id", "interaction-miner-worker")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")

	// LLM defaults. The API key is loaded from MINER_LLM_API_KEY (see loadSecrets).
	v.SetDefault("llm.provider", ProviderOpenAI)
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", "2s")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 4096)

	// PubMed defaults
	v.SetDefault("pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("pubmed.tool", "interaction-miner")
	v.SetDefault("pubmed.email", "")
	v.SetDefault("pubmed.timeout", "30s")
	v.SetDefault("pubmed.rate_limit", 3.0) // NCBI allows 3 req/sec without an API key
	v.SetDefault("pubmed.max_results", 100)

	// Acquisition defaults
	v.SetDefault("acquire.unpaywall_email", "")
	v.SetDefault("acquire.unpaywall_base_url", "https://api.unpaywall.org/v2")
	v.SetDefault("acquire.pmc_base_url", "https://www.ncbi.nlm.nih.gov/pmc/articles")
	v.SetDefault("acquire.timeout", "60s")
	v.SetDefault("acquire.max_pdf_size", 50*1024*1024)
	v.SetDefault("acquire.user_agent", "interaction-miner/1.0 (mailto:ops@example.org)")
	v.SetDefault("acquire.unlocker_enabled", false)
	v.SetDefault("acquire.unlocker_url", "https://api.brightdata.com/request")
	v.SetDefault("acquire.unlocker_zone", "web_unlocker1")

	// Engine defaults
	v.SetDefault("engine.step_limit", 400)
	v.SetDefault("engine.max_search_results", 100)
	v.SetDefault("engine.max_document_chars", 400000)
	v.SetDefault("engine.max_extraction_rounds", 20)
	v.SetDefault("engine.max_query_attempts", 3)

	// Job dispatch defaults
	v.SetDefault("jobs.max_concurrent", 4)
	v.SetDefault("jobs.poll_interval", "2s")
	v.SetDefault("jobs.stuck_after", "2h")
	v.SetDefault("jobs.sweep_interval", "10m")
	v.SetDefault("jobs.stop_poll_interval", "0s")
	v.SetDefault("jobs.default_min_interactions", 5)
	v.SetDefault("jobs.default_workspace", "Default")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	switch c.Database.SSLMode {
	case SSLModeDisable, SSLModeRequire, SSLModeVerifyCA, SSLModeVerifyFull:
	default:
		return fmt.Errorf("invalid database ssl_mode: %q", c.Database.SSLMode)
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch strings.ToLower(c.LLM.Provider) {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported LLM provider: %q", c.LLM.Provider)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("LLM max_retries must not be negative")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}
	if c.Acquire.UnlockerEnabled && c.Acquire.UnlockerAPIKey == "" {
		return fmt.Errorf("acquire unlocker requires %s_ACQUIRE_UNLOCKER_API_KEY to be set", EnvPrefix)
	}

	if c.Engine.StepLimit <= 0 {
		return fmt.Errorf("engine step_limit must be positive")
	}
	if c.Engine.MaxSearchResults <= 0 || c.Engine.MaxSearchResults > 100 {
		return fmt.Errorf("engine max_search_results must be between 1 and 100")
	}
	if c.Engine.MaxDocumentChars <= 0 {
		return fmt.Errorf("engine max_document_chars must be positive")
	}
	if c.Engine.MaxExtractionRounds <= 0 {
		return fmt.Errorf("engine max_extraction_rounds must be positive")
	}
	if c.Engine.MaxQueryAttempts <= 0 {
		return fmt.Errorf("engine max_query_attempts must be positive")
	}

	if c.Jobs.MaxConcurrent <= 0 {
		return fmt.Errorf("jobs max_concurrent must be positive")
	}
	if c.Jobs.DefaultMinInteractions <= 0 {
		return fmt.Errorf("jobs default_min_interactions must be positive")
	}
	if c.Jobs.DefaultWorkspace == "" {
		return fmt.Errorf("jobs default_workspace is required")
	}

	return nil
}

// RequireLLMKey reports an error when the configured provider has no API key.
// Only processes that run jobs call it; the CLI can operate without one.
func (c *Config) RequireLLMKey() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM provider %q requires %s_LLM_API_KEY to be set", c.LLM.Provider, EnvPrefix)
	}
	return nil
}
