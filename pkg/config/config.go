package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// ReportStore holds report store (SaaS reporting backend) settings
	ReportStore ReportStoreConfig `yaml:"report_store"`

	// IdentityStore holds identity store (auth/profile backend) settings
	IdentityStore IdentityStoreConfig `yaml:"identity_store"`

	// Redis enables the distributed rate limiter when a URL is set
	Redis RedisConfig `yaml:"redis"`

	// Audit configures the local operation audit trail
	Audit AuditConfig `yaml:"audit"`

	// Sweep configures the periodic orphan-account sweep
	Sweep SweepConfig `yaml:"sweep"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// ReportStoreConfig holds the service credentials for the report store.
// The embed secret signs the non-interactive token grant; all four fields
// are required.
type ReportStoreConfig struct {
	BaseURL             string        `yaml:"base_url"`
	SiteID              string        `yaml:"site_id"`
	ServiceAccountEmail string        `yaml:"service_account_email"`
	EmbedSecret         string        `yaml:"embed_secret"`
	AdminGroup          string        `yaml:"admin_group"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
}

// IdentityStoreConfig holds the admin credentials for the identity store
type IdentityStoreConfig struct {
	URL            string        `yaml:"url"`
	ServiceKey     string        `yaml:"service_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// RedisConfig holds optional Redis settings for distributed rate limiting
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	// DBPath is the sqlite database file; ":memory:" is accepted for tests
	DBPath string `yaml:"db_path"`
}

// SweepConfig holds orphan sweep settings
type SweepConfig struct {
	// Schedule is a cron expression; empty disables the sweep
	Schedule string `yaml:"schedule"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// ConfigurationError reports a missing or inconsistent required setting.
// It is surfaced verbatim and never retried.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Reason)
	}
	return fmt.Sprintf("configuration error: %s is required", e.Setting)
}

// Load loads configuration from an optional YAML file (PERMSYNC_CONFIG_FILE)
// overlaid with environment variables, then validates it
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("PERMSYNC_CONFIG_FILE"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config with default values for all optional settings
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			HealthPort:      "9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		ReportStore: ReportStoreConfig{
			AdminGroup:     "Administrators",
			RequestTimeout: 30 * time.Second,
		},
		IdentityStore: IdentityStoreConfig{
			RequestTimeout: 15 * time.Second,
		},
		Audit: AuditConfig{
			DBPath: "permsync-audit.db",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "permsync",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// loadFile overlays configuration from a YAML file
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigurationError{Setting: "PERMSYNC_CONFIG_FILE", Reason: err.Error()}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return &ConfigurationError{Setting: "PERMSYNC_CONFIG_FILE", Reason: fmt.Sprintf("invalid YAML: %v", err)}
	}
	return nil
}

// applyEnv overlays configuration from environment variables
func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("PERMSYNC_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("PERMSYNC_PORT", cfg.Server.Port)
	cfg.Server.HealthPort = getEnv("PERMSYNC_HEALTH_PORT", cfg.Server.HealthPort)
	cfg.Server.ReadTimeout = getEnvDuration("PERMSYNC_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("PERMSYNC_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvDuration("PERMSYNC_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("PERMSYNC_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.ReportStore.BaseURL = getEnv("PERMSYNC_REPORT_STORE_URL", cfg.ReportStore.BaseURL)
	cfg.ReportStore.SiteID = getEnv("PERMSYNC_SITE_ID", cfg.ReportStore.SiteID)
	cfg.ReportStore.ServiceAccountEmail = getEnv("PERMSYNC_SERVICE_ACCOUNT_EMAIL", cfg.ReportStore.ServiceAccountEmail)
	cfg.ReportStore.EmbedSecret = getEnv("PERMSYNC_EMBED_SECRET", cfg.ReportStore.EmbedSecret)
	cfg.ReportStore.AdminGroup = getEnv("PERMSYNC_ADMIN_GROUP", cfg.ReportStore.AdminGroup)
	cfg.ReportStore.RequestTimeout = getEnvDuration("PERMSYNC_REPORT_STORE_TIMEOUT", cfg.ReportStore.RequestTimeout)

	cfg.IdentityStore.URL = getEnv("PERMSYNC_IDENTITY_STORE_URL", cfg.IdentityStore.URL)
	cfg.IdentityStore.ServiceKey = getEnv("PERMSYNC_IDENTITY_STORE_SERVICE_KEY", cfg.IdentityStore.ServiceKey)
	cfg.IdentityStore.RequestTimeout = getEnvDuration("PERMSYNC_IDENTITY_STORE_TIMEOUT", cfg.IdentityStore.RequestTimeout)

	cfg.Redis.URL = getEnv("PERMSYNC_REDIS_URL", cfg.Redis.URL)
	cfg.Redis.Password = getEnv("PERMSYNC_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("PERMSYNC_REDIS_DB", cfg.Redis.DB)

	cfg.Audit.DBPath = getEnv("PERMSYNC_AUDIT_DB_PATH", cfg.Audit.DBPath)
	cfg.Sweep.Schedule = getEnv("PERMSYNC_SWEEP_SCHEDULE", cfg.Sweep.Schedule)

	cfg.Observability.LogLevel = getEnv("PERMSYNC_LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.MetricsEnabled = getEnvBool("PERMSYNC_METRICS_ENABLED", cfg.Observability.MetricsEnabled)
	cfg.Observability.OTelEnabled = getEnvBool("PERMSYNC_OTEL_ENABLED", cfg.Observability.OTelEnabled)
	cfg.Observability.OTelEndpoint = getEnv("PERMSYNC_OTEL_ENDPOINT", cfg.Observability.OTelEndpoint)
	cfg.Observability.OTelServiceName = getEnv("PERMSYNC_OTEL_SERVICE_NAME", cfg.Observability.OTelServiceName)
	cfg.Observability.OTelServiceVersion = getEnv("PERMSYNC_OTEL_SERVICE_VERSION", cfg.Observability.OTelServiceVersion)
	cfg.Observability.OTelInsecure = getEnvBool("PERMSYNC_OTEL_INSECURE", cfg.Observability.OTelInsecure)
}

// Validate checks if the configuration is valid. Every required secret is
// checked here so a misconfigured deployment fails at startup rather than
// on the first backend call.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return &ConfigurationError{Setting: "PERMSYNC_PORT"}
	}
	if c.Server.HealthPort == "" {
		return &ConfigurationError{Setting: "PERMSYNC_HEALTH_PORT"}
	}
	if c.Server.Port == c.Server.HealthPort {
		return &ConfigurationError{Setting: "PERMSYNC_HEALTH_PORT", Reason: "must differ from PERMSYNC_PORT"}
	}

	if c.ReportStore.BaseURL == "" {
		return &ConfigurationError{Setting: "PERMSYNC_REPORT_STORE_URL"}
	}
	if c.ReportStore.SiteID == "" {
		return &ConfigurationError{Setting: "PERMSYNC_SITE_ID"}
	}
	if c.ReportStore.ServiceAccountEmail == "" {
		return &ConfigurationError{Setting: "PERMSYNC_SERVICE_ACCOUNT_EMAIL"}
	}
	if c.ReportStore.EmbedSecret == "" {
		return &ConfigurationError{Setting: "PERMSYNC_EMBED_SECRET"}
	}

	if c.IdentityStore.URL == "" {
		return &ConfigurationError{Setting: "PERMSYNC_IDENTITY_STORE_URL"}
	}
	if c.IdentityStore.ServiceKey == "" {
		return &ConfigurationError{Setting: "PERMSYNC_IDENTITY_STORE_SERVICE_KEY"}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return &ConfigurationError{Setting: "PERMSYNC_OTEL_ENDPOINT"}
		}
		if c.Observability.OTelServiceName == "" {
			return &ConfigurationError{Setting: "PERMSYNC_OTEL_SERVICE_NAME"}
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
