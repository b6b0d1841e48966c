package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Replace modes for appointment creation.
const (
	CreateModeAtomic = "atomic"
	CreateModeLegacy = "legacy"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	APIPrefix   string   `mapstructure:"API_PREFIX"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	DBMaxConnLifetime   time.Duration `mapstructure:"DB_MAX_CONN_LIFETIME"`
	DBMaxConnIdleTime   time.Duration `mapstructure:"DB_MAX_CONN_IDLE_TIME"`
	DBHealthCheckPeriod time.Duration `mapstructure:"DB_HEALTH_CHECK_PERIOD"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`

	RateLimitRPS       float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int     `mapstructure:"RATE_LIMIT_BURST"`
	RateLimitPerMinute int     `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	RedisURL           string  `mapstructure:"REDIS_URL"`

	CreateMode        string `mapstructure:"CREATE_MODE"`
	IDMaxAttempts     int    `mapstructure:"ID_MAX_ATTEMPTS"`
	SlotCapacity      int    `mapstructure:"SLOT_CAPACITY"`
	SlotStartHour     int    `mapstructure:"SLOT_START_HOUR"`
	DefaultDoctorName string `mapstructure:"DEFAULT_DOCTOR_NAME"`

	OTelEnabled     bool    `mapstructure:"OTEL_ENABLED"`
	OTelEndpoint    string  `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelSampleRatio float64 `mapstructure:"OTEL_SAMPLING_RATIO"`
	OTelServiceName string  `mapstructure:"OTEL_SERVICE_NAME"`

	TLSEnabled  bool   `mapstructure:"TLS_ENABLED"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "API_PREFIX", "CORS_ORIGINS",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_MAX_CONN_LIFETIME",
	"DB_MAX_CONN_IDLE_TIME", "DB_HEALTH_CHECK_PERIOD",
	"REQUEST_TIMEOUT", "BODY_LIMIT",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "RATE_LIMIT_PER_MINUTE", "REDIS_URL",
	"CREATE_MODE", "ID_MAX_ATTEMPTS", "SLOT_CAPACITY", "SLOT_START_HOUR", "DEFAULT_DOCTOR_NAME",
	"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SAMPLING_RATIO", "OTEL_SERVICE_NAME",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("API_PREFIX", "/v1")
	v.SetDefault("CORS_ORIGINS", "*")
	// pool of 5 with 10 overflow, recycled every 5 minutes
	v.SetDefault("DB_MAX_CONNS", 15)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_MAX_CONN_LIFETIME", "5m")
	v.SetDefault("DB_MAX_CONN_IDLE_TIME", "5m")
	v.SetDefault("DB_HEALTH_CHECK_PERIOD", "1m")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 600)
	v.SetDefault("CREATE_MODE", CreateModeAtomic)
	v.SetDefault("ID_MAX_ATTEMPTS", 5)
	v.SetDefault("SLOT_CAPACITY", 10)
	v.SetDefault("SLOT_START_HOUR", 9)
	v.SetDefault("DEFAULT_DOCTOR_NAME", "Dr. Priya Sharma")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_SAMPLING_RATIO", 1.0)
	v.SetDefault("OTEL_SERVICE_NAME", "booking-server")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	origins := v.GetString("CORS_ORIGINS")
	if origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AtomicCreate reports whether the patient's previous appointments are purged
// in the same transaction as the insert of the new one.
func (c *Config) AtomicCreate() bool {
	return c.CreateMode != CreateModeLegacy
}

// Validate checks that the configuration is usable before the server starts.
func (c *Config) Validate() error {
	if c.CreateMode != CreateModeAtomic && c.CreateMode != CreateModeLegacy {
		return fmt.Errorf("CREATE_MODE must be %q or %q, got %q", CreateModeAtomic, CreateModeLegacy, c.CreateMode)
	}
	if c.IDMaxAttempts < 1 {
		return fmt.Errorf("ID_MAX_ATTEMPTS must be at least 1, got %d", c.IDMaxAttempts)
	}
	if c.SlotCapacity < 1 {
		return fmt.Errorf("SLOT_CAPACITY must be at least 1, got %d", c.SlotCapacity)
	}
	if c.SlotStartHour < 0 || c.SlotStartHour > 23 {
		return fmt.Errorf("SLOT_START_HOUR must be between 0 and 23, got %d", c.SlotStartHour)
	}
	// Every offered slot must fall on the same day.
	if c.SlotStartHour+c.SlotCapacity > 24 {
		return fmt.Errorf("SLOT_START_HOUR + SLOT_CAPACITY must not exceed 24, got %d", c.SlotStartHour+c.SlotCapacity)
	}
	if !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("API_PREFIX must start with '/', got %q", c.APIPrefix)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
