package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "IMITATION"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "imitation.db"
	defaultLogLevel      = "info"
	defaultAudience      = "authenticated"
	defaultCORSOrigins   = "*"
	defaultFeedTTLSecond = 30

	// DriverSQLite selects the embedded SQLite store.
	DriverSQLite = "sqlite"
	// DriverPostgres selects a PostgreSQL server.
	DriverPostgres = "postgres"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	DatabaseDriver  string
	DatabasePath    string
	DatabaseDSN     string
	LogLevel        string
	CORSOrigins     []string
	JWTSecret       string
	JWTAudience     string
	JWTIssuer       string
	JWKSURL         string
	AllowUnverified bool
	RedisAddress    string
	FeedCacheTTL    time.Duration
	MetricsEnabled  bool
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", DriverSQLite)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("cors.origins", defaultCORSOrigins)
	configViper.SetDefault("auth.jwt_secret", "")
	configViper.SetDefault("auth.audience", defaultAudience)
	configViper.SetDefault("auth.issuer", "")
	configViper.SetDefault("auth.jwks_url", "")
	configViper.SetDefault("auth.allow_unverified", false)
	configViper.SetDefault("redis.address", "")
	configViper.SetDefault("redis.feed_ttl_seconds", defaultFeedTTLSecond)
	configViper.SetDefault("metrics.enabled", true)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     strings.TrimSpace(configViper.GetString("http.address")),
		DatabaseDriver:  strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:    strings.TrimSpace(configViper.GetString("database.path")),
		DatabaseDSN:     strings.TrimSpace(configViper.GetString("database.dsn")),
		LogLevel:        configViper.GetString("log.level"),
		CORSOrigins:     splitOrigins(configViper.GetString("cors.origins")),
		JWTSecret:       configViper.GetString("auth.jwt_secret"),
		JWTAudience:     strings.TrimSpace(configViper.GetString("auth.audience")),
		JWTIssuer:       strings.TrimSpace(configViper.GetString("auth.issuer")),
		JWKSURL:         strings.TrimSpace(configViper.GetString("auth.jwks_url")),
		AllowUnverified: configViper.GetBool("auth.allow_unverified"),
		RedisAddress:    strings.TrimSpace(configViper.GetString("redis.address")),
		FeedCacheTTL:    time.Duration(configViper.GetInt("redis.feed_ttl_seconds")) * time.Second,
		MetricsEnabled:  configViper.GetBool("metrics.enabled"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.HTTPAddress == "" {
		return fmt.Errorf("http.address is required")
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.JWTSecret) == "" && c.JWKSURL == "" && !c.AllowUnverified {
		return fmt.Errorf("auth.jwt_secret or auth.jwks_url is required unless auth.allow_unverified is set")
	}
	if c.FeedCacheTTL <= 0 {
		return fmt.Errorf("redis.feed_ttl_seconds must be positive")
	}
	return nil
}

func splitOrigins(raw string) []string {
	origins := make([]string, 0)
	for _, origin := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return []string{defaultCORSOrigins}
	}
	return origins
}
