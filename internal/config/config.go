package config

import (
	"fmt"

	pkgconfig "github.com/shopforge/catalogsearch/pkg/config"
)

// Dialect selects the SQL engine backing the index.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"

	// DialectMemory keeps the index in process memory. Development only:
	// the index is lost on restart.
	DialectMemory Dialect = "memory"
)

// Config holds all configuration for the catalog search service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"SEARCH_HTTP_PORT" envDefault:"8011"`

	// Index storage. The dialect decides which connection settings are used.
	Dialect Dialect `env:"SEARCH_DIALECT" envDefault:"postgres"`

	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"catalogsearch"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"catalogsearch_secret"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"catalogsearch"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	MySQLDSN   string `env:"MYSQL_DSN" envDefault:"root:root@tcp(localhost:3306)/catalogsearch?parseTime=true"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"catalogsearch.db"`

	// Redis backs job progress records. Empty address keeps progress
	// in process memory.
	RedisAddr     string `env:"REDIS_ADDR" envDefault:""`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Catalog service, the source of truth the index is rebuilt from.
	CatalogServiceURL string `env:"CATALOG_SERVICE_URL" envDefault:"http://localhost:8080"`

	// Session tokens embedded in queued tasks are signed with this secret.
	SessionSecret string `env:"SESSION_SECRET,required"`

	// Default request scope.
	DefaultChannelID    string `env:"DEFAULT_CHANNEL_ID" envDefault:"default"`
	DefaultLanguageCode string `env:"DEFAULT_LANGUAGE_CODE" envDefault:"en"`
	DefaultCurrencyCode string `env:"DEFAULT_CURRENCY_CODE" envDefault:"USD"`

	// Event ingestion debounce.
	BufferDebounceMillis int `env:"BUFFER_DEBOUNCE_MS" envDefault:"50"`
	BufferMaxHoldMillis  int `env:"BUFFER_MAX_HOLD_MS" envDefault:"1000"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Tracing
	OTLPEndpoint string `env:"OTLP_ENDPOINT" envDefault:""`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load catalogsearch config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.Dialect {
	case DialectPostgres, DialectMySQL, DialectSQLite, DialectMemory:
	default:
		return fmt.Errorf("unsupported search dialect: %q", c.Dialect)
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("at least one Kafka broker is required")
	}
	if c.BufferDebounceMillis < 1 {
		return fmt.Errorf("buffer debounce must be positive, got %d", c.BufferDebounceMillis)
	}
	if c.BufferMaxHoldMillis < c.BufferDebounceMillis {
		return fmt.Errorf("buffer max hold (%dms) must not be below the debounce (%dms)",
			c.BufferMaxHoldMillis, c.BufferDebounceMillis)
	}
	return nil
}
