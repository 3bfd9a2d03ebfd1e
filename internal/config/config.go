// Package config provides environment-driven configuration for labweave.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	BlobFS     = "fs"
	BlobBadger = "badger"
	BlobGCS    = "gcs"

	TransportMemory = "memory"
	TransportRedis  = "redis"

	EncryptionNone   = "none"
	EncryptionStatic = "static"
	EncryptionVault  = "vault"
)

// Config holds all application configuration values.
type Config struct {
	LedgerDriver     string
	GraphDriver      string
	DatabaseURL      Secret
	GraphDatabaseURL Secret
	DBMaxConns       int

	BlobDriver         string
	BlobPath           string
	GCSBucket          string
	GCSPrefix          string
	GCSCredentialsFile string

	ContentEncryption string
	ContentKey        Secret
	ContentKeyID      string
	VaultAddr         string
	VaultToken        Secret

	EventTransport   string
	RedisAddr        string
	RedisPassword    Secret
	ProjectorWorkers int
	ProjectorEnabled bool
	// ProjectorConsumer names this process in the Redis consumer group. It
	// must stay the same across restarts of one deployment.
	ProjectorConsumer string

	Port        string
	MetricsPort string
	ListenHost  string
	CORSOrigins []string

	LogLevel  string
	LogFormat string

	MaxUploadBytes    int64
	AllowedExtensions []string
	RateLimitRPS      float64
	RateLimitBurst    int

	TracesExporter string
	OTLPEndpoint   string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		LedgerDriver:       envOrDefault("LEDGER_DRIVER", DriverPostgres),
		GraphDriver:        envOrDefault("GRAPH_DRIVER", DriverPostgres),
		DatabaseURL:        Secret(envOrDefault("DATABASE_URL", "")),
		GraphDatabaseURL:   Secret(envOrDefault("GRAPH_DATABASE_URL", "")),
		BlobDriver:         envOrDefault("BLOB_DRIVER", BlobFS),
		BlobPath:           envOrDefault("BLOB_PATH", "./data/blobs"),
		GCSBucket:          envOrDefault("GCS_BUCKET", ""),
		GCSPrefix:          envOrDefault("GCS_PREFIX", "content"),
		GCSCredentialsFile: envOrDefault("GCS_CREDENTIALS_FILE", ""),
		ContentEncryption:  envOrDefault("CONTENT_ENCRYPTION", EncryptionNone),
		ContentKey:         Secret(envOrDefault("CONTENT_ENCRYPTION_KEY", "")),
		ContentKeyID:       envOrDefault("CONTENT_KEY_ID", "default"),
		VaultAddr:          envOrDefault("VAULT_ADDR", ""),
		VaultToken:         Secret(envOrDefault("VAULT_TOKEN", "")),
		EventTransport:     envOrDefault("EVENT_TRANSPORT", TransportMemory),
		RedisAddr:          envOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      Secret(envOrDefault("REDIS_PASSWORD", "")),
		ProjectorEnabled:   envOrDefault("PROJECTOR_ENABLED", "true") == "true",
		ProjectorConsumer:  envOrDefault("PROJECTOR_CONSUMER", hostname()),
		Port:               envOrDefault("PORT", "3030"),
		MetricsPort:        envOrDefault("METRICS_PORT", "9091"),
		ListenHost:         envOrDefault("LISTEN_HOST", "127.0.0.1"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFormat:          envOrDefault("LOG_FORMAT", "json"),
		TracesExporter:     envOrDefault("OTEL_TRACES_EXPORTER", "none"),
		OTLPEndpoint:       envOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	dbMaxConns, err := strconv.Atoi(envOrDefault("DB_MAX_CONNS", "21"))
	if err != nil || dbMaxConns < 2 || dbMaxConns > 200 {
		return nil, fmt.Errorf("DB_MAX_CONNS must be an integer between 2 and 200")
	}
	cfg.DBMaxConns = dbMaxConns

	workers, err := strconv.Atoi(envOrDefault("PROJECTOR_WORKERS", "4"))
	if err != nil || workers < 1 || workers > 64 {
		return nil, fmt.Errorf("PROJECTOR_WORKERS must be an integer between 1 and 64")
	}
	cfg.ProjectorWorkers = workers

	maxUpload, err := strconv.ParseInt(envOrDefault("MAX_UPLOAD_BYTES", "104857600"), 10, 64)
	if err != nil || maxUpload < 1 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be a positive integer")
	}
	cfg.MaxUploadBytes = maxUpload

	rps, err := strconv.ParseFloat(envOrDefault("RATE_LIMIT_RPS", "50"), 64)
	if err != nil || rps <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_RPS must be a positive number")
	}
	cfg.RateLimitRPS = rps

	burst, err := strconv.Atoi(envOrDefault("RATE_LIMIT_BURST", "100"))
	if err != nil || burst < 1 {
		return nil, fmt.Errorf("RATE_LIMIT_BURST must be a positive integer")
	}
	cfg.RateLimitBurst = burst

	cfg.CORSOrigins = splitList(envOrDefault("CORS_ORIGINS", "http://localhost:3002"))
	cfg.AllowedExtensions = splitList(envOrDefault("ALLOWED_EXTENSIONS", ""))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

// MetricsAddr returns the metrics listen address in host:port format.
func (c *Config) MetricsAddr() string {
	return c.ListenHost + ":" + c.MetricsPort
}

// GraphURL returns the graph database URL, falling back to the ledger database.
func (c *Config) GraphURL() Secret {
	if c.GraphDatabaseURL != "" {
		return c.GraphDatabaseURL
	}

	return c.DatabaseURL
}

// UsesPostgres reports whether any store is backed by Postgres.
func (c *Config) UsesPostgres() bool {
	return c.LedgerDriver == DriverPostgres || c.GraphDriver == DriverPostgres
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}

func hostname() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "labweave"
	}

	return host
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
