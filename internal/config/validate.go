package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

func (c *Config) validate() error {
	validators := []func() error{
		c.validateDrivers,
		c.validateDatabase,
		c.validateBlob,
		c.validateEncryption,
		c.validateEvents,
		c.validateNetwork,
		c.validateCORS,
		c.validateLogging,
		c.validateTracing,
		c.validateExtensions,
	}

	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateDrivers() error {
	for name, v := range map[string]string{"LEDGER_DRIVER": c.LedgerDriver, "GRAPH_DRIVER": c.GraphDriver} {
		if v != DriverPostgres && v != DriverMemory {
			return fmt.Errorf("%s must be 'postgres' or 'memory', got %q", name, v)
		}
	}

	// An in-memory ledger cannot feed an out-of-process projector.
	if c.LedgerDriver == DriverMemory && c.EventTransport == TransportRedis {
		return fmt.Errorf("EVENT_TRANSPORT=redis requires LEDGER_DRIVER=postgres")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if !c.UsesPostgres() {
		return nil
	}

	if c.DatabaseURL.Value() == "" && (c.LedgerDriver == DriverPostgres || c.GraphDatabaseURL.Value() == "") {
		return fmt.Errorf("DATABASE_URL is required")
	}

	for name, raw := range map[string]string{
		"DATABASE_URL":       c.DatabaseURL.Value(),
		"GRAPH_DATABASE_URL": c.GraphDatabaseURL.Value(),
	} {
		if raw == "" {
			continue
		}

		if err := validatePostgresURL(name, raw); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgresURL(name, raw string) error {
	dbURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}

	if dbURL.Scheme != "postgres" && dbURL.Scheme != "postgresql" {
		return fmt.Errorf("%s scheme must be postgres:// or postgresql://", name)
	}

	if dbURL.Hostname() == "" {
		return fmt.Errorf("%s must include a host", name)
	}

	dbHost := dbURL.Hostname()
	if !isLoopback(dbHost) && dbURL.Query().Get("sslmode") == "disable" {
		return fmt.Errorf("%s sslmode=disable is not allowed for non-local host %q", name, dbHost)
	}

	return nil
}

func (c *Config) validateBlob() error {
	switch c.BlobDriver {
	case BlobFS, BlobBadger:
		if strings.TrimSpace(c.BlobPath) == "" {
			return fmt.Errorf("BLOB_PATH is required when BLOB_DRIVER is %s", c.BlobDriver)
		}
	case BlobGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when BLOB_DRIVER is gcs")
		}
	default:
		return fmt.Errorf("BLOB_DRIVER must be 'fs', 'badger' or 'gcs', got %q", c.BlobDriver)
	}

	return nil
}

func (c *Config) validateEncryption() error {
	switch c.ContentEncryption {
	case EncryptionNone:
	case EncryptionStatic:
		if len(c.ContentKey.Value()) != 64 {
			return fmt.Errorf("CONTENT_ENCRYPTION_KEY must be 64 hex characters when CONTENT_ENCRYPTION is static")
		}
	case EncryptionVault:
		u, err := url.Parse(c.VaultAddr)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("VAULT_ADDR must be a URL when CONTENT_ENCRYPTION is vault")
		}

		if u.Scheme != "https" && !isLoopback(u.Hostname()) {
			return fmt.Errorf("VAULT_ADDR must use https for non-local host %q", u.Hostname())
		}

		if c.VaultToken.Value() == "" {
			return fmt.Errorf("VAULT_TOKEN is required when CONTENT_ENCRYPTION is vault")
		}
	default:
		return fmt.Errorf("CONTENT_ENCRYPTION must be 'none', 'static' or 'vault', got %q", c.ContentEncryption)
	}

	return nil
}

func (c *Config) validateEvents() error {
	switch c.EventTransport {
	case TransportMemory:
		if !c.ProjectorEnabled {
			return fmt.Errorf("PROJECTOR_ENABLED=false requires EVENT_TRANSPORT=redis")
		}
	case TransportRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when EVENT_TRANSPORT is redis")
		}
	default:
		return fmt.Errorf("EVENT_TRANSPORT must be 'memory' or 'redis', got %q", c.EventTransport)
	}

	return nil
}

func (c *Config) validateNetwork() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid integer: %w", err)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	// Loopback for local deployments; 0.0.0.0/:: when a container boundary
	// sits in front.
	validHosts := map[string]bool{
		"127.0.0.1": true,
		"::1":       true,
		"localhost": true,
		"0.0.0.0":   true,
		"::":        true,
	}
	if !validHosts[c.ListenHost] {
		return fmt.Errorf("LISTEN_HOST must be a loopback address or 0.0.0.0/:: for containers (got %q)", c.ListenHost)
	}

	metricsPort, err := strconv.Atoi(c.MetricsPort)
	if err != nil {
		return fmt.Errorf("METRICS_PORT must be a valid integer: %w", err)
	}

	if metricsPort < 1 || metricsPort > 65535 {
		return fmt.Errorf("METRICS_PORT must be between 1 and 65535")
	}

	if metricsPort == port {
		return fmt.Errorf("METRICS_PORT must differ from PORT")
	}

	return nil
}

func (c *Config) validateCORS() error {
	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			return fmt.Errorf("CORS_ORIGINS must not contain wildcard '*'")
		}
		if strings.ContainsAny(origin, "*?[]") {
			return fmt.Errorf("CORS_ORIGINS must not contain glob characters (*?[]), got %q", origin)
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CORS_ORIGINS contains invalid origin %q (must have scheme and host)", origin)
		}
	}

	return nil
}

func (c *Config) validateLogging() error {
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error (got %q)", c.LogLevel)
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be 'json' or 'text', got %q", c.LogFormat)
	}

	return nil
}

func (c *Config) validateTracing() error {
	switch c.TracesExporter {
	case "none", "stdout":
	case "otlp":
		if c.OTLPEndpoint == "" {
			return fmt.Errorf("OTEL_EXPORTER_OTLP_ENDPOINT is required when OTEL_TRACES_EXPORTER is otlp")
		}
	default:
		return fmt.Errorf("OTEL_TRACES_EXPORTER must be 'none', 'otlp' or 'stdout', got %q", c.TracesExporter)
	}

	return nil
}

func (c *Config) validateExtensions() error {
	for _, ext := range c.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("ALLOWED_EXTENSIONS entries must start with a dot, got %q", ext)
		}
	}

	return nil
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
