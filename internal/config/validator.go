package config

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	if err := ValidateTransport(cfg.Event.Transport); err != nil {
		return err
	}

	if err := validateServer(cfg.Server); err != nil {
		return err
	}

	if err := validateEvent(cfg.Event); err != nil {
		return err
	}

	if err := validateBus(cfg.Bus); err != nil {
		return err
	}

	if err := validateRelay(cfg.Relay); err != nil {
		return err
	}

	if err := validateTenantCache(cfg.TenantCache); err != nil {
		return err
	}

	if err := validateDatabase(cfg.Database); err != nil {
		return err
	}

	return nil
}

// ValidateTransport rejects unknown transport names. The message format
// is load-bearing: operators and supervisors match on it.
func ValidateTransport(transport string) error {
	for _, v := range TransportValues {
		if transport == v {
			return nil
		}
	}
	return fmt.Errorf("Invalid transport '%s'. Expected one of: %s", transport, strings.Join(TransportValues, ", "))
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateEvent(cfg EventConfig) error {
	if cfg.Transport != TransportExternalBroker {
		return nil
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return &ValidationError{
			Field:   "event.kafka.brokers",
			Message: "at least one Kafka broker is required for the external_broker transport",
		}
	}

	for i, broker := range cfg.Kafka.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("event.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.Kafka.Topic == "" {
		return &ValidationError{
			Field:   "event.kafka.topic",
			Message: "Kafka topic is required for the external_broker transport",
		}
	}

	return nil
}

func validateBus(cfg BusConfig) error {
	if cfg.MaxQueueDepth < 1 {
		return &ValidationError{
			Field:   "bus.max_queue_depth",
			Message: "max_queue_depth must be positive",
		}
	}

	if cfg.WarningRatio <= 0 || cfg.WarningRatio >= 1 {
		return &ValidationError{
			Field:   "bus.warning_ratio",
			Message: "warning_ratio must be in (0, 1)",
		}
	}

	if cfg.CriticalRatio <= cfg.WarningRatio || cfg.CriticalRatio > 1 {
		return &ValidationError{
			Field:   "bus.critical_ratio",
			Message: "critical_ratio must be greater than warning_ratio and at most 1",
		}
	}

	switch cfg.DispatchPolicy {
	case DispatchFailFast, DispatchBestEffort:
	default:
		return &ValidationError{
			Field:   "bus.dispatch_policy",
			Message: fmt.Sprintf("unknown dispatch policy: %s (supported: fail_fast, best_effort)", cfg.DispatchPolicy),
		}
	}

	return nil
}

func validateRelay(cfg RelayConfig) error {
	if cfg.PollIntervalMs < 1 {
		return &ValidationError{
			Field:   "relay.poll_interval_ms",
			Message: "poll_interval_ms must be positive",
		}
	}

	if cfg.BatchSize < 1 {
		return &ValidationError{
			Field:   "relay.batch_size",
			Message: "batch_size must be positive",
		}
	}

	if cfg.MaxAttempts < 1 {
		return &ValidationError{
			Field:   "relay.max_attempts",
			Message: "max_attempts must be positive",
		}
	}

	if cfg.RecordTimeout <= 0 || cfg.BatchTimeout <= 0 {
		return &ValidationError{
			Field:   "relay.record_timeout",
			Message: "record_timeout and batch_timeout must be positive",
		}
	}

	if cfg.BatchTimeout < cfg.RecordTimeout {
		return &ValidationError{
			Field:   "relay.batch_timeout",
			Message: "batch_timeout must be at least record_timeout",
		}
	}

	if cfg.Multiplier <= 0 {
		return &ValidationError{
			Field:   "relay.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateTenantCache(cfg TenantCacheConfig) error {
	switch cfg.Backend {
	case CacheBackendRedis, CacheBackendInMemory:
	default:
		return &ValidationError{
			Field:   "tenant_cache.backend",
			Message: fmt.Sprintf("unknown cache backend: %s (supported: redis, in_memory)", cfg.Backend),
		}
	}

	if cfg.TTLSeconds < 1 {
		return &ValidationError{
			Field:   "tenant_cache.ttl_seconds",
			Message: "ttl_seconds must be positive",
		}
	}

	if cfg.NegativeTTLSeconds < 1 {
		return &ValidationError{
			Field:   "tenant_cache.negative_ttl_seconds",
			Message: "negative_ttl_seconds must be positive",
		}
	}

	if cfg.FetchTimeout <= 0 {
		return &ValidationError{
			Field:   "tenant_cache.fetch_timeout",
			Message: "fetch_timeout must be positive",
		}
	}

	if cfg.InvalidationChannel == "" {
		return &ValidationError{
			Field:   "tenant_cache.invalidation_channel",
			Message: "invalidation_channel is required",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" || cfg.Postgres.Port > 0 {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}
