package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func bindEnvVariables() {
	viper.BindEnv("event.transport", "RUSTOK_EVENT_TRANSPORT")
	viper.BindEnv("event.kafka.brokers", "EVENT_KAFKA_BROKERS")
	viper.BindEnv("event.kafka.topic", "EVENT_KAFKA_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
}

func setDefaults() {
	viper.SetDefault("event.transport", TransportOutboxForward)
	viper.SetDefault("bus.max_queue_depth", 1024)
	viper.SetDefault("bus.warning_ratio", 0.7)
	viper.SetDefault("bus.critical_ratio", 0.9)
	viper.SetDefault("bus.dispatch_policy", DispatchBestEffort)
	viper.SetDefault("relay.poll_interval_ms", 500)
	viper.SetDefault("relay.batch_size", 100)
	viper.SetDefault("relay.max_attempts", 5)
	viper.SetDefault("relay.batch_timeout", "30s")
	viper.SetDefault("relay.record_timeout", "5s")
	viper.SetDefault("relay.lease_ttl", "60s")
	viper.SetDefault("relay.initial_interval", "1s")
	viper.SetDefault("relay.max_interval", "60s")
	viper.SetDefault("relay.multiplier", 2.0)
	viper.SetDefault("tenant_cache.backend", CacheBackendRedis)
	viper.SetDefault("tenant_cache.ttl_seconds", 300)
	viper.SetDefault("tenant_cache.negative_ttl_seconds", 60)
	viper.SetDefault("tenant_cache.fetch_timeout", "3s")
	viper.SetDefault("tenant_cache.invalidation_channel", "tenant.cache.invalidate")
}

func applyEnvOverrides(cfg *Config) error {
	// RUSTOK_EVENT_TRANSPORT wins over any file value even when viper's
	// bind is shadowed by an explicit yaml key.
	if transport := os.Getenv("RUSTOK_EVENT_TRANSPORT"); transport != "" {
		cfg.Event.Transport = transport
	}

	if brokersEnv := viper.GetString("EVENT_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Event.Kafka.Brokers = brokers
		}
	}

	return nil
}
