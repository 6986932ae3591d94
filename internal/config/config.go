package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Event          EventConfig          `mapstructure:"event"`
	Bus            BusConfig            `mapstructure:"bus"`
	Relay          RelayConfig          `mapstructure:"relay"`
	TenantCache    TenantCacheConfig    `mapstructure:"tenant_cache"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
	MongoDB  MongoDBConfig
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// EventConfig selects and parameterizes the event transport. Transport
// must be one of the Transport* constants; the loader applies the
// RUSTOK_EVENT_TRANSPORT override before validation.
type EventConfig struct {
	Transport string      `mapstructure:"transport"`
	Kafka     KafkaConfig `mapstructure:"kafka"`
}

const (
	TransportInMemory       = "in_memory"
	TransportOutboxForward  = "outbox_forward"
	TransportExternalBroker = "external_broker"
)

// TransportValues enumerates the accepted transport names in the order
// they appear in startup error messages.
var TransportValues = []string{TransportInMemory, TransportOutboxForward, TransportExternalBroker}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type BusConfig struct {
	MaxQueueDepth  int     `mapstructure:"max_queue_depth"`
	WarningRatio   float64 `mapstructure:"warning_ratio"`
	CriticalRatio  float64 `mapstructure:"critical_ratio"`
	DispatchPolicy string  `mapstructure:"dispatch_policy"`
}

const (
	DispatchFailFast   = "fail_fast"
	DispatchBestEffort = "best_effort"
)

type RelayConfig struct {
	PollIntervalMs  int           `mapstructure:"poll_interval_ms"`
	BatchSize       int           `mapstructure:"batch_size"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	RecordTimeout   time.Duration `mapstructure:"record_timeout"`
	LeaseTTL        time.Duration `mapstructure:"lease_ttl"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

type TenantCacheConfig struct {
	Backend             string        `mapstructure:"backend"`
	TTLSeconds          int           `mapstructure:"ttl_seconds"`
	NegativeTTLSeconds  int           `mapstructure:"negative_ttl_seconds"`
	FetchTimeout        time.Duration `mapstructure:"fetch_timeout"`
	InvalidationChannel string        `mapstructure:"invalidation_channel"`
}

const (
	CacheBackendRedis    = "redis"
	CacheBackendInMemory = "in_memory"
)

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled     bool       `mapstructure:"enabled"`
	ServiceName string     `mapstructure:"service_name"`
	OTLP        OTLPConfig `mapstructure:"otlp"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
