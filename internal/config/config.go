// Package config loads the matching engine's configuration via
// cleanenv, mirroring the teacher's config.Config/OrderConfig/SpotConfig
// split: one sub-struct per external system or bounded concern, every
// field tagged with its env var and the default spec.md §6 states.
package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Kafka          KafkaConfig
	Postgres       PostgresConfig
	Redis          RedisConfig
	Ingress        IngressConfig
	CacheSync      CacheSyncConfig
	Idempotency    IdempotencyConfig
	Persistence    PersistenceConfig
	Depth          DepthConfig
	Logging        LoggingConfig
	CircuitBreaker CircuitBreakerConfig
}

type KafkaConfig struct {
	Brokers           []string      `env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	ConsumerGroup     string        `env:"KAFKA_CONSUMER_GROUP" env-default:"matching-engine"`
	DLQConsumerGroup  string        `env:"KAFKA_DLQ_CONSUMER_GROUP" env-default:"matching-engine-dlq"`
	SessionTimeout    time.Duration `env:"KAFKA_SESSION_TIMEOUT" env-default:"30s"`
	HeartbeatInterval time.Duration `env:"KAFKA_HEARTBEAT_INTERVAL" env-default:"10s"`
	FetchMinBytes     int32         `env:"KAFKA_FETCH_MIN_BYTES" env-default:"1024"`
	MaxPollRecords    int           `env:"KAFKA_MAX_POLL_RECORDS" env-default:"100"`
	ProducerBatchSize int           `env:"KAFKA_PRODUCER_BATCH_SIZE" env-default:"16384"`
	ProducerLinger    time.Duration `env:"KAFKA_PRODUCER_LINGER" env-default:"10ms"`
	ProducerRetries   int           `env:"KAFKA_PRODUCER_RETRIES" env-default:"3"`
	MaxInFlight       int           `env:"KAFKA_MAX_IN_FLIGHT" env-default:"5"`
	DeliveryTimeout   time.Duration `env:"KAFKA_DELIVERY_TIMEOUT" env-default:"120s"`
}

type PostgresConfig struct {
	DSN string `env:"POSTGRES_DSN" env-required:"true"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

// IngressConfig realizes ingress.concurrency and ingress.retry.* from
// spec.md §6.
type IngressConfig struct {
	Concurrency  int             `env:"INGRESS_CONCURRENCY" env-default:"4"`
	RetryBackoff []time.Duration `env:"INGRESS_RETRY_BACKOFF" env-separator:"," env-default:"100ms,200ms,400ms"`
	RetryMax     int             `env:"INGRESS_RETRY_MAX" env-default:"3"`
}

// CacheSyncConfig realizes cache.sync.interval and
// cache.sync.initial_delay.
type CacheSyncConfig struct {
	Interval     time.Duration `env:"CACHE_SYNC_INTERVAL" env-default:"5s"`
	InitialDelay time.Duration `env:"CACHE_SYNC_INITIAL_DELAY" env-default:"10s"`
}

// IdempotencyConfig realizes idempotency.ttl.
type IdempotencyConfig struct {
	TTL time.Duration `env:"IDEMPOTENCY_TTL" env-default:"24h"`
}

// PersistenceConfig realizes persistence.version.retry.max.
type PersistenceConfig struct {
	VersionRetryMax int `env:"PERSISTENCE_VERSION_RETRY_MAX" env-default:"3"`
}

// DepthConfig realizes depth.limit.max.
type DepthConfig struct {
	LimitMax int `env:"DEPTH_LIMIT_MAX" env-default:"100"`
}

type LoggingConfig struct {
	Level string `env:"LOG_LEVEL" env-default:"info"`
	JSON  bool   `env:"LOG_JSON" env-default:"true"`
}

// CircuitBreakerConfig wraps primary-store calls, mirroring the
// teacher's shared/go.mod-declared but unwired sony/gobreaker/v2
// dependency, wired here around the coordinator's persistence path.
type CircuitBreakerConfig struct {
	MaxRequests uint32        `env:"CB_MAX_REQUESTS" env-default:"3"`
	Interval    time.Duration `env:"CB_INTERVAL" env-default:"10s"`
	Timeout     time.Duration `env:"CB_TIMEOUT" env-default:"5s"`
	MaxFailures uint32        `env:"CB_MAX_FAILURES" env-default:"5"`
}

// Load reads the configuration from the .env-style file at path,
// falling back to the process environment for any field the file
// omits, exactly as cleanenv.ReadConfig does for the teacher's config.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
