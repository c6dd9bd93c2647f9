package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string  `env:"APP_NAME" env-default:"clover"`
	Version                       string  `env:"APP_VERSION" env-default:"dev"`
	Port                          int     `env:"PORT" env-default:"3004"`
	LogLevel                      string  `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool    `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int     `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerReadTimeoutSeconds  int     `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerIdleTimeoutSeconds  int     `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"60"`
	ReadHeaderTimeoutSeconds      int     `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int     `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ShutdownTimeoutSeconds        int     `env:"SHUTDOWN_TIMEOUT_SECONDS" env-default:"15"`
	StartupMaxAttempts            int     `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`
	TraceSampleRatio              float64 `env:"TRACE_SAMPLE_RATIO" env-default:"0.1"`

	// Engine
	DedupConfigPath string `env:"DEDUP_CONFIG_PATH" env-default:""`

	// Merge history archive. Redis wins when both are set.
	RedisAddr     string `env:"REDIS_ADDR" env-default:""`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`
	RedisStream   string `env:"REDIS_LEDGER_STREAM" env-default:"clover:ledger"`
	ArchiveFile   string `env:"ARCHIVE_FILE" env-default:""`

	// Kafka Consumer (event ingestion)
	KafkaBrokers           []string      `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaInputTopic        string        `env:"KAFKA_INPUT_TOPIC" env-default:"events"`
	KafkaConsumerGroup     string        `env:"KAFKA_CONSUMER_GROUP" env-default:"clover-consumer"`
	KafkaConsumerEnabled   bool          `env:"KAFKA_CONSUMER_ENABLED" env-default:"false"`
	KafkaMessagesPerSecond float64       `env:"KAFKA_MESSAGES_PER_SECOND" env-default:"0"`
	KafkaBurst             int           `env:"KAFKA_BURST" env-default:"1"`
	IngestMaxEvents        int           `env:"INGEST_MAX_EVENTS" env-default:"500"`
	IngestFlushInterval    time.Duration `env:"INGEST_FLUSH_INTERVAL" env-default:"5s"`
	IngestMode             string        `env:"INGEST_MODE" env-default:"merge"`

	// Kafka Producer (merge events)
	KafkaProducerEnabled bool   `env:"KAFKA_PRODUCER_ENABLED" env-default:"false"`
	KafkaOutputTopic     string `env:"KAFKA_OUTPUT_TOPIC" env-default:"event-merges"`
	KafkaBatchSize       int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout    int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks    int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression     string `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Circuit breaker around merge event publishing
	PublishMaxFailures      uint32        `env:"PUBLISH_MAX_FAILURES" env-default:"5"`
	PublishBreakerTimeout   time.Duration `env:"PUBLISH_BREAKER_TIMEOUT" env-default:"30s"`
	PublishHalfOpenRequests uint32        `env:"PUBLISH_HALF_OPEN_REQUESTS" env-default:"1"`
}

// Load reads an optional .env file and then the environment
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
