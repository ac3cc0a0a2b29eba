package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends selectable per tier.
const (
	BackendRedis    = "redis"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds the database configuration
type DatabaseConfig struct {
	Backend  string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig holds the connection used by the score index, the attribute
// cache and the snapshot cache.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// KafkaConfig holds the Kafka configuration
type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	ScoresTopic   string
	ConsumerGroup string
	BatchSize     int
	BatchTimeout  int // in seconds
}

// RankingConfig holds the ranking engine tunables.
type RankingConfig struct {
	IndexBackend     string
	AttributeBackend string
	SnapshotBackend  string

	InvalidationThreshold int64
	MaxRange              int
	SnapshotLimit         int
	SnapshotTTL           time.Duration
	AttributeTTL          time.Duration
	EnrichedResponseTTL   time.Duration

	IndexTimeout      time.Duration
	DurableTimeout    time.Duration
	BackgroundTimeout time.Duration
}

// WriteThroughConfig bounds the asynchronous durable-store writer.
type WriteThroughConfig struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	MaxAttempts   int
}

// MonitorConfig schedules the snapshot monitor inside the serve command.
type MonitorConfig struct {
	Schedule string
}

// AppConfig holds the application configuration
type AppConfig struct {
	LogLevel     string
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Ranking      RankingConfig
	WriteThrough WriteThroughConfig
	Monitor      MonitorConfig
}

// NewAppConfig creates a new AppConfig from environment variables. A .env file
// in the working directory is loaded first when present; variables already set
// in the environment win.
func NewAppConfig() *AppConfig {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	return &AppConfig{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "127.0.0.1"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Backend:  getEnv("DURABLE_BACKEND", BackendPostgres),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "leaderboard"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "ranking"),
		},
		Kafka: KafkaConfig{
			Enabled:       getEnvAsBool("KAFKA_ENABLED", false),
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			ScoresTopic:   getEnv("KAFKA_SCORES_TOPIC", "trophy-deltas"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "ranking-engine"),
			BatchSize:     getEnvAsInt("KAFKA_BATCH_SIZE", 500),
			BatchTimeout:  getEnvAsInt("KAFKA_BATCH_TIMEOUT", 1),
		},
		Ranking: RankingConfig{
			IndexBackend:          getEnv("INDEX_BACKEND", BackendRedis),
			AttributeBackend:      getEnv("ATTRIBUTE_BACKEND", BackendRedis),
			SnapshotBackend:       getEnv("SNAPSHOT_BACKEND", BackendRedis),
			InvalidationThreshold: int64(getEnvAsInt("RANKING_INVALIDATION_THRESHOLD", 100)),
			MaxRange:              getEnvAsInt("RANKING_MAX_RANGE", 500),
			SnapshotLimit:         getEnvAsInt("RANKING_SNAPSHOT_LIMIT", 500),
			SnapshotTTL:           getEnvAsDuration("RANKING_SNAPSHOT_TTL", 30*time.Second),
			AttributeTTL:          getEnvAsDuration("RANKING_ATTRIBUTE_TTL", 24*time.Hour),
			EnrichedResponseTTL:   getEnvAsDuration("RANKING_ENRICHED_RESPONSE_TTL", 5*time.Second),
			IndexTimeout:          getEnvAsDuration("RANKING_INDEX_TIMEOUT", 250*time.Millisecond),
			DurableTimeout:        getEnvAsDuration("RANKING_DURABLE_TIMEOUT", 2*time.Second),
			BackgroundTimeout:     getEnvAsDuration("RANKING_BACKGROUND_TIMEOUT", 10*time.Second),
		},
		WriteThrough: WriteThroughConfig{
			QueueSize:     getEnvAsInt("WRITETHROUGH_QUEUE_SIZE", 10000),
			BatchSize:     getEnvAsInt("WRITETHROUGH_BATCH_SIZE", 200),
			FlushInterval: getEnvAsDuration("WRITETHROUGH_FLUSH_INTERVAL", 250*time.Millisecond),
			MaxAttempts:   getEnvAsInt("WRITETHROUGH_MAX_ATTEMPTS", 3),
		},
		Monitor: MonitorConfig{
			Schedule: getEnv("MONITOR_SCHEDULE", "@every 30s"),
		},
	}
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
		log.Printf("Warning: Environment variable %s is not a valid integer, using default", key)
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
		log.Printf("Warning: Environment variable %s is not a valid boolean, using default", key)
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
		log.Printf("Warning: Environment variable %s is not a valid duration, using default", key)
	}
	return defaultValue
}
