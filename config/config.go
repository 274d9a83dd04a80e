package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Server   ServerConfig
	Redis    RedisConfig
	Presence PresenceConfig
	Geofence GeofenceConfig
	Log      LogConfig
	Kafka    KafkaConfig
	Push     PushConfig
}

type ServerConfig struct {
	HTTPPort     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
}

// PresenceConfig holds the coordinator, heartbeat and reaper knobs. The join
// timeout and stale threshold are deliberately configurable rather than
// hard-coded constants.
type PresenceConfig struct {
	JoinTimeout       time.Duration
	GeofencePoll      time.Duration
	HeartbeatInterval time.Duration
	StaleThreshold    time.Duration
	SweepInterval     time.Duration
	SweepParallelism  int
}

// GeofenceConfig describes the single home region monitored per deployment.
type GeofenceConfig struct {
	Identifier   string
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
	Enabled      bool
}

type KafkaConfig struct {
	Brokers              []string
	ProducerRetryMax     int
	ProducerRequiredAcks int
	Enabled              bool
}

type PushConfig struct {
	Endpoint string
	Enabled  bool
	Timeout  time.Duration
}

type LogConfig struct {
	Level    string
	Mode     string
	Encoding string
}

func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("ENV", "development"),
		Server: ServerConfig{
			HTTPPort:     getEnvAsInt("SERVER_HTTP_PORT", 8085),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			MaxRetries:   getEnvAsInt("REDIS_MAX_RETRIES", 3),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		Presence: PresenceConfig{
			JoinTimeout:       getEnvAsDuration("PRESENCE_JOIN_TIMEOUT", 10*time.Second),
			GeofencePoll:      getEnvAsDuration("PRESENCE_GEOFENCE_POLL", 500*time.Millisecond),
			HeartbeatInterval: getEnvAsDuration("PRESENCE_HEARTBEAT_INTERVAL", 15*time.Minute),
			StaleThreshold:    getEnvAsDuration("PRESENCE_STALE_THRESHOLD", 60*time.Minute),
			SweepInterval:     getEnvAsDuration("PRESENCE_SWEEP_INTERVAL", time.Hour),
			SweepParallelism:  getEnvAsInt("PRESENCE_SWEEP_PARALLELISM", 8),
		},
		Geofence: GeofenceConfig{
			Identifier:   getEnv("GEOFENCE_IDENTIFIER", "library"),
			Latitude:     getEnvAsFloat("GEOFENCE_LATITUDE", 40.4562),
			Longitude:    getEnvAsFloat("GEOFENCE_LONGITUDE", -85.49709),
			RadiusMeters: getEnvAsFloat("GEOFENCE_RADIUS_METERS", 500),
			Enabled:      getEnvAsBool("GEOFENCE_ENABLED", true),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Mode:     getEnv("LOG_MODE", "development"),
			Encoding: getEnv("LOG_ENCODING", "console"),
		},
		Kafka: KafkaConfig{
			Brokers:              getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			ProducerRetryMax:     getEnvAsInt("KAFKA_PRODUCER_RETRY_MAX", 3),
			ProducerRequiredAcks: getEnvAsInt("KAFKA_PRODUCER_REQUIRED_ACKS", 1),
			Enabled:              getEnvAsBool("KAFKA_ENABLED", true),
		},
		Push: PushConfig{
			Endpoint: getEnv("PUSH_ENDPOINT", "https://exp.host/--/api/v2/push/send"),
			Enabled:  getEnvAsBool("PUSH_ENABLED", true),
			Timeout:  getEnvAsDuration("PUSH_TIMEOUT", 5*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.HTTPPort)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Presence.JoinTimeout <= 0 {
		return fmt.Errorf("join timeout must be positive")
	}

	if c.Presence.GeofencePoll <= 0 || c.Presence.GeofencePoll >= c.Presence.JoinTimeout {
		return fmt.Errorf("geofence poll interval must be positive and shorter than the join timeout")
	}

	if c.Presence.StaleThreshold <= 0 {
		return fmt.Errorf("stale threshold must be positive")
	}

	if c.Geofence.RadiusMeters <= 0 {
		return fmt.Errorf("geofence radius must be positive")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	// Split by comma
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
