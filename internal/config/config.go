// Package config provides configuration management for the miner.
// It handles loading configuration from environment variables with sensible defaults;
// command-line flags are applied on top by the caller.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the global configuration for the miner
type Config struct {
	// Service identification
	ServiceName string
	Version     string

	// Node connection
	NodeHost       string
	NodePort       int
	RequestTimeout time.Duration

	// Mining
	MinerAddress       string
	Threads            int
	PollInterval       time.Duration
	RetryDelay         time.Duration
	StaleCheckInterval uint64
	MaxNonce           uint64
	HashrateInterval   time.Duration
	ShutdownTimeout    time.Duration

	// Kafka event publishing (disabled when no brokers are set)
	KafkaBrokers     []string
	KafkaTopicPrefix string

	// Telemetry sinks (each disabled when its URL is empty)
	RedisURL     string
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables with sensible defaults.
// It does not validate; call Validate after flags have been applied.
func Load() *Config {
	return &Config{
		// Service defaults
		ServiceName: getEnv("SERVICE_NAME", "gominer"),
		Version:     getEnv("VERSION", "dev"),

		// Node defaults
		NodeHost:       getEnv("NODE_HOST", "localhost"),
		NodePort:       getEnvInt("NODE_PORT", 8000),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),

		// Mining defaults
		MinerAddress:       getEnv("MINER_ADDRESS", ""),
		Threads:            getEnvInt("MINER_THREADS", 1),
		PollInterval:       getEnvDuration("POLL_INTERVAL", 30*time.Second),
		RetryDelay:         getEnvDuration("RETRY_DELAY", 2*time.Second),
		StaleCheckInterval: getEnvUint("STALE_CHECK_INTERVAL", 4096),
		MaxNonce:           getEnvUint("MAX_NONCE", 100000000000),
		HashrateInterval:   getEnvDuration("HASHRATE_INTERVAL", 10*time.Second),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		// Kafka defaults
		KafkaBrokers:     getEnvSlice("KAFKA_BROKERS", nil),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", "miner"),

		// Telemetry defaults
		RedisURL:     getEnv("REDIS_URL", ""),
		InfluxURL:    getEnv("INFLUX_URL", ""),
		InfluxToken:  getEnv("INFLUX_TOKEN", ""),
		InfluxOrg:    getEnv("INFLUX_ORG", "gominer"),
		InfluxBucket: getEnv("INFLUX_BUCKET", "mining"),

		// Logging defaults
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Validate performs basic validation of configuration values
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("SERVICE_NAME cannot be empty")
	}

	if c.MinerAddress == "" {
		return fmt.Errorf("miner address is required (--address or MINER_ADDRESS)")
	}

	if c.NodeHost == "" {
		return fmt.Errorf("node host cannot be empty")
	}

	if c.NodePort <= 0 || c.NodePort > 65535 {
		return fmt.Errorf("node port must be between 1 and 65535")
	}

	if c.Threads < 1 {
		return fmt.Errorf("threads must be at least 1")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.StaleCheckInterval == 0 {
		return fmt.Errorf("STALE_CHECK_INTERVAL must be positive")
	}

	if c.MaxNonce < 2 {
		return fmt.Errorf("MAX_NONCE must be greater than 1")
	}

	return nil
}

// NodeURL returns the base URL of the node's HTTP API
func (c *Config) NodeURL() string {
	return fmt.Sprintf("http://%s:%d", c.NodeHost, c.NodePort)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvUint(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseUint(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
