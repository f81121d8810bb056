// Package config loads, merges, and validates coordinator configuration from
// defaults and environment variables.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	App            AppConfig
	Coordinator    CoordinatorConfig
	Bottleneck     BottleneckConfig
	Reader         ReaderConfig
	MQTT           MQTTConfig
	Redis          RedisConfig
	CircuitBreaker CircuitBreakerConfig
}

// AppConfig holds process-level configuration.
type AppConfig struct {
	Name            string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// CoordinatorConfig configures the worker-pool coordinator.
type CoordinatorConfig struct {
	Name            string
	MaxWorkers      int
	ShutdownTimeout time.Duration
	// StopGraceWindow is the pause Stop takes right after signalling
	// cancellation, before it starts waiting for workers, so in-flight
	// receives can unwind.
	StopGraceWindow time.Duration
}

// BottleneckConfig configures the fair read-admission gate.
type BottleneckConfig struct {
	MaxReadParallelism int
}

// ReaderConfig configures the per-worker message reader loop.
type ReaderConfig struct {
	// QueueAddress is the transport address readers receive from.
	QueueAddress string
	// IdleBackoff is slept when a reader finds no message and is not yet
	// safe to remove.
	IdleBackoff time.Duration
}

// MQTTConfig configures the MQTT-backed transport.
type MQTTConfig struct {
	Brokers        []string
	ClientID       string
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	PublishTopic   string
	SubscribeTopic string
}

// RedisConfig configures the Redis Streams-backed transport.
type RedisConfig struct {
	Addresses     []string
	Password      string
	DB            int
	StreamName    string
	ConsumerGroup string
	BlockTime     time.Duration
	BatchSize     int64
}

// CircuitBreakerConfig configures the breaker wrapped around message dispatch.
type CircuitBreakerConfig struct {
	Enabled                bool
	ErrorThreshold         float64
	SuccessThreshold       int
	Timeout                time.Duration
	MaxConcurrentCalls     int
	RequestVolumeThreshold int
}

// Load builds a Config from defaults overlaid with environment variables,
// then validates the result.
func Load() (*Config, error) {
	cfg := GetDefaults()
	LoadFromEnvironment(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
