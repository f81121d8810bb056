package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFromEnvironment overlays environment variables onto cfg.
func LoadFromEnvironment(cfg *Config) {
	applyAppEnv(cfg)
	applyCoordinatorEnv(cfg)
	applyBottleneckEnv(cfg)
	applyReaderEnv(cfg)
	applyMQTTEnv(cfg)
	applyRedisEnv(cfg)
	applyCircuitBreakerEnv(cfg)
}

func applyAppEnv(cfg *Config) {
	if val := os.Getenv("APP_NAME"); val != "" {
		cfg.App.Name = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.App.LogLevel = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.App.LogFormat = val
	}
	if val := getEnvDuration("APP_SHUTDOWN_TIMEOUT"); val != 0 {
		cfg.App.ShutdownTimeout = val
	}
}

func applyCoordinatorEnv(cfg *Config) {
	if val := os.Getenv("COORDINATOR_NAME"); val != "" {
		cfg.Coordinator.Name = val
	}
	if val := getEnvInt("COORDINATOR_MAX_WORKERS"); val > 0 {
		cfg.Coordinator.MaxWorkers = val
	}
	if val := getEnvDuration("COORDINATOR_SHUTDOWN_TIMEOUT"); val != 0 {
		cfg.Coordinator.ShutdownTimeout = val
	}
	if val := getEnvDuration("COORDINATOR_STOP_GRACE_WINDOW"); val != 0 {
		cfg.Coordinator.StopGraceWindow = val
	}
}

func applyBottleneckEnv(cfg *Config) {
	if val := getEnvInt("BOTTLENECK_MAX_READ_PARALLELISM"); val > 0 {
		cfg.Bottleneck.MaxReadParallelism = val
	}
}

func applyReaderEnv(cfg *Config) {
	if val := os.Getenv("READER_QUEUE_ADDRESS"); val != "" {
		cfg.Reader.QueueAddress = val
	}
	if val := getEnvDuration("READER_IDLE_BACKOFF"); val != 0 {
		cfg.Reader.IdleBackoff = val
	}
}

func applyMQTTEnv(cfg *Config) {
	if val := getEnvStringSlice("MQTT_BROKERS"); len(val) > 0 {
		cfg.MQTT.Brokers = val
	}
	if val := os.Getenv("MQTT_CLIENT_ID"); val != "" {
		cfg.MQTT.ClientID = val
	}
	if os.Getenv("MQTT_QOS") != "" {
		if val := getEnvInt("MQTT_QOS"); val >= 0 && val <= 2 {
			cfg.MQTT.QoS = byte(val)
		}
	}
	if val := getEnvDuration("MQTT_KEEP_ALIVE"); val != 0 {
		cfg.MQTT.KeepAlive = val
	}
	if val := getEnvDuration("MQTT_CONNECT_TIMEOUT"); val != 0 {
		cfg.MQTT.ConnectTimeout = val
	}
	if val := os.Getenv("MQTT_PUBLISH_TOPIC"); val != "" {
		cfg.MQTT.PublishTopic = val
	}
	if val := os.Getenv("MQTT_SUBSCRIBE_TOPIC"); val != "" {
		cfg.MQTT.SubscribeTopic = val
	}
}

func applyRedisEnv(cfg *Config) {
	if val := getEnvStringSlice("REDIS_ADDRESSES"); len(val) > 0 {
		cfg.Redis.Addresses = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := getEnvInt("REDIS_DB"); val >= 0 {
		cfg.Redis.DB = val
	}
	if val := os.Getenv("REDIS_STREAM"); val != "" {
		cfg.Redis.StreamName = val
	}
	if val := os.Getenv("REDIS_CONSUMER_GROUP"); val != "" {
		cfg.Redis.ConsumerGroup = val
	}
	if val := getEnvDuration("REDIS_BLOCK_TIME"); val != 0 {
		cfg.Redis.BlockTime = val
	}
	if val := getEnvInt("REDIS_BATCH_SIZE"); val > 0 {
		cfg.Redis.BatchSize = int64(val)
	}
}

func applyCircuitBreakerEnv(cfg *Config) {
	if val := os.Getenv("CIRCUIT_BREAKER_ENABLED"); val != "" {
		cfg.CircuitBreaker.Enabled = strings.EqualFold(val, "true")
	}
	if val := getEnvFloat("CIRCUIT_BREAKER_ERROR_THRESHOLD"); val > 0 {
		cfg.CircuitBreaker.ErrorThreshold = val
	}
	if val := getEnvInt("CIRCUIT_BREAKER_SUCCESS_THRESHOLD"); val > 0 {
		cfg.CircuitBreaker.SuccessThreshold = val
	}
	if val := getEnvDuration("CIRCUIT_BREAKER_TIMEOUT"); val != 0 {
		cfg.CircuitBreaker.Timeout = val
	}
	if val := getEnvInt("CIRCUIT_BREAKER_MAX_CONCURRENT_CALLS"); val > 0 {
		cfg.CircuitBreaker.MaxConcurrentCalls = val
	}
	if val := getEnvInt("CIRCUIT_BREAKER_REQUEST_VOLUME_THRESHOLD"); val > 0 {
		cfg.CircuitBreaker.RequestVolumeThreshold = val
	}
}

func getEnvInt(key string) int {
	val := os.Getenv(key)
	if val == "" {
		return 0
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return n
}

func getEnvFloat(key string) float64 {
	val := os.Getenv(key)
	if val == "" {
		return 0
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0
	}
	return f
}

func getEnvDuration(key string) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return 0
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0
	}
	return d
}

func getEnvStringSlice(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
