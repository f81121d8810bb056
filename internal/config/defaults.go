package config

import (
	"fmt"
	"os"
	"runtime"
	"time"
)

// GetDefaults returns a Config with all default values.
func GetDefaults() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		App:            defaultApp(),
		Coordinator:    defaultCoordinator(),
		Bottleneck:     defaultBottleneck(),
		Reader:         defaultReader(),
		MQTT:           defaultMQTT(hostname),
		Redis:          defaultRedis(),
		CircuitBreaker: defaultCircuitBreaker(),
	}
}

func defaultApp() AppConfig {
	return AppConfig{
		Name:            "workers-coordinator",
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 30 * time.Second,
	}
}

func defaultCoordinator() CoordinatorConfig {
	return CoordinatorConfig{
		Name:            "default",
		MaxWorkers:      runtime.NumCPU() * 2,
		ShutdownTimeout: 30 * time.Second,
		StopGraceWindow: 1 * time.Second,
	}
}

func defaultBottleneck() BottleneckConfig {
	return BottleneckConfig{
		MaxReadParallelism: runtime.NumCPU(),
	}
}

func defaultReader() ReaderConfig {
	return ReaderConfig{
		QueueAddress: "coordinator-queue",
		IdleBackoff:  50 * time.Millisecond,
	}
}

func defaultMQTT(hostname string) MQTTConfig {
	return MQTTConfig{
		Brokers:        []string{"tcp://localhost:1883"},
		ClientID:       fmt.Sprintf("workers-coordinator-%s-%d", hostname, os.Getpid()),
		QoS:            1,
		KeepAlive:      30 * time.Second,
		ConnectTimeout: 10 * time.Second,
		PublishTopic:   "coordinator/work",
		SubscribeTopic: "coordinator/work",
	}
}

func defaultRedis() RedisConfig {
	return RedisConfig{
		Addresses:     []string{"localhost:6379"},
		DB:            0,
		StreamName:    "coordinator-stream",
		ConsumerGroup: "coordinator-group",
		BlockTime:     5 * time.Second,
		BatchSize:     10,
	}
}

func defaultCircuitBreaker() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:                true,
		ErrorThreshold:         50.0,
		SuccessThreshold:       5,
		Timeout:                30 * time.Second,
		MaxConcurrentCalls:     100,
		RequestVolumeThreshold: 20,
	}
}
