package config

import "fmt"

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if err := validateApp(c); err != nil {
		return err
	}
	if err := validateCoordinator(c); err != nil {
		return err
	}
	if err := validateBottleneck(c); err != nil {
		return err
	}
	if err := validateMQTT(c); err != nil {
		return err
	}
	if err := validateRedis(c); err != nil {
		return err
	}
	if err := validateCircuitBreaker(c); err != nil {
		return err
	}
	return nil
}

func validateApp(c *Config) error {
	if c.App.Name == "" {
		return fmt.Errorf("app name cannot be empty")
	}
	if !isValidLogLevel(c.App.LogLevel) {
		return fmt.Errorf("invalid log level: %s", c.App.LogLevel)
	}
	if !isValidLogFormat(c.App.LogFormat) {
		return fmt.Errorf("invalid log format: %s", c.App.LogFormat)
	}
	if c.App.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "trace", "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "json", "text":
		return true
	default:
		return false
	}
}

func validateCoordinator(c *Config) error {
	if c.Coordinator.MaxWorkers < 0 {
		return fmt.Errorf("coordinator max workers must be non-negative")
	}
	if c.Coordinator.ShutdownTimeout <= 0 {
		return fmt.Errorf("coordinator shutdown timeout must be positive")
	}
	if c.Coordinator.StopGraceWindow < 0 {
		return fmt.Errorf("coordinator stop grace window must be non-negative")
	}
	return nil
}

func validateBottleneck(c *Config) error {
	if c.Bottleneck.MaxReadParallelism <= 0 {
		return fmt.Errorf("bottleneck max read parallelism must be positive")
	}
	return nil
}

func validateMQTT(c *Config) error {
	if len(c.MQTT.Brokers) == 0 {
		return fmt.Errorf("at least one mqtt broker is required")
	}
	if c.MQTT.ClientID == "" {
		return fmt.Errorf("mqtt client id cannot be empty")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1, or 2")
	}
	return nil
}

func validateRedis(c *Config) error {
	if len(c.Redis.Addresses) == 0 {
		return fmt.Errorf("at least one redis address is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis db must be non-negative")
	}
	if c.Redis.StreamName == "" {
		return fmt.Errorf("redis stream name cannot be empty")
	}
	if c.Redis.ConsumerGroup == "" {
		return fmt.Errorf("redis consumer group cannot be empty")
	}
	return nil
}

func validateCircuitBreaker(c *Config) error {
	if !c.CircuitBreaker.Enabled {
		return nil
	}
	if c.CircuitBreaker.ErrorThreshold <= 0 || c.CircuitBreaker.ErrorThreshold > 100 {
		return fmt.Errorf("circuit breaker error threshold must be between 0 and 100")
	}
	if c.CircuitBreaker.SuccessThreshold <= 0 {
		return fmt.Errorf("circuit breaker success threshold must be positive")
	}
	if c.CircuitBreaker.MaxConcurrentCalls <= 0 {
		return fmt.Errorf("circuit breaker max concurrent calls must be positive")
	}
	if c.CircuitBreaker.RequestVolumeThreshold <= 0 {
		return fmt.Errorf("circuit breaker request volume threshold must be positive")
	}
	return nil
}
