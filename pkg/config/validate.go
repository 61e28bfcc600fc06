package config

import (
	"fmt"
	"strings"
)

// ValidateCore ensures critical configuration is present.
func (c *Config) ValidateCore() error {
	var missing []string

	if strings.TrimSpace(c.Database.URL) == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if strings.TrimSpace(c.Redis.URL) == "" {
		missing = append(missing, "REDIS_URL")
	}
	if strings.TrimSpace(c.Server.Port) == "" {
		missing = append(missing, "SERVER_PORT")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" || c.JWT.Secret == "change-this-secret" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Events.Sink == "kafka" && len(c.Events.KafkaBrokers) == 0 {
		missing = append(missing, "KAFKA_BROKERS")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Engine.OperationTimeout <= 0 {
		return fmt.Errorf("ENGINE_OPERATION_TIMEOUT must be positive")
	}
	if c.OTP.Digits != 6 && c.OTP.Digits != 8 {
		return fmt.Errorf("OTP_DIGITS must be 6 or 8")
	}
	if c.OTP.MaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be at least 1")
	}
	switch c.Events.Sink {
	case "redis", "kafka", "none":
	default:
		return fmt.Errorf("EVENTS_SINK must be one of redis, kafka, none")
	}

	return nil
}
