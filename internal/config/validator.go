package config

import (
	"fmt"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func Validate(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateConfirmation(cfg.Confirmation); err != nil {
		errors = append(errors, err)
	}

	if err := validateNotification(cfg.Notification); err != nil {
		errors = append(errors, err)
	}

	if err := validateMonitor(cfg.Monitor); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeout <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateConfirmation(cfg ConfirmationConfig) error {
	if cfg.MaxAttempts < 1 {
		return &ValidationError{
			Field:   "confirmation.max_attempts",
			Message: "max attempts must be at least 1",
		}
	}

	if cfg.RetryBaseDelay <= 0 {
		return &ValidationError{
			Field:   "confirmation.retry_base_delay",
			Message: "retry base delay must be positive",
		}
	}

	if cfg.Timeout <= 0 {
		return &ValidationError{
			Field:   "confirmation.timeout",
			Message: "confirmation timeout must be positive",
		}
	}

	if cfg.SweepInterval <= 0 {
		return &ValidationError{
			Field:   "confirmation.sweep_interval",
			Message: "sweep interval must be positive",
		}
	}

	if cfg.QueueSize < 1 {
		return &ValidationError{
			Field:   "confirmation.queue_size",
			Message: "queue size must be at least 1",
		}
	}

	return nil
}

func validateNotification(cfg NotificationConfig) error {
	if cfg.MaxRetries < 1 {
		return &ValidationError{
			Field:   "notification.max_retries",
			Message: "max retries must be at least 1",
		}
	}

	if cfg.RetryInterval <= 0 {
		return &ValidationError{
			Field:   "notification.retry_interval",
			Message: "retry interval must be positive",
		}
	}

	if cfg.PollInterval <= 0 {
		return &ValidationError{
			Field:   "notification.poll_interval",
			Message: "poll interval must be positive",
		}
	}

	return nil
}

func validateMonitor(cfg MonitorConfig) error {
	if cfg.PollInterval <= 0 {
		return &ValidationError{
			Field:   "monitor.poll_interval",
			Message: "poll interval must be positive",
		}
	}

	if cfg.ErrorBackoff < cfg.PollInterval {
		return &ValidationError{
			Field:   "monitor.error_backoff",
			Message: "error backoff must not be shorter than the poll interval",
		}
	}

	for method, rule := range cfg.Rules {
		if rule.AutoConfirmAfter <= 0 {
			return &ValidationError{
				Field:   fmt.Sprintf("monitor.rules.%s.auto_confirm_after", method),
				Message: "auto confirm delay must be positive",
			}
		}
		if rule.MaxWait <= rule.AutoConfirmAfter {
			return &ValidationError{
				Field:   fmt.Sprintf("monitor.rules.%s.max_wait", method),
				Message: "max wait must exceed the auto confirm delay",
			}
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	if !cfg.Kafka.Enabled {
		return nil
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one broker is required when kafka audit is enabled",
		}
	}

	if cfg.Kafka.AuditTopic == "" {
		return &ValidationError{
			Field:   "broker.kafka.audit_topic",
			Message: "audit topic is required when kafka audit is enabled",
		}
	}

	return nil
}
