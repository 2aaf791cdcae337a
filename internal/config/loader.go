package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func Load(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyRuleDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 10*time.Second)
	viper.SetDefault("server.write_timeout", 10*time.Second)

	viper.SetDefault("logging.level", "info")

	viper.SetDefault("confirmation.max_attempts", 5)
	viper.SetDefault("confirmation.retry_base_delay", 30*time.Second)
	viper.SetDefault("confirmation.timeout", 300*time.Second)
	viper.SetDefault("confirmation.sweep_interval", 10*time.Second)
	viper.SetDefault("confirmation.purge_after", 24*time.Hour)
	viper.SetDefault("confirmation.queue_size", 256)

	viper.SetDefault("notification.max_retries", 3)
	viper.SetDefault("notification.retry_interval", 30*time.Second)
	viper.SetDefault("notification.poll_interval", 5*time.Second)
	viper.SetDefault("notification.transport.timeout", 15*time.Second)
	viper.SetDefault("notification.transport.fallback_path", "notifications.jsonl")

	viper.SetDefault("monitor.poll_interval", 30*time.Second)
	viper.SetDefault("monitor.error_backoff", 60*time.Second)
	viper.SetDefault("monitor.fetch_timeout", 10*time.Second)

	viper.SetDefault("verification.max_payment_age", time.Hour)
	viper.SetDefault("verification.proof_max_age", 24*time.Hour)
	viper.SetDefault("verification.duplicate_ttl", 72*time.Hour)
	viper.SetDefault("verification.provider_timeout", 15*time.Second)

	viper.SetDefault("audit.path", "payment_confirmations.jsonl")

	viper.SetDefault("circuit_breaker.enabled", true)
	viper.SetDefault("circuit_breaker.max_requests", 3)
	viper.SetDefault("circuit_breaker.interval", 60*time.Second)
	viper.SetDefault("circuit_breaker.timeout", 60*time.Second)
	viper.SetDefault("circuit_breaker.failure_ratio", 0.5)
	viper.SetDefault("circuit_breaker.min_requests", 3)
}

func bindEnvVariables() {
	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	viper.BindEnv("broker.kafka.enabled", "BROKER_KAFKA_ENABLED")
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.audit_topic", "BROKER_KAFKA_AUDIT_TOPIC")

	viper.BindEnv("monitor.status_url", "MONITOR_STATUS_URL")

	viper.BindEnv("notification.admin_email", "NOTIFICATION_ADMIN_EMAIL")
	viper.BindEnv("notification.from_email", "NOTIFICATION_FROM_EMAIL")
	viper.BindEnv("notification.transport.primary_url", "NOTIFICATION_TRANSPORT_PRIMARY_URL")
	viper.BindEnv("notification.transport.primary_key", "NOTIFICATION_TRANSPORT_PRIMARY_KEY")
	viper.BindEnv("notification.transport.secondary_url", "NOTIFICATION_TRANSPORT_SECONDARY_URL")
	viper.BindEnv("notification.transport.secondary_key", "NOTIFICATION_TRANSPORT_SECONDARY_KEY")

	viper.BindEnv("verification.charge_api_url", "VERIFICATION_CHARGE_API_URL")
	viper.BindEnv("verification.charge_api_key", "VERIFICATION_CHARGE_API_KEY")
	viper.BindEnv("verification.order_api_url", "VERIFICATION_ORDER_API_URL")
	viper.BindEnv("verification.order_api_key", "VERIFICATION_ORDER_API_KEY")
}

// applyRuleDefaults fills in the shipped rule set for any method the config
// file does not override.
func applyRuleDefaults(cfg *Config) {
	defaults := map[string]RuleConfig{
		"pix":           {AutoConfirmAfter: 5 * time.Minute, MaxWait: 24 * time.Hour, RequireProof: false},
		"stripe":        {AutoConfirmAfter: 1 * time.Minute, MaxWait: 2 * time.Hour, RequireProof: false},
		"paypal":        {AutoConfirmAfter: 2 * time.Minute, MaxWait: 4 * time.Hour, RequireProof: false},
		"bank_transfer": {AutoConfirmAfter: 60 * time.Minute, MaxWait: 72 * time.Hour, RequireProof: true},
	}

	if cfg.Monitor.Rules == nil {
		cfg.Monitor.Rules = make(map[string]RuleConfig, len(defaults))
	}
	for method, rule := range defaults {
		if _, ok := cfg.Monitor.Rules[method]; !ok {
			cfg.Monitor.Rules[method] = rule
		}
	}
}
