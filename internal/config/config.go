package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Confirmation   ConfirmationConfig   `mapstructure:"confirmation"`
	Notification   NotificationConfig   `mapstructure:"notification"`
	Monitor        MonitorConfig        `mapstructure:"monitor"`
	Verification   VerificationConfig   `mapstructure:"verification"`
	Audit          AuditConfig          `mapstructure:"audit"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type ServerConfig struct {
	Port         int             `mapstructure:"port"`
	ReadTimeout  time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type DatabaseConfig struct {
	Redis   RedisConfig   `mapstructure:"redis"`
	MongoDB MongoDBConfig `mapstructure:"mongodb"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Brokers    []string `mapstructure:"brokers"`
	AuditTopic string   `mapstructure:"audit_topic"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// ConfirmationConfig tunes the confirmation job store. Retry delay grows as
// retry_base_delay * 2^attempts; timeout expiry is independent of attempts.
type ConfirmationConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	Timeout        time.Duration `mapstructure:"timeout"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	PurgeAfter     time.Duration `mapstructure:"purge_after"`
	QueueSize      int           `mapstructure:"queue_size"`
}

// NotificationConfig tunes the dispatcher. Retries are fixed-interval, not
// exponential: notification failures are transport hiccups, confirmation
// failures are provider outages, and the two policies stay separate.
type NotificationConfig struct {
	MaxRetries    int             `mapstructure:"max_retries"`
	RetryInterval time.Duration   `mapstructure:"retry_interval"`
	PollInterval  time.Duration   `mapstructure:"poll_interval"`
	AdminEmail    string          `mapstructure:"admin_email"`
	FromEmail     string          `mapstructure:"from_email"`
	Transport     TransportConfig `mapstructure:"transport"`
}

type TransportConfig struct {
	PrimaryURL   string        `mapstructure:"primary_url"`
	PrimaryKey   string        `mapstructure:"primary_key"`
	SecondaryURL string        `mapstructure:"secondary_url"`
	SecondaryKey string        `mapstructure:"secondary_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FallbackPath string        `mapstructure:"fallback_path"`
}

type MonitorConfig struct {
	PollInterval time.Duration         `mapstructure:"poll_interval"`
	ErrorBackoff time.Duration         `mapstructure:"error_backoff"`
	StatusURL    string                `mapstructure:"status_url"`
	FetchTimeout time.Duration         `mapstructure:"fetch_timeout"`
	Rules        map[string]RuleConfig `mapstructure:"rules"`
}

type RuleConfig struct {
	AutoConfirmAfter time.Duration `mapstructure:"auto_confirm_after"`
	MaxWait          time.Duration `mapstructure:"max_wait"`
	RequireProof     bool          `mapstructure:"require_proof"`
}

type VerificationConfig struct {
	MaxPaymentAge   time.Duration `mapstructure:"max_payment_age"`
	ProofMaxAge     time.Duration `mapstructure:"proof_max_age"`
	FraudExpression string        `mapstructure:"fraud_expression"`
	DuplicateTTL    time.Duration `mapstructure:"duplicate_ttl"`
	ChargeAPIURL    string        `mapstructure:"charge_api_url"`
	ChargeAPIKey    string        `mapstructure:"charge_api_key"`
	OrderAPIURL     string        `mapstructure:"order_api_url"`
	OrderAPIKey     string        `mapstructure:"order_api_key"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
}

type AuditConfig struct {
	Path string `mapstructure:"path"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}
