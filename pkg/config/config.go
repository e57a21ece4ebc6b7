package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"sentinel/pkg/client"
	"sentinel/pkg/logger"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port string

	// AgentSecrets maps upper-cased audit tier names to their verification
	// secret. DefaultAgentSecret is the fallback when no tier entry exists.
	AgentSecrets       map[string]string
	DefaultAgentSecret string
	SignatureMaxSkew   time.Duration

	SlotMinutes int
	HorizonDays int
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int

	RetryAttempts int
	RetryDelay    time.Duration

	ApprovalTopic string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		AgentSecrets:       loadTierSecrets(),
		DefaultAgentSecret: getEnvStr(EnvAgentSecret, ""),
		SignatureMaxSkew:   getEnvDuration(EnvSignatureMaxSkew, DefaultSignatureMaxSkew),

		SlotMinutes: getEnvNum(EnvSlotMinutes, DefaultSlotMinutes),
		HorizonDays: getEnvNum(EnvHorizonDays, DefaultHorizonDays),
		OpenHour:    getEnvNum(EnvOpenHour, DefaultOpenHour),
		OpenMinute:  getEnvNum(EnvOpenMinute, DefaultOpenMinute),
		CloseHour:   getEnvNum(EnvCloseHour, DefaultCloseHour),
		CloseMinute: getEnvNum(EnvCloseMinute, DefaultCloseMinute),

		RetryAttempts: getEnvNum(EnvRetryAttempts, DefaultRetryAttempts),
		RetryDelay:    getEnvDuration(EnvRetryDelay, DefaultRetryDelay),

		ApprovalTopic: getEnvStr(EnvApprovalTopic, DefaultApprovalTopic),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// loadTierSecrets scans the environment once at startup so the verifier
// never reads ambient state.
func loadTierSecrets() map[string]string {
	secrets := make(map[string]string)
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || value == "" {
			continue
		}
		tier, found := strings.CutPrefix(key, EnvAgentSecretPrefix)
		if !found || tier == "" {
			continue
		}
		secrets[strings.ToUpper(tier)] = value
	}
	return secrets
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errs = append(errs, "MongoURI cannot be empty")
	} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errs = append(errs, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", cfg.MongoURI))
	}
	if cfg.MongoDatabaseName == "" {
		errs = append(errs, "MongoDatabaseName cannot be empty")
	}
	if cfg.MongoConnTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}

	if cfg.SignatureMaxSkew <= 0 {
		errs = append(errs, fmt.Sprintf("SignatureMaxSkew must be positive, got: %s", cfg.SignatureMaxSkew))
	}

	if cfg.SlotMinutes <= 0 || cfg.SlotMinutes > 24*60 {
		errs = append(errs, fmt.Sprintf("SlotMinutes must be between 1 and 1440, got: %d", cfg.SlotMinutes))
	}
	if cfg.HorizonDays <= 0 {
		errs = append(errs, fmt.Sprintf("HorizonDays must be positive, got: %d", cfg.HorizonDays))
	}
	if cfg.OpenHour < 0 || cfg.OpenHour > 23 || cfg.CloseHour < 0 || cfg.CloseHour > 23 {
		errs = append(errs, fmt.Sprintf("business hours must be within 0-23, got open=%d close=%d", cfg.OpenHour, cfg.CloseHour))
	}
	if cfg.OpenMinute < 0 || cfg.OpenMinute > 59 || cfg.CloseMinute < 0 || cfg.CloseMinute > 59 {
		errs = append(errs, fmt.Sprintf("business minutes must be within 0-59, got open=%d close=%d", cfg.OpenMinute, cfg.CloseMinute))
	}
	openAt := cfg.OpenHour*60 + cfg.OpenMinute
	closeAt := cfg.CloseHour*60 + cfg.CloseMinute
	if closeAt <= openAt {
		errs = append(errs, fmt.Sprintf("close time must be after open time, got open=%02d:%02d close=%02d:%02d",
			cfg.OpenHour, cfg.OpenMinute, cfg.CloseHour, cfg.CloseMinute))
	}

	if cfg.RetryAttempts < 1 {
		errs = append(errs, fmt.Sprintf("RetryAttempts must be at least 1, got: %d", cfg.RetryAttempts))
	}
	if cfg.RetryDelay < 0 {
		errs = append(errs, fmt.Sprintf("RetryDelay cannot be negative, got: %s", cfg.RetryDelay))
	}

	if cfg.ApprovalTopic == "" {
		errs = append(errs, "ApprovalTopic cannot be empty")
	}

	if cfg.RateLimitRequests <= 0 {
		errs = append(errs, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.RateLimitWindow <= 0 {
		errs = append(errs, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errs = append(errs, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.MaxRequestSize <= 0 {
		errs = append(errs, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReadTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if len(errs) > 0 {
		msg := "Configuration validation failed:\n"
		for i, e := range errs {
			msg += fmt.Sprintf("  %d. %s\n", i+1, e)
		}
		return fmt.Errorf("%s", msg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"port", cfg.Port,
		"default_agent_secret_set", cfg.DefaultAgentSecret != "",
		"tier_secrets_configured", len(cfg.AgentSecrets),
		"signature_max_skew", cfg.SignatureMaxSkew,
		"slot_minutes", cfg.SlotMinutes,
		"horizon_days", cfg.HorizonDays,
		"open_time", fmt.Sprintf("%02d:%02d", cfg.OpenHour, cfg.OpenMinute),
		"close_time", fmt.Sprintf("%02d:%02d", cfg.CloseHour, cfg.CloseMinute),
		"retry_attempts", cfg.RetryAttempts,
		"retry_delay", cfg.RetryDelay,
		"approval_topic", cfg.ApprovalTopic,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown()
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
