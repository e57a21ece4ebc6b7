package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	// EnvAgentSecret is the default verification secret; tier-specific
	// secrets are read from EnvAgentSecretPrefix + upper-cased tier name.
	EnvAgentSecret       = "SENTINEL_AGENT_TOKEN"
	EnvAgentSecretPrefix = "SENTINEL_AGENT_TOKEN_"
	EnvSignatureMaxSkew  = "SENTINEL_SIGNATURE_MAX_SKEW"

	EnvSlotMinutes = "SENTINEL_SLOT_MINUTES"
	EnvHorizonDays = "SENTINEL_LOOKAHEAD_DAYS"
	EnvOpenHour    = "SENTINEL_OPEN_HOUR"
	EnvOpenMinute  = "SENTINEL_OPEN_MINUTE"
	EnvCloseHour   = "SENTINEL_CLOSE_HOUR"
	EnvCloseMinute = "SENTINEL_CLOSE_MINUTE"

	EnvRetryAttempts = "SENTINEL_RETRY_ATTEMPTS"
	EnvRetryDelay    = "SENTINEL_RETRY_DELAY"

	EnvApprovalTopic = "SENTINEL_APPROVAL_TOPIC"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)
