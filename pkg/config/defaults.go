package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "sentinel"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort = "8080"

	DefaultSignatureMaxSkew = 5 * time.Minute

	DefaultSlotMinutes = 30
	DefaultHorizonDays = 30
	DefaultOpenHour    = 9
	DefaultOpenMinute  = 30
	DefaultCloseHour   = 18
	DefaultCloseMinute = 0

	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 250 * time.Millisecond

	DefaultApprovalTopic = "sentinel.approvals"

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 8 * 1024 // agent command bodies are small by contract

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultLogLevel = "info"
)
