package config

import "time"

const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
	DefaultEnvironment = "development"
	DefaultAPIPrefix   = "/api/v1"
	DefaultLogLevel    = "info"

	DefaultRateLimitPerMinute = 60

	DefaultFuzzyThreshold = 0.8

	DefaultMaxRows      = 1_000_000
	DefaultMaxCostUnits = 100.0

	DefaultQuotaDailyLimit = 1000.0

	DefaultQueryTimeout = 60 * time.Second

	DefaultMaxQueryLength = 2000

	DefaultResponseFormat = "mcp_standard"

	DefaultCORSMaxAge = 300
)

var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8080",
}
