package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Server
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Environment string `json:"environment"`
	APIPrefix   string `json:"api_prefix"`
	LogLevel    string `json:"log_level"`

	// CORS
	CORSOrigins []string `json:"cors_origins"`

	// Auth
	APIKeyHeader string   `json:"api_key_header"`
	APIKeys      []string `json:"api_keys"`
	EnableAuth   bool     `json:"enable_auth"`

	// Rate Limiting
	RateLimitPerMinute int `json:"rate_limit_per_minute"`

	// Catalog
	CatalogPath string `json:"catalog_path"`

	// Planner
	FuzzyThreshold float64 `json:"fuzzy_threshold"`
	StrictJoins    bool    `json:"strict_joins"`

	// Safety
	MaxRows      int64   `json:"max_rows"`
	MaxCostUnits float64 `json:"max_cost_units"`

	// Quota
	QuotaBackend     string  `json:"quota_backend"` // "memory" | "postgres"
	QuotaPostgresDSN string  `json:"quota_postgres_dsn"`
	QuotaDailyLimit  float64 `json:"quota_daily_limit"`

	// Warehouse
	WarehouseBackend string `json:"warehouse_backend"` // "rest" | "bigquery"
	WarehouseURL     string `json:"warehouse_url"`
	WarehouseToken   string `json:"warehouse_token"`

	// BigQuery
	GCPProjectID                 string `json:"gcp_project_id"`
	GoogleApplicationCredentials string `json:"google_application_credentials"`

	// Events
	EventsBackend         string   `json:"events_backend"` // "warehouse" | "elasticsearch"
	ElasticsearchAddrs    []string `json:"elasticsearch_addrs"`
	ElasticsearchUser     string   `json:"elasticsearch_user"`
	ElasticsearchPassword string   `json:"elasticsearch_password"`

	// SQL generation
	UseLLM           bool   `json:"use_llm"`
	AnthropicAPIKey  string `json:"anthropic_api_key"`
	AnthropicBaseURL string `json:"anthropic_base_url"`
	AnthropicModel   string `json:"anthropic_model"`

	// Results
	DefaultResponseFormat string `json:"default_response_format"`

	// Audit
	EnableAudit bool `json:"enable_audit"`
}

func Load() (*Config, error) {
	cfg := &Config{
		Host:                  DefaultHost,
		Port:                  DefaultPort,
		Environment:           DefaultEnvironment,
		APIPrefix:             DefaultAPIPrefix,
		LogLevel:              DefaultLogLevel,
		CORSOrigins:           DefaultCORSOrigins,
		APIKeyHeader:          "X-API-Key",
		EnableAuth:            true,
		RateLimitPerMinute:    DefaultRateLimitPerMinute,
		FuzzyThreshold:        DefaultFuzzyThreshold,
		MaxRows:               DefaultMaxRows,
		MaxCostUnits:          DefaultMaxCostUnits,
		QuotaBackend:          "memory",
		QuotaDailyLimit:       DefaultQuotaDailyLimit,
		WarehouseBackend:      "rest",
		EventsBackend:         "warehouse",
		DefaultResponseFormat: DefaultResponseFormat,
	}

	// Load from JSON config file if specified
	if path := getEnv("QUERYHAWK_CONFIG", ""); path != "" {
		if err := loadJSON(path, cfg); err != nil {
			return nil, err
		}
	}

	// Environment overrides
	applyEnvOverrides(cfg)

	return cfg, nil
}

func loadJSON(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := getEnv("QUERYHAWK_HOST", ""); v != "" {
		cfg.Host = v
	}
	if v := getEnv("QUERYHAWK_PORT", ""); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := getEnv("QUERYHAWK_ENV", ""); v != "" {
		cfg.Environment = v
	}
	if v := getEnv("QUERYHAWK_LOG_LEVEL", ""); v != "" {
		cfg.LogLevel = v
	}
	if v := getEnv("QUERYHAWK_API_KEYS", ""); v != "" {
		cfg.APIKeys = strings.Split(v, ",")
	}
	if v := getEnv("QUERYHAWK_CATALOG", ""); v != "" {
		cfg.CatalogPath = v
	}
	if v := getEnv("QUERYHAWK_FUZZY_THRESHOLD", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.FuzzyThreshold = f
		}
	}
	if v := getEnv("QUERYHAWK_STRICT_JOINS", ""); v != "" {
		cfg.StrictJoins = isTrue(v)
	}
	if v := getEnv("QUERYHAWK_MAX_ROWS", ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxRows = n
		}
	}
	if v := getEnv("QUERYHAWK_MAX_COST_UNITS", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MaxCostUnits = f
		}
	}
	if v := getEnv("QUERYHAWK_QUOTA_BACKEND", ""); v != "" {
		cfg.QuotaBackend = v
	}
	if v := getEnv("QUERYHAWK_QUOTA_POSTGRES_DSN", ""); v != "" {
		cfg.QuotaPostgresDSN = v
	}
	if v := getEnv("QUERYHAWK_WAREHOUSE_BACKEND", ""); v != "" {
		cfg.WarehouseBackend = v
	}
	if v := getEnv("QUERYHAWK_WAREHOUSE_URL", ""); v != "" {
		cfg.WarehouseURL = v
	}
	if v := getEnv("QUERYHAWK_WAREHOUSE_TOKEN", ""); v != "" {
		cfg.WarehouseToken = v
	}
	if v := getEnv("GCP_PROJECT_ID", ""); v != "" {
		cfg.GCPProjectID = v
	}
	if v := getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""); v != "" {
		cfg.GoogleApplicationCredentials = v
	}
	if v := getEnv("QUERYHAWK_EVENTS_BACKEND", ""); v != "" {
		cfg.EventsBackend = v
	}
	if v := getEnv("ELASTICSEARCH_ADDRS", ""); v != "" {
		cfg.ElasticsearchAddrs = strings.Split(v, ",")
	}
	if v := getEnv("ELASTICSEARCH_USER", ""); v != "" {
		cfg.ElasticsearchUser = v
	}
	if v := getEnv("ELASTICSEARCH_PASSWORD", ""); v != "" {
		cfg.ElasticsearchPassword = v
	}
	if v := getEnv("QUERYHAWK_USE_LLM", ""); v != "" {
		cfg.UseLLM = isTrue(v)
	}
	if v := getEnv("ANTHROPIC_API_KEY", ""); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := getEnv("ANTHROPIC_BASE_URL", ""); v != "" {
		cfg.AnthropicBaseURL = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		if r, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitPerMinute = r
		}
	}
	if v := getEnv("ENABLE_AUTH", ""); v != "" {
		cfg.EnableAuth = isTrue(v)
	}
	if v := getEnv("ENABLE_AUDIT", ""); v != "" {
		cfg.EnableAudit = isTrue(v)
	}
}

func isTrue(v string) bool {
	return v == "true" || v == "1"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
