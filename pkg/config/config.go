package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	OpenAI      OpenAIConfig
	OTEL        OTELConfig
	Correction  CorrectionConfig
	Connections []ConnectionConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	// Per client IP, on POST /api/v1/query
	QueryRateLimit  int
	QueryRateWindow time.Duration
}

// DatabaseConfig holds the configuration of the learned corrections store
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

// OpenAIConfig holds OpenAI configuration
type OpenAIConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	RateLimitRPM   int
	RateLimitBurst int
	Timeout        time.Duration
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Correction store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// CorrectionConfig tunes the query-correction engine
type CorrectionConfig struct {
	MaxRetries            int
	QueryTimeout          time.Duration
	MaxRows               int
	ExtremeValueThreshold float64
	EnableDiagnostics     bool
	EnableLearning        bool
	AllowWrite            bool
	SyncWorkers           int
	Store                 string
	SchemaCacheTTL        time.Duration
	CandidateLimit        int
}

// ConnectionConfig describes one user database
type ConnectionConfig struct {
	ID   string
	Kind string
	DSN  string
	// ReadOnly opens the connection with read-only sessions.
	ReadOnly bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	connections, err := parseConnections(getEnv("DB_CONNECTIONS", ""))
	if err != nil {
		return nil, err
	}
	allowWrite := getEnvAsBool("ALLOW_WRITE", false)
	for i := range connections {
		connections[i].ReadOnly = !allowWrite
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS"),
			QueryRateLimit:  getEnvAsInt("QUERY_RATE_LIMIT", 30),
			QueryRateWindow: getEnvAsDuration("QUERY_RATE_WINDOW", time.Minute),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "databaseguru"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			Model:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			RateLimitRPM:   getEnvAsInt("OPENAI_RATE_LIMIT_RPM", 60),
			RateLimitBurst: getEnvAsInt("OPENAI_RATE_LIMIT_BURST", 5),
			Timeout:        getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "databaseguru"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		Correction: CorrectionConfig{
			MaxRetries:            getEnvAsInt("MAX_RETRIES", 3),
			QueryTimeout:          getEnvAsDuration("QUERY_TIMEOUT", 30*time.Second),
			MaxRows:               getEnvAsInt("MAX_QUERY_ROWS", 1000),
			ExtremeValueThreshold: getEnvAsFloat("EXTREME_VALUE_THRESHOLD", 1e9),
			EnableDiagnostics:     getEnvAsBool("ENABLE_DIAGNOSTICS", true),
			EnableLearning:        getEnvAsBool("ENABLE_LEARNING", true),
			AllowWrite:            allowWrite,
			SyncWorkers:           getEnvAsInt("SYNC_WORKERS", 4),
			Store:                 strings.ToLower(getEnv("CORRECTION_STORE", StorePostgres)),
			SchemaCacheTTL:        getEnvAsDuration("SCHEMA_CACHE_TTL", 10*time.Minute),
			CandidateLimit:        getEnvAsInt("CORRECTION_CANDIDATE_LIMIT", 5),
		},
		Connections: connections,
	}

	if cfg.Correction.Store != StorePostgres && cfg.Correction.Store != StoreMemory {
		return nil, fmt.Errorf("unsupported CORRECTION_STORE %q", cfg.Correction.Store)
	}
	if cfg.Correction.MaxRetries < 1 {
		return nil, fmt.Errorf("MAX_RETRIES must be at least 1, got %d", cfg.Correction.MaxRetries)
	}

	return cfg, nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// parseConnections reads "id=kind:dsn" entries separated by semicolons.
func parseConnections(raw string) ([]ConnectionConfig, error) {
	var out []ConnectionConfig
	seen := make(map[string]struct{})
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, rest, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid DB_CONNECTIONS entry %q: expected id=kind:dsn", entry)
		}
		kind, dsn, ok := strings.Cut(rest, ":")
		if !ok || strings.TrimSpace(dsn) == "" {
			return nil, fmt.Errorf("invalid DB_CONNECTIONS entry %q: expected id=kind:dsn", entry)
		}
		id = strings.TrimSpace(id)
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate connection id %q", id)
		}
		seen[id] = struct{}{}
		out = append(out, ConnectionConfig{
			ID:   id,
			Kind: strings.ToLower(strings.TrimSpace(kind)),
			DSN:  strings.TrimSpace(dsn),
		})
	}
	return out, nil
}

func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("45s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
