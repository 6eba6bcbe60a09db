package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Common contains Elasticsearch and search parameters shared by every binary.
type Common struct {
	ElasticsearchAddr     string
	ElasticsearchIndex    string
	ElasticsearchAPIKey   string
	ElasticsearchInsecure bool
	ElasticsearchMaxQPS   float64
	MaxResults            int
	RetryAttempts         int
	RetryBase             time.Duration
	RetryCap              time.Duration
	DetailCacheSize       int
	DetailCacheTTL        time.Duration
}

// Server describes the MCP HTTP server.
type Server struct {
	Common
	BindAddr        string
	MountPath       string
	APIKey          string
	AllowedIPs      []string
	RedisURL        string
	RateLimitMax    int
	RateLimitWindow time.Duration
	SessionEnabled  bool
	SessionSecret   string
	SessionMaxAge   time.Duration
	SessionCookie   string
	AuditBrokers    []string
	AuditTopic      string
}

// CLI configures the newsctl operator tool.
type CLI struct {
	Common
}

// LoadServer builds a Server config from environment variables.
func LoadServer() (*Server, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}

	c := &Server{
		Common:          *common,
		BindAddr:        getEnv("API_BIND_ADDR", "0.0.0.0:8000"),
		MountPath:       getEnv("MCP_MOUNT_PATH", "/mcp-server"),
		APIKey:          getEnv("NEWS_MCP_API_KEY", ""),
		AllowedIPs:      splitAndTrim(getEnv("AUTH_ALLOWED_IPS", "")),
		RedisURL:        getEnv("REDIS_URL", "redis://redis:6379/0"),
		RateLimitMax:    getInt("RATE_LIMIT_MAX", 100),
		RateLimitWindow: getDuration("RATE_LIMIT_WINDOW", "60s"),
		SessionEnabled:  getBool("SESSION_ENABLED", false),
		SessionSecret:   getEnv("SESSION_SECRET_KEY", ""),
		SessionMaxAge:   getDuration("SESSION_MAX_AGE", "336h"),
		SessionCookie:   getEnv("SESSION_COOKIE", "session"),
		AuditBrokers:    splitAndTrim(getEnv("AUDIT_KAFKA_BROKERS", "")),
		AuditTopic:      getEnv("AUDIT_KAFKA_TOPIC", "mcp_audit"),
	}

	if !strings.HasPrefix(c.MountPath, "/") {
		return nil, fmt.Errorf("MCP_MOUNT_PATH must start with /")
	}
	if c.RateLimitMax <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX must be positive")
	}
	if c.RateLimitWindow < time.Second {
		return nil, fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s")
	}
	if c.SessionEnabled && c.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET_KEY is required when SESSION_ENABLED is set")
	}
	if c.SessionMaxAge <= 0 {
		return nil, fmt.Errorf("SESSION_MAX_AGE must be positive")
	}

	return c, nil
}

// LoadCLI builds a CLI config from environment variables.
func LoadCLI() (*CLI, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}
	return &CLI{Common: *common}, nil
}

func loadCommon() (*Common, error) {
	c := &Common{
		ElasticsearchAddr:     getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex:    getEnv("ELASTICSEARCH_INDEX", "news"),
		ElasticsearchAPIKey:   getEnv("ELASTICSEARCH_API_KEY", ""),
		ElasticsearchInsecure: getBool("ELASTICSEARCH_INSECURE", false),
		ElasticsearchMaxQPS:   getFloat("ELASTICSEARCH_MAX_QPS", 0),
		MaxResults:            getInt("SEARCH_MAX_RESULTS", 100),
		RetryAttempts:         getInt("SEARCH_RETRY_ATTEMPTS", 3),
		RetryBase:             getDuration("SEARCH_RETRY_BASE", "1s"),
		RetryCap:              getDuration("SEARCH_RETRY_CAP", "10s"),
		DetailCacheSize:       getInt("NEWS_DETAIL_CACHE_SIZE", 1000),
		DetailCacheTTL:        getDuration("NEWS_DETAIL_CACHE_TTL", "5m"),
	}

	if c.MaxResults <= 0 {
		return nil, fmt.Errorf("SEARCH_MAX_RESULTS must be positive")
	}
	if c.RetryAttempts <= 0 {
		return nil, fmt.Errorf("SEARCH_RETRY_ATTEMPTS must be positive")
	}
	if c.RetryBase <= 0 || c.RetryCap < c.RetryBase {
		return nil, fmt.Errorf("SEARCH_RETRY_CAP must be >= SEARCH_RETRY_BASE > 0")
	}
	if c.ElasticsearchMaxQPS < 0 {
		return nil, fmt.Errorf("ELASTICSEARCH_MAX_QPS cannot be negative")
	}
	if c.DetailCacheSize < 0 {
		return nil, fmt.Errorf("NEWS_DETAIL_CACHE_SIZE cannot be negative")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// getDuration accepts Go durations ("90s") and bare integers as seconds ("60").
func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	if d, err := parseDuration(raw); err == nil {
		return d
	}
	fd, err := parseDuration(fallback)
	if err != nil {
		panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, err))
	}
	return fd
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseDuration(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}
