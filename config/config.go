package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	AppName  string
	HTTPPort string

	UpstreamBaseURL string
	FetchMode       string
	FetchTimeoutMs  int
	ChromeBin       string

	JitterMinMs       int
	JitterMaxMs       int
	CacheFreshnessSec int

	StoreBackend string
	StoreDir     string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	DBConnectRetries int

	CORSOrigins []string

	LogLevel       string
	LogJSON        bool
	FluentEnabled  bool
	FluentHost     string
	FluentPort     int
	FluentLogLevel string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		AppName:  getEnv("APP_NAME", "market-search"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),

		UpstreamBaseURL: strings.TrimRight(getEnv("UPSTREAM_BASE_URL", "https://www.daangn.com"), "/"),
		FetchMode:       strings.ToLower(getEnv("FETCH_MODE", "http")),
		FetchTimeoutMs:  getEnvInt("FETCH_TIMEOUT_MS", 15000),
		ChromeBin:       getEnv("CHROME_BIN", ""),

		JitterMinMs:       getEnvInt("JITTER_MIN_MS", 800),
		JitterMaxMs:       getEnvInt("JITTER_MAX_MS", 3000),
		CacheFreshnessSec: getEnvInt("CACHE_FRESHNESS_SEC", 60),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", "file")),
		StoreDir:     getEnv("STORE_DIR", "./data"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "market"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "market"),
		PostgresDB:       getEnv("POSTGRES_DB", "market_search"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		DBConnectRetries: getEnvInt("DB_CONNECT_RETRIES", 5),

		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"}),

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogJSON:        getEnvBool("LOG_JSON", false),
		FluentEnabled:  getEnvBool("FLUENTBIT_ENABLED", false),
		FluentHost:     getEnv("FLUENTBIT_HOST", "127.0.0.1"),
		FluentPort:     getEnvInt("FLUENTBIT_PORT", 24224),
		FluentLogLevel: getEnv("FLUENTBIT_LOG_LEVEL", "info"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// FetchTimeout is the hard limit on one upstream request.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}

// JitterWindow returns the inter-request delay bounds.
func (c *Config) JitterWindow() (time.Duration, time.Duration) {
	return time.Duration(c.JitterMinMs) * time.Millisecond, time.Duration(c.JitterMaxMs) * time.Millisecond
}

// CacheFreshness is how long a per-region response is reused.
func (c *Config) CacheFreshness() time.Duration {
	return time.Duration(c.CacheFreshnessSec) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
		log.Printf("[config] %s=%q is not an int, using %d", key, val, fallback)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
		log.Printf("[config] %s=%q is not a bool, using %t", key, val, fallback)
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
