package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultSentinelName is the name of the fallback category that absorbs
// items of deleted categories when no explicit id is configured.
const DefaultSentinelName = "Unclassified (to be characterized)"

// Config holds application configuration
type Config struct {
	// Server
	Env  string
	Port string

	// Database
	DBDriver      string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSSLMode     string
	SQLitePath    string
	MigrationsDir string

	// JWT
	JWTSecret        string
	JWTExpirationDur time.Duration

	// Catalog collaborator API key (bcrypt hash)
	CatalogAPIKeyHash string

	// Fallback category
	SentinelID   string
	SentinelName string

	// Breadcrumb cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	BreadcrumbTTL time.Duration
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Get values from environment variables with defaults
	config := &Config{
		// Server
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "8080"),

		// Database
		DBDriver:      getEnv("DB_DRIVER", "postgres"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        getEnv("DB_USER", "stockroom"),
		DBPassword:    getEnv("DB_PASSWORD", "stockroom"),
		DBName:        getEnv("DB_NAME", "stockroom"),
		DBSSLMode:     getEnv("DB_SSLMODE", "disable"),
		SQLitePath:    getEnv("SQLITE_PATH", "stockroom.db"),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),

		CatalogAPIKeyHash: getEnv("CATALOG_API_KEY_HASH", ""),

		SentinelID:   getEnv("CATEGORY_SENTINEL_ID", ""),
		SentinelName: getEnv("CATEGORY_SENTINEL_NAME", DefaultSentinelName),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
	}

	// Parse JWT expiration duration
	config.JWTExpirationDur = getDuration("JWT_EXPIRES_IN", 24*time.Hour)
	config.BreadcrumbTTL = getDuration("BREADCRUMB_CACHE_TTL", 10*time.Minute)

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		log.Printf("Warning: invalid REDIS_DB value, falling back to 0\n")
		redisDB = 0
	}
	config.RedisDB = redisDB

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, defaultValue.String())
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, raw, defaultValue)
		return defaultValue
	}
	return d
}
