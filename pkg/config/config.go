package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port    string
		Env     string
		Timeout time.Duration
	}

	// Session identifies this agent as a principal in the shared store
	Session struct {
		PrincipalID string
		RoomID      string
	}

	// Protocol holds the ownership/failover protocol timings. Defaults
	// match the deployed chat app: 10s heartbeat, 15s ownership check,
	// 30s staleness threshold.
	Protocol struct {
		HeartbeatPeriod      time.Duration
		RoomPresencePeriod   time.Duration
		OwnershipCheckPeriod time.Duration
		StaleAfter           time.Duration
		HistoryLimit         int
		ReplyDelayMin        time.Duration
		ReplyDelayMax        time.Duration
	}

	// Store configuration (shared document store, Redis-backed)
	Store struct {
		RedisAddr     string
		RedisPassword string
		RedisDB       int
	}

	// Database configuration (transcript persistence)
	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Timeout  time.Duration
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		JWTSecret      string
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = &Config{}

		// Server config
		instance.Server.Port = getEnvString("PORT", "8082")
		instance.Server.Env = getEnvString("APP_ENV", "development")
		instance.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)

		// Session identity
		instance.Session.PrincipalID = getEnvString("PRINCIPAL_ID", "")
		instance.Session.RoomID = getEnvString("ROOM_ID", "")

		// Protocol timings
		instance.Protocol.HeartbeatPeriod = getEnvDuration("HEARTBEAT_PERIOD", 10*time.Second)
		instance.Protocol.RoomPresencePeriod = getEnvDuration("ROOM_PRESENCE_PERIOD", 10*time.Second)
		instance.Protocol.OwnershipCheckPeriod = getEnvDuration("OWNERSHIP_CHECK_PERIOD", 15*time.Second)
		instance.Protocol.StaleAfter = getEnvDuration("STALE_AFTER", 30*time.Second)
		instance.Protocol.HistoryLimit = getEnvInt("HISTORY_LIMIT", 20)
		instance.Protocol.ReplyDelayMin = getEnvDuration("REPLY_DELAY_MIN", 1*time.Second)
		instance.Protocol.ReplyDelayMax = getEnvDuration("REPLY_DELAY_MAX", 2*time.Second)

		// Store config
		instance.Store.RedisAddr = getEnvString("REDIS_URL", "localhost:6379")
		instance.Store.RedisPassword = getEnvString("REDIS_PASSWORD", "")
		instance.Store.RedisDB = getEnvInt("REDIS_DB", 0)

		// Database config
		instance.Database.Host = getEnvString("DB_HOST", "localhost")
		instance.Database.Port = getEnvString("DB_PORT", "5432")
		instance.Database.User = getEnvString("DB_USER", "postgres")
		instance.Database.Password = getEnvString("DB_PASSWORD", "postgres")
		instance.Database.Name = getEnvString("DB_NAME", "fiddle-agent")
		instance.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
		instance.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
		instance.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)

		// Security config
		instance.Security.RateLimit = float64(getEnvInt("RATE_LIMIT", 5))
		instance.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
		instance.Security.JWTSecret = getEnvString("JWT_SECRET", "")

		// Logging config
		instance.Logging.Level = getEnvString("LOG_LEVEL", "info")
		instance.Logging.Format = getEnvString("LOG_FORMAT", "json")
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
