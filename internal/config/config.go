package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Mongo        MongoConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Identity     IdentityConfig
	Inference    InferenceConfig
	Reachability ReachabilityConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// MongoConfig holds MongoDB connection values. An empty URL disables Mongo.
type MongoConfig struct {
	URL            string
	Database       string
	ConnectTimeout time.Duration
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// Identity backends.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

// IdentityConfig selects the identity partition backend and resolution deadline.
type IdentityConfig struct {
	Backend         string
	ResolveDeadline time.Duration
}

// InferenceConfig configures the outbound inference endpoint and its retry policy.
type InferenceConfig struct {
	URL            string
	APIKey         string
	MaxAttempts    int
	BaseDelay      time.Duration
	Multiplier     float64
	AttemptTimeout time.Duration
}

// ReachabilityConfig configures the connectivity probe. An empty address means always connected.
type ReachabilityConfig struct {
	ProbeAddr string
	Interval  time.Duration
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	backend := strings.ToLower(getEnv("IDENTITY_BACKEND", BackendPostgres))
	switch backend {
	case BackendPostgres, BackendMongo, BackendMemory:
	default:
		return nil, fmt.Errorf("invalid IDENTITY_BACKEND: %q", backend)
	}

	maxAttempts := getEnvAsInt("INFERENCE_MAX_ATTEMPTS", 3)
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "portal-session-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			CacheTTL: getEnvAsDuration("IDENTITY_CACHE_TTL", 5*time.Minute),
		},
		Mongo: MongoConfig{
			URL:            os.Getenv("MONGODB_URL"),
			Database:       getEnv("MONGODB_DATABASE", "portal"),
			ConnectTimeout: getEnvAsDuration("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Identity: IdentityConfig{
			Backend:         backend,
			ResolveDeadline: getEnvAsDuration("RESOLVE_DEADLINE", 10*time.Second),
		},
		Inference: InferenceConfig{
			URL:            os.Getenv("INFERENCE_URL"),
			APIKey:         os.Getenv("INFERENCE_API_KEY"),
			MaxAttempts:    maxAttempts,
			BaseDelay:      getEnvAsDuration("INFERENCE_BASE_DELAY", time.Second),
			Multiplier:     getEnvAsFloat("INFERENCE_MULTIPLIER", 2),
			AttemptTimeout: getEnvAsDuration("INFERENCE_ATTEMPT_TIMEOUT", 30*time.Second),
		},
		Reachability: ReachabilityConfig{
			ProbeAddr: os.Getenv("REACHABILITY_PROBE_ADDR"),
			Interval:  getEnvAsDuration("REACHABILITY_INTERVAL", 5*time.Second),
		},
	}

	if cfg.Identity.ResolveDeadline <= 0 {
		cfg.Identity.ResolveDeadline = 10 * time.Second
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the session token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	if a.AccessTokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
