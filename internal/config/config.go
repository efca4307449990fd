// README: Config loader with env defaults for HTTP, Firebase, DB, Redis, notifications and maps.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	HTTP        struct {
		Addr string
	}
	Log struct {
		Level  string
		Format string
	}
	Firebase struct {
		// ProjectID empty selects the in-memory record store.
		ProjectID       string
		CredentialsFile string
	}
	Auth struct {
		// Disabled skips ID-token verification; local development only.
		Disabled bool
	}
	DB struct {
		// DSN empty disables the transition audit trail.
		DSN      string
		MaxConns int32
	}
	Redis struct {
		// Addr empty falls back to a process-local in-flight guard.
		Addr     string
		Password string
		GuardTTL time.Duration
	}
	Notify struct {
		BaseURL string
		APIKey  string
		Timeout time.Duration
	}
	Maps struct {
		APIKey   string
		Language string
		Region   string
	}
	Lifecycle struct {
		StoreTimeout time.Duration
	}
	Reconcile struct {
		// Interval zero disables the periodic sweep.
		Interval time.Duration
		Apply    bool
	}
}

// Load reads OPS_* variables, after merging an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	cfg.Environment = envOrDefault("OPS_ENV", "development")
	cfg.HTTP.Addr = envOrDefault("OPS_HTTP_ADDR", ":8080")
	cfg.Log.Level = envOrDefault("OPS_LOG_LEVEL", "info")
	cfg.Log.Format = envOrDefault("OPS_LOG_FORMAT", "json")
	cfg.Firebase.ProjectID = os.Getenv("OPS_FIREBASE_PROJECT_ID")
	cfg.Firebase.CredentialsFile = os.Getenv("OPS_FIREBASE_CREDENTIALS")
	cfg.Auth.Disabled = envOrDefaultBool("OPS_AUTH_DISABLED", false)
	cfg.DB.DSN = os.Getenv("OPS_DB_DSN")
	cfg.DB.MaxConns = int32(envOrDefaultInt("OPS_DB_MAX_CONNS", 10))
	cfg.Redis.Addr = os.Getenv("OPS_REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("OPS_REDIS_PASSWORD")
	cfg.Redis.GuardTTL = envOrDefaultDuration("OPS_GUARD_TTL", 30*time.Second)
	cfg.Notify.BaseURL = os.Getenv("OPS_NOTIFY_BASE_URL")
	cfg.Notify.APIKey = os.Getenv("OPS_NOTIFY_API_KEY")
	cfg.Notify.Timeout = envOrDefaultDuration("OPS_NOTIFY_TIMEOUT", 10*time.Second)
	cfg.Maps.APIKey = os.Getenv("OPS_MAPS_API_KEY")
	cfg.Maps.Language = envOrDefault("OPS_MAPS_LANGUAGE", "en")
	cfg.Maps.Region = envOrDefault("OPS_MAPS_REGION", "IN")
	cfg.Lifecycle.StoreTimeout = envOrDefaultDuration("OPS_STORE_TIMEOUT", 10*time.Second)
	cfg.Reconcile.Interval = envOrDefaultDuration("OPS_RECONCILE_INTERVAL", 0)
	cfg.Reconcile.Apply = envOrDefaultBool("OPS_RECONCILE_APPLY", false)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Firebase.ProjectID == "" && !c.Auth.Disabled {
		return errors.New("OPS_FIREBASE_PROJECT_ID is required unless OPS_AUTH_DISABLED=true")
	}
	if c.Lifecycle.StoreTimeout <= 0 {
		return errors.New("OPS_STORE_TIMEOUT must be positive")
	}
	if c.Redis.Addr != "" && c.Redis.GuardTTL < c.Lifecycle.StoreTimeout {
		return errors.New("OPS_GUARD_TTL must not be shorter than OPS_STORE_TIMEOUT")
	}
	if c.Reconcile.Interval < 0 {
		return errors.New("OPS_RECONCILE_INTERVAL must not be negative")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
