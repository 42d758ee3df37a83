package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prudhvinik1/lansync/internal/models"
)

type Config struct {
	ServerPort string
	AppEnv     string
	LogLevel   string

	PocketBaseURL       string
	PocketBaseAuthColl  string
	PocketBaseIdentity  string
	PocketBasePassword  string
	SyncCollections     []string
	SyncFilters         map[string]string
	SyncPageSize        int
	SyncFetchAll        bool
	ResubscribeInterval time.Duration

	// Optional backends. Empty disables the journal / falls back to an
	// in-process snapshot cache.
	DatabaseURL string
	RedisURL    string
	SnapshotTTL time.Duration

	JWTSecret            string
	JWTExpiry            time.Duration
	OperatorPasswordHash string
}

func LoadConfig() (*Config, error) {
	jwtExpiry, err := time.ParseDuration(getEnv("JWT_EXPIRY", "24h"))
	if err != nil {
		return nil, errors.New("invalid JWT_EXPIRY format")
	}
	snapshotTTL, err := time.ParseDuration(getEnv("SNAPSHOT_TTL", "0s"))
	if err != nil {
		return nil, errors.New("invalid SNAPSHOT_TTL format")
	}
	resubscribe, err := time.ParseDuration(getEnv("RESUBSCRIBE_INTERVAL", "5s"))
	if err != nil {
		return nil, errors.New("invalid RESUBSCRIBE_INTERVAL format")
	}
	pageSize, err := strconv.Atoi(getEnv("SYNC_PAGE_SIZE", "200"))
	if err != nil || pageSize <= 0 {
		return nil, errors.New("SYNC_PAGE_SIZE must be a positive integer")
	}
	fetchAll, err := strconv.ParseBool(getEnv("SYNC_FETCH_ALL", "true"))
	if err != nil {
		return nil, errors.New("invalid SYNC_FETCH_ALL value")
	}

	cfg := &Config{
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		AppEnv:               getEnv("APP_ENV", "dev"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		PocketBaseURL:        os.Getenv("POCKETBASE_URL"),
		PocketBaseAuthColl:   getEnv("POCKETBASE_AUTH_COLLECTION", "_superusers"),
		PocketBaseIdentity:   os.Getenv("POCKETBASE_IDENTITY"),
		PocketBasePassword:   os.Getenv("POCKETBASE_PASSWORD"),
		SyncCollections:      splitList(os.Getenv("SYNC_COLLECTIONS")),
		SyncPageSize:         pageSize,
		SyncFetchAll:         fetchAll,
		ResubscribeInterval:  resubscribe,
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		SnapshotTTL:          snapshotTTL,
		JWTSecret:            os.Getenv("JWT_SECRET"),
		JWTExpiry:            jwtExpiry,
		OperatorPasswordHash: os.Getenv("OPERATOR_PASSWORD_HASH"),
	}
	if len(cfg.SyncCollections) == 0 {
		cfg.SyncCollections = models.DefaultCollections()
	}
	cfg.SyncFilters = make(map[string]string)
	for _, c := range cfg.SyncCollections {
		if f := os.Getenv(filterEnvKey(c)); f != "" {
			cfg.SyncFilters[c] = f
		}
	}

	// Validate required fields
	if cfg.PocketBaseURL == "" {
		return nil, errors.New("POCKETBASE_URL is required")
	}
	if (cfg.PocketBaseIdentity == "") != (cfg.PocketBasePassword == "") {
		return nil, errors.New("POCKETBASE_IDENTITY and POCKETBASE_PASSWORD must be set together")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.OperatorPasswordHash == "" {
		return nil, errors.New("OPERATOR_PASSWORD_HASH is required")
	}

	return cfg, nil
}

// filterEnvKey maps "customers" to SYNC_FILTER_CUSTOMERS.
func filterEnvKey(collection string) string {
	return fmt.Sprintf("SYNC_FILTER_%s", strings.ToUpper(strings.ReplaceAll(collection, "-", "_")))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
