package app

import (
	"os"
	"strconv"
	"time"
)

// Config carries everything both processes read from the environment.
// Mode-specific fields are simply unused by the other process.
type Config struct {
	Issuer   string // Issuer claim stamped into and expected from tokens
	Audience string // Audience claim, the checker's identity
	Scope    string // Capability granted by issued tokens

	PrimaryKeyID     string // Required: kid of the signing/verification key
	PrimaryKeyFile   string // Required: path to the primary key PEM
	SecondaryKeyID   string // Optional: kid of the outgoing rotation key
	SecondaryKeyFile string // Optional: path to the secondary key PEM
	MasterKey        string // Optional: passphrase; when set, key files are AES-GCM blobs

	NonceStore         string        // Checker only: nonce ledger backend (memory, redis) (default: memory)
	RedisAddr          string        // Checker only: redis address for the shared ledger
	RedisDB            int           // Checker only: redis database number
	NonceSweepInterval time.Duration // Checker only: memory ledger sweep cadence (default: 60s)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		Issuer:   getEnvOrDefault("SCOREGATE_ISSUER", "scoregate-issuer"),
		Audience: getEnvOrDefault("SCOREGATE_AUDIENCE", "scoregate-checker"),
		Scope:    getEnvOrDefault("SCOREGATE_SCOPE", "score:single"),

		PrimaryKeyID:     os.Getenv("SCOREGATE_PRIMARY_KEY_ID"),
		PrimaryKeyFile:   os.Getenv("SCOREGATE_PRIMARY_KEY_FILE"),
		SecondaryKeyID:   os.Getenv("SCOREGATE_SECONDARY_KEY_ID"),
		SecondaryKeyFile: os.Getenv("SCOREGATE_SECONDARY_KEY_FILE"),
		MasterKey:        os.Getenv("SCOREGATE_MASTER_KEY"),

		NonceStore:         getEnvOrDefault("SCOREGATE_NONCE_STORE", "memory"),
		RedisAddr:          getEnvOrDefault("SCOREGATE_REDIS_ADDR", "localhost:6379"),
		RedisDB:            getEnvIntOrDefault("SCOREGATE_REDIS_DB", 0),
		NonceSweepInterval: getEnvDurationOrDefault("SCOREGATE_NONCE_SWEEP_INTERVAL", 60*time.Second),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
