package confs

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds every runtime setting of the gateway.
type Config struct {
	Port string

	DBDriver   string // postgres | sqlite | memory
	SQLitePath string

	ProtocolMinVersion int
	ProtocolMaxVersion int

	HMACRequired bool
	HMACDrift    time.Duration
	AuthCacheTTL time.Duration

	CommandTTL   time.Duration
	PumpDeviceID string

	CredentialsFile string
	CredentialsEnv  string

	OfflineAfter time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	LogLevel  string
	LogPretty bool
}

// LoadConfig loads environment variables from a .env file if present
// and builds a Config from the environment.
func LoadConfig() (*Config, error) {
	// Load .env if it exists; ignore error if file not found
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("warning: could not load .env: %v", err)
		}
	}
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:            getString("PORT", "3536"),
		DBDriver:        strings.ToLower(getString("DB_DRIVER", "postgres")),
		SQLitePath:      getString("SQLITE_PATH", "data/gateway.db"),
		PumpDeviceID:    getString("PUMP_DEVICE_ID", "SUMP_TANK"),
		CredentialsFile: os.Getenv("DEVICE_CREDENTIALS_FILE"),
		CredentialsEnv:  os.Getenv("DEVICE_CREDENTIALS"),
		LogLevel:        getString("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.ProtocolMinVersion, err = getInt("PROTOCOL_MIN_VERSION", 1); err != nil {
		return nil, err
	}
	if cfg.ProtocolMaxVersion, err = getInt("PROTOCOL_MAX_VERSION", 1); err != nil {
		return nil, err
	}
	if cfg.HMACRequired, err = getBool("HMAC_REQUIRED", false); err != nil {
		return nil, err
	}
	driftSeconds, err := getInt("HMAC_DRIFT_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	cfg.HMACDrift = time.Duration(driftSeconds) * time.Second
	if cfg.AuthCacheTTL, err = getDuration("AUTH_CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.CommandTTL, err = getDuration("COMMAND_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.OfflineAfter, err = getDuration("OFFLINE_AFTER", 90*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getFloat("RATE_LIMIT_RPS", 10); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getInt("RATE_LIMIT_BURST", 20); err != nil {
		return nil, err
	}
	if cfg.LogPretty, err = getBool("LOG_PRETTY", false); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.ProtocolMinVersion < 1 {
		return fmt.Errorf("%w: PROTOCOL_MIN_VERSION must be >= 1", ErrInvalidConfig)
	}
	if c.ProtocolMinVersion > c.ProtocolMaxVersion {
		return fmt.Errorf("%w: PROTOCOL_MIN_VERSION (%d) > PROTOCOL_MAX_VERSION (%d)",
			ErrInvalidConfig, c.ProtocolMinVersion, c.ProtocolMaxVersion)
	}
	switch c.DBDriver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("%w: unknown DB_DRIVER %q", ErrInvalidConfig, c.DBDriver)
	}
	if c.AuthCacheTTL < 0 || c.CommandTTL <= 0 || c.OfflineAfter <= 0 {
		return fmt.Errorf("%w: durations must be positive", ErrInvalidConfig)
	}
	if c.PumpDeviceID == "" {
		return fmt.Errorf("%w: PUMP_DEVICE_ID is empty", ErrInvalidConfig)
	}
	return nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, v)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, key, v)
	}
	return f, nil
}

func getBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, key, v)
	}
	return b, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a duration", ErrInvalidConfig, key, v)
	}
	return d, nil
}
