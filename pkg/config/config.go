package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds environment-driven settings for the trading core.
type Config struct {
	Port      string
	JWTSecret string

	// Database (closed-order history / audit trail); empty disables it.
	DBPath string

	// Optional Redis mirror for out-of-process event consumers.
	RedisAddr string

	// Accounts file (yaml).
	AccountsFile string

	// Per-IP API rate limiting.
	APIRateLimit float64 // requests per second
	APIRateBurst int

	// Reconciliation knobs.
	PollInterval    time.Duration
	RequestTimeout  time.Duration
	InitAttempts    int
	ShutdownTimeout time.Duration
	MaxClosedOrders int
	SyncTolerance   float64
	MaxSyncRetries  int
}

// Account describes one exchange account the core coordinates.
type Account struct {
	Name       string `yaml:"name"`
	Exchange   string `yaml:"exchange"`
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	Passphrase string `yaml:"passphrase"`
}

type accountsFile struct {
	Accounts []Account `yaml:"accounts"`
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:            getEnv("PORT", "8080"),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret"),
		DBPath:          getEnv("DB_PATH", "./data/trading.db"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		AccountsFile:    getEnv("ACCOUNTS_FILE", "./accounts.yaml"),
		APIRateLimit:    getEnvFloat("API_RATE_LIMIT", 20),
		APIRateBurst:    getEnvInt("API_RATE_BURST", 50),
		PollInterval:    getEnvDuration("POLL_INTERVAL", 5*time.Second),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		InitAttempts:    getEnvInt("INIT_ATTEMPTS", 3),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
		MaxClosedOrders: getEnvInt("MAX_CLOSED_ORDERS", 500),
		SyncTolerance:   getEnvFloat("SYNC_TOLERANCE", 1e-8),
		MaxSyncRetries:  getEnvInt("MAX_SYNC_RETRIES", 3),
	}, nil
}

// LoadAccounts parses the yaml accounts file.
func LoadAccounts(path string) ([]Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	var f accountsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}
	for i, a := range f.Accounts {
		if a.Name == "" {
			return nil, fmt.Errorf("accounts[%d]: name is required", i)
		}
		if a.Exchange == "" {
			return nil, fmt.Errorf("account %q: exchange is required", a.Name)
		}
	}
	return f.Accounts, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
