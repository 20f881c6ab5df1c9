package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings: credentials and paths. Trading
// parameters live in the YAML settings file, see Settings.
type Config struct {
	// Binance
	BinanceTestnet   bool
	BinanceAPIKey    string
	BinanceAPISecret string

	// Database
	DBPath string

	// Settings file with thresholds, strategy parameters and pairs.
	SettingsPath string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		BinanceTestnet:   getEnv("BINANCE_TESTNET", "false") == "true",
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: os.Getenv("BINANCE_API_SECRET"),
		DBPath:           getEnv("DB_PATH", "./data/tradebot.db"),
		SettingsPath:     getEnv("SETTINGS_PATH", "./settings.yaml"),
	}, nil
}

// RequireCredentials fails when the exchange API keys are missing. Live
// trading calls this before anything else starts; backtests only touch
// public endpoints and skip it.
func (c *Config) RequireCredentials() error {
	if c.BinanceAPIKey == "" || c.BinanceAPISecret == "" {
		return errors.New("BINANCE_API_KEY and BINANCE_API_SECRET must be set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
