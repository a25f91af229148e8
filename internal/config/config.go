// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Chain settings
	ChainIDHex      string // EIP-155 chain id as 0x-prefixed hex
	ChainName       string
	RPCURL          string
	ExplorerURL     string
	CurrencyName    string
	CurrencySymbol  string
	CurrencyDecimal int

	// Payment settings
	ReceiverAddress string // Address that receives service payments
	ServicePrice    string // Price of the paid service in native token (e.g., "0.05")
	GasMarginPct    int64  // Percent added to the reported gas price
	SessionCooldown time.Duration
	ConfirmTimeout  time.Duration

	// Tracing
	OTLPEndpoint string // OTLP gRPC endpoint (optional, tracing disabled if not set)
}

// Polygon Amoy defaults
const (
	DefaultChainIDHex     = "0x13882" // 80002
	DefaultChainName      = "Polygon Amoy Testnet"
	DefaultRPCURL         = "https://rpc-amoy.polygon.technology"
	DefaultExplorerURL    = "https://amoy.polygonscan.com"
	DefaultCurrencyName   = "MATIC"
	DefaultCurrencySymbol = "MATIC"
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultServicePrice   = "0.05"
	DefaultGasMarginPct   = 20
	DefaultCooldownSec    = 3
	DefaultConfirmSec     = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:     os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		ChainIDHex:      getEnv("CHAIN_ID_HEX", DefaultChainIDHex),
		ChainName:       getEnv("CHAIN_NAME", DefaultChainName),
		RPCURL:          getEnv("RPC_URL", DefaultRPCURL),
		ExplorerURL:     getEnv("EXPLORER_URL", DefaultExplorerURL),
		CurrencyName:    getEnv("CURRENCY_NAME", DefaultCurrencyName),
		CurrencySymbol:  getEnv("CURRENCY_SYMBOL", DefaultCurrencySymbol),
		CurrencyDecimal: int(getEnvInt64("CURRENCY_DECIMALS", 18)),
		ReceiverAddress: os.Getenv("RECEIVER_ADDRESS"), // Required, no default
		ServicePrice:    getEnv("SERVICE_PRICE", DefaultServicePrice),
		GasMarginPct:    getEnvInt64("GAS_MARGIN_PCT", DefaultGasMarginPct),
		SessionCooldown: time.Duration(getEnvInt64("SESSION_COOLDOWN_SEC", DefaultCooldownSec)) * time.Second,
		ConfirmTimeout:  time.Duration(getEnvInt64("CONFIRM_TIMEOUT_SEC", DefaultConfirmSec)) * time.Second,
		OTLPEndpoint:    os.Getenv("OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.ReceiverAddress == "" {
		return fmt.Errorf("RECEIVER_ADDRESS is required")
	}
	if !isHexAddress(c.ReceiverAddress) {
		return fmt.Errorf("RECEIVER_ADDRESS must be a 0x-prefixed 20-byte hex address")
	}

	if !strings.HasPrefix(c.ChainIDHex, "0x") {
		return fmt.Errorf("CHAIN_ID_HEX must be 0x-prefixed")
	}
	if _, err := strconv.ParseInt(c.ChainIDHex[2:], 16, 64); err != nil {
		return fmt.Errorf("CHAIN_ID_HEX is not valid hex: %w", err)
	}

	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	if c.GasMarginPct < 0 || c.GasMarginPct > 100 {
		return fmt.Errorf("GAS_MARGIN_PCT must be between 0 and 100")
	}

	return nil
}

// ChainID returns the decimal chain id.
func (c *Config) ChainID() int64 {
	id, _ := strconv.ParseInt(strings.TrimPrefix(c.ChainIDHex, "0x"), 16, 64)
	return id
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func isHexAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
