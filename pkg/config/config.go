package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
// SSOT: every environment variable is read here and nowhere else
type Config struct {
	// Server
	Port        string
	Env         string // development, staging, production
	CORSOrigins []string

	// Broker gateway
	Gateway GatewayConfig

	// Bridge tuning
	Bridge BridgeConfig

	// Desk
	Desk DeskConfig

	// Scheduler
	KeepaliveSchedule string
	ReconnectSchedule string

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string
}

// GatewayConfig holds the Client Portal gateway connection settings
type GatewayConfig struct {
	Host        string
	Port        int
	ClientID    int
	AccountID   string // empty = first managed account
	BasePath    string
	InsecureTLS bool    // the gateway ships a self-signed certificate
	RateLimit   float64 // requests per second
	AutoConfirm bool    // answer order reply prompts with "confirmed"
	ChainMonths int     // option months scanned when building chains
}

// BridgeConfig holds the order bridge settings
type BridgeConfig struct {
	LegDelay      time.Duration
	QuoteAttempts int
	QuoteInterval time.Duration

	// IndexSymbols maps index symbols to their listing exchange
	IndexSymbols map[string]string
}

// DeskConfig holds the interactive desk settings
type DeskConfig struct {
	QuickSymbols []string
	Refresh      time.Duration
}

// fileOverlay is the optional YAML file layered over the environment
type fileOverlay struct {
	IndexSymbols map[string]string `yaml:"index_symbols"`
	QuickSymbols []string          `yaml:"quick_symbols"`
	CORSOrigins  []string          `yaml:"cors_origins"`
}

// BaseURL returns the REST root of the gateway
func (g GatewayConfig) BaseURL() string {
	return fmt.Sprintf("https://%s:%d%s", g.Host, g.Port, g.BasePath)
}

// StreamURL returns the websocket endpoint of the gateway
func (g GatewayConfig) StreamURL() string {
	return fmt.Sprintf("wss://%s:%d%s/ws", g.Host, g.Port, g.BasePath)
}

// Load reads configuration from environment variables
// SSOT: the only function that calls os.Getenv()
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		// Server
		Port:        getEnv("PORT", "8000"),
		Env:         getEnv("ENV", "development"),
		CORSOrigins: getEnvAsList("CORS_ORIGINS", "*"),

		Gateway: GatewayConfig{
			Host:        getEnv("IB_HOST", "127.0.0.1"),
			Port:        getEnvAsInt("IB_PORT", 5000),
			ClientID:    getEnvAsInt("IB_CLIENT_ID", 1),
			AccountID:   getEnv("IB_ACCOUNT_ID", ""),
			BasePath:    getEnv("IB_BASE_PATH", "/v1/api"),
			InsecureTLS: getEnvAsBool("IB_INSECURE_TLS", true),
			RateLimit:   getEnvAsFloat("IB_RATE_LIMIT", 10),
			AutoConfirm: getEnvAsBool("IB_AUTO_CONFIRM", true),
			ChainMonths: getEnvAsInt("IB_CHAIN_MONTHS", 3),
		},

		Bridge: BridgeConfig{
			LegDelay:      getEnvAsDuration("BRIDGE_LEG_DELAY", "200ms"),
			QuoteAttempts: getEnvAsInt("BRIDGE_QUOTE_ATTEMPTS", 10),
			QuoteInterval: getEnvAsDuration("BRIDGE_QUOTE_INTERVAL", "200ms"),
			IndexSymbols:  indexSymbols(getEnvAsList("BRIDGE_INDEX_SYMBOLS", "SPX,NDX,RUT"), "CBOE"),
		},

		Desk: DeskConfig{
			QuickSymbols: getEnvAsList("DESK_SYMBOLS", "NVDA,NVDL,TSLA,TSLL,SPX"),
			Refresh:      getEnvAsDuration("DESK_REFRESH", "2s"),
		},

		KeepaliveSchedule: getEnv("KEEPALIVE_SCHEDULE", "@every 55s"),
		ReconnectSchedule: getEnv("RECONNECT_SCHEDULE", "@every 30s"),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogFile:   getEnv("LOG_FILE", "ibbridge.log"),
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// ApplyFile layers a YAML file over the loaded configuration
func (c *Config) ApplyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if len(overlay.IndexSymbols) > 0 {
		symbols := make(map[string]string, len(overlay.IndexSymbols))
		for sym, exch := range overlay.IndexSymbols {
			symbols[strings.ToUpper(strings.TrimSpace(sym))] = strings.ToUpper(strings.TrimSpace(exch))
		}
		c.Bridge.IndexSymbols = symbols
	}
	if len(overlay.QuickSymbols) > 0 {
		c.Desk.QuickSymbols = overlay.QuickSymbols
	}
	if len(overlay.CORSOrigins) > 0 {
		c.CORSOrigins = overlay.CORSOrigins
	}

	return nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" && c.Env != "test" {
		return fmt.Errorf("ENV must be one of: development, staging, production, test")
	}

	if c.Gateway.Host == "" {
		return fmt.Errorf("IB_HOST is required")
	}

	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("IB_PORT must be a valid TCP port, got %d", c.Gateway.Port)
	}

	if c.Bridge.QuoteAttempts <= 0 {
		return fmt.Errorf("BRIDGE_QUOTE_ATTEMPTS must be positive")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func indexSymbols(symbols []string, exchange string) map[string]string {
	out := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		out[strings.ToUpper(sym)] = exchange
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)

	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
