// Package config loads service configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server        ServerConfig       `json:"server"`
	Database      DatabaseConfig     `json:"database"`
	Redis         RedisConfig        `json:"redis"`
	Providers     ProviderConfig     `json:"providers"`
	Scanner       ScannerConfig      `json:"scanner"`
	Notifications NotificationConfig `json:"notifications"`
	Macro         MacroConfig        `json:"macro"`
	Logging       LoggingConfig      `json:"logging"`
}

type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	ProductionMode bool   `json:"production_mode"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"-"`
	Name     string `json:"name"`
	SSLMode  string `json:"ssl_mode"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

// ProviderConfig holds market data provider credentials. Binance and
// CryptoCompare work without keys at reduced rate limits.
type ProviderConfig struct {
	AlphaVantageKey  string `json:"-"`
	CryptoCompareKey string `json:"-"`
}

type ScannerConfig struct {
	ScanIntervalSeconds int      `json:"scan_interval_seconds"`
	StartupGraceSeconds int      `json:"startup_grace_seconds"`
	ScanDeadlineSeconds int      `json:"scan_deadline_seconds"`
	SummaryHourUTC      int      `json:"daily_summary_hour_utc"`
	Symbols             []string `json:"symbols"`
	// AdapterOverrides pins a symbol to a named adapter, e.g.
	// "XAUUSD=alpha_vantage".
	AdapterOverrides map[string]string `json:"adapter_overrides"`
}

type NotificationConfig struct {
	TelegramBotToken  string `json:"-"`
	TelegramChatID    string `json:"telegram_chat_id"`
	TelegramEnabled   bool   `json:"telegram_enabled"`
	DiscordWebhookURL string `json:"-"`
	DiscordEnabled    bool   `json:"discord_enabled"`
}

type MacroConfig struct {
	Enabled   bool   `json:"enabled"`
	CachePath string `json:"cache_path"`
}

type LoggingConfig struct {
	Level      string `json:"level"`
	Output     string `json:"output"`
	JSONFormat bool   `json:"json_format"`
}

var defaultSymbols = []string{"BTCUSDT", "ETHUSDT", "XAUUSD", "EURUSD"}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("API_HOST", "0.0.0.0"),
			Port:           getEnvInt("API_PORT", 8080),
			ProductionMode: getEnvBool("PRODUCTION_MODE", false),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "marketvision"),
			Password: getEnv("DB_PASSWORD", "marketvision"),
			Name:     getEnv("DB_NAME", "marketvision"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Providers: ProviderConfig{
			AlphaVantageKey:  getEnv("ALPHA_VANTAGE_API_KEY", ""),
			CryptoCompareKey: getEnv("CRYPTOCOMPARE_API_KEY", ""),
		},
		Scanner: ScannerConfig{
			ScanIntervalSeconds: getEnvInt("SCAN_INTERVAL_SECONDS", 300),
			StartupGraceSeconds: getEnvInt("STARTUP_GRACE_SECONDS", 30),
			ScanDeadlineSeconds: getEnvInt("SCAN_DEADLINE_SECONDS", 90),
			SummaryHourUTC:      getEnvInt("DAILY_SUMMARY_HOUR_UTC", 22),
			Symbols:             getEnvList("WATCHED_SYMBOLS", defaultSymbols),
			AdapterOverrides:    getEnvPairs("ADAPTER_OVERRIDES"),
		},
		Notifications: NotificationConfig{
			TelegramBotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID:    getEnv("TELEGRAM_CHAT_ID", ""),
			TelegramEnabled:   getEnvBool("TELEGRAM_ENABLED", false),
			DiscordWebhookURL: getEnv("DISCORD_WEBHOOK_URL", ""),
			DiscordEnabled:    getEnvBool("DISCORD_ENABLED", false),
		},
		Macro: MacroConfig{
			Enabled:   getEnvBool("MACRO_ENABLED", true),
			CachePath: getEnv("MACRO_CACHE_PATH", "data/macro_cache.json"),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			JSONFormat: getEnvBool("LOG_JSON", false),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid API_PORT %d", c.Server.Port)
	}
	if len(c.Scanner.Symbols) == 0 {
		return fmt.Errorf("config: WATCHED_SYMBOLS must name at least one symbol")
	}
	if c.Scanner.SummaryHourUTC < 0 || c.Scanner.SummaryHourUTC > 23 {
		return fmt.Errorf("config: DAILY_SUMMARY_HOUR_UTC %d out of range", c.Scanner.SummaryHourUTC)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// getEnvList splits a comma separated value, trimming whitespace and
// uppercasing symbols.
func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.ToUpper(strings.TrimSpace(part)); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// getEnvPairs parses "KEY=value,KEY=value" into a map.
func getEnvPairs(key string) map[string]string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(v, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		sym := strings.ToUpper(strings.TrimSpace(kv[0]))
		name := strings.TrimSpace(kv[1])
		if sym != "" && name != "" {
			out[sym] = name
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
