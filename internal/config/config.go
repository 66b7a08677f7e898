package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит все настройки приложения
type Config struct {
	Mode     string
	Telegram TelegramConfig
	Bybit    BybitConfig
	Database DatabaseConfig
	Engine   EngineConfig
	Policy   PolicyConfig
	API      APIConfig
	LogLevel string
}

// APIConfig HTTP API состояния, Port=0 отключает
type APIConfig struct {
	Port int
}

// TelegramConfig алерты и операторская консоль
type TelegramConfig struct {
	BotToken       string
	ChatID         int64
	Admins         string // ID через запятую, пусто = все
	Whitelist      string
	Lang           string
	ConfirmTimeout time.Duration
}

// Enabled true если заданы токен и чат для алертов
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

// BybitAccount ключи одного аккаунта биржи
type BybitAccount struct {
	Name      string
	APIKey    string
	APISecret string
}

type BybitConfig struct {
	Accounts []BybitAccount
	BaseURL  string
	RPS      float64
}

type DatabaseConfig struct {
	Driver          string // postgres | sqlite | memory
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// EngineConfig параметры фоновой синхронизации и кэша
type EngineConfig struct {
	CacheTTL         time.Duration
	SyncInterval     time.Duration
	AutoRebalance    bool
	AccountingMethod string
}

type PolicyConfig struct {
	Path    string
	Profile string
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Load загружает конфигурацию из .env файла
func Load() (*Config, error) {
	// Загружаем .env файл (если есть)
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	return FromEnv()
}

// FromEnv собирает конфигурацию из переменных окружения процесса
func FromEnv() (*Config, error) {
	chatID, err := strconv.ParseInt(getEnv("TELEGRAM_CHAT_ID", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	maxOpenConns, err := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}

	maxIdleConns, err := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}

	connMaxLifetime, err := time.ParseDuration(getEnv("DB_CONN_MAX_LIFETIME", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}

	rps, err := strconv.ParseFloat(getEnv("EXCHANGE_RPS", "10"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid EXCHANGE_RPS: %w", err)
	}

	cacheTTL, err := time.ParseDuration(getEnv("CACHE_TTL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}

	syncInterval, err := time.ParseDuration(getEnv("SYNC_INTERVAL", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_INTERVAL: %w", err)
	}

	autoRebalance, err := strconv.ParseBool(getEnv("AUTO_REBALANCE", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUTO_REBALANCE: %w", err)
	}

	apiPort, err := strconv.Atoi(getEnv("API_PORT", "0"))
	if err != nil || apiPort < 0 || apiPort > 65535 {
		return nil, fmt.Errorf("invalid API_PORT %q", getEnv("API_PORT", "0"))
	}

	confirmTimeout, err := time.ParseDuration(getEnv("CONFIRM_TIMEOUT", "2m"))
	if err != nil {
		return nil, fmt.Errorf("invalid CONFIRM_TIMEOUT: %w", err)
	}

	config := &Config{
		Mode: strings.ToLower(getEnv("TRADING_MODE", "paper")),
		Telegram: TelegramConfig{
			BotToken:       getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:         chatID,
			Admins:         getEnv("TG_ADMINS", ""),
			Whitelist:      getEnv("TG_CHAT_WHITELIST", ""),
			Lang:           strings.ToLower(getEnv("DEFAULT_LANG", "en")),
			ConfirmTimeout: confirmTimeout,
		},
		Bybit: BybitConfig{
			Accounts: loadAccounts(getEnv("BYBIT_ACCOUNTS", "main")),
			BaseURL:  getEnv("BYBIT_BASE_URL", "https://api.bybit.com"),
			RPS:      rps,
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnv("DB_DRIVER", DriverMemory)),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            dbPort,
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			DBName:          getEnv("DB_NAME", "tradeguard"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			SQLitePath:      getEnv("SQLITE_PATH", "tradeguard.db"),
			MaxOpenConns:    maxOpenConns,
			MaxIdleConns:    maxIdleConns,
			ConnMaxLifetime: connMaxLifetime,
		},
		Engine: EngineConfig{
			CacheTTL:         cacheTTL,
			SyncInterval:     syncInterval,
			AutoRebalance:    autoRebalance,
			AccountingMethod: getEnv("ACCOUNTING_METHOD", "FIFO"),
		},
		Policy: PolicyConfig{
			Path:    getEnv("POLICY_PATH", "policy.yaml"),
			Profile: getEnv("POLICY_PROFILE", "moderate"),
		},
		API:      APIConfig{Port: apiPort},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// loadAccounts читает BYBIT_<ACCOUNT>_API_KEY; для main допускается BYBIT_API_KEY
func loadAccounts(list string) []BybitAccount {
	var accounts []BybitAccount
	for _, name := range strings.Split(list, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		prefix := "BYBIT_" + strings.ToUpper(name) + "_"
		account := BybitAccount{
			Name:      name,
			APIKey:    getEnv(prefix+"API_KEY", ""),
			APISecret: getEnv(prefix+"API_SECRET", ""),
		}
		if name == "main" {
			if account.APIKey == "" {
				account.APIKey = getEnv("BYBIT_API_KEY", "")
			}
			if account.APISecret == "" {
				account.APISecret = getEnv("BYBIT_API_SECRET", "")
			}
		}
		accounts = append(accounts, account)
	}
	return accounts
}

// Validate проверяет обязательные поля конфигурации
func (c *Config) Validate() error {
	switch c.Mode {
	case "paper", "live", "confirm":
	default:
		return fmt.Errorf("invalid TRADING_MODE %q: expected paper, live or confirm", c.Mode)
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required for postgres")
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for sqlite")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid DB_DRIVER %q: expected postgres, sqlite or memory", c.Database.Driver)
	}

	if len(c.Bybit.Accounts) == 0 {
		return fmt.Errorf("BYBIT_ACCOUNTS must name at least one account")
	}
	if c.Mode != "paper" {
		for _, account := range c.Bybit.Accounts {
			if account.APIKey == "" || account.APISecret == "" {
				return fmt.Errorf("API key and secret are required for bybit account %q in %s mode", account.Name, c.Mode)
			}
		}
	}
	if c.Bybit.RPS <= 0 {
		return fmt.Errorf("EXCHANGE_RPS must be positive")
	}
	if c.Engine.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	if c.Engine.SyncInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive")
	}
	if c.Mode == "confirm" && !c.Telegram.Enabled() {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required in confirm mode")
	}
	if c.Telegram.ConfirmTimeout <= 0 {
		return fmt.Errorf("CONFIRM_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
