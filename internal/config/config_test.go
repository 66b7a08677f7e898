package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if cfg.Mode != "paper" {
		t.Errorf("Mode = %q, want paper", cfg.Mode)
	}
	if cfg.Database.Driver != DriverMemory {
		t.Errorf("Database.Driver = %q, want memory", cfg.Database.Driver)
	}
	if cfg.Engine.CacheTTL != 30*time.Second {
		t.Errorf("CacheTTL = %v, want 30s", cfg.Engine.CacheTTL)
	}
	if cfg.Engine.SyncInterval != 15*time.Minute {
		t.Errorf("SyncInterval = %v, want 15m", cfg.Engine.SyncInterval)
	}
	if len(cfg.Bybit.Accounts) != 1 || cfg.Bybit.Accounts[0].Name != "main" {
		t.Errorf("Accounts = %+v, want single main account", cfg.Bybit.Accounts)
	}
	if cfg.Telegram.Enabled() {
		t.Errorf("Telegram should be disabled without token")
	}
	if cfg.Telegram.ConfirmTimeout != 2*time.Minute {
		t.Errorf("ConfirmTimeout = %v, want 2m", cfg.Telegram.ConfirmTimeout)
	}
	if cfg.API.Port != 0 {
		t.Errorf("API.Port = %d, want 0 (disabled)", cfg.API.Port)
	}
	if cfg.Telegram.Lang != "en" {
		t.Errorf("Lang = %q, want en", cfg.Telegram.Lang)
	}
}

func TestFromEnv_TelegramConsole(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("TELEGRAM_CHAT_ID", "-100200")
	t.Setenv("TG_ADMINS", "1,2")
	t.Setenv("DEFAULT_LANG", "RU")
	t.Setenv("CONFIRM_TIMEOUT", "45s")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if !cfg.Telegram.Enabled() || cfg.Telegram.ChatID != -100200 {
		t.Errorf("Telegram = %+v", cfg.Telegram)
	}
	if cfg.Telegram.Admins != "1,2" || cfg.Telegram.Lang != "ru" || cfg.Telegram.ConfirmTimeout != 45*time.Second {
		t.Errorf("Telegram console = %+v", cfg.Telegram)
	}
}

func TestFromEnv_Accounts(t *testing.T) {
	t.Setenv("BYBIT_ACCOUNTS", "main, Savings")
	t.Setenv("BYBIT_API_KEY", "main-key")
	t.Setenv("BYBIT_API_SECRET", "main-secret")
	t.Setenv("BYBIT_SAVINGS_API_KEY", "sav-key")
	t.Setenv("BYBIT_SAVINGS_API_SECRET", "sav-secret")
	t.Setenv("TRADING_MODE", "LIVE")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if cfg.Mode != "live" {
		t.Errorf("Mode = %q, want live", cfg.Mode)
	}
	want := []BybitAccount{
		{Name: "main", APIKey: "main-key", APISecret: "main-secret"},
		{Name: "savings", APIKey: "sav-key", APISecret: "sav-secret"},
	}
	if len(cfg.Bybit.Accounts) != len(want) {
		t.Fatalf("Accounts = %+v, want %+v", cfg.Bybit.Accounts, want)
	}
	for i := range want {
		if cfg.Bybit.Accounts[i] != want[i] {
			t.Errorf("Accounts[%d] = %+v, want %+v", i, cfg.Bybit.Accounts[i], want[i])
		}
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad mode", map[string]string{"TRADING_MODE": "yolo"}, "TRADING_MODE"},
		{"bad driver", map[string]string{"DB_DRIVER": "mongo"}, "DB_DRIVER"},
		{"postgres without password", map[string]string{"DB_DRIVER": "postgres"}, "DB_PASSWORD"},
		{"live without keys", map[string]string{"TRADING_MODE": "live"}, "API key"},
		{"bad ttl", map[string]string{"CACHE_TTL": "soon"}, "CACHE_TTL"},
		{"bad rps", map[string]string{"EXCHANGE_RPS": "0"}, "EXCHANGE_RPS"},
		{"bad chat id", map[string]string{"TELEGRAM_CHAT_ID": "abc"}, "TELEGRAM_CHAT_ID"},
		{"bad api port", map[string]string{"API_PORT": "70000"}, "API_PORT"},
		{"bad confirm timeout", map[string]string{"CONFIRM_TIMEOUT": "0s"}, "CONFIRM_TIMEOUT"},
		{"confirm without telegram", map[string]string{
			"TRADING_MODE":     "confirm",
			"BYBIT_API_KEY":    "k",
			"BYBIT_API_SECRET": "s",
		}, "confirm mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			if err == nil {
				t.Fatalf("FromEnv() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("FromEnv() error = %v, want to contain %q", err, tt.wantErr)
			}
		})
	}
}
