package policy

import (
	"time"

	"github.com/kirillm/tradeguard/internal/ratelimit"
	"github.com/shopspring/decimal"
)

// Policy активный профиль риска вместе с настройками портфеля и лимитов вызовов
type Policy struct {
	ProfileName string
	Risk        RiskProfile
	Portfolio   PortfolioPolicy
	RateLimits  ratelimit.Config
}

// RiskProfile лимиты безопасности шлюза
type RiskProfile struct {
	MaxTradeUSD              decimal.Decimal `yaml:"max_trade_usd"`
	MaxDailyVolumeUSD        decimal.Decimal `yaml:"max_daily_volume_usd"`
	MaxTradesPerDay          int             `yaml:"max_trades_per_day"`
	Cooldown                 time.Duration   `yaml:"cooldown"`
	Whitelist                []string        `yaml:"whitelist"`
	Blacklist                []string        `yaml:"blacklist"`
	FeeRate                  decimal.Decimal `yaml:"fee_rate"`                   // комиссия paper-сделок
	SlippageThresholdPercent decimal.Decimal `yaml:"slippage_threshold_percent"` // порог предупреждения
	MaxConsecutiveFailures   int             `yaml:"max_consecutive_failures"`   // ордеров подряд до kill switch, 0 = выкл
}

// PortfolioPolicy целевое распределение и параметры ребалансировки
type PortfolioPolicy struct {
	TargetAllocation map[string]decimal.Decimal `yaml:"target_allocation"`
	DriftThreshold   decimal.Decimal            `yaml:"drift_threshold"`
	MinTradeUSD      decimal.Decimal            `yaml:"min_trade_usd"`
	MaxTradeFraction decimal.Decimal            `yaml:"max_trade_fraction"`
	StakingAPY       map[string]decimal.Decimal `yaml:"staking_apy"` // чистая доходность, 0.05 = 5%
	CashCurrencies   []string                   `yaml:"cash_currencies"`
	Routes           map[string]string          `yaml:"routes"` // символ -> аккаунт биржи
	DefaultRoute     string                     `yaml:"default_route"`
}

// file структура policy.yaml
type file struct {
	RiskProfiles map[string]RiskProfile `yaml:"risk_profiles"`
	Portfolio    *PortfolioPolicy       `yaml:"portfolio"`
	RateLimits   *ratelimit.Config      `yaml:"rate_limits"`
}
