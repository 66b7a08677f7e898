package policy

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/internal/ratelimit"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultRiskProfiles встроенные профили, используются без policy.yaml
func DefaultRiskProfiles() map[string]RiskProfile {
	return map[string]RiskProfile{
		"conservative": {
			MaxTradeUSD:              decimal.NewFromInt(100),
			MaxDailyVolumeUSD:        decimal.NewFromInt(500),
			MaxTradesPerDay:          5,
			Cooldown:                 5 * time.Minute,
			FeeRate:                  decimal.RequireFromString("0.006"),
			SlippageThresholdPercent: decimal.RequireFromString("0.5"),
			MaxConsecutiveFailures:   2,
		},
		"moderate": {
			MaxTradeUSD:              decimal.NewFromInt(500),
			MaxDailyVolumeUSD:        decimal.NewFromInt(2000),
			MaxTradesPerDay:          10,
			Cooldown:                 time.Minute,
			FeeRate:                  decimal.RequireFromString("0.006"),
			SlippageThresholdPercent: decimal.NewFromInt(1),
			MaxConsecutiveFailures:   3,
		},
		"aggressive": {
			MaxTradeUSD:              decimal.NewFromInt(2000),
			MaxDailyVolumeUSD:        decimal.NewFromInt(10000),
			MaxTradesPerDay:          30,
			Cooldown:                 10 * time.Second,
			FeeRate:                  decimal.RequireFromString("0.006"),
			SlippageThresholdPercent: decimal.NewFromInt(2),
			MaxConsecutiveFailures:   5,
		},
	}
}

// DefaultPortfolio распределение по умолчанию
func DefaultPortfolio() PortfolioPolicy {
	return PortfolioPolicy{
		TargetAllocation: map[string]decimal.Decimal{
			"BTC":            decimal.RequireFromString("0.5"),
			"ETH":            decimal.RequireFromString("0.3"),
			domain.AssetCash: decimal.RequireFromString("0.2"),
		},
		DriftThreshold:   decimal.RequireFromString("0.05"),
		MinTradeUSD:      decimal.NewFromInt(10),
		MaxTradeFraction: decimal.RequireFromString("0.25"),
		StakingAPY:       map[string]decimal.Decimal{},
		CashCurrencies:   append([]string(nil), domain.DefaultStablecoins...),
		Routes:           map[string]string{},
		DefaultRoute:     "main",
	}
}

// Default полная политика без файла
func Default(profile string) (*Policy, error) {
	if profile == "" {
		profile = "moderate"
	}
	risk, ok := DefaultRiskProfiles()[profile]
	if !ok {
		return nil, fmt.Errorf("policy profile %s not found", profile)
	}
	return &Policy{
		ProfileName: profile,
		Risk:        risk,
		Portfolio:   DefaultPortfolio(),
		RateLimits:  ratelimit.DefaultConfig(),
	}, nil
}

// Load загружает policy из YAML, отсутствующий файл означает встроенные значения
func Load(path, profile string) (*Policy, error) {
	if profile == "" {
		profile = "moderate"
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(profile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
	}

	return Parse(data, profile)
}

// Parse разбирает содержимое policy.yaml
func Parse(data []byte, profile string) (*Policy, error) {
	var cfg file
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	profiles := DefaultRiskProfiles()
	for name, p := range cfg.RiskProfiles {
		profiles[name] = p
	}

	risk, ok := profiles[profile]
	if !ok {
		return nil, fmt.Errorf("policy profile %s not found", profile)
	}

	p := &Policy{
		ProfileName: profile,
		Risk:        risk,
		Portfolio:   DefaultPortfolio(),
		RateLimits:  ratelimit.DefaultConfig(),
	}
	if cfg.Portfolio != nil {
		p.Portfolio = mergePortfolio(p.Portfolio, *cfg.Portfolio)
	}
	if cfg.RateLimits != nil {
		p.RateLimits = *cfg.RateLimits
	}

	p.normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// mergePortfolio заданные в файле поля заменяют значения по умолчанию
func mergePortfolio(base, override PortfolioPolicy) PortfolioPolicy {
	if len(override.TargetAllocation) > 0 {
		base.TargetAllocation = override.TargetAllocation
	}
	if !override.DriftThreshold.IsZero() {
		base.DriftThreshold = override.DriftThreshold
	}
	if !override.MinTradeUSD.IsZero() {
		base.MinTradeUSD = override.MinTradeUSD
	}
	if !override.MaxTradeFraction.IsZero() {
		base.MaxTradeFraction = override.MaxTradeFraction
	}
	if override.StakingAPY != nil {
		base.StakingAPY = override.StakingAPY
	}
	if len(override.CashCurrencies) > 0 {
		base.CashCurrencies = override.CashCurrencies
	}
	if override.Routes != nil {
		base.Routes = override.Routes
	}
	if override.DefaultRoute != "" {
		base.DefaultRoute = override.DefaultRoute
	}
	return base
}

// normalize приводит символы активов к верхнему регистру
func (p *Policy) normalize() {
	upper := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	p.Risk.Whitelist = upper(p.Risk.Whitelist)
	p.Risk.Blacklist = upper(p.Risk.Blacklist)
	p.Portfolio.CashCurrencies = upper(p.Portfolio.CashCurrencies)

	target := make(map[string]decimal.Decimal, len(p.Portfolio.TargetAllocation))
	for asset, w := range p.Portfolio.TargetAllocation {
		target[strings.ToUpper(asset)] = w
	}
	p.Portfolio.TargetAllocation = target

	apy := make(map[string]decimal.Decimal, len(p.Portfolio.StakingAPY))
	for asset, v := range p.Portfolio.StakingAPY {
		apy[strings.ToUpper(asset)] = v
	}
	p.Portfolio.StakingAPY = apy

	routes := make(map[string]string, len(p.Portfolio.Routes))
	for symbol, account := range p.Portfolio.Routes {
		routes[strings.ToUpper(symbol)] = strings.ToLower(account)
	}
	p.Portfolio.Routes = routes
	p.Portfolio.DefaultRoute = strings.ToLower(p.Portfolio.DefaultRoute)
}

// Validate проверяет лимиты и сумму целевого распределения
func (p *Policy) Validate() error {
	r := p.Risk
	if !r.MaxTradeUSD.IsPositive() {
		return fmt.Errorf("profile %s: max_trade_usd must be positive", p.ProfileName)
	}
	if !r.MaxDailyVolumeUSD.IsPositive() {
		return fmt.Errorf("profile %s: max_daily_volume_usd must be positive", p.ProfileName)
	}
	if r.MaxTradesPerDay <= 0 {
		return fmt.Errorf("profile %s: max_trades_per_day must be positive", p.ProfileName)
	}
	if r.Cooldown < 0 {
		return fmt.Errorf("profile %s: cooldown must not be negative", p.ProfileName)
	}
	if r.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("profile %s: max_consecutive_failures must not be negative", p.ProfileName)
	}
	if r.FeeRate.IsNegative() || r.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("profile %s: fee_rate must be in [0, 1)", p.ProfileName)
	}

	sum := decimal.Zero
	for asset, w := range p.Portfolio.TargetAllocation {
		if w.IsNegative() {
			return fmt.Errorf("target allocation for %s must not be negative", asset)
		}
		sum = sum.Add(w)
	}
	if len(p.Portfolio.TargetAllocation) > 0 && sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(decimal.RequireFromString("0.001")) {
		return fmt.Errorf("target allocation must sum to 1, got %s", sum)
	}
	if p.Portfolio.MaxTradeFraction.IsNegative() || p.Portfolio.MaxTradeFraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("max_trade_fraction must be in [0, 1]")
	}
	return nil
}
