package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// Tier лимит вызовов за окно
type Tier struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// Config уровни лимитов по категориям ресурсов
type Config struct {
	Trading   Tier            `yaml:"trading"`
	Analysis  Tier            `yaml:"analysis"`
	Export    Tier            `yaml:"export"`
	Default   Tier            `yaml:"default"`
	Overrides map[string]Tier `yaml:"overrides"`
}

// DefaultConfig от самого строгого к самому мягкому
func DefaultConfig() Config {
	return Config{
		Trading:  Tier{Limit: 10, Window: time.Minute},
		Analysis: Tier{Limit: 30, Window: time.Minute},
		Export:   Tier{Limit: 60, Window: time.Minute},
		Default:  Tier{Limit: 120, Window: time.Minute},
	}
}

var (
	tradingKeywords  = []string{"trade", "buy", "sell", "order", "rebalance", "execute"}
	analysisKeywords = []string{"analy", "sync", "portfolio", "price", "balance", "gain", "drift"}
	exportKeywords   = []string{"export", "report", "summary", "history"}
)

type key struct {
	identifier string
	resource   string
}

type entry struct {
	count       int
	windowStart time.Time
	tier        Tier
}

// Limiter скользящее окно на пару (identifier, resource)
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	entries map[key]*entry
	now     func() time.Time
}

// NewLimiter создает limiter, нулевые уровни заменяются значениями по умолчанию
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.Trading.Limit <= 0 || cfg.Trading.Window <= 0 {
		cfg.Trading = def.Trading
	}
	if cfg.Analysis.Limit <= 0 || cfg.Analysis.Window <= 0 {
		cfg.Analysis = def.Analysis
	}
	if cfg.Export.Limit <= 0 || cfg.Export.Window <= 0 {
		cfg.Export = def.Export
	}
	if cfg.Default.Limit <= 0 || cfg.Default.Window <= 0 {
		cfg.Default = def.Default
	}
	return &Limiter{
		cfg:     cfg,
		entries: make(map[key]*entry),
		now:     time.Now,
	}
}

// SetClock подменяет источник времени
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// TierFor возвращает лимит для ресурса по его имени
func (l *Limiter) TierFor(resource string) Tier {
	if t, ok := l.cfg.Overrides[resource]; ok && t.Limit > 0 && t.Window > 0 {
		return t
	}
	name := strings.ToLower(resource)
	switch {
	case containsAny(name, tradingKeywords):
		return l.cfg.Trading
	case containsAny(name, analysisKeywords):
		return l.cfg.Analysis
	case containsAny(name, exportKeywords):
		return l.cfg.Export
	default:
		return l.cfg.Default
	}
}

// Check увеличивает счетчик и возвращает false когда лимит исчерпан
func (l *Limiter) Check(identifier, resource string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entryLocked(identifier, resource)
	if e.count >= e.tier.Limit {
		return false
	}
	e.count++
	return true
}

// Remaining возвращает оставшиеся вызовы и время до сброса окна
func (l *Limiter) Remaining(identifier, resource string) (int, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key{identifier, resource}]
	if !ok {
		t := l.TierFor(resource)
		return t.Limit, 0
	}

	now := l.now()
	elapsed := now.Sub(e.windowStart)
	if elapsed >= e.tier.Window {
		return e.tier.Limit, 0
	}

	remaining := e.tier.Limit - e.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, e.tier.Window - elapsed
}

// Reset сбрасывает счетчик ключа
func (l *Limiter) Reset(identifier, resource string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key{identifier, resource})
}

// Cleanup удаляет ключи с истекшим окном (вызывать периодически)
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for k, e := range l.entries {
		if now.Sub(e.windowStart) >= e.tier.Window {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

func (l *Limiter) entryLocked(identifier, resource string) *entry {
	now := l.now()
	k := key{identifier, resource}

	e, ok := l.entries[k]
	if !ok {
		e = &entry{windowStart: now, tier: l.TierFor(resource)}
		l.entries[k] = e
		return e
	}

	// Окно истекло, начинаем новое
	if now.Sub(e.windowStart) >= e.tier.Window {
		e.count = 0
		e.windowStart = now
	}
	return e
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
