package domain

import "errors"

var (
	// ErrValidation возвращается при отсутствующих или некорректных параметрах
	ErrValidation = errors.New("validation error")

	// ErrNoLots возвращается при продаже актива без налоговых лотов
	ErrNoLots = errors.New("no lots")

	// ErrInsufficientLots возвращается когда остатка лотов не хватает для продажи
	ErrInsufficientLots = errors.New("insufficient lots")

	// ErrSafetyLimit нарушение лимитов безопасности (blacklist, cooldown, дневные лимиты, размер)
	ErrSafetyLimit = errors.New("safety limit")

	// ErrProvider ошибка биржи или поставщика цен
	ErrProvider = errors.New("provider error")

	// ErrRouting нет адаптера для символа
	ErrRouting = errors.New("routing error")

	// ErrRateLimited превышен лимит запросов
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUnsupported операция не поддерживается для market-only ордеров
	ErrUnsupported = errors.New("unsupported operation")

	// ErrKillSwitchActive торговля остановлена вручную
	ErrKillSwitchActive = errors.New("kill switch is active")

	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("not found")
)

// Reason возвращает короткое имя категории ошибки для TradeRecord
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrKillSwitchActive), errors.Is(err, ErrSafetyLimit):
		return "safety_limit"
	case errors.Is(err, ErrRouting):
		return "routing"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "provider"
	}
}
