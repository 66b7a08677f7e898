package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/internal/ratelimit"
)

// resourceCommand ресурс RateLimiter для входящих команд
const resourceCommand = "telegram_command"

// AuthManager управляет правами доступа и частотой команд
type AuthManager struct {
	adminIDs        map[int64]bool
	whitelist       map[int64]bool
	enableWhitelist bool
	limiter         *ratelimit.Limiter
	mu              sync.RWMutex
}

// NewAuthManager разбирает списки ID через запятую; limiter может быть nil
func NewAuthManager(adminIDsStr, whitelistStr string, limiter *ratelimit.Limiter) *AuthManager {
	am := &AuthManager{
		adminIDs:  parseIDs(adminIDsStr),
		whitelist: parseIDs(whitelistStr),
		limiter:   limiter,
	}
	am.enableWhitelist = strings.TrimSpace(whitelistStr) != ""
	return am
}

func parseIDs(list string) map[int64]bool {
	ids := make(map[int64]bool)
	for _, idStr := range strings.Split(list, ",") {
		idStr = strings.TrimSpace(idStr)
		if idStr == "" {
			continue
		}
		if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
			ids[id] = true
		}
	}
	return ids
}

// Caller идентификатор пользователя для RateLimiter движка
func Caller(userID int64) string {
	return fmt.Sprintf("tg:%d", userID)
}

// IsAdmin проверяет, является ли пользователь администратором
func (am *AuthManager) IsAdmin(userID int64) bool {
	am.mu.RLock()
	defer am.mu.RUnlock()

	// Если список админов пуст, разрешаем всем
	if len(am.adminIDs) == 0 {
		return true
	}

	return am.adminIDs[userID]
}

// IsAllowed проверяет, разрешен ли доступ пользователю
func (am *AuthManager) IsAllowed(userID int64) bool {
	am.mu.RLock()
	defer am.mu.RUnlock()

	if !am.enableWhitelist {
		return true
	}

	// Админы всегда разрешены
	if am.adminIDs[userID] {
		return true
	}

	return am.whitelist[userID]
}

// CheckRateLimit ограничивает частоту команд одного пользователя
func (am *AuthManager) CheckRateLimit(userID int64) error {
	if am.limiter == nil {
		return nil
	}
	caller := Caller(userID)
	if am.limiter.Check(caller, resourceCommand) {
		return nil
	}
	_, reset := am.limiter.Remaining(caller, resourceCommand)
	return fmt.Errorf("%w, please wait %v", domain.ErrRateLimited, reset.Round(time.Second))
}

// RequireAdmin возвращает ошибку, если пользователь не администратор
func (am *AuthManager) RequireAdmin(userID int64) error {
	if !am.IsAdmin(userID) {
		return fmt.Errorf("access denied: admin permission required")
	}
	return nil
}

// AddAdmin добавляет администратора
func (am *AuthManager) AddAdmin(userID int64) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.adminIDs[userID] = true
}

// RemoveAdmin удаляет администратора
func (am *AuthManager) RemoveAdmin(userID int64) {
	am.mu.Lock()
	defer am.mu.Unlock()
	delete(am.adminIDs, userID)
}

// CleanupRateLimiters очищает истекшие счетчики (вызывать периодически)
func (am *AuthManager) CleanupRateLimiters() int {
	if am.limiter == nil {
		return 0
	}
	return am.limiter.Cleanup()
}
