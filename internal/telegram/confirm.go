package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/kirillm/tradeguard/internal/execution"
	"github.com/kirillm/tradeguard/pkg/utils"
	"github.com/shopspring/decimal"
)

const (
	callbackConfirm = "trade:confirm:"
	callbackCancel  = "trade:cancel:"

	DefaultConfirmTimeout = 2 * time.Minute
)

// sender часть tgbotapi.BotAPI для отправки сообщений
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Confirmer запрашивает подтверждение сделки inline-кнопками в чате.
// Без ответа до таймаута сделка считается отклоненной.
type Confirmer struct {
	api       sender
	chatID    int64
	formatter *Formatter
	timeout   time.Duration
	logger    *utils.Logger

	mu      sync.Mutex
	pending map[string]chan bool
}

// NewConfirmer timeout <= 0 означает DefaultConfirmTimeout
func NewConfirmer(api sender, chatID int64, formatter *Formatter, timeout time.Duration, logger *utils.Logger) *Confirmer {
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	return &Confirmer{
		api:       api,
		chatID:    chatID,
		formatter: formatter,
		timeout:   timeout,
		logger:    logger,
		pending:   make(map[string]chan bool),
	}
}

// Confirm блокирует до ответа оператора, таймаута или отмены ctx
func (c *Confirmer) Confirm(ctx context.Context, req execution.TradeRequest, price, notionalUSD decimal.Decimal) bool {
	id := uuid.NewString()
	answer := make(chan bool, 1)

	c.mu.Lock()
	c.pending[id] = answer
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	msg := tgbotapi.NewMessage(c.chatID, c.formatter.FormatConfirmRequest(req, price, notionalUSD))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ "+c.formatter.T("confirm"), callbackConfirm+id),
			tgbotapi.NewInlineKeyboardButtonData("❌ "+c.formatter.T("cancel"), callbackCancel+id),
		),
	)
	if _, err := c.api.Send(msg); err != nil {
		c.logger.Error("Failed to send confirmation request for %s %s: %v", req.Side, req.ProductID, err)
		return false
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case approved := <-answer:
		c.logger.Info("Trade %s %s confirmed=%v", req.Side, req.ProductID, approved)
		return approved
	case <-timer.C:
		c.logger.Warn("Confirmation for %s %s expired after %v", req.Side, req.ProductID, c.timeout)
		c.api.Send(tgbotapi.NewMessage(c.chatID, "⌛ "+c.formatter.T("expired")))
		return false
	case <-ctx.Done():
		return false
	}
}

// Resolve обрабатывает callback data кнопок; handled=false для чужих callback
func (c *Confirmer) Resolve(data string) (reply string, handled bool) {
	var id string
	var approved bool
	switch {
	case strings.HasPrefix(data, callbackConfirm):
		id, approved = strings.TrimPrefix(data, callbackConfirm), true
	case strings.HasPrefix(data, callbackCancel):
		id = strings.TrimPrefix(data, callbackCancel)
	default:
		return "", false
	}

	c.mu.Lock()
	answer, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return c.formatter.T("expired"), true
	}

	answer <- approved
	if approved {
		return c.formatter.T("confirmed"), true
	}
	return c.formatter.T("cancelled"), true
}

// Pending число ожидающих подтверждений
func (c *Confirmer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
