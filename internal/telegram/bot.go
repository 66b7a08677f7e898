package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/kirillm/tradeguard/internal/alert"
	"github.com/kirillm/tradeguard/internal/ratelimit"
	"github.com/kirillm/tradeguard/pkg/utils"
)

// botAPI часть tgbotapi.BotAPI, которую использует бот
type botAPI interface {
	sender
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// BotConfig параметры операторского бота
type BotConfig struct {
	Admins         string // ID через запятую, пусто = все
	Whitelist      string
	Lang           Lang
	ConfirmTimeout time.Duration
	Limiter        *ratelimit.Limiter
}

// Bot операторская консоль: команды движка и подтверждение сделок в режиме confirm
type Bot struct {
	api         botAPI
	chatID      int64
	logger      *utils.Logger
	router      *Router
	authManager *AuthManager
	formatter   *Formatter
	confirmer   *Confirmer

	wg sync.WaitGroup
}

// NewBot авторизует бота по токену
func NewBot(token string, chatID int64, engine Engine, cfg BotConfig, logger *utils.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger.Info("Telegram bot authorized: @%s", api.Self.UserName)

	return newBot(api, chatID, engine, cfg, logger), nil
}

func newBot(api botAPI, chatID int64, engine Engine, cfg BotConfig, logger *utils.Logger) *Bot {
	formatter := NewFormatter(cfg.Lang)
	authManager := NewAuthManager(cfg.Admins, cfg.Whitelist, cfg.Limiter)

	router := NewRouter(authManager, formatter)
	registerHandlers(router, NewHandlers(engine, formatter))

	return &Bot{
		api:         api,
		chatID:      chatID,
		logger:      logger,
		router:      router,
		authManager: authManager,
		formatter:   formatter,
		confirmer:   NewConfirmer(api, chatID, formatter, cfg.ConfirmTimeout, logger),
	}
}

// Confirmer подтверждение сделок для шлюза
func (b *Bot) Confirmer() *Confirmer {
	return b.confirmer
}

// Start обрабатывает обновления до отмены ctx
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	cleanup := time.NewTicker(time.Minute)
	defer cleanup.Stop()

	b.logger.Info("Telegram bot started")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			b.logger.Info("Telegram bot stopped")
			return

		case <-cleanup.C:
			b.authManager.CleanupRateLimiters()

		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

// handleMessage команды выполняются в отдельной горутине: сделка в режиме confirm
// ждет callback, который приходит через этот же цикл
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.Chat == nil || message.From == nil {
		return
	}
	if b.chatID != 0 && message.Chat.ID != b.chatID {
		b.logger.Warn("Ignoring message from chat %d", message.Chat.ID)
		return
	}
	if !strings.HasPrefix(message.Text, "/") {
		return
	}

	userID, chatID, text := message.From.ID, message.Chat.ID, message.Text
	b.logger.Info("Command from %d: %s", userID, text)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.sendToChat(chatID, b.router.HandleCommand(ctx, userID, text))
	}()
}

func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	if query.From == nil {
		return
	}

	reply := b.formatter.T("admin_required")
	if b.authManager.IsAdmin(query.From.ID) {
		text, handled := b.confirmer.Resolve(query.Data)
		if !handled {
			return
		}
		reply = text

		if query.Message != nil && query.Message.Chat != nil {
			edit := tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, query.Message.Text+"\n\n"+reply)
			if _, err := b.api.Request(edit); err != nil {
				b.logger.Warn("Failed to update confirmation message: %v", err)
			}
		}
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, reply)); err != nil {
		b.logger.Warn("Failed to answer callback: %v", err)
	}
}

// SendMessage отправляет сообщение в основной чат
func (b *Bot) SendMessage(text string) {
	b.sendToChat(b.chatID, text)
}

func (b *Bot) sendToChat(chatID int64, text string) {
	for _, part := range alert.SplitMessage(text, alert.TelegramMaxLength) {
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			b.logger.Error("Failed to send telegram message: %v", err)
			return
		}
	}
}
