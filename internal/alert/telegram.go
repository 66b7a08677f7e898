package alert

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/kirillm/tradeguard/internal/domain"
)

// TelegramMaxLength лимит длины одного сообщения Bot API
const TelegramMaxLength = 4096

// sender часть tgbotapi.BotAPI, нужная для отправки
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink отправляет алерты в чат Telegram
type TelegramSink struct {
	api    sender
	chatID int64
}

// NewTelegramSink авторизует бота по токену
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramSink{api: bot, chatID: chatID}, nil
}

func (s *TelegramSink) Send(ctx context.Context, alert domain.Alert) error {
	for _, text := range SplitMessage(Format(alert), TelegramMaxLength) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.api.Send(tgbotapi.NewMessage(s.chatID, text)); err != nil {
			return fmt.Errorf("failed to send telegram message to chat %d: %w", s.chatID, err)
		}
	}
	return nil
}

// Format текст алерта для чата
func Format(alert domain.Alert) string {
	var sb strings.Builder
	sb.WriteString(priorityIcon(alert.Priority))
	sb.WriteString(" ")
	sb.WriteString(alert.Title)
	sb.WriteString("\n")
	sb.WriteString(alert.Message)
	sb.WriteString(fmt.Sprintf("\n\n%s · %s", alert.Type, alert.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC")))
	return sb.String()
}

func priorityIcon(priority string) string {
	switch priority {
	case domain.PriorityCritical:
		return "🚨"
	case domain.PriorityHigh:
		return "⚠️"
	case domain.PriorityLow:
		return "ℹ️"
	default:
		return "🔔"
	}
}

// SplitMessage делит длинный текст по строкам
func SplitMessage(text string, maxLength int) []string {
	if len(text) <= maxLength {
		return []string{text}
	}

	var messages []string
	current := ""
	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLength {
			if current != "" {
				messages = append(messages, current)
				current = ""
			}
			messages = append(messages, line[:maxLength])
			line = line[maxLength:]
		}
		if current != "" && len(current)+len(line)+1 > maxLength {
			messages = append(messages, current)
			current = line
			continue
		}
		if current != "" {
			current += "\n"
		}
		current += line
	}
	if current != "" {
		messages = append(messages, current)
	}
	return messages
}
