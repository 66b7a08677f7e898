package telegram

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/pkg/utils"
)

func commandUpdate(userID, chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
	}}
}

func startBot(t *testing.T, api *fakeAPI, engine Engine, cfg BotConfig) (*Bot, context.CancelFunc, chan struct{}) {
	t.Helper()
	bot := newBot(api, 100, engine, cfg, utils.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bot.Start(ctx)
		close(done)
	}()
	return bot, cancel, done
}

func TestBot_AnswersCommands(t *testing.T) {
	api := newFakeAPI()
	_, cancel, done := startBot(t, api, newFakeEngine(), BotConfig{Lang: LangEN})

	api.updates <- commandUpdate(7, 555, "/status")
	api.updates <- commandUpdate(7, 100, "hello")
	api.updates <- commandUpdate(7, 100, "/status")

	msg := waitMessage(t, api)
	if msg.ChatID != 100 || !strings.Contains(msg.Text, "Mode: paper") {
		t.Errorf("reply = %+v", msg)
	}

	cancel()
	<-done

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.sent) != 1 {
		t.Errorf("sent %d messages, want only the reply from the bound chat", len(api.sent))
	}
	if !api.stopped {
		t.Error("updates should be stopped on shutdown")
	}
}

func TestBot_ConfirmModeRoundTrip(t *testing.T) {
	api := newFakeAPI()
	engine := newFakeEngine()
	bot, cancel, done := startBot(t, api, engine, BotConfig{Lang: LangEN, Admins: "7"})
	engine.confirmer = bot.Confirmer()

	api.updates <- commandUpdate(7, 100, "/buy BTC 100")

	request := waitMessage(t, api)
	data := buttonData(t, request, 0)

	// не-админ не может подтвердить
	api.updates <- tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "cb1", From: &tgbotapi.User{ID: 8}, Data: data}}
	api.updates <- tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb2",
		From:    &tgbotapi.User{ID: 7},
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: 100}, Text: request.Text},
	}}

	reply := waitMessage(t, api)
	if !strings.Contains(reply.Text, "Executed: BUY") {
		t.Errorf("trade reply = %q", reply.Text)
	}

	cancel()
	<-done

	answers := api.callbackAnswers()
	if len(answers) != 2 || answers[0] != "Admin permission required" || answers[1] != "Confirmed" {
		t.Errorf("callback answers = %v", answers)
	}
	if len(engine.trades) != 1 || engine.trades[0].Side != domain.SideBuy {
		t.Errorf("trades = %+v", engine.trades)
	}
}

func TestBot_ClosedUpdatesStops(t *testing.T) {
	api := newFakeAPI()
	_, cancel, done := startBot(t, api, newFakeEngine(), BotConfig{})
	defer cancel()

	close(api.updates)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop after updates channel closed")
	}
}
