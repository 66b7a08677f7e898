package telegram

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/internal/execution"
	"github.com/kirillm/tradeguard/pkg/utils"
)

func buttonData(t *testing.T, msg tgbotapi.MessageConfig, idx int) string {
	t.Helper()
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("reply markup = %T, want inline keyboard", msg.ReplyMarkup)
	}
	return *kb.InlineKeyboard[0][idx].CallbackData
}

func waitMessage(t *testing.T, api *fakeAPI) tgbotapi.MessageConfig {
	t.Helper()
	select {
	case msg := <-api.sentCh:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message sent")
		return tgbotapi.MessageConfig{}
	}
}

func confirmAsync(c *Confirmer, ctx context.Context) chan bool {
	result := make(chan bool, 1)
	go func() {
		result <- c.Confirm(ctx, execution.TradeRequest{ProductID: "BTC-USD", Side: domain.SideBuy, USDAmount: d("100")}, d("50000"), d("100"))
	}()
	return result
}

func TestConfirmer_Approve(t *testing.T) {
	api := newFakeAPI()
	c := NewConfirmer(api, 100, NewFormatter(LangEN), time.Minute, utils.NewNopLogger())

	result := confirmAsync(c, context.Background())
	msg := waitMessage(t, api)
	if msg.ChatID != 100 || !strings.Contains(msg.Text, "BUY $100.00 BTC-USD") {
		t.Errorf("confirmation message = %+v", msg)
	}

	reply, handled := c.Resolve(buttonData(t, msg, 0))
	if !handled || reply != "Confirmed" {
		t.Errorf("Resolve = %q, %v", reply, handled)
	}
	if !<-result {
		t.Error("Confirm should return true after approval")
	}
	if c.Pending() != 0 {
		t.Errorf("pending = %d, want 0", c.Pending())
	}

	// повторное нажатие после ответа
	if reply, _ := c.Resolve(buttonData(t, msg, 0)); reply != "Confirmation expired" {
		t.Errorf("second Resolve = %q", reply)
	}
}

func TestConfirmer_Cancel(t *testing.T) {
	api := newFakeAPI()
	c := NewConfirmer(api, 100, NewFormatter(LangEN), time.Minute, utils.NewNopLogger())

	result := confirmAsync(c, context.Background())
	msg := waitMessage(t, api)

	if reply, handled := c.Resolve(buttonData(t, msg, 1)); !handled || reply != "Cancelled" {
		t.Errorf("Resolve = %q, %v", reply, handled)
	}
	if <-result {
		t.Error("Confirm should return false after cancel")
	}
}

func TestConfirmer_Timeout(t *testing.T) {
	api := newFakeAPI()
	c := NewConfirmer(api, 100, NewFormatter(LangEN), 20*time.Millisecond, utils.NewNopLogger())

	result := confirmAsync(c, context.Background())
	waitMessage(t, api)

	if <-result {
		t.Error("Confirm should return false on timeout")
	}
	if expired := waitMessage(t, api); !strings.Contains(expired.Text, "expired") {
		t.Errorf("expiry notice = %q", expired.Text)
	}
}

func TestConfirmer_ContextCancel(t *testing.T) {
	api := newFakeAPI()
	c := NewConfirmer(api, 100, NewFormatter(LangEN), time.Minute, utils.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	result := confirmAsync(c, ctx)
	waitMessage(t, api)
	cancel()

	if <-result {
		t.Error("Confirm should return false when ctx is cancelled")
	}
}

func TestConfirmer_ResolveForeignCallback(t *testing.T) {
	c := NewConfirmer(newFakeAPI(), 100, NewFormatter(LangEN), time.Minute, utils.NewNopLogger())
	if _, handled := c.Resolve("menu:portfolio"); handled {
		t.Error("foreign callback must not be handled")
	}
}
