package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/pkg/utils"
	"github.com/shopspring/decimal"
)

func newBybitServer(t *testing.T, handlers map[string]http.HandlerFunc) *BybitClient {
	t.Helper()
	mux := http.NewServeMux()
	for path, h := range handlers {
		mux.HandleFunc(path, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewBybitClient("key", "secret", srv.URL, 100)
}

func writeResult(w http.ResponseWriter, result interface{}) {
	raw, _ := json.Marshal(result)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"retCode": 0,
		"retMsg":  "OK",
		"result":  json.RawMessage(raw),
	})
}

func TestBybitClient_GetTickerPrice(t *testing.T) {
	client := newBybitServer(t, map[string]http.HandlerFunc{
		"/v5/market/tickers": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
				t.Errorf("symbol = %q, want BTCUSDT", got)
			}
			if r.Header.Get("X-BAPI-SIGN") != "" {
				t.Errorf("public endpoint should not be signed")
			}
			writeResult(w, map[string]interface{}{
				"list": []map[string]string{{"symbol": "BTCUSDT", "lastPrice": "65000.5"}},
			})
		},
	})

	price, err := client.GetTickerPrice(context.Background(), "btc")
	if err != nil {
		t.Fatalf("GetTickerPrice() error = %v", err)
	}
	if !price.Equal(decimal.RequireFromString("65000.5")) {
		t.Errorf("price = %s, want 65000.5", price)
	}
}

func TestBybitClient_APIError(t *testing.T) {
	client := newBybitServer(t, map[string]http.HandlerFunc{
		"/v5/market/tickers": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"retCode":10001,"retMsg":"params error","result":{}}`))
		},
	})

	_, err := client.GetTickerPrice(context.Background(), "BTC")
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("error = %v, want ErrProvider", err)
	}
}

func TestBybitClient_GetBalances(t *testing.T) {
	client := newBybitServer(t, map[string]http.HandlerFunc{
		"/v5/account/wallet-balance": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-BAPI-API-KEY") != "key" || r.Header.Get("X-BAPI-SIGN") == "" {
				t.Errorf("wallet request is not signed")
			}
			writeResult(w, map[string]interface{}{
				"list": []map[string]interface{}{{
					"coin": []map[string]string{
						{"coin": "BTC", "walletBalance": "0.5", "locked": "0.1", "availableToWithdraw": ""},
						{"coin": "USDT", "walletBalance": "1000", "locked": "0", "availableToWithdraw": "900"},
					},
				}},
			})
		},
		"/v5/earn/position": func(w http.ResponseWriter, r *http.Request) {
			writeResult(w, map[string]interface{}{
				"list": []map[string]string{{"coin": "ETH", "amount": "2"}},
			})
		},
	})

	balances, err := client.GetBalances(context.Background())
	if err != nil {
		t.Fatalf("GetBalances() error = %v", err)
	}

	tests := []struct {
		coin      string
		total     string
		available string
		staked    string
	}{
		{"BTC", "0.5", "0.4", "0"},
		{"USDT", "1000", "900", "0"},
		{"ETH", "2", "0", "2"},
	}
	for _, tt := range tests {
		b := balances[tt.coin]
		if !b.Total.Equal(decimal.RequireFromString(tt.total)) ||
			!b.Available.Equal(decimal.RequireFromString(tt.available)) ||
			!b.Staked.Equal(decimal.RequireFromString(tt.staked)) {
			t.Errorf("%s balance = %+v, want total %s available %s staked %s", tt.coin, b, tt.total, tt.available, tt.staked)
		}
	}
}

func TestBybitClient_GetBalancesWithoutEarn(t *testing.T) {
	client := newBybitServer(t, map[string]http.HandlerFunc{
		"/v5/account/wallet-balance": func(w http.ResponseWriter, r *http.Request) {
			writeResult(w, map[string]interface{}{
				"list": []map[string]interface{}{{
					"coin": []map[string]string{{"coin": "USDT", "walletBalance": "1000", "locked": "0", "availableToWithdraw": "1000"}},
				}},
			})
		},
		"/v5/earn/position": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"retCode":10005,"retMsg":"permission denied","result":{}}`))
		},
	})
	var logs bytes.Buffer
	client.SetLogger(utils.NewLoggerWithWriter("warn", &logs))

	balances, err := client.GetBalances(context.Background())
	if err != nil {
		t.Fatalf("GetBalances() error = %v, want wallet balances without Earn", err)
	}
	if b := balances["USDT"]; !b.Total.Equal(decimal.NewFromInt(1000)) || !b.Staked.IsZero() {
		t.Errorf("USDT balance = %+v", b)
	}
	if !strings.Contains(logs.String(), "Earn positions unavailable") || !strings.Contains(logs.String(), "permission denied") {
		t.Errorf("log = %q, want Earn warning", logs.String())
	}
}

func TestBybitClient_PlaceMarketOrder(t *testing.T) {
	var created map[string]string
	client := newBybitServer(t, map[string]http.HandlerFunc{
		"/v5/order/create": func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", r.Method)
			}
			body, _ := io.ReadAll(r.Body)
			json.Unmarshal(body, &created)
			writeResult(w, map[string]string{"orderId": "abc-1"})
		},
		"/v5/order/realtime": func(w http.ResponseWriter, r *http.Request) {
			writeResult(w, map[string]interface{}{
				"list": []map[string]string{{
					"orderId":     "abc-1",
					"orderStatus": "Filled",
					"avgPrice":    "50000",
					"cumExecQty":  "0.002",
					"cumExecFee":  "0.1",
				}},
			})
		},
	})

	result, err := client.PlaceMarketOrder(context.Background(), MarketOrderRequest{
		Asset:       "BTC",
		Side:        domain.SideBuy,
		QuoteAmount: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("PlaceMarketOrder() error = %v", err)
	}

	if created["side"] != "Buy" || created["marketUnit"] != "quoteCoin" || created["qty"] != "100" {
		t.Errorf("order params = %v", created)
	}
	if !result.Success || result.OrderID != "abc-1" {
		t.Errorf("result = %+v", result)
	}
	if !result.FilledAmount.Equal(decimal.RequireFromString("0.002")) || !result.FilledPrice.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("fill = %s @ %s", result.FilledAmount, result.FilledPrice)
	}
}

func TestBybitClient_PlaceMarketOrderValidation(t *testing.T) {
	client := NewBybitClient("key", "secret", "http://127.0.0.1:1", 100)

	_, err := client.PlaceMarketOrder(context.Background(), MarketOrderRequest{Asset: "BTC", Side: domain.SideSell})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}
