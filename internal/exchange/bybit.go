package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/pkg/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	bybitCategorySpot     = "spot"
	bybitAccountUnified   = "UNIFIED"
	bybitEarnFlexible     = "FlexibleSaving"
	bybitRecvWindow       = "5000"
	bybitDefaultQuoteCoin = "USDT"
)

// BybitClient клиент Bybit v5 API для спота
type BybitClient struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	quoteCoin  string
	client     *http.Client
	limiter    *rate.Limiter
	recvWindow string
	now        func() time.Time
	logger     *utils.Logger
}

type bybitEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

type tickerResult struct {
	List []struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	} `json:"list"`
}

type walletBalanceResult struct {
	List []struct {
		Coin []struct {
			Coin                string `json:"coin"`
			WalletBalance       string `json:"walletBalance"`
			Locked              string `json:"locked"`
			AvailableToWithdraw string `json:"availableToWithdraw"`
		} `json:"coin"`
	} `json:"list"`
}

type earnPositionResult struct {
	List []struct {
		Coin   string `json:"coin"`
		Amount string `json:"amount"`
	} `json:"list"`
}

type orderCreateResult struct {
	OrderID string `json:"orderId"`
}

type orderRealtimeResult struct {
	List []struct {
		OrderID      string `json:"orderId"`
		OrderStatus  string `json:"orderStatus"`
		AvgPrice     string `json:"avgPrice"`
		CumExecQty   string `json:"cumExecQty"`
		CumExecFee   string `json:"cumExecFee"`
		RejectReason string `json:"rejectReason"`
	} `json:"list"`
}

// NewBybitClient создает клиента; rps ограничивает частоту исходящих запросов
func NewBybitClient(apiKey, apiSecret, baseURL string, rps float64) *BybitClient {
	if rps <= 0 {
		rps = 10
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &BybitClient{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    strings.TrimRight(baseURL, "/"),
		quoteCoin:  bybitDefaultQuoteCoin,
		client:     &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		recvWindow: bybitRecvWindow,
		now:        time.Now,
		logger:     utils.NewNopLogger(),
	}
}

func (b *BybitClient) SetLogger(logger *utils.Logger) {
	b.logger = logger
}

// SetQuoteCoin меняет котируемую валюту пар (по умолчанию USDT)
func (b *BybitClient) SetQuoteCoin(coin string) {
	b.quoteCoin = strings.ToUpper(coin)
}

func (b *BybitClient) pair(symbol string) string {
	return strings.ToUpper(symbol) + b.quoteCoin
}

// GetTickerPrice получает последнюю цену актива к котируемой валюте
func (b *BybitClient) GetTickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("category", bybitCategorySpot)
	params.Set("symbol", b.pair(symbol))

	var result tickerResult
	if err := b.get(ctx, "/v5/market/tickers", params, false, &result); err != nil {
		return decimal.Zero, err
	}

	if len(result.List) == 0 || result.List[0].LastPrice == "" {
		return decimal.Zero, fmt.Errorf("%w: no price data for symbol %s", domain.ErrProvider, b.pair(symbol))
	}

	price, err := decimal.NewFromString(result.List[0].LastPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse price for %s: %w", symbol, err)
	}

	return price, nil
}

// GetBalances получает балансы единого аккаунта и позиции Earn (staked)
func (b *BybitClient) GetBalances(ctx context.Context) (map[string]domain.Balance, error) {
	params := url.Values{}
	params.Set("accountType", bybitAccountUnified)

	var wallet walletBalanceResult
	if err := b.get(ctx, "/v5/account/wallet-balance", params, true, &wallet); err != nil {
		return nil, err
	}

	balances := make(map[string]domain.Balance)
	for _, account := range wallet.List {
		for _, c := range account.Coin {
			total := parseDecimal(c.WalletBalance)
			// availableToWithdraw бывает пустым для UTA 2.0
			available := total.Sub(parseDecimal(c.Locked))
			if c.AvailableToWithdraw != "" {
				available = parseDecimal(c.AvailableToWithdraw)
			}
			coin := strings.ToUpper(c.Coin)
			bal := balances[coin]
			bal.Currency = coin
			bal.Total = bal.Total.Add(total)
			bal.Available = bal.Available.Add(available)
			balances[coin] = bal
		}
	}

	earnParams := url.Values{}
	earnParams.Set("category", bybitEarnFlexible)

	// ключи без прав на Earn получают ошибку, тогда staked остается нулевым
	var earn earnPositionResult
	if err := b.get(ctx, "/v5/earn/position", earnParams, true, &earn); err != nil {
		b.logger.Warn("Earn positions unavailable, staked balances omitted: %v", err)
		return balances, nil
	}
	for _, p := range earn.List {
		coin := strings.ToUpper(p.Coin)
		amount := parseDecimal(p.Amount)
		bal := balances[coin]
		bal.Currency = coin
		bal.Total = bal.Total.Add(amount)
		bal.Staked = bal.Staked.Add(amount)
		balances[coin] = bal
	}

	return balances, nil
}

// PlaceMarketOrder размещает рыночный ордер и запрашивает итог исполнения
func (b *BybitClient) PlaceMarketOrder(ctx context.Context, req MarketOrderRequest) (*domain.OrderResult, error) {
	params := map[string]string{
		"category":  bybitCategorySpot,
		"symbol":    b.pair(req.Asset),
		"orderType": "Market",
	}

	switch {
	case req.Side == domain.SideBuy && req.QuoteAmount.IsPositive():
		params["side"] = "Buy"
		params["qty"] = req.QuoteAmount.String()
		params["marketUnit"] = "quoteCoin"
	case req.Amount.IsPositive():
		params["side"] = "Sell"
		if req.Side == domain.SideBuy {
			params["side"] = "Buy"
		}
		params["qty"] = req.Amount.String()
		params["marketUnit"] = "baseCoin"
	default:
		return nil, fmt.Errorf("%w: order for %s needs a positive amount", domain.ErrValidation, req.Asset)
	}

	jsonData, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	var created orderCreateResult
	if err := b.do(ctx, http.MethodPost, "/v5/order/create", "", string(jsonData), true, &created); err != nil {
		return nil, err
	}

	result := &domain.OrderResult{
		Success: true,
		OrderID: created.OrderID,
	}

	// Итог исполнения не обязателен: ордер уже принят биржей
	query := url.Values{}
	query.Set("category", bybitCategorySpot)
	query.Set("orderId", created.OrderID)

	var realtime orderRealtimeResult
	if err := b.get(ctx, "/v5/order/realtime", query, true, &realtime); err == nil && len(realtime.List) > 0 {
		info := realtime.List[0]
		if info.OrderStatus == "Rejected" || (info.OrderStatus == "Cancelled" && parseDecimal(info.CumExecQty).IsZero()) {
			result.Success = false
			result.Error = fmt.Sprintf("order %s: %s", info.OrderStatus, info.RejectReason)
			return result, nil
		}
		result.FilledAmount = parseDecimal(info.CumExecQty)
		result.FilledPrice = parseDecimal(info.AvgPrice)
		result.Fee = parseDecimal(info.CumExecFee)
	}

	return result, nil
}

func (b *BybitClient) get(ctx context.Context, endpoint string, params url.Values, signed bool, out interface{}) error {
	return b.do(ctx, http.MethodGet, endpoint, params.Encode(), "", signed, out)
}

// do выполняет запрос, проверяет retCode и разбирает result в out
func (b *BybitClient) do(ctx context.Context, method, endpoint, query, body string, signed bool, out interface{}) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	fullURL := b.baseURL + endpoint
	if query != "" {
		fullURL += "?" + query
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed {
		timestamp := strconv.FormatInt(b.now().UnixMilli(), 10)
		payload := query
		if method == http.MethodPost {
			payload = body
		}
		b.setAuthHeaders(req, timestamp, b.generateSignature(timestamp, payload))
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to execute request: %v", domain.ErrProvider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", domain.ErrProvider, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned HTTP %d", domain.ErrProvider, endpoint, resp.StatusCode)
	}

	var envelope bybitEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if envelope.RetCode != 0 {
		return fmt.Errorf("%w: %s", domain.ErrProvider, envelope.RetMsg)
	}

	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}

// generateSignature генерирует подпись для запросов (GET и POST)
func (b *BybitClient) generateSignature(timestamp, payload string) string {
	message := timestamp + b.apiKey + b.recvWindow + payload
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// setAuthHeaders устанавливает заголовки авторизации для запроса
func (b *BybitClient) setAuthHeaders(req *http.Request, timestamp, signature string) {
	req.Header.Set("X-BAPI-API-KEY", b.apiKey)
	req.Header.Set("X-BAPI-SIGN", signature)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", b.recvWindow)
}

// parseDecimal пустая или некорректная строка дает ноль
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
