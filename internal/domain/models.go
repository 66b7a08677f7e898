package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxLot представляет покупку актива, из которой списываются продажи
type TaxLot struct {
	ID                int64           `db:"id"`
	Asset             string          `db:"asset"`
	Quantity          decimal.Decimal `db:"quantity"`
	RemainingQuantity decimal.Decimal `db:"remaining_quantity"`
	CostPerUnit       decimal.Decimal `db:"cost_per_unit"`
	TotalCost         decimal.Decimal `db:"total_cost"`
	PurchaseDate      time.Time       `db:"purchase_date"`
	Source            string          `db:"source"`
}

// IsOpen true пока у лота есть остаток
func (l TaxLot) IsOpen() bool {
	return l.RemainingQuantity.IsPositive()
}

// LotConsumption часть продажи, списанная с одного лота
type LotConsumption struct {
	LotID        int64           `db:"lot_id"`
	Quantity     decimal.Decimal `db:"quantity"`
	CostPerUnit  decimal.Decimal `db:"cost_per_unit"`
	CostBasis    decimal.Decimal `db:"cost_basis"`
	Proceeds     decimal.Decimal `db:"proceeds"`
	PurchaseDate time.Time       `db:"purchase_date"`
	IsLongTerm   bool            `db:"is_long_term"`
}

// GainLoss результат по этой части продажи
func (c LotConsumption) GainLoss() decimal.Decimal {
	return c.Proceeds.Sub(c.CostBasis)
}

// DisposalRecord неизменяемая запись о продаже
type DisposalRecord struct {
	ID               int64            `db:"id"`
	Asset            string           `db:"asset"`
	Quantity         decimal.Decimal  `db:"quantity"`
	SalePricePerUnit decimal.Decimal  `db:"sale_price_per_unit"`
	TotalProceeds    decimal.Decimal  `db:"proceeds"`
	TotalCostBasis   decimal.Decimal  `db:"cost_basis"`
	GainLoss         decimal.Decimal  `db:"gain_loss"`
	ShortTermGain    decimal.Decimal  `db:"short_term_gain"`
	LongTermGain     decimal.Decimal  `db:"long_term_gain"`
	IsLongTerm       bool             `db:"is_long_term"` // все списанные лоты долгосрочные
	SaleDate         time.Time        `db:"sale_date"`
	Source           string           `db:"source"`
	LotsConsumed     []LotConsumption `db:"-"`
}

// TradeRecord результат одного вызова ExecuteTrade
type TradeRecord struct {
	ID             int64           `db:"id"`
	ProductID      string          `db:"product_id"`
	Asset          string          `db:"asset"`
	Side           string          `db:"side"`
	RequestedUSD   decimal.Decimal `db:"requested_usd"`
	RequestedAsset decimal.Decimal `db:"requested_asset"`
	Executed       bool            `db:"executed"`
	FillPrice      decimal.Decimal `db:"fill_price"`
	FillAmount     decimal.Decimal `db:"fill_amount"`
	FillUSD        decimal.Decimal `db:"fill_usd"`
	Fee            decimal.Decimal `db:"fee"`
	OrderID        string          `db:"order_id"`
	Mode           string          `db:"mode"`
	Reason         string          `db:"reason"`
	Error          string          `db:"error"`
	CreatedAt      time.Time       `db:"created_at"`
}

// SafetyCounters состояние дневных лимитов и cooldown одного шлюза
type SafetyCounters struct {
	DailyTrades    int
	DailyVolumeUSD decimal.Decimal
	DailyResetTime time.Time
	LastTradeTime  map[string]time.Time
}

// Balance баланс одной валюты на бирже
type Balance struct {
	Currency  string
	Total     decimal.Decimal
	Available decimal.Decimal
	Staked    decimal.Decimal
}

// OrderResult ответ биржи на market ордер
type OrderResult struct {
	Success      bool
	FilledAmount decimal.Decimal
	FilledPrice  decimal.Decimal
	Fee          decimal.Decimal
	OrderID      string
	Error        string
}

// Order обобщенный ордер слоя маршрутизации
type Order struct {
	ID              string
	Symbol          string
	Side            string
	Type            string
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	Status          string
	FilledQuantity  decimal.Decimal
	FilledPrice     decimal.Decimal
	Fee             decimal.Decimal
	Exchange        string
	ExchangeOrderID string
	Error           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SourceBalance доля позиции на одной бирже
type SourceBalance struct {
	Total     decimal.Decimal
	Available decimal.Decimal
	Staked    decimal.Decimal
}

// Position агрегированная позиция по активу
type Position struct {
	Asset     string
	Total     decimal.Decimal
	Available decimal.Decimal
	Staked    decimal.Decimal
	Price     decimal.Decimal
	USDValue  decimal.Decimal
	Sources   map[string]SourceBalance
}

// RebalanceTrade предложенная сделка для возврата к целевому распределению
type RebalanceTrade struct {
	Asset       string
	Side        string
	USDAmount   decimal.Decimal
	AssetAmount decimal.Decimal
	Drift       decimal.Decimal
}

// PortfolioSnapshot результат одной синхронизации
type PortfolioSnapshot struct {
	Timestamp            time.Time
	Positions            map[string]Position
	TotalUSDValue        decimal.Decimal
	Prices               map[string]decimal.Decimal
	TargetAllocation     map[string]decimal.Decimal
	ActualAllocation     map[string]decimal.Decimal
	Drift                map[string]decimal.Decimal
	ExpectedAnnualYield  decimal.Decimal
	RebalanceSuggestions []RebalanceTrade
	FailedSources        []string
}

// Alert событие для внешнего диспетчера уведомлений
type Alert struct {
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Priority  string    `json:"priority"`
}
