package domain

// Trade sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order statuses
const (
	StatusPending   = "PENDING"
	StatusFilled    = "FILLED"
	StatusRejected  = "REJECTED"
	StatusCancelled = "CANCELLED"
)

// Order types
const (
	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"
)

// Trading modes
const (
	ModePaper   = "paper"
	ModeLive    = "live"
	ModeConfirm = "confirm"
)

// Alert types
const (
	AlertDrift     = "drift"
	AlertRebalance = "rebalance"
	AlertTrade     = "trade"
	AlertError     = "error"
)

// Alert priorities
const (
	PriorityLow      = "low"
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Special symbols
const (
	AssetCash     = "CASH"
	QuoteCurrency = "USD"
)

// DefaultStablecoins оцениваются в 1 USD без запроса к бирже
var DefaultStablecoins = []string{"USD", "USDT", "USDC", "DAI", "BUSD", "TUSD", "PYUSD"}
