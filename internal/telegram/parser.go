package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/shopspring/decimal"
)

// CommandArgs представляет распарсенные аргументы команды
type CommandArgs struct {
	Command string
	Asset   string
	Amount  decimal.Decimal // USD для buy, количество актива для sell
	Year    int
	Count   int
	Reason  string
	Raw     []string
}

// Commands
const (
	CmdStart      = "start"
	CmdHelp       = "help"
	CmdStatus     = "status"
	CmdHistory    = "history"
	CmdPortfolio  = "portfolio"
	CmdRebalance  = "rebalance"
	CmdBuy        = "buy"
	CmdSell       = "sell"
	CmdGains      = "gains"
	CmdUnrealized = "unrealized"
	CmdAlerts     = "alerts"
	CmdKill       = "kill"
	CmdResume     = "resume"
)

const (
	defaultHistoryCount = 10
	maxHistoryCount     = 50
)

// quoteSuffixes срезаются с тикеров вида BTCUSDT
var quoteSuffixes = []string{"USDT", "USDC", "USD"}

// ParseCommand парсит команду и аргументы
func ParseCommand(text string) (*CommandArgs, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil, fmt.Errorf("not a command")
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := parts[0][1:]
	// /buy@my_bot в группах
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	args := &CommandArgs{
		Command: normalizeCommand(cmd),
		Raw:     parts[1:],
	}

	switch args.Command {
	case CmdStart, CmdHelp, CmdStatus, CmdPortfolio, CmdRebalance, CmdUnrealized, CmdResume:
		return args, nil

	case CmdHistory, CmdAlerts:
		// /history [N]
		args.Count = defaultHistoryCount
		if len(parts) >= 2 {
			n, err := strconv.Atoi(parts[1])
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("usage: /%s [N]", args.Command)
			}
			args.Count = min(n, maxHistoryCount)
		}
		return args, nil

	case CmdBuy, CmdSell:
		// /buy BTC 100 (USD), /sell BTC 0.01 (количество)
		if len(parts) < 3 {
			unit := "USD"
			if args.Command == CmdSell {
				unit = "QTY"
			}
			return nil, fmt.Errorf("usage: /%s ASSET %s", args.Command, unit)
		}
		args.Asset = normalizeAsset(parts[1])
		amount, err := parseAmount(parts[2])
		if err != nil {
			return nil, err
		}
		args.Amount = amount
		return args, nil

	case CmdGains:
		// /gains [YEAR], без года сводка за все годы
		if len(parts) >= 2 {
			year, err := strconv.Atoi(parts[1])
			if err != nil || year < 2009 || year > 9999 {
				return nil, fmt.Errorf("usage: /gains [YEAR]")
			}
			args.Year = year
		}
		return args, nil

	case CmdKill:
		// /kill [reason...]
		args.Reason = strings.Join(parts[1:], " ")
		if args.Reason == "" {
			args.Reason = "manual stop"
		}
		return args, nil

	default:
		return nil, fmt.Errorf("unknown command: %s", cmd)
	}
}

// normalizeAsset BTCUSDT, btc-usd и BTC дают BTC
func normalizeAsset(symbol string) string {
	asset := domain.BaseAsset(symbol)
	for _, suffix := range quoteSuffixes {
		if len(asset) > len(suffix) && strings.HasSuffix(asset, suffix) {
			return strings.TrimSuffix(asset, suffix)
		}
	}
	return asset
}

// normalizeCommand нормализует команду (поддержка русского языка)
func normalizeCommand(cmd string) string {
	cmd = strings.ToLower(strings.TrimSpace(cmd))

	ruToEn := map[string]string{
		"статус":      CmdStatus,
		"история":     CmdHistory,
		"портфель":    CmdPortfolio,
		"помощь":      CmdHelp,
		"купить":      CmdBuy,
		"продать":     CmdSell,
		"ребаланс":    CmdRebalance,
		"прибыль":     CmdGains,
		"стоп":        CmdKill,
		"продолжить":  CmdResume,
		"killswitch":  CmdKill,
		"panicstop":   CmdKill,
		"tax":         CmdGains,
		"balance":     CmdPortfolio,
		"sync":        CmdPortfolio,
		"notify":      CmdAlerts,
		"unrealised":  CmdUnrealized,
		"nonrealized": CmdUnrealized,
	}

	if enCmd, ok := ruToEn[cmd]; ok {
		return enCmd
	}

	return cmd
}

// parseAmount положительное десятичное число; допускается запятая и знак $
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	s = strings.Replace(s, ",", ".", 1)

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}
