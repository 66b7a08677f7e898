package telegram

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/internal/execution"
	"github.com/kirillm/tradeguard/internal/ledger"
	"github.com/kirillm/tradeguard/internal/portfolio"
	"github.com/shopspring/decimal"
)

// Lang представляет язык
type Lang string

const (
	LangEN Lang = "en"
	LangRU Lang = "ru"
)

// Formatter форматирует ответы для пользователя
type Formatter struct {
	lang Lang
}

// NewFormatter создает новый форматтер
func NewFormatter(lang Lang) *Formatter {
	if lang != LangRU && lang != LangEN {
		lang = LangEN
	}
	return &Formatter{lang: lang}
}

// SetLang устанавливает язык
func (f *Formatter) SetLang(lang Lang) {
	f.lang = lang
}

// GetLang возвращает текущий язык
func (f *Formatter) GetLang() Lang {
	return f.lang
}

var translations = map[string]map[Lang]string{
	"status":          {LangEN: "Status", LangRU: "Статус"},
	"history":         {LangEN: "Trade History", LangRU: "История сделок"},
	"portfolio":       {LangEN: "Portfolio", LangRU: "Портфель"},
	"rebalance":       {LangEN: "Rebalance", LangRU: "Ребалансировка"},
	"realized":        {LangEN: "Realized Gains", LangRU: "Реализованная прибыль"},
	"unrealized":      {LangEN: "Unrealized P&L", LangRU: "Нереализованный P&L"},
	"alerts":          {LangEN: "Recent Alerts", LangRU: "Последние уведомления"},
	"mode":            {LangEN: "Mode", LangRU: "Режим"},
	"trades_today":    {LangEN: "Trades today", LangRU: "Сделок за сутки"},
	"volume_today":    {LangEN: "Volume today", LangRU: "Объем за сутки"},
	"kill_switch":     {LangEN: "Kill switch", LangRU: "Аварийная остановка"},
	"active":          {LangEN: "ACTIVE", LangRU: "ВКЛЮЧЕНА"},
	"inactive":        {LangEN: "off", LangRU: "выкл"},
	"error":           {LangEN: "Error", LangRU: "Ошибка"},
	"rejected":        {LangEN: "Rejected", LangRU: "Отклонено"},
	"executed":        {LangEN: "Executed", LangRU: "Исполнено"},
	"no_trades":       {LangEN: "No trades yet", LangRU: "Нет сделок"},
	"no_alerts":       {LangEN: "No alerts", LangRU: "Нет уведомлений"},
	"no_positions":    {LangEN: "No open lots", LangRU: "Нет открытых лотов"},
	"total":           {LangEN: "Total", LangRU: "Итого"},
	"drift":           {LangEN: "Drift", LangRU: "Отклонение"},
	"yield":           {LangEN: "Expected yield", LangRU: "Ожидаемый доход"},
	"failed_sources":  {LangEN: "Unavailable", LangRU: "Недоступны"},
	"in_balance":      {LangEN: "Portfolio is within target", LangRU: "Портфель в пределах цели"},
	"proceeds":        {LangEN: "Proceeds", LangRU: "Выручка"},
	"cost_basis":      {LangEN: "Cost basis", LangRU: "Себестоимость"},
	"short_term":      {LangEN: "Short-term", LangRU: "Краткосрочная"},
	"long_term":       {LangEN: "Long-term", LangRU: "Долгосрочная"},
	"disposals":       {LangEN: "Disposals", LangRU: "Продаж"},
	"all_years":       {LangEN: "all years", LangRU: "все годы"},
	"confirm_trade":   {LangEN: "Please confirm this trade:", LangRU: "Подтвердите сделку:"},
	"confirm":         {LangEN: "Confirm", LangRU: "Подтвердить"},
	"cancel":          {LangEN: "Cancel", LangRU: "Отмена"},
	"confirmed":       {LangEN: "Confirmed", LangRU: "Подтверждено"},
	"cancelled":       {LangEN: "Cancelled", LangRU: "Отменено"},
	"expired":         {LangEN: "Confirmation expired", LangRU: "Время подтверждения истекло"},
	"access_denied":   {LangEN: "Access denied", LangRU: "Доступ запрещен"},
	"admin_required":  {LangEN: "Admin permission required", LangRU: "Требуются права администратора"},
	"rate_limited":    {LangEN: "Too many requests, please wait", LangRU: "Слишком много запросов, подождите"},
	"trading_halted":  {LangEN: "Trading halted", LangRU: "Торговля остановлена"},
	"trading_resumed": {LangEN: "Trading resumed", LangRU: "Торговля возобновлена"},
}

// T переводит строку
func (f *Formatter) T(key string) string {
	if trans, ok := translations[key]; ok {
		if val, ok := trans[f.lang]; ok {
			return val
		}
	}
	return key
}

// FormatError форматирует ошибку
func (f *Formatter) FormatError(err error) string {
	if errors.Is(err, domain.ErrRateLimited) {
		return fmt.Sprintf("⏳ %s\n%v", f.T("rate_limited"), err)
	}
	return fmt.Sprintf("❌ %s: %v", f.T("error"), err)
}

// FormatTrade результат одной сделки
func (f *Formatter) FormatTrade(rec domain.TradeRecord) string {
	if !rec.Executed {
		return fmt.Sprintf("🚫 %s: %s %s\n%s [%s]", f.T("rejected"), rec.Side, rec.ProductID, rec.Error, rec.Reason)
	}

	emoji := "🟢"
	if rec.Side == domain.SideSell {
		emoji = "🔴"
	}
	return fmt.Sprintf("%s %s: %s %s %s @ $%s\n$%s, fee $%s\n%s [%s]",
		emoji, f.T("executed"), rec.Side, rec.FillAmount.String(), rec.Asset, rec.FillPrice.StringFixed(2),
		rec.FillUSD.StringFixed(2), rec.Fee.StringFixed(2), rec.OrderID, rec.Mode)
}

// FormatSummary режим, счетчики и последние сделки
func (f *Formatter) FormatSummary(s execution.TradeSummary) string {
	var sb strings.Builder

	sb.WriteString("📊 ")
	sb.WriteString(f.T("status"))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("%s: %s\n", f.T("mode"), s.Mode))
	sb.WriteString(fmt.Sprintf("%s: %d/%d\n", f.T("trades_today"), s.TradesToday, s.MaxTradesPerDay))
	sb.WriteString(fmt.Sprintf("%s: $%s / $%s\n", f.T("volume_today"), s.VolumeTodayUSD.StringFixed(2), s.MaxDailyVolumeUSD.StringFixed(2)))

	ks := f.T("inactive")
	if s.KillSwitchActive {
		ks = "⛔ " + f.T("active")
	}
	sb.WriteString(fmt.Sprintf("%s: %s\n", f.T("kill_switch"), ks))

	return sb.String()
}

// FormatHistory последние сделки шлюза
func (f *Formatter) FormatHistory(trades []domain.TradeRecord) string {
	var sb strings.Builder

	sb.WriteString("📜 ")
	sb.WriteString(f.T("history"))
	sb.WriteString("\n\n")

	if len(trades) == 0 {
		sb.WriteString(f.T("no_trades"))
		return sb.String()
	}

	for i, trade := range trades {
		emoji := "🟢"
		if trade.Side == domain.SideSell {
			emoji = "🔴"
		}
		sb.WriteString(fmt.Sprintf("%s %d. %s %s %s @ $%s ($%s)\n", emoji, i+1, trade.Side,
			trade.FillAmount.String(), trade.Asset, trade.FillPrice.StringFixed(2), trade.FillUSD.StringFixed(2)))
		sb.WriteString(fmt.Sprintf("   %s\n", trade.CreatedAt.Format("2006-01-02 15:04")))
	}

	return sb.String()
}

// FormatSnapshot позиции, отклонения и недоступные биржи
func (f *Formatter) FormatSnapshot(snap *domain.PortfolioSnapshot) string {
	var sb strings.Builder

	sb.WriteString("💼 ")
	sb.WriteString(f.T("portfolio"))
	sb.WriteString("\n\n")

	assets := make([]string, 0, len(snap.Positions))
	for asset := range snap.Positions {
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool {
		return snap.Positions[assets[i]].USDValue.GreaterThan(snap.Positions[assets[j]].USDValue)
	})

	for _, asset := range assets {
		pos := snap.Positions[asset]
		sb.WriteString(fmt.Sprintf("%s: %s ($%s) %s%%\n", asset, pos.Total.String(), pos.USDValue.StringFixed(2),
			percent(snap.ActualAllocation[asset])))
	}
	sb.WriteString(fmt.Sprintf("\n%s: $%s\n", f.T("total"), snap.TotalUSDValue.StringFixed(2)))

	if snap.ExpectedAnnualYield.IsPositive() {
		sb.WriteString(fmt.Sprintf("%s: $%s/yr\n", f.T("yield"), snap.ExpectedAnnualYield.StringFixed(2)))
	}

	driftAssets := make([]string, 0, len(snap.Drift))
	for asset := range snap.Drift {
		driftAssets = append(driftAssets, asset)
	}
	sort.Strings(driftAssets)
	if len(driftAssets) > 0 {
		sb.WriteString(fmt.Sprintf("\n%s:\n", f.T("drift")))
		for _, asset := range driftAssets {
			sb.WriteString(fmt.Sprintf("  %s %s%%\n", asset, signedPercent(snap.Drift[asset])))
		}
	}

	if len(snap.FailedSources) > 0 {
		sb.WriteString(fmt.Sprintf("\n⚠️ %s: %s\n", f.T("failed_sources"), strings.Join(snap.FailedSources, ", ")))
	}

	return sb.String()
}

// FormatRebalance итог ребалансировки
func (f *Formatter) FormatRebalance(res *portfolio.RebalanceResult) string {
	if len(res.Proposed) == 0 {
		return "✅ " + f.T("in_balance")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⚖️ %s: %d/%d\n\n", f.T("rebalance"), res.Executed, len(res.Proposed)))
	for _, rec := range res.Trades {
		if rec.Executed {
			sb.WriteString(fmt.Sprintf("✅ %s %s $%s\n", rec.Side, rec.Asset, rec.FillUSD.StringFixed(2)))
		} else {
			sb.WriteString(fmt.Sprintf("🚫 %s %s: %s\n", rec.Side, domain.BaseAsset(rec.ProductID), rec.Error))
		}
	}
	return sb.String()
}

// FormatRealized налоговая сводка
func (f *Formatter) FormatRealized(s ledger.RealizedSummary) string {
	period := f.T("all_years")
	if s.Year != 0 {
		period = fmt.Sprintf("%d", s.Year)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🧾 %s (%s)\n\n", f.T("realized"), period))
	sb.WriteString(fmt.Sprintf("%s: %d\n", f.T("disposals"), s.Disposals))
	sb.WriteString(fmt.Sprintf("%s: $%s\n", f.T("proceeds"), s.Proceeds.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("%s: $%s\n", f.T("cost_basis"), s.CostBasis.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("%s: $%s\n", f.T("short_term"), s.ShortTerm.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("%s: $%s\n", f.T("long_term"), s.LongTerm.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("%s: $%s\n", f.T("total"), s.Total.StringFixed(2)))
	return sb.String()
}

// FormatUnrealized нереализованный результат открытых лотов
func (f *Formatter) FormatUnrealized(gains map[string]ledger.UnrealizedGain) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📈 %s\n\n", f.T("unrealized")))

	if len(gains) == 0 {
		sb.WriteString(f.T("no_positions"))
		return sb.String()
	}

	assets := make([]string, 0, len(gains))
	for asset := range gains {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	total := decimal.Zero
	for _, asset := range assets {
		g := gains[asset]
		total = total.Add(g.UnrealizedGain)
		sb.WriteString(fmt.Sprintf("%s: $%s → $%s (%s$%s)\n", asset, g.CostBasis.StringFixed(2),
			g.CurrentValue.StringFixed(2), sign(g.UnrealizedGain), g.UnrealizedGain.Abs().StringFixed(2)))
	}
	sb.WriteString(fmt.Sprintf("\n%s: %s$%s\n", f.T("total"), sign(total), total.Abs().StringFixed(2)))
	return sb.String()
}

// FormatAlerts последние уведомления, новые внизу
func (f *Formatter) FormatAlerts(alerts []domain.Alert) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🔔 %s\n\n", f.T("alerts")))

	if len(alerts) == 0 {
		sb.WriteString(f.T("no_alerts"))
		return sb.String()
	}

	for _, a := range alerts {
		sb.WriteString(fmt.Sprintf("[%s] %s %s\n", a.Timestamp.Format("01-02 15:04"), a.Type, a.Title))
	}
	return sb.String()
}

// FormatKillSwitch состояние аварийной остановки
func (f *Formatter) FormatKillSwitch(active bool, reason string, since time.Time) string {
	if !active {
		return "▶️ " + f.T("trading_resumed")
	}
	return fmt.Sprintf("⛔ %s: %s (%s)", f.T("trading_halted"), reason, since.Format("2006-01-02 15:04"))
}

// FormatConfirmRequest текст запроса подтверждения сделки
func (f *Formatter) FormatConfirmRequest(req execution.TradeRequest, price, notional decimal.Decimal) string {
	amount := "$" + req.USDAmount.StringFixed(2)
	if req.Side == domain.SideSell {
		amount = req.AssetAmount.String()
	}
	return fmt.Sprintf("❓ %s\n%s %s %s\n@ $%s ≈ $%s", f.T("confirm_trade"), req.Side, amount,
		req.ProductID, price.StringFixed(2), notional.StringFixed(2))
}

// FormatHelp список команд
func (f *Formatter) FormatHelp() string {
	return `🛡 Commands

/status - mode, daily limits, kill switch
/history [N] - recent trades
/portfolio - sync balances across exchanges
/rebalance - execute suggested trades
/buy ASSET USD - market buy for a USD amount
/sell ASSET QTY - market sell a quantity
/gains [YEAR] - realized gains summary
/unrealized - open lots at current prices
/alerts [N] - recent alerts
/kill [reason] - halt all trading (admin)
/resume - resume trading (admin)`
}

func percent(v decimal.Decimal) string {
	return v.Mul(decimal.NewFromInt(100)).StringFixed(2)
}

func signedPercent(v decimal.Decimal) string {
	if v.IsPositive() {
		return "+" + percent(v)
	}
	return percent(v)
}

func sign(v decimal.Decimal) string {
	if v.IsNegative() {
		return "-"
	}
	return "+"
}
