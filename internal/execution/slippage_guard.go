package execution

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrSlippageTooHigh = errors.New("slippage exceeds threshold")

var hundred = decimal.NewFromInt(100)

// SlippageGuard сравнивает цену исполнения с ценой на момент проверки
type SlippageGuard struct {
	thresholdPercent decimal.Decimal
}

// NewSlippageGuard создает новый slippage guard
func NewSlippageGuard(thresholdPercent decimal.Decimal) *SlippageGuard {
	return &SlippageGuard{
		thresholdPercent: thresholdPercent,
	}
}

// CheckSlippage проверяет приемлемость проскальзывания
func (sg *SlippageGuard) CheckSlippage(actualPrice, expectedPrice decimal.Decimal) error {
	if !expectedPrice.IsPositive() {
		return fmt.Errorf("invalid expected price: %s", expectedPrice)
	}

	slippage := sg.CalculateSlippage(actualPrice, expectedPrice)
	if slippage.GreaterThan(sg.thresholdPercent) {
		return fmt.Errorf("%w: %s%% (threshold: %s%%)", ErrSlippageTooHigh, slippage.StringFixed(2), sg.thresholdPercent.StringFixed(2))
	}

	return nil
}

// CalculateSlippage вычисляет процент проскальзывания
func (sg *SlippageGuard) CalculateSlippage(actualPrice, expectedPrice decimal.Decimal) decimal.Decimal {
	if !expectedPrice.IsPositive() {
		return decimal.Zero
	}

	return actualPrice.Sub(expectedPrice).Div(expectedPrice).Mul(hundred).Abs()
}

// SetThreshold устанавливает новый порог
func (sg *SlippageGuard) SetThreshold(thresholdPercent decimal.Decimal) {
	sg.thresholdPercent = thresholdPercent
}

// Threshold возвращает текущий порог
func (sg *SlippageGuard) Threshold() decimal.Decimal {
	return sg.thresholdPercent
}
