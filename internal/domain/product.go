package domain

import "strings"

// BaseAsset извлекает базовый актив из product id вида "BTC-USD" или "btc/usdt"
func BaseAsset(productID string) string {
	productID = strings.ToUpper(strings.TrimSpace(productID))
	if i := strings.IndexAny(productID, "-/"); i >= 0 {
		return productID[:i]
	}
	return productID
}

// ProductID собирает product id для пары к USD
func ProductID(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset)) + "-" + QuoteCurrency
}

// IsStablecoin true если валюта оценивается в 1 USD
func IsStablecoin(currency string, stablecoins []string) bool {
	currency = strings.ToUpper(currency)
	for _, s := range stablecoins {
		if s == currency {
			return true
		}
	}
	return false
}
