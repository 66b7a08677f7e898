package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillm/tradeguard/internal/domain"
)

// AccountingMethod порядок списания лотов при продаже
type AccountingMethod int

const (
	// FIFO первыми продаются самые старые лоты
	FIFO AccountingMethod = iota
	// LIFO первыми продаются самые новые лоты
	LIFO
	// HIFO первыми продаются самые дорогие лоты, при равной цене старые
	HIFO
)

func (m AccountingMethod) String() string {
	switch m {
	case FIFO:
		return "fifo"
	case LIFO:
		return "lifo"
	case HIFO:
		return "hifo"
	default:
		return "unknown"
	}
}

// ParseAccountingMethod разбирает имя метода
func ParseAccountingMethod(s string) (AccountingMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fifo", "":
		return FIFO, nil
	case "lifo":
		return LIFO, nil
	case "hifo":
		return HIFO, nil
	default:
		return 0, fmt.Errorf("%w: unknown accounting method %q", domain.ErrValidation, s)
	}
}

// order сортирует лоты в порядке списания. ID задает порядок вставки
// и разрешает равенство дат.
func (m AccountingMethod) order(lots []domain.TaxLot) {
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		switch m {
		case LIFO:
			if !a.PurchaseDate.Equal(b.PurchaseDate) {
				return a.PurchaseDate.After(b.PurchaseDate)
			}
			return a.ID > b.ID
		case HIFO:
			if !a.CostPerUnit.Equal(b.CostPerUnit) {
				return a.CostPerUnit.GreaterThan(b.CostPerUnit)
			}
			if !a.PurchaseDate.Equal(b.PurchaseDate) {
				return a.PurchaseDate.Before(b.PurchaseDate)
			}
			return a.ID < b.ID
		default:
			if !a.PurchaseDate.Equal(b.PurchaseDate) {
				return a.PurchaseDate.Before(b.PurchaseDate)
			}
			return a.ID < b.ID
		}
	})
}
