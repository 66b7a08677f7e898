package pricing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/pkg/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Source источник цен, ноль означает отсутствие цены
type Source interface {
	GetPrice(ctx context.Context, asset string) decimal.Decimal
}

// Service цены в USD; стейблкоины оцениваются в 1 без запроса к источнику
type Service struct {
	source      Source
	stablecoins []string
	parallelism int
	logger      *utils.Logger
}

func NewService(source Source, stablecoins []string, logger *utils.Logger) *Service {
	if len(stablecoins) == 0 {
		stablecoins = domain.DefaultStablecoins
	}
	upper := make([]string, 0, len(stablecoins))
	for _, s := range stablecoins {
		upper = append(upper, strings.ToUpper(s))
	}
	return &Service{
		source:      source,
		stablecoins: upper,
		parallelism: 8,
		logger:      logger,
	}
}

// IsStablecoin true для валют с фиксированной ценой 1
func (s *Service) IsStablecoin(asset string) bool {
	return asset == domain.AssetCash || domain.IsStablecoin(asset, s.stablecoins)
}

// GetPrice цена одного актива
func (s *Service) GetPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	asset = strings.ToUpper(asset)
	if s.IsStablecoin(asset) {
		return decimal.NewFromInt(1), nil
	}

	price := s.source.GetPrice(ctx, asset)
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: no price for %s", domain.ErrProvider, asset)
	}
	return price, nil
}

// GetPrices параллельно запрашивает цены; активы без цены в результат не попадают
func (s *Service) GetPrices(ctx context.Context, assets []string) map[string]decimal.Decimal {
	var (
		mu     sync.Mutex
		prices = make(map[string]decimal.Decimal, len(assets))
		g      errgroup.Group
	)
	g.SetLimit(s.parallelism)

	seen := make(map[string]bool, len(assets))
	for _, asset := range assets {
		asset = strings.ToUpper(asset)
		if seen[asset] {
			continue
		}
		seen[asset] = true

		asset := asset
		g.Go(func() error {
			price, err := s.GetPrice(ctx, asset)
			if err != nil {
				s.logger.Warn("Price unavailable: %v", err)
				return nil
			}
			mu.Lock()
			prices[asset] = price
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return prices
}
