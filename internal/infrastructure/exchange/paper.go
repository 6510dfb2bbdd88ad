package exchange

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitos/crypto_spot_bot/internal/domain"
)

// PaperGateway simulates market execution against the live feed prices.
// Orders never touch a real exchange; fills happen at the latest known
// price with a flat fee rate. Used for dry runs and as the default gateway
// of the harness.
type PaperGateway struct {
	feed            domain.PriceFeed
	settlementAsset string
	feeRate         float64
	feeAsset        string
	logger          *zap.Logger

	mu       sync.Mutex
	balances map[string]float64 // per-asset free balances, settlement included
}

func NewPaperGateway(feed domain.PriceFeed, settlementAsset string, startBalance, feeRate float64, feeAsset string, logger *zap.Logger) *PaperGateway {
	return &PaperGateway{
		feed:            feed,
		settlementAsset: settlementAsset,
		feeRate:         feeRate,
		feeAsset:        feeAsset,
		logger:          logger,
		balances: map[string]float64{
			settlementAsset: startBalance,
		},
	}
}

// SetAssetBalance seeds a free balance, e.g. a fee-asset reserve.
func (p *PaperGateway) SetAssetBalance(asset string, amount float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[asset] = amount
}

func (p *PaperGateway) price(ctx context.Context, pair string) (float64, bool) {
	prices, err := p.feed.LatestPrices(ctx)
	if err != nil {
		return 0, false
	}
	price, ok := prices[pair]
	return price, ok && price > 0
}

func (p *PaperGateway) baseAsset(pair string) string {
	return strings.TrimSuffix(pair, p.settlementAsset)
}

func (p *PaperGateway) MarketBuy(ctx context.Context, pair string, cost float64) (*domain.BuyResult, error) {
	price, ok := p.price(ctx, pair)
	if !ok || cost <= 0 {
		return &domain.BuyResult{Success: false}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.balances[p.settlementAsset] < cost {
		p.logger.Warn("paper buy rejected, insufficient balance",
			zap.String("pair", pair),
			zap.Float64("cost", cost),
			zap.Float64("balance", p.balances[p.settlementAsset]))
		return &domain.BuyResult{Success: false}, nil
	}

	quantity := cost / price
	commission := quantity * p.feeRate
	commissionAsset := p.feeAsset
	if commissionAsset == "" {
		// Fee comes out of the bought quantity, exchange-style.
		quantity -= commission
		commissionAsset = p.baseAsset(pair)
	}

	p.balances[p.settlementAsset] -= cost
	p.balances[p.baseAsset(pair)] += quantity

	p.logger.Debug("paper buy filled",
		zap.String("order_id", uuid.New().String()),
		zap.String("pair", pair),
		zap.Float64("price", price),
		zap.Float64("quantity", quantity))

	return &domain.BuyResult{
		Success:         true,
		Price:           price,
		Quantity:        quantity,
		Paid:            cost,
		Commission:      commission,
		CommissionAsset: commissionAsset,
	}, nil
}

func (p *PaperGateway) MarketSell(ctx context.Context, pair string, quantity float64) (*domain.SellResult, error) {
	price, ok := p.price(ctx, pair)
	if !ok || quantity <= 0 {
		return &domain.SellResult{Success: false}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	gross := quantity * price
	commission := gross * p.feeRate
	commissionAsset := p.feeAsset
	gained := gross
	if commissionAsset == "" {
		gained -= commission
		commissionAsset = p.settlementAsset
	}

	base := p.baseAsset(pair)
	p.balances[base] -= quantity
	if p.balances[base] < 0 {
		p.balances[base] = 0
	}
	p.balances[p.settlementAsset] += gained

	p.logger.Debug("paper sell filled",
		zap.String("order_id", uuid.New().String()),
		zap.String("pair", pair),
		zap.Float64("price", price),
		zap.Float64("gained", gained))

	return &domain.SellResult{
		Success:         true,
		Gained:          gained,
		Commission:      commission,
		CommissionAsset: commissionAsset,
	}, nil
}

func (p *PaperGateway) GetFreeAssetBalance(ctx context.Context, asset string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[asset], nil
}

func (p *PaperGateway) GetBalance(ctx context.Context, settlementAsset string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[settlementAsset], nil
}
