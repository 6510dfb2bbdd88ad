package usecase

import (
	"context"
	"fmt"

	"github.com/vitos/crypto_spot_bot/internal/domain"
)

// memLedger is an in-memory Ledger preserving insertion order, so tests get
// deterministic iteration.
type memLedger struct {
	recs  map[string]*domain.PositionRecord
	order []string
}

func newMemLedger() *memLedger {
	return &memLedger{recs: make(map[string]*domain.PositionRecord)}
}

func (l *memLedger) Get(ctx context.Context, asset string) (*domain.PositionRecord, error) {
	return l.recs[asset], nil
}

func (l *memLedger) Put(ctx context.Context, rec *domain.PositionRecord) error {
	if _, ok := l.recs[rec.Asset]; !ok {
		l.order = append(l.order, rec.Asset)
	}
	l.recs[rec.Asset] = rec
	return nil
}

func (l *memLedger) All(ctx context.Context) ([]*domain.PositionRecord, error) {
	out := make([]*domain.PositionRecord, 0, len(l.order))
	for _, asset := range l.order {
		out = append(out, l.recs[asset])
	}
	return out, nil
}

func (l *memLedger) Delete(ctx context.Context, asset string) error {
	delete(l.recs, asset)
	for i, a := range l.order {
		if a == asset {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return nil
}

func (l *memLedger) Update(ctx context.Context, asset string, mutate func(*domain.PositionRecord), onAbsent func() *domain.PositionRecord) error {
	rec, ok := l.recs[asset]
	if !ok {
		if onAbsent == nil {
			return nil
		}
		rec = onAbsent()
		if rec == nil {
			return nil
		}
		rec.Asset = asset
		l.Put(ctx, rec)
	}
	mutate(rec)
	return nil
}

// mockExchange fills orders at a fixed price per pair and records every call.
type mockExchange struct {
	Prices          map[string]float64
	Commission      float64
	CommissionAsset string
	FailBuy         bool
	FailSell        bool
	FreeBalances    map[string]float64
	Balance         float64

	Buys []struct {
		Pair string
		Cost float64
	}
	Sells []struct {
		Pair     string
		Quantity float64
	}
}

func (m *mockExchange) MarketBuy(ctx context.Context, pair string, cost float64) (*domain.BuyResult, error) {
	m.Buys = append(m.Buys, struct {
		Pair string
		Cost float64
	}{pair, cost})
	if m.FailBuy {
		return &domain.BuyResult{Success: false}, nil
	}
	price, ok := m.Prices[pair]
	if !ok || price <= 0 {
		return nil, fmt.Errorf("no fill price for %s", pair)
	}
	return &domain.BuyResult{
		Success:         true,
		Price:           price,
		Quantity:        cost / price,
		Paid:            cost,
		Commission:      m.Commission,
		CommissionAsset: m.CommissionAsset,
	}, nil
}

func (m *mockExchange) MarketSell(ctx context.Context, pair string, quantity float64) (*domain.SellResult, error) {
	m.Sells = append(m.Sells, struct {
		Pair     string
		Quantity float64
	}{pair, quantity})
	if m.FailSell {
		return &domain.SellResult{Success: false}, nil
	}
	price, ok := m.Prices[pair]
	if !ok || price <= 0 {
		return nil, fmt.Errorf("no fill price for %s", pair)
	}
	return &domain.SellResult{
		Success:         true,
		Gained:          quantity * price,
		Commission:      m.Commission,
		CommissionAsset: m.CommissionAsset,
	}, nil
}

func (m *mockExchange) GetFreeAssetBalance(ctx context.Context, asset string) (float64, error) {
	if m.FreeBalances == nil {
		return 0, nil
	}
	return m.FreeBalances[asset], nil
}

func (m *mockExchange) GetBalance(ctx context.Context, settlementAsset string) (float64, error) {
	return m.Balance, nil
}

// staticFeed serves a fixed price map.
type staticFeed struct {
	prices map[string]float64
}

func (f *staticFeed) LatestPrices(ctx context.Context) (map[string]float64, error) {
	return f.prices, nil
}

// staticSignals serves a fixed candidate list.
type staticSignals struct {
	signals []domain.Signal
}

func (s *staticSignals) Signals(ctx context.Context) ([]domain.Signal, error) {
	return s.signals, nil
}

// memConfigStore hands out copies, like a real store would.
type memConfigStore struct {
	cfg domain.RiskConfig
}

func (c *memConfigStore) Get(ctx context.Context) (*domain.RiskConfig, error) {
	cp := c.cfg
	return &cp, nil
}

func (c *memConfigStore) Set(ctx context.Context, cfg *domain.RiskConfig) error {
	c.cfg = *cfg
	return nil
}

// memStats accumulates recorded amounts.
type memStats struct {
	Profit      float64
	ProfitCalls int
	Withdrawals float64
}

func (s *memStats) AddProfit(ctx context.Context, amount float64) error {
	s.Profit += amount
	s.ProfitCalls++
	return nil
}

func (s *memStats) AddWithdrawal(ctx context.Context, amount float64) error {
	s.Withdrawals += amount
	return nil
}

func testRiskConfig() domain.RiskConfig {
	return domain.RiskConfig{
		AvailableBalance:     1000,
		ChannelSize:          0.25,
		FearGreedIndex:       2,
		ChannelWindowMinutes: 4500,
		StopLimit:            0.04,
		ProfitLimit:          0.05,
		MinBuyFloor:          11,
		SettlementAsset:      "USDT",
		StableAssets:         []string{"USDT", "USDC"},
		FeeAsset:             "BNB",
		StopSellEnabled:      true,
		ProfitSellEnabled:    true,
	}
}
