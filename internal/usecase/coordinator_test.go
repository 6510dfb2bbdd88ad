package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vitos/crypto_spot_bot/internal/domain"
)

func newTestCoordinator(
	ledger *memLedger,
	cfgStore *memConfigStore,
	signals []domain.Signal,
	prices map[string]float64,
	ex *mockExchange,
) (*Coordinator, *memStats) {
	stats := &memStats{}
	coord := NewCoordinator(
		ledger,
		cfgStore,
		&staticSignals{signals: signals},
		&staticFeed{prices: prices},
		ex,
		stats,
		5,
		NewAssetOrdering(),
		zap.NewNop(),
	)
	return coord, stats
}

func TestRunCycleOpensPositionFromSignal(t *testing.T) {
	ctx := context.Background()
	cfg := testRiskConfig()
	cfg.AvailableBalance = 100
	cfgStore := &memConfigStore{cfg: cfg}
	prices := map[string]float64{"XYZUSDT": 2.0}
	ex := &mockExchange{Prices: prices}
	ledger := newMemLedger()

	coord, _ := newTestCoordinator(ledger, cfgStore, []domain.Signal{
		{Asset: "XYZ", Action: domain.SignalBuy, ChannelLow: 1.8},
	}, prices, ex)

	require.NoError(t, coord.RunCycle(ctx))

	// One candidate still sizes the pool for the minimum of two positions.
	assert.Equal(t, 2, coord.Allocator().Ratio())
	require.Len(t, ex.Buys, 1)
	assert.Equal(t, "XYZUSDT", ex.Buys[0].Pair)
	assert.Equal(t, 50.0, ex.Buys[0].Cost)

	rec, err := ledger.Get(ctx, "XYZ")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.StateBought, rec.State)
	assert.InDelta(t, 25, rec.Quantity, 1e-9)
	assert.InDelta(t, 1.8*(1-cfg.StopLimit), rec.StopLimitPrice, 1e-9)
	assert.Equal(t, 1, coord.Allocator().CanInvest())

	stored, err := cfgStore.Get(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 50, stored.AvailableBalance, 1e-9, "spend reconciled into config")
}

func TestRunCycleBuySignalIgnoredForHeldAsset(t *testing.T) {
	ctx := context.Background()
	cfgStore := &memConfigStore{cfg: testRiskConfig()}
	prices := map[string]float64{"XYZUSDT": 2.0}
	ex := &mockExchange{Prices: prices}
	ledger := newMemLedger()
	require.NoError(t, ledger.Put(ctx, &domain.PositionRecord{
		Asset: "XYZ", State: domain.StateBought,
		Quantity: 25, PaidCost: 50, AveragePrice: 2,
		PriceHistory: []float64{2, 2},
	}))

	coord, _ := newTestCoordinator(ledger, cfgStore, []domain.Signal{
		{Asset: "XYZ", Action: domain.SignalBuy},
	}, prices, ex)

	require.NoError(t, coord.RunCycle(ctx))

	assert.Empty(t, ex.Buys, "signal must not double-buy an open position")
	rec, _ := ledger.Get(ctx, "XYZ")
	assert.Equal(t, domain.StateBought, rec.State)
}

func TestRunCycleSellFundsBuyInSameCycle(t *testing.T) {
	ctx := context.Background()
	cfg := testRiskConfig()
	cfg.AvailableBalance = 5 // too little on its own: floor(5/2) < MinBuyFloor
	cfgStore := &memConfigStore{cfg: cfg}
	prices := map[string]float64{
		"OLDUSDT": 9.0,
		"NEWUSDT": 3.0,
	}
	ex := &mockExchange{Prices: prices}
	ledger := newMemLedger()
	// Held position with its stop already breached.
	require.NoError(t, ledger.Put(ctx, &domain.PositionRecord{
		Asset: "OLD", State: domain.StateBought,
		Quantity: 10, PaidCost: 100, AveragePrice: 10,
		StopLimitPrice: 9.5,
		PriceHistory:   []float64{10, 9.8},
	}))

	coord, _ := newTestCoordinator(ledger, cfgStore, []domain.Signal{
		{Asset: "NEW", Action: domain.SignalBuy},
	}, prices, ex)

	require.NoError(t, coord.RunCycle(ctx))

	// The sell ran first; its proceeds funded the buy.
	require.Len(t, ex.Sells, 1)
	require.Len(t, ex.Buys, 1)
	assert.Equal(t, "NEWUSDT", ex.Buys[0].Pair)
	assert.Equal(t, 47.0, ex.Buys[0].Cost, "floor((5+90)/2)")

	old, _ := ledger.Get(ctx, "OLD")
	assert.Equal(t, domain.StateSold, old.State)
	newRec, _ := ledger.Get(ctx, "NEW")
	assert.Equal(t, domain.StateBought, newRec.State)
}

func TestRunCycleSkipsHeldAssetWithoutPrice(t *testing.T) {
	ctx := context.Background()
	cfgStore := &memConfigStore{cfg: testRiskConfig()}
	prices := map[string]float64{"BBBUSDT": 5.0}
	ex := &mockExchange{Prices: prices}
	ledger := newMemLedger()
	require.NoError(t, ledger.Put(ctx, &domain.PositionRecord{
		Asset: "AAA", State: domain.StateBought,
		Quantity: 10, PaidCost: 100, AveragePrice: 10,
		PriceHistory: []float64{10, 10},
	}))
	require.NoError(t, ledger.Put(ctx, &domain.PositionRecord{
		Asset: "BBB", State: domain.StateBought,
		Quantity: 10, PaidCost: 40, AveragePrice: 4,
		PriceHistory: []float64{4, 4},
	}))

	coord, _ := newTestCoordinator(ledger, cfgStore, nil, prices, ex)

	require.NoError(t, coord.RunCycle(ctx), "one dark asset must not abort the cycle")

	aaa, _ := ledger.Get(ctx, "AAA")
	assert.Equal(t, []float64{10, 10}, aaa.PriceHistory, "skipped asset untouched")
	bbb, _ := ledger.Get(ctx, "BBB")
	assert.Equal(t, []float64{4, 4, 5}, bbb.PriceHistory, "the other asset still evaluated")
}

func TestRunCycleWithdrawsAboveThreshold(t *testing.T) {
	ctx := context.Background()
	cfg := testRiskConfig()
	cfg.AvailableBalance = 100
	cfg.WithdrawAbove = 150
	cfgStore := &memConfigStore{cfg: cfg}
	prices := map[string]float64{"OLDUSDT": 9.0}
	ex := &mockExchange{Prices: prices}
	ledger := newMemLedger()
	require.NoError(t, ledger.Put(ctx, &domain.PositionRecord{
		Asset: "OLD", State: domain.StateBought,
		Quantity: 10, PaidCost: 50, AveragePrice: 5,
		StopLimitPrice: 9.5, // already above market: sells immediately
		PriceHistory:   []float64{10, 9.8},
	}))

	coord, stats := newTestCoordinator(ledger, cfgStore, nil, prices, ex)

	require.NoError(t, coord.RunCycle(ctx))

	// 100 + 90 proceeds = 190; everything above 150 is skimmed.
	stored, err := cfgStore.Get(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 150, stored.AvailableBalance, 1e-9)
	assert.InDelta(t, 40, stats.Withdrawals, 1e-9)
	assert.InDelta(t, 40, stats.Profit, 1e-9, "90 gained on 50 paid")
}

func TestLiquidateMarksEverythingForSale(t *testing.T) {
	ctx := context.Background()
	cfgStore := &memConfigStore{cfg: testRiskConfig()}
	ex := &mockExchange{Prices: map[string]float64{}}
	ledger := newMemLedger()
	require.NoError(t, ledger.Put(ctx, &domain.PositionRecord{
		Asset: "AAA", State: domain.StateBought, Hodl: true,
		Quantity: 10, PaidCost: 100,
	}))
	require.NoError(t, ledger.Put(ctx, &domain.PositionRecord{
		Asset: "BBB", State: domain.StateBuy,
	}))

	coord, _ := newTestCoordinator(ledger, cfgStore, nil, nil, ex)

	require.NoError(t, coord.Liquidate(ctx, false))

	aaa, _ := ledger.Get(ctx, "AAA")
	assert.Equal(t, domain.StateSell, aaa.State)
	assert.False(t, aaa.Hodl, "escape hatch cleared so the sell can go through")
	bbb, _ := ledger.Get(ctx, "BBB")
	assert.Equal(t, domain.StateIdle, bbb.State)
	assert.Empty(t, ex.Sells)
}

func TestLiquidateImmediateSellsNow(t *testing.T) {
	ctx := context.Background()
	cfg := testRiskConfig()
	cfg.AveragingDownEnabled = true
	cfgStore := &memConfigStore{cfg: cfg}
	prices := map[string]float64{"AAAUSDT": 9.0, "BBBUSDT": 4.0}
	ex := &mockExchange{Prices: prices}
	ledger := newMemLedger()
	require.NoError(t, ledger.Put(ctx, &domain.PositionRecord{
		Asset: "AAA", State: domain.StateBought,
		Quantity: 10, PaidCost: 100, CurrentPrice: 9,
	}))
	require.NoError(t, ledger.Put(ctx, &domain.PositionRecord{
		Asset: "BBB", State: domain.StateBought,
		Quantity: 10, PaidCost: 50, CurrentPrice: 4,
	}))

	coord, _ := newTestCoordinator(ledger, cfgStore, nil, prices, ex)

	require.NoError(t, coord.Liquidate(ctx, true))

	assert.Len(t, ex.Sells, 2)
	assert.Empty(t, ex.Buys, "no averaging down while closing the book")
	for _, asset := range []string{"AAA", "BBB"} {
		rec, _ := ledger.Get(ctx, asset)
		assert.Equal(t, domain.StateSold, rec.State, asset)
		assert.Zero(t, rec.Quantity, asset)
	}
}

func TestOrderings(t *testing.T) {
	recs := []*domain.PositionRecord{
		{Asset: "CCC"}, {Asset: "AAA"}, {Asset: "BBB"},
	}

	NewAssetOrdering().Arrange(recs)
	assert.Equal(t, "AAA", recs[0].Asset)
	assert.Equal(t, "BBB", recs[1].Asset)
	assert.Equal(t, "CCC", recs[2].Asset)

	// Random ordering keeps the same set.
	NewRandomOrdering().Arrange(recs)
	seen := map[string]bool{}
	for _, r := range recs {
		seen[r.Asset] = true
	}
	assert.Len(t, seen, 3)
}
