package domain

import "context"

// Exchange is the market-execution gateway. Trade rejection is signaled by
// the Success flag on the result; an error means the call itself failed.
type Exchange interface {
	MarketBuy(ctx context.Context, pair string, cost float64) (*BuyResult, error)
	MarketSell(ctx context.Context, pair string, quantity float64) (*SellResult, error)
	GetFreeAssetBalance(ctx context.Context, asset string) (float64, error)
	GetBalance(ctx context.Context, settlementAsset string) (float64, error)
}

// PriceFeed maps pair identifiers to the latest observed price. An absent
// key means no data this tick.
type PriceFeed interface {
	LatestPrices(ctx context.Context) (map[string]float64, error)
}

// SignalSource supplies the candidate recommendations for one cycle. The
// slice length sizes the allocator's optimal invest ratio.
type SignalSource interface {
	Signals(ctx context.Context) ([]Signal, error)
}

// Ledger is the persistent store of position records, keyed by asset.
type Ledger interface {
	// Get returns (nil, nil) when no record exists for the asset.
	Get(ctx context.Context, asset string) (*PositionRecord, error)
	Put(ctx context.Context, rec *PositionRecord) error
	All(ctx context.Context) ([]*PositionRecord, error)
	Delete(ctx context.Context, asset string) error
	// Update performs an atomic read-modify-write scoped to one asset key.
	// onAbsent, when non-nil, creates the record if none exists; when nil
	// and the record is absent, Update is a no-op.
	Update(ctx context.Context, asset string, mutate func(*PositionRecord), onAbsent func() *PositionRecord) error
}

// ConfigStore persists the risk parameters between cycles.
type ConfigStore interface {
	Get(ctx context.Context) (*RiskConfig, error)
	Set(ctx context.Context, cfg *RiskConfig) error
}

// StatsRecorder accumulates realized P/L and withdrawals.
type StatsRecorder interface {
	AddProfit(ctx context.Context, amount float64) error
	AddWithdrawal(ctx context.Context, amount float64) error
}
