package domain

import "time"

type PositionState string

const (
	StateIdle   PositionState = "IDLE"
	StateBuy    PositionState = "BUY"
	StateBought PositionState = "BOUGHT"
	StateSell   PositionState = "SELL"
	StateSold   PositionState = "SOLD"
)

// PositionRecord is the persisted state of one tracked asset.
// The asset identifier is the base coin (e.g. "BTC"); the traded pair is
// Pair(Asset, settlement).
type PositionRecord struct {
	Asset            string        `json:"asset"`
	State            PositionState `json:"state"`
	PriceHistory     []float64     `json:"price_history"`
	CurrentPrice     float64       `json:"current_price"`
	MaxObservedPrice float64       `json:"max_observed_price"`
	StopLimitPrice   float64       `json:"stop_limit_price"`
	ChannelLow       float64       `json:"channel_low"` // seed for a fresh trailing stop, supplied by the candidate signal
	TTL              int           `json:"ttl"`         // cycles since the last buy
	Hodl             bool          `json:"hodl"`        // set on a failed sell; suppresses automatic sells
	Deleted          bool          `json:"deleted"`

	Quantity     float64 `json:"quantity"`
	PaidCost     float64 `json:"paid_cost"`
	AveragePrice float64 `json:"average_price"`
	Commission   float64 `json:"commission"` // accumulated fee cost in the settlement currency
	Gained       float64 `json:"gained"`
	Profit       float64 `json:"profit"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Open reports whether the record holds a live position.
func (r *PositionRecord) Open() bool {
	return r.Quantity > 0 && !r.Deleted
}

// ProfitFraction returns profit relative to paid cost: unrealized while the
// position is held, realized once sold. Zero when nothing was paid.
func (r *PositionRecord) ProfitFraction() float64 {
	if r.PaidCost <= 0 {
		return 0
	}
	if r.Quantity > 0 && r.CurrentPrice > 0 {
		return (r.CurrentPrice*r.Quantity - r.PaidCost) / r.PaidCost
	}
	return r.Profit / r.PaidCost
}

// Pair builds the traded pair identifier for an asset against a quote coin.
func Pair(asset, quote string) string {
	return asset + quote
}
