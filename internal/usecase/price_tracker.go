package usecase

import (
	"errors"

	"github.com/vitos/crypto_spot_bot/internal/domain"
)

type Trend string

const (
	TrendFlat Trend = "FLAT"
	TrendDown Trend = "DOWN"
	TrendUp   Trend = "UP"
)

// ErrPriceUnavailable marks a held asset that cannot be evaluated this cycle
// because the feed has no price for it. Non-fatal: the asset is skipped.
var ErrPriceUnavailable = errors.New("no price for held asset")

// PriceTracker maintains each record's bounded price history and classifies
// short-term momentum. All methods mutate or inspect the record only; the
// tracker itself carries no per-asset state.
type PriceTracker struct {
	capacity int
}

// NewPriceTracker builds a tracker with the given history capacity. The
// stop-limit average needs at least 3 samples, so smaller capacities are
// raised to 3.
func NewPriceTracker(capacity int) *PriceTracker {
	if capacity < 3 {
		capacity = 3
	}
	return &PriceTracker{capacity: capacity}
}

// PushPrice appends the tick price to the record's history and refreshes the
// current price and high-water mark. hasPrice=false for a held position is
// ErrPriceUnavailable; for an empty record it is expected (new or unlisted
// symbol) and a no-op.
func (t *PriceTracker) PushPrice(rec *domain.PositionRecord, price float64, hasPrice bool) error {
	if !hasPrice || price <= 0 {
		if rec.Quantity > 0 {
			return ErrPriceUnavailable
		}
		return nil
	}

	rec.PriceHistory = append(rec.PriceHistory, price)
	if len(rec.PriceHistory) > t.capacity {
		rec.PriceHistory = rec.PriceHistory[len(rec.PriceHistory)-t.capacity:]
	}
	rec.CurrentPrice = price
	if price > rec.MaxObservedPrice {
		rec.MaxObservedPrice = price
	}
	return nil
}

// PriceMove classifies the short-term trend from the last two-to-three
// samples. With three samples a trend needs two steps in the same direction;
// a reversal on the latest step reads as FLAT.
func (t *PriceTracker) PriceMove(rec *domain.PositionRecord) Trend {
	h := rec.PriceHistory
	n := len(h)
	if n < 2 {
		return TrendFlat
	}
	if n == 2 {
		switch {
		case h[1] > h[0]:
			return TrendUp
		case h[1] < h[0]:
			return TrendDown
		}
		return TrendFlat
	}

	a, b, c := h[n-3], h[n-2], h[n-1]
	if c > b && b >= a {
		return TrendUp
	}
	if c < b && b <= a {
		return TrendDown
	}
	return TrendFlat
}

// lastTwo returns the previous and current samples, ok=false with fewer than
// two samples.
func lastTwo(rec *domain.PositionRecord) (prev, curr float64, ok bool) {
	h := rec.PriceHistory
	if len(h) < 2 {
		return 0, 0, false
	}
	return h[len(h)-2], h[len(h)-1], true
}

// CrossedUp is true only on the tick where the previous sample was at or
// below the threshold and the current sample is above it.
func (t *PriceTracker) CrossedUp(rec *domain.PositionRecord, threshold float64) bool {
	prev, curr, ok := lastTwo(rec)
	return ok && threshold > 0 && prev <= threshold && curr > threshold
}

// CrossedDown is the downward counterpart of CrossedUp.
func (t *PriceTracker) CrossedDown(rec *domain.PositionRecord, threshold float64) bool {
	prev, curr, ok := lastTwo(rec)
	return ok && threshold > 0 && prev >= threshold && curr < threshold
}

// ProfitLimitCrossedUp fires once when price first exceeds the take-profit
// level above the average buy price.
func (t *PriceTracker) ProfitLimitCrossedUp(rec *domain.PositionRecord, profitLimit float64) bool {
	if rec.AveragePrice <= 0 {
		return false
	}
	return t.CrossedUp(rec, rec.AveragePrice*(1+profitLimit))
}

// StopLimitCrossedDown fires once when price first drops through the
// trailing stop.
func (t *PriceTracker) StopLimitCrossedDown(rec *domain.PositionRecord) bool {
	return t.CrossedDown(rec, rec.StopLimitPrice)
}

// EntryPriceCrossedUp fires once when price first recovers above the average
// buy price.
func (t *PriceTracker) EntryPriceCrossedUp(rec *domain.PositionRecord) bool {
	return t.CrossedUp(rec, rec.AveragePrice)
}
