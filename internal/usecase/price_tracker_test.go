package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitos/crypto_spot_bot/internal/domain"
)

func TestPushPriceBoundsHistory(t *testing.T) {
	tracker := NewPriceTracker(4)
	rec := &domain.PositionRecord{Asset: "BTC"}

	for _, p := range []float64{1, 2, 3, 4, 5, 6} {
		require.NoError(t, tracker.PushPrice(rec, p, true))
	}

	assert.Equal(t, []float64{3, 4, 5, 6}, rec.PriceHistory)
	assert.Equal(t, 6.0, rec.CurrentPrice)
	assert.Equal(t, 6.0, rec.MaxObservedPrice)

	// The high-water mark survives a pullback.
	require.NoError(t, tracker.PushPrice(rec, 2, true))
	assert.Equal(t, 6.0, rec.MaxObservedPrice)
	assert.Equal(t, 2.0, rec.CurrentPrice)
}

func TestPushPriceMissingPrice(t *testing.T) {
	tracker := NewPriceTracker(5)

	held := &domain.PositionRecord{Asset: "BTC", Quantity: 1}
	err := tracker.PushPrice(held, 0, false)
	require.ErrorIs(t, err, ErrPriceUnavailable)

	empty := &domain.PositionRecord{Asset: "NEW"}
	require.NoError(t, tracker.PushPrice(empty, 0, false))
	assert.Empty(t, empty.PriceHistory)
}

func TestPriceMove(t *testing.T) {
	tracker := NewPriceTracker(5)
	cases := []struct {
		name    string
		history []float64
		want    Trend
	}{
		{"no samples", nil, TrendFlat},
		{"one sample", []float64{10}, TrendFlat},
		{"two up", []float64{10, 11}, TrendUp},
		{"two down", []float64{10, 9}, TrendDown},
		{"two equal", []float64{10, 10}, TrendFlat},
		{"steady climb", []float64{10, 11, 12}, TrendUp},
		{"plateau then climb", []float64{10, 10, 11}, TrendUp},
		{"steady drop", []float64{12, 11, 10}, TrendDown},
		{"plateau then drop", []float64{10, 10, 9}, TrendDown},
		{"v-reversal", []float64{10, 9, 11}, TrendFlat},
		{"peak", []float64{9, 11, 10}, TrendFlat},
		{"flat", []float64{10, 10, 10}, TrendFlat},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &domain.PositionRecord{PriceHistory: tc.history}
			assert.Equal(t, tc.want, tracker.PriceMove(rec))
		})
	}
}

func TestProfitLimitCrossedUpFiresOnce(t *testing.T) {
	tracker := NewPriceTracker(5)
	rec := &domain.PositionRecord{
		Asset:        "BTC",
		Quantity:     10,
		PaidCost:     100,
		AveragePrice: 10,
	}

	// Threshold at 10 * 1.05 = 10.5; only the 10.4 -> 10.6 step crosses it.
	var fired []float64
	for _, p := range []float64{10, 10.2, 10.4, 10.6, 10.8} {
		require.NoError(t, tracker.PushPrice(rec, p, true))
		if tracker.ProfitLimitCrossedUp(rec, 0.05) {
			fired = append(fired, p)
		}
	}
	assert.Equal(t, []float64{10.6}, fired)
}

func TestStopLimitCrossedDownFiresOnce(t *testing.T) {
	tracker := NewPriceTracker(5)
	rec := &domain.PositionRecord{
		Asset:          "BTC",
		Quantity:       10,
		StopLimitPrice: 9.5,
	}

	var fired []float64
	for _, p := range []float64{10, 9.8, 9.4, 9.2, 9.6, 9.4} {
		require.NoError(t, tracker.PushPrice(rec, p, true))
		if tracker.StopLimitCrossedDown(rec) {
			fired = append(fired, p)
		}
	}
	// Fires on each distinct downward crossing, once per crossing.
	assert.Equal(t, []float64{9.4, 9.4}, fired)
}

func TestEntryPriceCrossedUp(t *testing.T) {
	tracker := NewPriceTracker(5)
	rec := &domain.PositionRecord{
		Asset:        "BTC",
		Quantity:     1,
		AveragePrice: 10,
	}

	require.NoError(t, tracker.PushPrice(rec, 9.5, true))
	assert.False(t, tracker.EntryPriceCrossedUp(rec))

	require.NoError(t, tracker.PushPrice(rec, 10.2, true))
	assert.True(t, tracker.EntryPriceCrossedUp(rec))

	require.NoError(t, tracker.PushPrice(rec, 10.4, true))
	assert.False(t, tracker.EntryPriceCrossedUp(rec), "already above, no new crossing")
}
