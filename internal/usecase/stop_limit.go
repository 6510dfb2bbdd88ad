package usecase

import (
	"math"

	"github.com/vitos/crypto_spot_bot/internal/domain"
)

// StopLimitCalculator computes the ratcheting trailing-stop trigger price.
// Two candidates converge toward the recent average price: one driven by
// realized profit (protects gains) and one driven by holding time (bounds
// risk on flat positions). The stop only ever moves up, except when
// ForceReset reseeds it right after a buy.
type StopLimitCalculator struct{}

func NewStopLimitCalculator() *StopLimitCalculator {
	return &StopLimitCalculator{}
}

// Compute recomputes rec.StopLimitPrice in place. A fresh position with no
// established channel (stop == 0) is seeded from the channel low supplied by
// the candidate signal when one is available; otherwise the convergence
// formula runs.
func (c *StopLimitCalculator) Compute(rec *domain.PositionRecord, cfg *domain.RiskConfig) {
	if rec.StopLimitPrice == 0 && rec.ChannelLow > 0 {
		rec.StopLimitPrice = math.Min(rec.ChannelLow*(1-cfg.StopLimit), rec.CurrentPrice)
		return
	}

	h := rec.PriceHistory
	if len(h) < 3 || rec.PaidCost <= 0 {
		return
	}
	avgPrice := (h[len(h)-1] + h[len(h)-2] + h[len(h)-3]) / 3

	fgi := clampFGI(cfg.FearGreedIndex)
	p := rec.ProfitFraction()
	pg := cfg.ChannelSize * 0.9 / fgi

	k := 1 - cfg.ChannelSize
	if pg > 0 && p > 0 {
		k += p * cfg.ChannelSize / pg
	}
	if k > 0.99 {
		k = 0.99
	}
	candidateA := math.Min(k*avgPrice, rec.CurrentPrice)

	var candidateB float64
	if maxTTL := cfg.ChannelWindowMinutes / fgi; maxTTL > 0 {
		curTTL := math.Min(float64(rec.TTL), maxTTL)
		k2 := math.Min(0.99, curTTL/maxTTL)
		candidateB = math.Min(k2*avgPrice, rec.CurrentPrice)
	}

	rec.StopLimitPrice = math.Max(rec.StopLimitPrice, math.Max(candidateA, candidateB))
}

// ForceReset restarts the trailing stop right after a buy so it grows from
// the channel-low seed instead of inheriting a stale value.
func (c *StopLimitCalculator) ForceReset(rec *domain.PositionRecord, cfg *domain.RiskConfig) {
	rec.TTL = 0
	rec.StopLimitPrice = 0
	c.Compute(rec, cfg)
}

func clampFGI(fgi float64) float64 {
	if fgi < 1 {
		return 1
	}
	if fgi > 3 {
		return 3
	}
	return fgi
}
