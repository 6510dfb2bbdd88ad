package usecase

import (
	"context"

	"github.com/vitos/crypto_spot_bot/internal/domain"
)

// Reinvestor implements the averaging-down policy: realized gains are routed
// into the open position that is performing worst.
type Reinvestor struct {
	ledger domain.Ledger
}

func NewReinvestor(ledger domain.Ledger) *Reinvestor {
	return &Reinvestor{ledger: ledger}
}

// WorstPerformer returns the BOUGHT record with the lowest profit fraction,
// or nil when no open position qualifies. Ties keep the first record
// encountered, so selection is deterministic for a given ledger order.
func (r *Reinvestor) WorstPerformer(ctx context.Context) (*domain.PositionRecord, error) {
	recs, err := r.ledger.All(ctx)
	if err != nil {
		return nil, err
	}

	var worst *domain.PositionRecord
	var worstPct float64
	for _, rec := range recs {
		if rec.State != domain.StateBought || rec.Deleted || rec.Quantity <= 0 || rec.PaidCost <= 0 {
			continue
		}
		pct := rec.ProfitFraction()
		if worst == nil || pct < worstPct {
			worst = rec
			worstPct = pct
		}
	}
	return worst, nil
}
