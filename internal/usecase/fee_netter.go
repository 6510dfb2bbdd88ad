package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/vitos/crypto_spot_bot/internal/domain"
)

// FeeNetter offsets trading commissions against the designated fee-paying
// asset. When the fee asset has its own tracked record, the commission is
// taken out of that record's quantity and the trade carries no fee cost: the
// fee shows up later as the fee asset's own loss.
type FeeNetter struct {
	ledger domain.Ledger
	logger *zap.Logger
}

func NewFeeNetter(ledger domain.Ledger, logger *zap.Logger) *FeeNetter {
	return &FeeNetter{ledger: ledger, logger: logger}
}

// Net resolves a commission into a settlement-currency cost.
// absorbed=true means the commission was deducted from the fee asset's
// record and the trade result's commission should be zeroed. A missing price
// for the fee currency yields a zero cost; this is a known approximation,
// not an error.
func (f *FeeNetter) Net(ctx context.Context, cfg *domain.RiskConfig, prices map[string]float64, commissionAsset string, commission float64) (cost float64, absorbed bool, err error) {
	if commission <= 0 || commissionAsset == "" {
		return 0, false, nil
	}

	if commissionAsset == cfg.FeeAsset {
		uerr := f.ledger.Update(ctx, commissionAsset, func(r *domain.PositionRecord) {
			if r.Deleted || r.Quantity <= 0 {
				return
			}
			r.Quantity -= commission
			if r.Quantity < 0 {
				r.Quantity = 0
			}
			absorbed = true
		}, nil)
		if uerr != nil {
			return 0, false, uerr
		}
		if absorbed {
			return 0, true, nil
		}
	}

	if commissionAsset == cfg.SettlementAsset {
		return commission, false, nil
	}

	price, ok := prices[domain.Pair(commissionAsset, cfg.SettlementAsset)]
	if !ok || price <= 0 {
		f.logger.Debug("no price for fee currency, charging zero cost",
			zap.String("asset", commissionAsset),
			zap.Float64("commission", commission))
		return 0, false, nil
	}
	return commission * price, false, nil
}
