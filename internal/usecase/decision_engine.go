package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/crypto_spot_bot/internal/domain"
	"github.com/vitos/crypto_spot_bot/internal/metrics"
)

// DecisionEngine runs the per-asset state machine: it sequences the price
// tracker, stop-limit calculator, capital allocator, fee netter and
// reinvestment policy into buy/sell actions on a single record.
type DecisionEngine struct {
	exchange  domain.Exchange
	ledger    domain.Ledger
	stats     domain.StatsRecorder
	allocator *CapitalAllocator

	tracker    *PriceTracker
	stops      *StopLimitCalculator
	fees       *FeeNetter
	reinvestor *Reinvestor

	logger *zap.Logger
}

func NewDecisionEngine(
	exchange domain.Exchange,
	ledger domain.Ledger,
	stats domain.StatsRecorder,
	allocator *CapitalAllocator,
	historyCap int,
	logger *zap.Logger,
) *DecisionEngine {
	return &DecisionEngine{
		exchange:   exchange,
		ledger:     ledger,
		stats:      stats,
		allocator:  allocator,
		tracker:    NewPriceTracker(historyCap),
		stops:      NewStopLimitCalculator(),
		fees:       NewFeeNetter(ledger, logger),
		reinvestor: NewReinvestor(ledger),
		logger:     logger,
	}
}

// Process evaluates one record for the cycle. prices is this cycle's feed
// snapshot. ErrPriceUnavailable is returned when a held asset has no price;
// the record is then left untouched. Gateway rejections are handled inside
// (safe-state revert plus alert) and do not surface as errors.
func (e *DecisionEngine) Process(ctx context.Context, rec *domain.PositionRecord, cfg *domain.RiskConfig, prices map[string]float64) error {
	price, hasPrice := prices[domain.Pair(rec.Asset, cfg.SettlementAsset)]
	if err := e.tracker.PushPrice(rec, price, hasPrice); err != nil {
		return err
	}
	if !hasPrice {
		// New or unlisted symbol with nothing at stake.
		return nil
	}
	rec.UpdatedAt = time.Now()

	if rec.State == domain.StateBought {
		rec.TTL++
		e.stops.Compute(rec, cfg)

		if e.tracker.StopLimitCrossedDown(rec) {
			e.logger.Warn("stop limit crossed down",
				zap.String("asset", rec.Asset),
				zap.Float64("price", rec.CurrentPrice),
				zap.Float64("stop", rec.StopLimitPrice))
		}
		if e.tracker.ProfitLimitCrossedUp(rec, cfg.ProfitLimit) {
			e.logger.Info("profit limit crossed up",
				zap.String("asset", rec.Asset),
				zap.Float64("price", rec.CurrentPrice))
		} else if e.tracker.EntryPriceCrossedUp(rec) {
			e.logger.Debug("price back above entry", zap.String("asset", rec.Asset))
		}

		if cfg.StopSellEnabled && !rec.Hodl && rec.CurrentPrice < rec.StopLimitPrice {
			rec.State = domain.StateSell
		}
		if cfg.ProfitSellEnabled && !rec.Hodl && rec.AveragePrice > 0 &&
			rec.CurrentPrice > rec.AveragePrice*(1+cfg.ProfitLimit) {
			rec.State = domain.StateSell
		}
	}

	// Swing re-entry: buy a sold asset back after a pullback from its high.
	if rec.State == domain.StateSold && cfg.SwingTradeEnabled &&
		rec.CurrentPrice < rec.MaxObservedPrice*(1-cfg.ProfitLimit) {
		rec.State = domain.StateBuy
		rec.Deleted = false
	}

	switch rec.State {
	case domain.StateSell:
		// Ride the move: only sell once price has stopped rising.
		if e.tracker.PriceMove(rec) != TrendUp {
			return e.executeSell(ctx, rec, cfg, prices)
		}
	case domain.StateBuy:
		// Wait for the knife to land, unless the asset is itself stable.
		if e.tracker.PriceMove(rec) != TrendDown || cfg.IsStable(rec.Asset) {
			spend := e.allocator.Reserve(rec, cfg.MinBuyFloor)
			if spend <= 0 || spend > e.allocator.Balance() {
				// Allocation denied: not an error, retried next cycle.
				rec.State = domain.StateIdle
				return nil
			}
			return e.executeBuy(ctx, rec, cfg, prices, spend)
		}
	}
	return nil
}

func (e *DecisionEngine) executeBuy(ctx context.Context, rec *domain.PositionRecord, cfg *domain.RiskConfig, prices map[string]float64, cost float64) error {
	pair := domain.Pair(rec.Asset, cfg.SettlementAsset)
	res, err := e.exchange.MarketBuy(ctx, pair, cost)
	if err != nil || !res.Success {
		metrics.TradeFailures.WithLabelValues("buy").Inc()
		if rec.Quantity > 0 {
			rec.State = domain.StateBought
		} else {
			rec.State = domain.StateIdle
		}
		e.logger.Error("buy failed", zap.String("pair", pair), zap.Float64("cost", cost), zap.Error(err))
		return nil
	}

	if rec.Quantity <= 0 {
		// Fresh entry (or swing re-entry): the old trade result is history.
		rec.PaidCost = 0
		rec.AveragePrice = 0
		rec.Commission = 0
		rec.Gained = 0
		rec.Profit = 0
	}

	feeCost, absorbed, ferr := e.fees.Net(ctx, cfg, prices, res.CommissionAsset, res.Commission)
	if ferr != nil {
		e.logger.Warn("fee netting failed on buy", zap.String("pair", pair), zap.Error(ferr))
	}
	if !absorbed {
		rec.Commission += feeCost
	}

	// Merge the fill into the record as a weighted average.
	rec.Quantity += res.Quantity
	rec.PaidCost += res.Paid
	if rec.Quantity > 0 {
		rec.AveragePrice = rec.PaidCost / rec.Quantity
	}

	e.stops.ForceReset(rec, cfg)
	rec.State = domain.StateBought
	rec.Deleted = false
	e.allocator.OnBuy(res.Paid)

	metrics.Trades.WithLabelValues("buy").Inc()
	e.logger.Info("bought",
		zap.String("pair", pair),
		zap.Float64("quantity", res.Quantity),
		zap.Float64("paid", res.Paid),
		zap.Float64("avg_price", rec.AveragePrice),
		zap.Float64("stop", rec.StopLimitPrice))
	return nil
}

func (e *DecisionEngine) executeSell(ctx context.Context, rec *domain.PositionRecord, cfg *domain.RiskConfig, prices map[string]float64) error {
	pair := domain.Pair(rec.Asset, cfg.SettlementAsset)

	quantity := rec.Quantity
	if free, err := e.exchange.GetFreeAssetBalance(ctx, rec.Asset); err == nil && free > 0 && free < quantity {
		// Dust or partial lock on the exchange side; sell what is free.
		quantity = free
	}

	res, err := e.exchange.MarketSell(ctx, pair, quantity)
	if err != nil || !res.Success {
		metrics.TradeFailures.WithLabelValues("sell").Inc()
		// Escape hatch: the position is held until an operator clears it.
		rec.Hodl = true
		rec.State = domain.StateBought
		e.logger.Error("sell failed, position needs operator attention",
			zap.String("pair", pair),
			zap.Float64("quantity", quantity),
			zap.Error(err))
		return nil
	}

	feeCost, absorbed, ferr := e.fees.Net(ctx, cfg, prices, res.CommissionAsset, res.Commission)
	if ferr != nil {
		e.logger.Warn("fee netting failed on sell", zap.String("pair", pair), zap.Error(ferr))
	}
	if absorbed {
		rec.Commission = 0
	} else {
		rec.Commission += feeCost
	}

	rec.Gained = res.Gained
	rec.Profit = res.Gained - rec.PaidCost - feeCost
	rec.Quantity = 0
	rec.State = domain.StateSold
	rec.TTL = 0
	rec.Deleted = true
	e.allocator.OnSell(res.Gained)

	if cfg.IsStable(cfg.SettlementAsset) {
		if serr := e.stats.AddProfit(ctx, rec.Profit); serr != nil {
			e.logger.Warn("failed to record profit", zap.Error(serr))
		}
		metrics.RealizedProfit.Add(rec.Profit)
	}
	metrics.Trades.WithLabelValues("sell").Inc()
	e.logger.Info("sold",
		zap.String("pair", pair),
		zap.Float64("gained", res.Gained),
		zap.Float64("profit", rec.Profit))

	if cfg.AveragingDownEnabled {
		if rerr := e.reinvest(ctx, cfg, prices, res.Gained); rerr != nil {
			e.logger.Warn("reinvestment failed", zap.Error(rerr))
		}
	}
	return nil
}

// reinvest routes the full sale proceeds into the weakest open position,
// bypassing the allocator's per-slot budget: this is a reinvestment, not a
// new position.
func (e *DecisionEngine) reinvest(ctx context.Context, cfg *domain.RiskConfig, prices map[string]float64, proceeds float64) error {
	if proceeds <= 0 {
		return nil
	}
	target, err := e.reinvestor.WorstPerformer(ctx)
	if err != nil || target == nil {
		return err
	}
	e.logger.Info("averaging down",
		zap.String("asset", target.Asset),
		zap.Float64("profit_pct", target.ProfitFraction()*100),
		zap.Float64("proceeds", proceeds))
	if err := e.executeBuy(ctx, target, cfg, prices, proceeds); err != nil {
		return err
	}
	return e.ledger.Put(ctx, target)
}
