package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vitos/crypto_spot_bot/internal/domain"
	"github.com/vitos/crypto_spot_bot/internal/metrics"
)

// Coordinator drives one full evaluation cycle over the portfolio: it
// resolves the balance, sizes the allocator, applies external signals, runs
// every record through the decision engine with isolated failure handling,
// and reconciles balance deltas back into the persisted configuration.
//
// Cycles are assumed not to overlap; the external scheduler guarantees that.
type Coordinator struct {
	ledger      domain.Ledger
	configStore domain.ConfigStore
	signals     domain.SignalSource
	feed        domain.PriceFeed
	exchange    domain.Exchange

	allocator *CapitalAllocator
	engine    *DecisionEngine
	ordering  CycleOrdering

	logger *zap.Logger
}

func NewCoordinator(
	ledger domain.Ledger,
	configStore domain.ConfigStore,
	signals domain.SignalSource,
	feed domain.PriceFeed,
	exchange domain.Exchange,
	stats domain.StatsRecorder,
	historyCap int,
	ordering CycleOrdering,
	logger *zap.Logger,
) *Coordinator {
	allocator := NewCapitalAllocator()
	return &Coordinator{
		ledger:      ledger,
		configStore: configStore,
		signals:     signals,
		feed:        feed,
		exchange:    exchange,
		allocator:   allocator,
		engine:      NewDecisionEngine(exchange, ledger, stats, allocator, historyCap, logger),
		ordering:    ordering,
		logger:      logger,
	}
}

// Allocator exposes the cycle allocator, mainly for inspection.
func (c *Coordinator) Allocator() *CapitalAllocator { return c.allocator }

// RunCycle executes one evaluation cycle. An error here means the cycle
// could not run at all (config, feed or ledger unavailable); per-asset
// faults are contained and only logged.
func (c *Coordinator) RunCycle(ctx context.Context) error {
	cfg, err := c.configStore.Get(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	prices, err := c.feed.LatestPrices(ctx)
	if err != nil {
		return fmt.Errorf("fetch prices: %w", err)
	}

	balance := cfg.AvailableBalance
	if balance <= 0 {
		balance, err = c.exchange.GetBalance(ctx, cfg.SettlementAsset)
		if err != nil {
			return fmt.Errorf("resolve balance: %w", err)
		}
	}

	signals, err := c.signals.Signals(ctx)
	if err != nil {
		c.logger.Warn("signal source unavailable", zap.Error(err))
		signals = nil
	}

	c.allocator.Resize(len(signals))
	c.allocator.SetBalance(balance)

	recs, err := c.ledger.All(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	open := 0
	for _, rec := range recs {
		if rec.Open() {
			open++
		}
	}
	if open == 0 {
		c.allocator.Reset(balance)
	}
	metrics.OpenPositions.Set(float64(open))

	for _, sig := range signals {
		c.applySignal(ctx, sig)
	}

	// Reload: signals may have created new records.
	recs, err = c.ledger.All(ctx)
	if err != nil {
		return fmt.Errorf("reload ledger: %w", err)
	}

	// Buy-requested records go last so capital freed by sells this cycle is
	// already visible to them.
	var holds, buys []*domain.PositionRecord
	for _, rec := range recs {
		if rec.State == domain.StateBuy {
			buys = append(buys, rec)
		} else {
			holds = append(holds, rec)
		}
	}
	c.ordering.Arrange(holds)
	c.ordering.Arrange(buys)

	startBalance := c.allocator.Balance()
	for _, rec := range holds {
		c.processRecord(ctx, rec, cfg, prices)
	}
	for _, rec := range buys {
		c.processRecord(ctx, rec, cfg, prices)
	}

	c.reconcile(ctx, cfg, c.allocator.Balance()-startBalance)
	metrics.Cycles.Inc()
	return nil
}

// processRecord runs the decision engine for a single record. Any fault,
// including a panic, is contained here so one asset can never abort the
// cycle for the others.
func (c *Coordinator) processRecord(ctx context.Context, rec *domain.PositionRecord, cfg *domain.RiskConfig, prices map[string]float64) {
	defer func() {
		if r := recover(); r != nil {
			metrics.AssetFaults.Inc()
			c.logger.Error("panic while processing asset",
				zap.String("asset", rec.Asset),
				zap.Any("panic", r))
		}
	}()

	if err := c.engine.Process(ctx, rec, cfg, prices); err != nil {
		if errors.Is(err, ErrPriceUnavailable) {
			c.logger.Warn("asset skipped this cycle", zap.String("asset", rec.Asset), zap.Error(err))
			return
		}
		metrics.AssetFaults.Inc()
		c.logger.Error("asset evaluation failed", zap.String("asset", rec.Asset), zap.Error(err))
		return
	}

	if err := c.ledger.Put(ctx, rec); err != nil {
		c.logger.Error("failed to persist record", zap.String("asset", rec.Asset), zap.Error(err))
	}
}

// applySignal pre-sets the matching record into its requested state. A buy
// signal for an unknown asset creates the record.
func (c *Coordinator) applySignal(ctx context.Context, sig domain.Signal) {
	var err error
	switch sig.Action {
	case domain.SignalBuy:
		err = c.ledger.Update(ctx, sig.Asset, func(r *domain.PositionRecord) {
			if r.Quantity > 0 || r.State == domain.StateBought || r.State == domain.StateSell {
				return
			}
			r.State = domain.StateBuy
			r.Deleted = false
			if sig.ChannelLow > 0 {
				r.ChannelLow = sig.ChannelLow
			}
		}, func() *domain.PositionRecord {
			return &domain.PositionRecord{
				Asset:      sig.Asset,
				State:      domain.StateBuy,
				ChannelLow: sig.ChannelLow,
			}
		})
	case domain.SignalSell:
		err = c.ledger.Update(ctx, sig.Asset, func(r *domain.PositionRecord) {
			if r.Quantity > 0 {
				r.State = domain.StateSell
			}
		}, nil)
	default:
		c.logger.Warn("unknown signal action", zap.String("asset", sig.Asset), zap.String("action", string(sig.Action)))
		return
	}
	if err != nil {
		c.logger.Error("failed to apply signal", zap.String("asset", sig.Asset), zap.Error(err))
	}
}

// reconcile folds the cycle's balance delta into the persisted
// configuration, read-fresh-then-add. Best effort: a concurrent external
// writer between read and write can be lost, accepted under the
// single-invoker assumption. Only configs that manage the balance
// themselves (AvailableBalance > 0) are reconciled; query-mode balances are
// re-read from the exchange every cycle anyway.
func (c *Coordinator) reconcile(ctx context.Context, cfg *domain.RiskConfig, delta float64) {
	if cfg.AvailableBalance <= 0 {
		return
	}

	fresh, err := c.configStore.Get(ctx)
	if err != nil {
		c.logger.Error("reconcile: failed to re-read config", zap.Error(err))
		return
	}
	fresh.AvailableBalance += delta

	if fresh.WithdrawAbove > 0 && fresh.AvailableBalance > fresh.WithdrawAbove {
		excess := fresh.AvailableBalance - fresh.WithdrawAbove
		if err := c.engine.stats.AddWithdrawal(ctx, excess); err != nil {
			c.logger.Warn("failed to record withdrawal", zap.Error(err))
		} else {
			fresh.AvailableBalance = fresh.WithdrawAbove
			c.logger.Info("skimmed balance to withdrawal ledger", zap.Float64("amount", excess))
		}
	}

	if err := c.configStore.Set(ctx, fresh); err != nil {
		c.logger.Error("reconcile: failed to persist balance", zap.Error(err))
	}
}

// Liquidate clears every record's transient flags and marks everything with
// held quantity for sale. With immediate=true the sells are executed now
// instead of waiting for the next cycle.
func (c *Coordinator) Liquidate(ctx context.Context, immediate bool) error {
	cfg, err := c.configStore.Get(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Proceeds must not flow back into positions while we are closing them.
	liqCfg := *cfg
	liqCfg.AveragingDownEnabled = false
	cfg = &liqCfg

	var prices map[string]float64
	if immediate {
		if prices, err = c.feed.LatestPrices(ctx); err != nil {
			c.logger.Warn("liquidate: no price snapshot, fee conversion degraded", zap.Error(err))
			prices = map[string]float64{}
		}
	}

	recs, err := c.ledger.All(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	for _, rec := range recs {
		rec.Hodl = false
		if rec.State == domain.StateBuy {
			rec.State = domain.StateIdle
		}
		if rec.Quantity > 0 {
			rec.State = domain.StateSell
			if immediate {
				if err := c.engine.executeSell(ctx, rec, cfg, prices); err != nil {
					c.logger.Error("liquidate: sell failed", zap.String("asset", rec.Asset), zap.Error(err))
				}
			}
		}
		if err := c.ledger.Put(ctx, rec); err != nil {
			c.logger.Error("liquidate: failed to persist record", zap.String("asset", rec.Asset), zap.Error(err))
		}
	}
	return nil
}
