package domain

// RiskConfig holds the persisted risk parameters the decision core reads at
// the start of every cycle and reconciles balance deltas into at the end.
type RiskConfig struct {
	// AvailableBalance is the spendable settlement-currency budget. Zero
	// means "query the exchange for the live balance instead".
	AvailableBalance float64 `json:"available_balance" yaml:"available_balance"`

	ChannelSize          float64 `json:"channel_size" yaml:"channel_size"`           // fractional width of the expected trading range
	FearGreedIndex       float64 `json:"fear_greed_index" yaml:"fear_greed_index"`       // sentiment scalar, clamped to [1,3]
	ChannelWindowMinutes float64 `json:"channel_window_minutes" yaml:"channel_window_minutes"` // time horizon for stop convergence
	StopLimit            float64 `json:"stop_limit" yaml:"stop_limit"`             // fractional offset applied below the channel-low seed
	ProfitLimit          float64 `json:"profit_limit" yaml:"profit_limit"`           // take-profit fraction above average price
	MinBuyFloor          float64 `json:"min_buy_floor" yaml:"min_buy_floor"`          // smallest order the exchange accepts

	SettlementAsset string   `json:"settlement_asset" yaml:"settlement_asset"` // e.g. USDT
	StableAssets    []string `json:"stable_assets" yaml:"stable_assets"`
	FeeAsset        string   `json:"fee_asset" yaml:"fee_asset"` // asset whose balance absorbs commissions, e.g. BNB

	StopSellEnabled      bool `json:"stop_sell_enabled" yaml:"stop_sell_enabled"`
	ProfitSellEnabled    bool `json:"profit_sell_enabled" yaml:"profit_sell_enabled"`
	SwingTradeEnabled    bool `json:"swing_trade_enabled" yaml:"swing_trade_enabled"`    // re-enter a sold asset after a pullback
	AveragingDownEnabled bool `json:"averaging_down_enabled" yaml:"averaging_down_enabled"` // reinvest sale proceeds into the weakest open position

	// WithdrawAbove, when positive, skims reconciled balance above this
	// level into the withdrawal ledger. Zero disables skimming.
	WithdrawAbove float64 `json:"withdraw_above" yaml:"withdraw_above"`
}

// IsStable reports whether the asset is one of the configured stable coins.
func (c *RiskConfig) IsStable(asset string) bool {
	for _, s := range c.StableAssets {
		if s == asset {
			return true
		}
	}
	return false
}
