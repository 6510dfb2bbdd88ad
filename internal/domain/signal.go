package domain

type SignalAction string

const (
	SignalBuy  SignalAction = "BUY"
	SignalSell SignalAction = "SELL"
)

// Signal is one candidate recommendation from the external scoring
// subsystem. ChannelLow, when non-zero, seeds the trailing stop of a fresh
// position on the asset.
type Signal struct {
	Asset      string       `json:"asset"`
	Action     SignalAction `json:"action"`
	ChannelLow float64      `json:"channel_low"`
}
