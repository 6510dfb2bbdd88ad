package domain

// BuyResult is the outcome of a market buy. A rejected order is reported
// through Success, not through an error: errors are reserved for transport
// faults.
type BuyResult struct {
	Success         bool    `json:"success"`
	Price           float64 `json:"price"`
	Quantity        float64 `json:"quantity"`
	Paid            float64 `json:"paid"` // settlement currency actually spent
	Commission      float64 `json:"commission"`
	CommissionAsset string  `json:"commission_asset"`
}

// SellResult is the outcome of a market sell of the full held quantity.
type SellResult struct {
	Success         bool    `json:"success"`
	Gained          float64 `json:"gained"` // settlement currency received
	Commission      float64 `json:"commission"`
	CommissionAsset string  `json:"commission_asset"`
}
