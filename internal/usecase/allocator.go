package usecase

import (
	"math"

	"github.com/vitos/crypto_spot_bot/internal/domain"
)

const (
	minInvestRatio = 2
	maxInvestRatio = 4
)

// CapitalAllocator tracks the spendable settlement balance and the number of
// concurrently fundable positions. It is mutated only inside a single
// coordinator cycle, so it carries no lock.
type CapitalAllocator struct {
	availableBalance   float64
	canInvest          int
	optimalInvestRatio int
}

func NewCapitalAllocator() *CapitalAllocator {
	return &CapitalAllocator{
		canInvest:          minInvestRatio,
		optimalInvestRatio: minInvestRatio,
	}
}

// Resize derives the optimal invest ratio from the cycle's candidate count,
// clamped to [2,4]. canInvest never exceeds the new ratio.
func (a *CapitalAllocator) Resize(candidateCount int) {
	ratio := candidateCount
	if ratio < minInvestRatio {
		ratio = minInvestRatio
	}
	if ratio > maxInvestRatio {
		ratio = maxInvestRatio
	}
	a.optimalInvestRatio = ratio
	if a.canInvest > ratio {
		a.canInvest = ratio
	}
}

// Reset restores the full invest budget. Called when the ledger holds no
// open positions.
func (a *CapitalAllocator) Reset(balance float64) {
	a.availableBalance = balance
	a.canInvest = a.optimalInvestRatio
}

func (a *CapitalAllocator) SetBalance(balance float64) { a.availableBalance = balance }

func (a *CapitalAllocator) Balance() float64 { return a.availableBalance }

func (a *CapitalAllocator) CanInvest() int { return a.canInvest }

func (a *CapitalAllocator) Ratio() int { return a.optimalInvestRatio }

// Reserve proposes a spend for a new position: an equal slice of the
// remaining balance, never below the exchange's minimum order. Returns 0
// when no slot is free or the record already holds quantity. The caller must
// still verify the proposal against the available balance before buying.
func (a *CapitalAllocator) Reserve(rec *domain.PositionRecord, minBuyFloor float64) float64 {
	if a.canInvest <= 0 || rec.Quantity > 0 {
		return 0
	}
	spend := math.Floor(a.availableBalance / float64(a.canInvest))
	if spend < minBuyFloor {
		spend = minBuyFloor
	}
	return spend
}

// OnBuy consumes one invest slot and the spent cost.
func (a *CapitalAllocator) OnBuy(cost float64) {
	if a.canInvest > 0 {
		a.canInvest--
	}
	a.availableBalance -= cost
}

// OnSell frees one invest slot and returns the proceeds to the balance.
func (a *CapitalAllocator) OnSell(gained float64) {
	a.canInvest++
	if a.canInvest > a.optimalInvestRatio {
		a.canInvest = a.optimalInvestRatio
	}
	a.availableBalance += gained
}
