package usecase

import (
	"math/rand"
	"sort"
	"time"

	"github.com/vitos/crypto_spot_bot/internal/domain"
)

// CycleOrdering decides the order records are processed within one group of
// a cycle. Live operation shuffles so no asset is systematically favored
// when capital is scarce; tests and backtest-style runs sort by asset for
// reproducibility.
type CycleOrdering interface {
	Arrange(recs []*domain.PositionRecord)
}

type RandomOrdering struct {
	rng *rand.Rand
}

func NewRandomOrdering() *RandomOrdering {
	return &RandomOrdering{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (o *RandomOrdering) Arrange(recs []*domain.PositionRecord) {
	o.rng.Shuffle(len(recs), func(i, j int) {
		recs[i], recs[j] = recs[j], recs[i]
	})
}

type AssetOrdering struct{}

func NewAssetOrdering() AssetOrdering { return AssetOrdering{} }

func (AssetOrdering) Arrange(recs []*domain.PositionRecord) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Asset < recs[j].Asset
	})
}
