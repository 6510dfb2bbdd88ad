package signals

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vitos/crypto_spot_bot/internal/domain"
)

// FileSignalSource reads candidate recommendations from a yaml file on every
// cycle. The file is the hand-off point for the external scoring subsystem
// (or an operator editing it directly):
//
//	signals:
//	  - asset: BTC
//	    action: BUY
//	    channel_low: 58000
//	  - asset: DOGE
//	    action: SELL
type FileSignalSource struct {
	path string
}

func NewFileSignalSource(path string) *FileSignalSource {
	return &FileSignalSource{path: path}
}

func (f *FileSignalSource) Signals(ctx context.Context) ([]domain.Signal, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			// No file means no candidates this cycle.
			return nil, nil
		}
		return nil, err
	}

	var doc struct {
		Signals []struct {
			Asset      string  `yaml:"asset"`
			Action     string  `yaml:"action"`
			ChannelLow float64 `yaml:"channel_low"`
		} `yaml:"signals"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse signals file: %w", err)
	}

	out := make([]domain.Signal, 0, len(doc.Signals))
	for _, s := range doc.Signals {
		if s.Asset == "" {
			continue
		}
		action := domain.SignalAction(s.Action)
		if action != domain.SignalBuy && action != domain.SignalSell {
			continue
		}
		out = append(out, domain.Signal{
			Asset:      s.Asset,
			Action:     action,
			ChannelLow: s.ChannelLow,
		})
	}
	return out, nil
}
