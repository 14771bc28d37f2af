// Package bridge provides bridge fee quotes for cross-chain detection.
package bridge

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/config"
)

type route struct {
	from, to uint64
}

// Static quotes bridges from configuration. A route applies to every asset.
type Static struct {
	routes map[route]domain.BridgeQuote
}

// NewStatic builds a provider from bridge configs.
func NewStatic(bridges []config.BridgeConfig) (*Static, error) {
	s := &Static{routes: make(map[route]domain.BridgeQuote, len(bridges))}
	for _, b := range bridges {
		if b.From == 0 || b.To == 0 || b.From == b.To {
			return nil, apperror.New(apperror.CodeConfigurationError,
				apperror.WithContext(fmt.Sprintf("bridge %d->%d", b.From, b.To)))
		}
		fixed := decimal.Zero
		if b.FixedFee != "" {
			d, err := decimal.NewFromString(b.FixedFee)
			if err != nil {
				return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithCause(err),
					apperror.WithContext(fmt.Sprintf("bridge %d->%d fixed_fee", b.From, b.To)))
			}
			fixed = d
		}
		s.routes[route{b.From, b.To}] = domain.BridgeQuote{
			FromChain:           b.From,
			ToChain:             b.To,
			FeeBps:              b.FeeBps,
			FixedFee:            fixed,
			Latency:             b.Latency,
			PenaltyBpsPerMinute: decimal.NewFromFloat(b.PenaltyBpsPerMinute),
		}
	}
	return s, nil
}

// Quote returns the configured cost of moving asset from one chain to another.
func (s *Static) Quote(_ context.Context, from, to uint64, asset string) (domain.BridgeQuote, error) {
	q, ok := s.routes[route{from, to}]
	if !ok {
		return domain.BridgeQuote{}, apperror.New(apperror.CodeBridgeQuoteFailed,
			apperror.WithContext(fmt.Sprintf("no bridge %d->%d", from, to)))
	}
	q.Asset = asset
	return q, nil
}

// Routes returns how many chain pairs are bridged.
func (s *Static) Routes() int {
	return len(s.routes)
}
