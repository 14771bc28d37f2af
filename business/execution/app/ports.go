// Package app contains the execution coordinator and its ports.
package app

import (
	"context"

	"github.com/shopspring/decimal"

	arbapp "github.com/fd1az/arbitrage-engine/business/arbitrage/app"
	arbdomain "github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
	"github.com/fd1az/arbitrage-engine/business/execution/domain"
	regdomain "github.com/fd1az/arbitrage-engine/business/registry/domain"
)

// Claimer is the registry side of an execution: the claim is the only way to own an
// opportunity, and every attempt ends with a release or a settle.
type Claimer interface {
	Claim(ctx context.Context, fingerprint string) (arbdomain.Opportunity, error)
	Release(ctx context.Context, fingerprint string) (regdomain.Status, error)
	Settle(ctx context.Context, fingerprint string) error
}

// Simulator re-prices an opportunity against current market data.
type Simulator interface {
	Simulate(ctx context.Context, opp arbdomain.Opportunity) (arbapp.Evaluation, error)
}

// Submitter hands a simulated execution to the submission service and returns its
// correlation id. The outcome arrives later through ReportOutcome.
type Submitter interface {
	Submit(ctx context.Context, s domain.Submission) (string, error)
}

// PriceOracle values one unit of a token in USD.
type PriceOracle interface {
	USDPrice(ctx context.Context, chainID uint64, symbol string) (decimal.Decimal, error)
}

// Ledger persists every execution transition.
type Ledger interface {
	Record(ctx context.Context, e domain.Execution) error
	Get(ctx context.Context, id string) (domain.Execution, error)
}

// LaneLocker grants exclusive use of a set of lanes. Acquire is all-or-nothing and
// fails with ErrLaneBusy when any lane is held.
type LaneLocker interface {
	Acquire(ctx context.Context, lanes []string) (release func(), err error)
}
