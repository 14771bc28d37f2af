// Package domain contains the execution state machine.
package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	arbdomain "github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
)

// State is the position of an execution in its state machine.
type State string

const (
	StateClaimed   State = "claimed"
	StateSimulated State = "simulated"
	StateSubmitted State = "submitted"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
)

// States returns every state in machine order.
func States() []State {
	return []State{StateClaimed, StateSimulated, StateSubmitted, StateConfirmed, StateFailed}
}

// ParseState parses a state name.
func ParseState(s string) (State, error) {
	for _, st := range States() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown execution state %q", s)
}

// IsTerminal reports whether the state is final.
func (s State) IsTerminal() bool {
	return s == StateConfirmed || s == StateFailed
}

// next lists the legal transitions out of each state.
var next = map[State][]State{
	StateClaimed:   {StateSimulated, StateFailed},
	StateSimulated: {StateSubmitted, StateFailed},
	StateSubmitted: {StateConfirmed, StateFailed},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to State) bool {
	return slices.Contains(next[from], to)
}

// FailureReason classifies a failed execution.
type FailureReason string

const (
	FailureSlippageExceeded FailureReason = "slippage_exceeded"
	FailureStaleData        FailureReason = "stale_data"
	FailureGasUnavailable   FailureReason = "gas_unavailable"
	FailureSimulation       FailureReason = "simulation_error"
	FailureSubmission       FailureReason = "submission_failure"
	FailureReverted         FailureReason = "reverted"
	FailureTimeout          FailureReason = "timeout"
	FailureCancelled        FailureReason = "cancelled"
	FailureExpired          FailureReason = "expired" // opportunity expired before submission
)

// Retryable reports whether a fresh attempt on the same opportunity may succeed.
// Submission failures only count when nothing reached the chain.
func (r FailureReason) Retryable() bool {
	return r == FailureSubmission || r == FailureReverted
}

// Execution is one attempt at executing a claimed opportunity. Values are immutable;
// every transition returns a new Execution.
type Execution struct {
	ID                     string                 `json:"id"`
	OpportunityFingerprint string                 `json:"opportunity_fingerprint"`
	Attempt                int                    `json:"attempt"`
	StrategyKind           arbdomain.StrategyKind `json:"strategy_kind"`
	ChainIDs               []uint64               `json:"chain_ids"`
	ProfitToken            string                 `json:"profit_token"`
	State                  State                  `json:"state"`
	ClaimedAt              time.Time              `json:"claimed_at"`
	AttemptAmountIn        decimal.Decimal        `json:"attempt_amount_in"`
	ExpectedNetProfit      decimal.Decimal        `json:"expected_net_profit"`
	SimulatedNetProfit     decimal.NullDecimal    `json:"simulated_net_profit"`
	SimulatedAmountOut     decimal.NullDecimal    `json:"simulated_amount_out"`
	CorrelationID          string                 `json:"correlation_id,omitempty"`
	SubmittedAt            *time.Time             `json:"submitted_at,omitempty"`
	ActualAmountOut        decimal.NullDecimal    `json:"actual_amount_out"`
	ActualProfitUSD        decimal.NullDecimal    `json:"actual_profit_usd"`
	GasUsed                uint64                 `json:"gas_used"`
	GasPriceWei            decimal.NullDecimal    `json:"gas_price_wei"`
	TxHash                 string                 `json:"tx_hash,omitempty"`
	FailureReason          FailureReason          `json:"failure_reason,omitempty"`
	FailureDetail          string                 `json:"failure_detail,omitempty"`
	AmbiguousOutcome       bool                   `json:"ambiguous_outcome"`
	CompletedAt            *time.Time             `json:"completed_at,omitempty"`
	UpdatedAt              time.Time              `json:"updated_at"`
}

// NewExecution starts an attempt on a freshly claimed opportunity.
func NewExecution(id string, opp arbdomain.Opportunity, attempt int, at time.Time) Execution {
	return Execution{
		ID:                     id,
		OpportunityFingerprint: opp.Fingerprint,
		Attempt:                attempt,
		StrategyKind:           opp.Kind,
		ChainIDs:               opp.Path.ChainIDs(),
		ProfitToken:            opp.ProfitToken,
		State:                  StateClaimed,
		ClaimedAt:              at,
		AttemptAmountIn:        opp.AmountIn,
		ExpectedNetProfit:      opp.NetProfit,
		UpdatedAt:              at,
	}
}

// InFlight reports whether the execution is still running.
func (e Execution) InFlight() bool {
	return !e.State.IsTerminal()
}

// PrimaryChain is the chain gas is paid and profit is measured on.
func (e Execution) PrimaryChain() uint64 {
	if len(e.ChainIDs) == 0 {
		return 0
	}
	return e.ChainIDs[0]
}

func (e Execution) to(s State, at time.Time) (Execution, error) {
	if !CanTransition(e.State, s) {
		return e, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext(fmt.Sprintf("execution %s: %s -> %s", e.ID, e.State, s)))
	}
	e.State = s
	e.UpdatedAt = at
	e.ChainIDs = slices.Clone(e.ChainIDs)
	if s.IsTerminal() {
		e.CompletedAt = &at
	}
	return e, nil
}

// Simulated records the re-priced result of the path.
func (e Execution) Simulated(netProfit, amountOut decimal.Decimal, at time.Time) (Execution, error) {
	out, err := e.to(StateSimulated, at)
	if err != nil {
		return e, err
	}
	out.SimulatedNetProfit = decimal.NewNullDecimal(netProfit)
	out.SimulatedAmountOut = decimal.NewNullDecimal(amountOut)
	return out, nil
}

// Submitted records the hand-off to the submission service.
func (e Execution) Submitted(correlationID string, at time.Time) (Execution, error) {
	out, err := e.to(StateSubmitted, at)
	if err != nil {
		return e, err
	}
	out.CorrelationID = correlationID
	out.SubmittedAt = &at
	return out, nil
}

// Confirmed records a successful outcome. profitUSD is nil when it could not be priced.
func (e Execution) Confirmed(o Outcome, profitUSD *decimal.Decimal, at time.Time) (Execution, error) {
	out, err := e.to(StateConfirmed, at)
	if err != nil {
		return e, err
	}
	out.applyOutcome(o)
	if profitUSD != nil {
		out.ActualProfitUSD = decimal.NewNullDecimal(*profitUSD)
	}
	return out, nil
}

// Failed ends the execution with reason. detail is kept verbatim.
func (e Execution) Failed(reason FailureReason, detail string, at time.Time) (Execution, error) {
	out, err := e.to(StateFailed, at)
	if err != nil {
		return e, err
	}
	out.FailureReason = reason
	out.FailureDetail = detail
	out.AmbiguousOutcome = reason == FailureTimeout
	return out, nil
}

// Reverted ends a submitted execution with a reported failure, keeping whatever gas and
// hash the outcome carried.
func (e Execution) Reverted(o Outcome, at time.Time) (Execution, error) {
	out, err := e.Failed(FailureReverted, o.Reason, at)
	if err != nil {
		return e, err
	}
	out.applyOutcome(o)
	out.ActualAmountOut = decimal.NullDecimal{}
	return out, nil
}

func (e *Execution) applyOutcome(o Outcome) {
	e.ActualAmountOut = decimal.NewNullDecimal(o.AmountOut)
	e.GasUsed = o.GasUsed
	if !o.GasPriceWei.IsZero() {
		e.GasPriceWei = decimal.NewNullDecimal(o.GasPriceWei)
	}
	e.TxHash = o.TxHash
}

// Equal reports whether two executions hold the same values.
func (e Execution) Equal(o Execution) bool {
	return e.ID == o.ID &&
		e.OpportunityFingerprint == o.OpportunityFingerprint &&
		e.Attempt == o.Attempt &&
		e.StrategyKind == o.StrategyKind &&
		slices.Equal(e.ChainIDs, o.ChainIDs) &&
		e.ProfitToken == o.ProfitToken &&
		e.State == o.State &&
		e.ClaimedAt.Equal(o.ClaimedAt) &&
		e.AttemptAmountIn.Equal(o.AttemptAmountIn) &&
		e.ExpectedNetProfit.Equal(o.ExpectedNetProfit) &&
		nullEqual(e.SimulatedNetProfit, o.SimulatedNetProfit) &&
		nullEqual(e.SimulatedAmountOut, o.SimulatedAmountOut) &&
		e.CorrelationID == o.CorrelationID &&
		timeEqual(e.SubmittedAt, o.SubmittedAt) &&
		nullEqual(e.ActualAmountOut, o.ActualAmountOut) &&
		nullEqual(e.ActualProfitUSD, o.ActualProfitUSD) &&
		e.GasUsed == o.GasUsed &&
		nullEqual(e.GasPriceWei, o.GasPriceWei) &&
		e.TxHash == o.TxHash &&
		e.FailureReason == o.FailureReason &&
		e.FailureDetail == o.FailureDetail &&
		e.AmbiguousOutcome == o.AmbiguousOutcome &&
		timeEqual(e.CompletedAt, o.CompletedAt)
}

func nullEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Outcome is a terminal report from the submission service.
type Outcome struct {
	Success     bool            `json:"success"`
	AmountOut   decimal.Decimal `json:"amount_out"`
	GasUsed     uint64          `json:"gas_used"`
	GasPriceWei decimal.Decimal `json:"gas_price_wei"`
	TxHash      string          `json:"tx_hash"`
	Reason      string          `json:"reason"` // verbatim failure text
}

// Validate checks a success report carries its amounts.
func (o Outcome) Validate() error {
	if o.Success && !o.AmountOut.IsPositive() {
		return apperror.Validation(apperror.CodeInvalidInput, "successful outcome needs a positive amount_out")
	}
	if o.AmountOut.IsNegative() || o.GasPriceWei.IsNegative() {
		return apperror.Validation(apperror.CodeInvalidInput, "outcome amounts must not be negative")
	}
	return nil
}

// Submission is what the submission service receives for one execution.
type Submission struct {
	ExecutionID        string                 `json:"execution_id"`
	Attempt            int                    `json:"attempt"`
	Fingerprint        string                 `json:"fingerprint"`
	Kind               arbdomain.StrategyKind `json:"kind"`
	Path               arbdomain.Path         `json:"path"`
	AmountIn           decimal.Decimal        `json:"amount_in"`
	MinAmountOut       decimal.Decimal        `json:"min_amount_out"`
	SimulatedAmountOut decimal.Decimal        `json:"simulated_amount_out"`
}
