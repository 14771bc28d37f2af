package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	arbdomain "github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func claimed(t *testing.T) Execution {
	t.Helper()
	size := decimal.NewFromInt(10_000)
	path, err := arbdomain.NewPath([]arbdomain.Hop{
		{ChainID: 42161, DexID: "uniswap", TokenIn: "USDC", TokenOut: "WETH", AmountIn: size},
		{ChainID: 42161, DexID: "camelot", TokenIn: "WETH", TokenOut: "USDC"},
	})
	if err != nil {
		t.Fatal(err)
	}
	profit := arbdomain.NewProfitResult(size, decimal.NewFromInt(10_040), decimal.NewFromInt(2), decimal.Zero, decimal.Zero)
	opp := arbdomain.NewOpportunity(arbdomain.CrossDex, path, profit, 0.8, t0, time.Minute)
	return NewExecution("exec-1", opp, 1, t0)
}

func TestNewExecution(t *testing.T) {
	e := claimed(t)
	if e.State != StateClaimed || !e.InFlight() {
		t.Fatalf("state = %s", e.State)
	}
	if e.ProfitToken != "USDC" || e.PrimaryChain() != 42161 {
		t.Errorf("profit token %s on chain %d", e.ProfitToken, e.PrimaryChain())
	}
	if !e.ExpectedNetProfit.Equal(decimal.NewFromInt(38)) {
		t.Errorf("expected net profit = %s", e.ExpectedNetProfit)
	}
}

func TestTransitions(t *testing.T) {
	for _, from := range States() {
		for _, to := range States() {
			want := false
			switch from {
			case StateClaimed:
				want = to == StateSimulated || to == StateFailed
			case StateSimulated:
				want = to == StateSubmitted || to == StateFailed
			case StateSubmitted:
				want = to == StateConfirmed || to == StateFailed
			}
			if got := CanTransition(from, to); got != want {
				t.Errorf("%s -> %s = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestHappyPath(t *testing.T) {
	e := claimed(t)

	sim, err := e.Simulated(decimal.NewFromInt(35), decimal.NewFromInt(10_037), t0.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	sub, err := sim.Submitted("corr-1", t0.Add(2*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	outcome := Outcome{Success: true, AmountOut: decimal.NewFromInt(10_036), GasUsed: 180_000, GasPriceWei: decimal.NewFromInt(1e8), TxHash: "0x1"}
	profit := decimal.NewFromInt(35)
	done, err := sub.Confirmed(outcome, &profit, t0.Add(10*time.Second))
	if err != nil {
		t.Fatal(err)
	}

	if done.State != StateConfirmed || done.InFlight() {
		t.Fatalf("state = %s", done.State)
	}
	if done.CompletedAt == nil || !done.CompletedAt.Equal(t0.Add(10*time.Second)) {
		t.Errorf("completed at = %v", done.CompletedAt)
	}
	if done.SubmittedAt == nil || done.CorrelationID != "corr-1" {
		t.Errorf("submission not kept: %v %q", done.SubmittedAt, done.CorrelationID)
	}
	if !done.ActualAmountOut.Decimal.Equal(outcome.AmountOut) || done.GasUsed != 180_000 || done.TxHash != "0x1" {
		t.Errorf("outcome not applied: %+v", done)
	}
	if !done.ActualProfitUSD.Valid || !done.ActualProfitUSD.Decimal.Equal(profit) {
		t.Errorf("profit usd = %v", done.ActualProfitUSD)
	}
	if e.State != StateClaimed || sim.State != StateSimulated {
		t.Error("transitions must not mutate the receiver")
	}

	if _, err := done.Failed(FailureTimeout, "late", t0); apperror.GetCode(err) != apperror.CodeInvalidInput {
		t.Errorf("terminal execution accepted a transition: %v", err)
	}
}

func TestIllegalTransition(t *testing.T) {
	e := claimed(t)
	if _, err := e.Submitted("corr", t0); err == nil {
		t.Error("claimed -> submitted must be rejected")
	}
	if _, err := e.Confirmed(Outcome{Success: true, AmountOut: decimal.NewFromInt(1)}, nil, t0); err == nil {
		t.Error("claimed -> confirmed must be rejected")
	}
}

func TestFailed(t *testing.T) {
	e := claimed(t)

	slip, err := e.Failed(FailureSlippageExceeded, "net 3 below 19", t0)
	if err != nil {
		t.Fatal(err)
	}
	if slip.AmbiguousOutcome || slip.FailureDetail != "net 3 below 19" {
		t.Errorf("slippage failure = %+v", slip)
	}

	sim, _ := e.Simulated(decimal.NewFromInt(30), decimal.NewFromInt(10_032), t0)
	sub, _ := sim.Submitted("corr", t0)
	timedOut, err := sub.Failed(FailureTimeout, "no outcome", t0)
	if err != nil {
		t.Fatal(err)
	}
	if !timedOut.AmbiguousOutcome {
		t.Error("timeout after submission must be ambiguous")
	}

	reverted, err := sub.Reverted(Outcome{Reason: "STF", GasUsed: 21_000, GasPriceWei: decimal.NewFromInt(1e9), TxHash: "0x2"}, t0)
	if err != nil {
		t.Fatal(err)
	}
	if reverted.FailureReason != FailureReverted || reverted.FailureDetail != "STF" {
		t.Errorf("reverted = %s %q", reverted.FailureReason, reverted.FailureDetail)
	}
	if reverted.ActualAmountOut.Valid || reverted.GasUsed != 21_000 || !reverted.GasPriceWei.Valid {
		t.Errorf("revert must keep gas but not amount out: %+v", reverted)
	}
}

func TestRetryable(t *testing.T) {
	retryable := map[FailureReason]bool{FailureSubmission: true, FailureReverted: true}
	for _, r := range []FailureReason{
		FailureSlippageExceeded, FailureStaleData, FailureGasUnavailable, FailureSimulation,
		FailureSubmission, FailureReverted, FailureTimeout, FailureCancelled, FailureExpired,
	} {
		if r.Retryable() != retryable[r] {
			t.Errorf("%s retryable = %v", r, r.Retryable())
		}
	}
}

func TestEqual(t *testing.T) {
	a := claimed(t)
	b := claimed(t)
	if !a.Equal(b) {
		t.Fatal("identical executions differ")
	}

	sim, _ := a.Simulated(decimal.RequireFromString("30.0"), decimal.NewFromInt(10_030), t0)
	sim2, _ := b.Simulated(decimal.RequireFromString("30"), decimal.NewFromInt(10_030), t0)
	if !sim.Equal(sim2) {
		t.Error("decimal scale must not matter")
	}

	other, _ := b.Simulated(decimal.NewFromInt(31), decimal.NewFromInt(10_030), t0)
	if sim.Equal(other) {
		t.Error("different simulated profit compared equal")
	}
	if sim.Equal(a) {
		t.Error("different states compared equal")
	}
}

func TestOutcomeValidate(t *testing.T) {
	tests := []struct {
		name string
		o    Outcome
		ok   bool
	}{
		{"success", Outcome{Success: true, AmountOut: decimal.NewFromInt(1)}, true},
		{"success without amount", Outcome{Success: true}, false},
		{"revert without amount", Outcome{Reason: "reverted"}, true},
		{"negative gas price", Outcome{GasPriceWei: decimal.NewFromInt(-1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.o.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v", err)
			}
		})
	}
}

func TestParseState(t *testing.T) {
	for _, s := range States() {
		got, err := ParseState(string(s))
		if err != nil || got != s {
			t.Errorf("ParseState(%q) = %q, %v", s, got, err)
		}
	}
	if _, err := ParseState("pending"); err == nil {
		t.Error("unknown state accepted")
	}
}
