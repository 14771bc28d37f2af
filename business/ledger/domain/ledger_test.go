package domain

import (
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	exdomain "github.com/fd1az/arbitrage-engine/business/execution/domain"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func execution(id string, state exdomain.State, at time.Time) exdomain.Execution {
	return exdomain.Execution{
		ID:                     id,
		OpportunityFingerprint: "fp-" + id,
		Attempt:                1,
		ChainIDs:               []uint64{1, 42161},
		State:                  state,
		ClaimedAt:              at,
		UpdatedAt:              at,
	}
}

func TestFilterMatches(t *testing.T) {
	e := execution("a", exdomain.StateConfirmed, t0)

	tests := []struct {
		name string
		f    Filter
		want bool
	}{
		{"empty", Filter{}, true},
		{"state", Filter{States: []exdomain.State{exdomain.StateFailed, exdomain.StateConfirmed}}, true},
		{"other state", Filter{States: []exdomain.State{exdomain.StateFailed}}, false},
		{"from inclusive", Filter{From: t0}, true},
		{"to exclusive", Filter{To: t0}, false},
		{"window", Filter{From: t0.Add(-time.Hour), To: t0.Add(time.Hour)}, true},
		{"fingerprint", Filter{Fingerprint: "fp-a"}, true},
		{"other fingerprint", Filter{Fingerprint: "fp-b"}, false},
		{"second chain", Filter{ChainID: 42161}, true},
		{"other chain", Filter{ChainID: 10}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Matches(e); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompareNewest(t *testing.T) {
	execs := []exdomain.Execution{
		execution("a", exdomain.StateClaimed, t0),
		execution("c", exdomain.StateClaimed, t0.Add(time.Second)),
		execution("b", exdomain.StateClaimed, t0),
	}
	slices.SortFunc(execs, CompareNewest)

	var ids []string
	for _, e := range execs {
		ids = append(ids, e.ID)
	}
	if !slices.Equal(ids, []string{"c", "b", "a"}) {
		t.Errorf("order = %v", ids)
	}
}

func TestCanonical(t *testing.T) {
	local := time.Date(2026, 5, 1, 11, 0, 0, 123_456_789, time.FixedZone("CEST", 2*3600))
	e := execution("a", exdomain.StateClaimed, local)
	e.CompletedAt = &local

	c := Canonical(e)
	if c.ClaimedAt.Location() != time.UTC || c.ClaimedAt.Nanosecond() != 123_456_000 {
		t.Errorf("claimed at = %s", c.ClaimedAt)
	}
	if c.CompletedAt == e.CompletedAt || !c.CompletedAt.Equal(c.ClaimedAt) {
		t.Error("completed at must be copied and truncated")
	}
	if c.SubmittedAt != nil {
		t.Error("nil timestamp must stay nil")
	}
}

func TestSummarize(t *testing.T) {
	ok := execution("a", exdomain.StateConfirmed, t0)
	ok.ActualProfitUSD = decimal.NewNullDecimal(decimal.RequireFromString("26.5"))
	ok.GasUsed = 200_000

	unpriced := execution("b", exdomain.StateConfirmed, t0)
	unpriced.GasUsed = 150_000

	slip := execution("c", exdomain.StateFailed, t0)
	slip.FailureReason = exdomain.FailureSlippageExceeded

	timeout := execution("d", exdomain.StateFailed, t0)
	timeout.FailureReason = exdomain.FailureTimeout
	timeout.AmbiguousOutcome = true

	running := execution("e", exdomain.StateSubmitted, t0)

	s := Summarize([]exdomain.Execution{ok, unpriced, slip, timeout, running})

	if s.Total != 5 || s.Confirmed != 2 || s.Failed != 2 || s.Ambiguous != 1 || s.InFlight != 1 {
		t.Errorf("counts = %+v", s)
	}
	if s.SuccessRate != 0.5 {
		t.Errorf("success rate = %v", s.SuccessRate)
	}
	if !s.RealizedProfitUSD.Equal(decimal.RequireFromString("26.5")) {
		t.Errorf("realized = %s", s.RealizedProfitUSD)
	}
	if s.GasUsed != 350_000 {
		t.Errorf("gas = %d", s.GasUsed)
	}
	if s.FailuresByReason["timeout"] != 1 || s.FailuresByReason["slippage_exceeded"] != 1 {
		t.Errorf("by reason = %v", s.FailuresByReason)
	}

	empty := Summarize(nil)
	if empty.SuccessRate != 0 || !empty.RealizedProfitUSD.IsZero() {
		t.Errorf("empty = %+v", empty)
	}
}
