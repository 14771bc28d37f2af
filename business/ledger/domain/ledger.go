// Package domain defines ledger queries and the derived statistics view.
package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	exdomain "github.com/fd1az/arbitrage-engine/business/execution/domain"
)

// Filter selects ledger entries. Zero fields match everything; Limit 0 means no limit.
type Filter struct {
	States      []exdomain.State
	From        time.Time // inclusive, on ClaimedAt
	To          time.Time // exclusive, on ClaimedAt
	Fingerprint string
	ChainID     uint64
	Limit       int
}

// Matches reports whether e passes every criterion except Limit.
func (f Filter) Matches(e exdomain.Execution) bool {
	if len(f.States) > 0 && !slices.Contains(f.States, e.State) {
		return false
	}
	if !f.From.IsZero() && e.ClaimedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.ClaimedAt.Before(f.To) {
		return false
	}
	if f.Fingerprint != "" && e.OpportunityFingerprint != f.Fingerprint {
		return false
	}
	if f.ChainID != 0 && !slices.Contains(e.ChainIDs, f.ChainID) {
		return false
	}
	return true
}

// Unlimited returns f without its limit.
func (f Filter) Unlimited() Filter {
	f.Limit = 0
	return f
}

// CompareNewest orders executions newest first: ClaimedAt descending, then ID descending.
func CompareNewest(a, b exdomain.Execution) int {
	if c := b.ClaimedAt.Compare(a.ClaimedAt); c != 0 {
		return c
	}
	switch {
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	}
	return 0
}

// Canonical returns e with every timestamp in UTC at microsecond precision, the
// resolution all stores keep.
func Canonical(e exdomain.Execution) exdomain.Execution {
	e.ClaimedAt = canonicalTime(e.ClaimedAt)
	e.UpdatedAt = canonicalTime(e.UpdatedAt)
	e.SubmittedAt = canonicalPtr(e.SubmittedAt)
	e.CompletedAt = canonicalPtr(e.CompletedAt)
	e.ChainIDs = slices.Clone(e.ChainIDs)
	return e
}

func canonicalTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Microsecond)
}

func canonicalPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := canonicalTime(*t)
	return &c
}

// Stats is the derived summary of a set of ledger entries.
type Stats struct {
	Total             int             `json:"total"`
	Confirmed         int             `json:"confirmed"`
	Failed            int             `json:"failed"`
	Ambiguous         int             `json:"ambiguous"`
	InFlight          int             `json:"in_flight"`
	SuccessRate       float64         `json:"success_rate"` // confirmed / finished
	RealizedProfitUSD decimal.Decimal `json:"realized_profit_usd"`
	GasUsed           uint64          `json:"gas_used"`
	FailuresByReason  map[string]int  `json:"failures_by_reason"`
}

// Summarize folds executions into Stats. Realized profit counts confirmed executions
// that could be priced.
func Summarize(execs []exdomain.Execution) Stats {
	s := Stats{RealizedProfitUSD: decimal.Zero, FailuresByReason: make(map[string]int)}
	for _, e := range execs {
		s.Total++
		s.GasUsed += e.GasUsed
		switch e.State {
		case exdomain.StateConfirmed:
			s.Confirmed++
			if e.ActualProfitUSD.Valid {
				s.RealizedProfitUSD = s.RealizedProfitUSD.Add(e.ActualProfitUSD.Decimal)
			}
		case exdomain.StateFailed:
			s.Failed++
			s.FailuresByReason[string(e.FailureReason)]++
			if e.AmbiguousOutcome {
				s.Ambiguous++
			}
		default:
			s.InFlight++
		}
	}
	if finished := s.Confirmed + s.Failed; finished > 0 {
		s.SuccessRate = float64(s.Confirmed) / float64(finished)
	}
	return s
}
