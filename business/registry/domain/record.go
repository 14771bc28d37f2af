// Package domain contains the opportunity lifecycle types of the registry context.
package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	arbdomain "github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
)

// Status is the lifecycle state of a registered opportunity.
type Status string

const (
	StatusActive     Status = "active"
	StatusClaimed    Status = "claimed"
	StatusExpired    Status = "expired"
	StatusSuperseded Status = "superseded"
)

// IsTerminal reports whether no further transition can leave the status.
func (s Status) IsTerminal() bool {
	return s == StatusExpired || s == StatusSuperseded
}

// ParseStatus parses a status name.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusActive, StatusClaimed, StatusExpired, StatusSuperseded:
		return st, true
	}
	return "", false
}

// Record is an opportunity and its status at one point in time. Records are immutable;
// each transition produces a new one.
type Record struct {
	Opportunity arbdomain.Opportunity `json:"opportunity"`
	Status      Status                `json:"status"`
	ChangedAt   time.Time             `json:"changed_at"`
	Claims      int                   `json:"claims"` // times the opportunity was claimed
}

// With returns a copy of the record in status s.
func (r Record) With(s Status, at time.Time) *Record {
	r.Status = s
	r.ChangedAt = at
	if s == StatusClaimed {
		r.Claims++
	}
	return &r
}

// Filter narrows ListActive. Zero values match everything.
type Filter struct {
	ChainID      uint64
	Kind         arbdomain.StrategyKind
	MinNetProfit decimal.Decimal // USD
	Limit        int
}

// Matches reports whether opp passes the filter.
func (f Filter) Matches(opp arbdomain.Opportunity) bool {
	if f.Kind != "" && opp.Kind != f.Kind {
		return false
	}
	if f.ChainID != 0 && !slices.Contains(opp.Path.ChainIDs(), f.ChainID) {
		return false
	}
	if !f.MinNetProfit.IsPositive() {
		return true
	}
	// Without a USD value the profit cannot be held against a USD floor.
	return opp.NetProfitUSD.Valid && !opp.NetProfitUSD.Decimal.LessThan(f.MinNetProfit)
}

// EventType names a lifecycle transition.
type EventType string

const (
	EventNew        EventType = "new"
	EventReplaced   EventType = "replaced"
	EventSuperseded EventType = "superseded"
	EventExpired    EventType = "expired"
	EventClaimed    EventType = "claimed"
	EventReleased   EventType = "released"
	EventSettled    EventType = "settled"
)

// Event is published on every lifecycle transition.
type Event struct {
	Type        EventType              `json:"type"`
	Fingerprint string                 `json:"fingerprint"`
	Kind        arbdomain.StrategyKind `json:"kind"`
	NetProfit   decimal.Decimal        `json:"net_profit"`
	ProfitToken string                 `json:"profit_token"`
	At          time.Time              `json:"at"`
}

// NewEvent builds the event for a transition of opp.
func NewEvent(t EventType, opp arbdomain.Opportunity, at time.Time) Event {
	return Event{
		Type:        t,
		Fingerprint: opp.Fingerprint,
		Kind:        opp.Kind,
		NetProfit:   opp.NetProfit,
		ProfitToken: opp.ProfitToken,
		At:          at,
	}
}
