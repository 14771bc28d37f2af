// Package domain contains the core domain types for the arbitrage context.
package domain

import (
	"fmt"
	"time"
)

// StrategyKind is the closed set of detection strategies.
type StrategyKind string

const (
	SimpleIntraDex StrategyKind = "simple_intra_dex"
	Triangular     StrategyKind = "triangular"
	CrossDex       StrategyKind = "cross_dex"
	CrossChain     StrategyKind = "cross_chain"
)

// Kinds returns every strategy kind in evaluation order.
func Kinds() []StrategyKind {
	return []StrategyKind{SimpleIntraDex, Triangular, CrossDex, CrossChain}
}

// ParseStrategyKind parses a kind name.
func ParseStrategyKind(s string) (StrategyKind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown strategy kind %q", s)
}

// DefaultTTL is how long an opportunity of this kind stays claimable.
func (k StrategyKind) DefaultTTL() time.Duration {
	switch k {
	case SimpleIntraDex:
		return 30 * time.Second
	case Triangular:
		return 45 * time.Second
	case CrossDex:
		return 60 * time.Second
	case CrossChain:
		return 120 * time.Second
	default:
		return 30 * time.Second
	}
}

func (k StrategyKind) String() string {
	return string(k)
}
