package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	mddomain "github.com/fd1az/arbitrage-engine/business/marketdata/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
)

// Hop is one swap of a path.
type Hop struct {
	ChainID  uint64          `json:"chain_id"`
	DexID    string          `json:"dex"`
	TokenIn  string          `json:"token_in"`
	TokenOut string          `json:"token_out"`
	AmountIn decimal.Decimal `json:"amount_in"` // in TokenIn units
}

// Key returns the market snapshot key quoting this hop.
func (h Hop) Key() mddomain.SnapshotKey {
	return mddomain.SnapshotKey{ChainID: h.ChainID, DexID: h.DexID, TokenIn: h.TokenIn, TokenOut: h.TokenOut}
}

// Lane returns the execution lane of the hop: chain, DEX and unordered pair.
func (h Hop) Lane() string {
	a, b := h.TokenIn, h.TokenOut
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%s:%s/%s", h.ChainID, h.DexID, a, b)
}

func (h Hop) String() string {
	return fmt.Sprintf("%d:%s:%s>%s", h.ChainID, h.DexID, h.TokenIn, h.TokenOut)
}

// Path is an immutable ordered list of at least two hops.
type Path struct {
	hops []Hop
}

// NewPath copies hops into a Path.
func NewPath(hops []Hop) (Path, error) {
	if len(hops) < 2 {
		return Path{}, apperror.Validation(apperror.CodeInvalidPath,
			fmt.Sprintf("path needs at least 2 hops, got %d", len(hops)))
	}
	for i, h := range hops {
		if h.ChainID == 0 || h.DexID == "" || h.TokenIn == "" || h.TokenOut == "" {
			return Path{}, apperror.Validation(apperror.CodeInvalidPath, fmt.Sprintf("hop %d is incomplete", i))
		}
	}
	return Path{hops: slices.Clone(hops)}, nil
}

// Len returns the hop count.
func (p Path) Len() int {
	return len(p.hops)
}

// Hop returns hop i.
func (p Path) Hop(i int) Hop {
	return p.hops[i]
}

// Hops returns a copy of the hops.
func (p Path) Hops() []Hop {
	return slices.Clone(p.hops)
}

// First returns the first hop.
func (p Path) First() Hop {
	return p.hops[0]
}

// Last returns the last hop.
func (p Path) Last() Hop {
	return p.hops[len(p.hops)-1]
}

// ChainIDs returns the distinct chains touched, in path order.
func (p Path) ChainIDs() []uint64 {
	var ids []uint64
	for _, h := range p.hops {
		if !slices.Contains(ids, h.ChainID) {
			ids = append(ids, h.ChainID)
		}
	}
	return ids
}

// DexIDs returns the distinct DEXs touched, in path order.
func (p Path) DexIDs() []string {
	var ids []string
	for _, h := range p.hops {
		if !slices.Contains(ids, h.DexID) {
			ids = append(ids, h.DexID)
		}
	}
	return ids
}

// Lanes returns the sorted distinct lanes of the path.
func (p Path) Lanes() []string {
	lanes := make([]string, 0, len(p.hops))
	for _, h := range p.hops {
		lanes = append(lanes, h.Lane())
	}
	slices.Sort(lanes)
	return slices.Compact(lanes)
}

// WithAmounts returns a copy of the path with hop input amounts replaced.
func (p Path) WithAmounts(amounts []decimal.Decimal) Path {
	hops := slices.Clone(p.hops)
	for i := range hops {
		if i < len(amounts) {
			hops[i].AmountIn = amounts[i]
		}
	}
	return Path{hops: hops}
}

// MarshalJSON encodes the path as its hop list.
func (p Path) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.hops)
}

// UnmarshalJSON decodes a hop list, applying the same checks as NewPath.
func (p *Path) UnmarshalJSON(b []byte) error {
	var hops []Hop
	if err := json.Unmarshal(b, &hops); err != nil {
		return err
	}
	path, err := NewPath(hops)
	if err != nil {
		return err
	}
	*p = path
	return nil
}

func (p Path) String() string {
	parts := make([]string, len(p.hops))
	for i, h := range p.hops {
		parts[i] = h.String()
	}
	return strings.Join(parts, " -> ")
}
