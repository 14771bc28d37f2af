package app

import (
	"github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
)

// cycleCandidates returns the single-chain cycles of chainID: two hops on one DEX
// (simple intra-DEX) and three or more hops (triangular). Two-hop cycles across DEXs
// belong to the cross-DEX strategy.
func (d *Detector) cycleCandidates(market *Market, chainID uint64) []candidate {
	simple, triangular := d.enabled(domain.SimpleIntraDex), d.enabled(domain.Triangular)
	if !simple && !triangular {
		return nil
	}

	maxHops := d.cfg.MaxHops
	if !triangular {
		maxHops = 2
	}

	g := buildGraph(chainID, market.Quotes(chainID))
	startable := func(token string) bool {
		_, ok := d.tradeSize(token)
		return ok
	}

	var out []candidate
	for _, cycle := range g.cycles(maxHops, startable) {
		if len(cycle) == 2 {
			if !simple || cycle[0].quote.Key.DexID != cycle[1].quote.Key.DexID {
				continue
			}
		} else if !triangular {
			continue
		}

		quotes := make([]Quote, len(cycle))
		for i, e := range cycle {
			quotes[i] = e.quote
		}
		path, ok := d.pathOf(quotes...)
		if !ok {
			continue
		}
		out = append(out, candidate{path: path, cycleKey: cycleKey(quotes...)})
	}
	return out
}

// crossDexCandidates pairs a buy on one DEX with the reverse sell on another. When both
// tokens have a trade size the spread is found from each side; the cycle key lets Scan
// keep only the better orientation.
func (d *Detector) crossDexCandidates(market *Market, chainID uint64) []candidate {
	quotes := market.Quotes(chainID)

	var out []candidate
	for _, buy := range quotes {
		if _, ok := d.tradeSize(buy.Key.TokenIn); !ok {
			continue
		}
		for _, sell := range quotes {
			if sell.Key.DexID == buy.Key.DexID ||
				sell.Key.TokenIn != buy.Key.TokenOut ||
				sell.Key.TokenOut != buy.Key.TokenIn {
				continue
			}
			if path, ok := d.pathOf(buy, sell); ok {
				out = append(out, candidate{path: path, cycleKey: cycleKey(buy, sell)})
			}
		}
	}
	return out
}

// crossChainCandidates buys an intermediate asset on chain from, bridges it and sells
// it on chain to for the start asset. Each side takes its best rate.
func (d *Detector) crossChainCandidates(market *Market, from, to uint64) []candidate {
	type leg struct {
		profit, bridge string // logical assets
	}

	buys := make(map[leg]Quote)
	var order []leg
	for _, q := range market.Quotes(from) {
		if _, ok := d.tradeSize(q.Key.TokenIn); !ok {
			continue
		}
		l := leg{profit: market.Logical(from, q.Key.TokenIn), bridge: market.Logical(from, q.Key.TokenOut)}
		if l.profit == l.bridge {
			continue
		}
		best, seen := buys[l]
		if !seen {
			order = append(order, l)
		}
		if !seen || q.Rate.GreaterThan(best.Rate) {
			buys[l] = q
		}
	}
	if len(buys) == 0 {
		return nil
	}

	sells := make(map[leg]Quote)
	for _, q := range market.Quotes(to) {
		l := leg{profit: market.Logical(to, q.Key.TokenOut), bridge: market.Logical(to, q.Key.TokenIn)}
		if _, wanted := buys[l]; !wanted {
			continue
		}
		if best, seen := sells[l]; !seen || q.Rate.GreaterThan(best.Rate) {
			sells[l] = q
		}
	}

	var out []candidate
	for _, l := range order {
		sell, ok := sells[l]
		if !ok {
			continue
		}
		if path, ok := d.pathOf(buys[l], sell); ok {
			out = append(out, candidate{path: path})
		}
	}
	return out
}

// pathOf turns quotes into a path sized by the start token's trade size.
func (d *Detector) pathOf(quotes ...Quote) (domain.Path, bool) {
	size, ok := d.tradeSize(quotes[0].Key.TokenIn)
	if !ok {
		return domain.Path{}, false
	}
	hops := make([]domain.Hop, len(quotes))
	for i, q := range quotes {
		hops[i] = domain.Hop{
			ChainID:  q.Key.ChainID,
			DexID:    q.Key.DexID,
			TokenIn:  q.Key.TokenIn,
			TokenOut: q.Key.TokenOut,
		}
	}
	hops[0].AmountIn = size
	path, err := domain.NewPath(hops)
	return path, err == nil
}
