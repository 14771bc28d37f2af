// Package marketdata implements the market data bounded context: the snapshot cache and
// the feeds that fill it.
package marketdata

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	blockchainDI "github.com/fd1az/arbitrage-engine/business/blockchain/di"
	"github.com/fd1az/arbitrage-engine/business/marketdata/app"
	marketdataDI "github.com/fd1az/arbitrage-engine/business/marketdata/di"
	"github.com/fd1az/arbitrage-engine/business/marketdata/infra/uniswap"
	"github.com/fd1az/arbitrage-engine/business/marketdata/infra/wsfeed"
	"github.com/fd1az/arbitrage-engine/internal/asset"
	"github.com/fd1az/arbitrage-engine/internal/config"
	"github.com/fd1az/arbitrage-engine/internal/di"
	"github.com/fd1az/arbitrage-engine/internal/logger"
	"github.com/fd1az/arbitrage-engine/internal/monolith"
)

// Module implements the marketdata bounded context.
type Module struct{}

// RegisterServices registers the cache and the feed runner.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, marketdataDI.Cache, func(sr di.ServiceRegistry) *app.Cache {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)

		cache, err := app.NewCache(cfg.MarketData.Shards, cfg.MarketData.Staleness)
		if err != nil {
			panic("failed to create market data cache: " + err.Error())
		}
		return cache
	})

	di.RegisterToken(c, marketdataDI.FeedRunner, func(sr di.ServiceRegistry) *app.FeedRunner {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)
		return app.NewFeedRunner(log, cfg.MarketData.FeedReconnect)
	})

	return nil
}

// Startup builds one quoter poller per chain with pools, the optional websocket feed,
// and starts them.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	log := mono.Logger()
	cache := marketdataDI.GetCache(mono.Services())
	chains := blockchainDI.GetBlockchainService(mono.Services())

	var feeds []app.Feed
	for _, ch := range cfg.Chains {
		if ch.Quoter.Address == "" || len(ch.Quoter.Pools) == 0 {
			continue
		}
		client, ok := mono.EthClient(ch.ID)
		if !ok {
			return fmt.Errorf("chain %d: no rpc client", ch.ID)
		}
		pools, err := buildPools(ch, mono.AssetRegistry())
		if err != nil {
			return err
		}

		poller, err := uniswap.NewPoller(uniswap.PollerConfig{
			ChainID:  ch.ID,
			Quoter:   common.HexToAddress(ch.Quoter.Address),
			Pools:    pools,
			Interval: ch.Quoter.PollInterval,
		}, client, cache, chains.Watch(ch.ID), log)
		if err != nil {
			return fmt.Errorf("chain %d: %w", ch.ID, err)
		}
		feeds = append(feeds, poller)
	}

	if cfg.MarketData.FeedURL != "" {
		feeds = append(feeds, wsfeed.New(cfg.MarketData.FeedURL, cfg.MarketData.FeedReconnect, cfg.ChainIDs(), cache, log))
	}

	mono.Health().RegisterCheck("marketdata", func(context.Context) (bool, string) {
		fresh := cache.FreshCount()
		if len(feeds) > 0 && fresh == 0 {
			return false, "no fresh snapshots"
		}
		return true, fmt.Sprintf("%d fresh of %d keys", fresh, cache.Len())
	})

	marketdataDI.GetFeedRunner(mono.Services()).Start(ctx, feeds...)

	log.Info(ctx, "marketdata module started", "feeds", len(feeds))
	return nil
}

func buildPools(ch config.ChainConfig, registry *asset.Registry) ([]uniswap.Pool, error) {
	pools := make([]uniswap.Pool, 0, len(ch.Quoter.Pools))
	for i, pc := range ch.Quoter.Pools {
		in, ok := registry.Lookup(ch.ID, pc.TokenIn)
		if !ok || in.IsNative() {
			return nil, fmt.Errorf("chain %d pool %d: token_in %q is not a configured token", ch.ID, i, pc.TokenIn)
		}
		out, ok := registry.Lookup(ch.ID, pc.TokenOut)
		if !ok || out.IsNative() {
			return nil, fmt.Errorf("chain %d pool %d: token_out %q is not a configured token", ch.ID, i, pc.TokenOut)
		}

		probe := decimal.NewFromInt(1)
		if pc.ProbeAmount != "" {
			d, err := decimal.NewFromString(pc.ProbeAmount)
			if err != nil || !d.IsPositive() {
				return nil, fmt.Errorf("chain %d pool %d: invalid probe_amount %q", ch.ID, i, pc.ProbeAmount)
			}
			probe = d
		}

		dex := pc.Dex
		if dex == "" {
			dex = "uniswap-v3"
		}
		fee := pc.FeeTier
		if fee == 0 {
			fee = uniswap.FeeTier030
		}

		pools = append(pools, uniswap.Pool{Dex: dex, TokenIn: in, TokenOut: out, FeeTier: fee, Probe: probe})
	}
	return pools, nil
}
