// Package blockchain implements the blockchain bounded context: block streams and gas
// prices for every configured EVM chain.
package blockchain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/arbitrage-engine/business/blockchain/app"
	blockchainDI "github.com/fd1az/arbitrage-engine/business/blockchain/di"
	"github.com/fd1az/arbitrage-engine/business/blockchain/domain"
	"github.com/fd1az/arbitrage-engine/business/blockchain/infra/ethereum"
	"github.com/fd1az/arbitrage-engine/internal/config"
	"github.com/fd1az/arbitrage-engine/internal/di"
	"github.com/fd1az/arbitrage-engine/internal/logger"
	"github.com/fd1az/arbitrage-engine/internal/monolith"
)

// Module implements the blockchain bounded context.
type Module struct{}

// RegisterServices registers all blockchain services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, blockchainDI.BlockchainService, func(sr di.ServiceRegistry) *app.BlockchainService {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)
		clients := sr.Get(monolith.EthClientsService).(map[uint64]*ethclient.Client)

		chains := make([]app.Chain, 0, len(cfg.Chains))
		for _, ch := range cfg.Chains {
			chain, err := newChain(ch, clients[ch.ID], log)
			if err != nil {
				panic(err.Error())
			}
			chains = append(chains, chain)
		}
		return app.NewBlockchainService(log, chains...)
	})

	return nil
}

func newChain(ch config.ChainConfig, client *ethclient.Client, log logger.LoggerInterface) (app.Chain, error) {
	if client == nil {
		return app.Chain{}, fmt.Errorf("chain %d: no rpc client", ch.ID)
	}

	subCfg := ethereum.DefaultSubscriberConfig(ch.ID, ch.WebSocketURL)
	if ch.ScanInterval > 0 {
		subCfg.PollInterval = ch.ScanInterval
	}
	sub, err := ethereum.NewSubscriber(subCfg, client, log)
	if err != nil {
		return app.Chain{}, fmt.Errorf("chain %d: create subscriber: %w", ch.ID, err)
	}

	oracleCfg := ethereum.DefaultGasOracleConfig(ch.ID)
	if ch.GasCacheTTL > 0 {
		oracleCfg.CacheTTL = ch.GasCacheTTL
	}
	if ch.MaxGasPriceGwei > 0 {
		oracleCfg.MaxGasPrice = ch.MaxGasPriceWei().BigInt()
	}
	oracle, err := ethereum.NewGasOracle(oracleCfg, client, log)
	if err != nil {
		return app.Chain{}, fmt.Errorf("chain %d: create gas oracle: %w", ch.ID, err)
	}

	return app.Chain{ID: ch.ID, Name: ch.Name, Subscriber: sub, GasOracle: oracle}, nil
}

// Startup subscribes every chain and registers per-chain health checks.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	svc := blockchainDI.GetBlockchainService(mono.Services())

	for _, id := range svc.Chains() {
		chainID := id
		mono.Health().RegisterCheck(fmt.Sprintf("chain_%d", chainID), func(context.Context) (bool, string) {
			st, _ := svc.ConnectionStatus(chainID)
			if st.State != domain.StateConnected {
				return false, string(st.State)
			}
			if st.UsingHTTP {
				return true, fmt.Sprintf("polling, last block %d", st.LastBlock)
			}
			return true, fmt.Sprintf("streaming, last block %d", st.LastBlock)
		})
	}

	if err := svc.Start(ctx); err != nil {
		return err
	}

	log.Info(ctx, "blockchain module started", "chains", len(svc.Chains()))
	return nil
}
