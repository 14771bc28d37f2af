// Package di contains dependency injection tokens for the blockchain context.
package di

import (
	"github.com/fd1az/arbitrage-engine/business/blockchain/app"
	"github.com/fd1az/arbitrage-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	BlockchainService = di.NewToken[*app.BlockchainService]("blockchain.BlockchainService")
)

// GetBlockchainService resolves the shared BlockchainService.
func GetBlockchainService(c di.ServiceRegistry) *app.BlockchainService {
	return di.GetToken(c, BlockchainService)
}
