// Package di contains dependency injection tokens for the execution context.
package di

import (
	"github.com/fd1az/arbitrage-engine/business/execution/app"
	"github.com/fd1az/arbitrage-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Coordinator = di.NewToken[*app.Coordinator]("execution.Coordinator")
)

// Private dependency tokens - internal to execution module
var (
	Submitter = di.NewToken[app.Submitter]("execution:submitter")
	Lanes     = di.NewToken[app.LaneLocker]("execution:lanes")
	Prices    = di.NewToken[app.PriceOracle]("execution:prices")
)

// GetCoordinator resolves the execution coordinator.
func GetCoordinator(c di.ServiceRegistry) *app.Coordinator {
	return di.GetToken(c, Coordinator)
}

func GetSubmitter(c di.ServiceRegistry) app.Submitter {
	return di.GetToken(c, Submitter)
}

func GetLanes(c di.ServiceRegistry) app.LaneLocker {
	return di.GetToken(c, Lanes)
}

func GetPrices(c di.ServiceRegistry) app.PriceOracle {
	return di.GetToken(c, Prices)
}
