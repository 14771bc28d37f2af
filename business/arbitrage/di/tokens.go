// Package di contains dependency injection tokens for the arbitrage context.
package di

import (
	"github.com/fd1az/arbitrage-engine/business/arbitrage/app"
	"github.com/fd1az/arbitrage-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Detector = di.NewToken[*app.Detector]("arbitrage.Detector")
)

// Private dependency tokens - internal to arbitrage module
var (
	Bridges   = di.NewToken[app.BridgeFeeProvider]("arbitrage:bridges")
	Scheduler = di.NewToken[*app.Scheduler]("arbitrage:scheduler")
)

// GetDetector resolves the opportunity detector.
func GetDetector(c di.ServiceRegistry) *app.Detector {
	return di.GetToken(c, Detector)
}

func GetBridges(c di.ServiceRegistry) app.BridgeFeeProvider {
	return di.GetToken(c, Bridges)
}

func GetScheduler(c di.ServiceRegistry) *app.Scheduler {
	return di.GetToken(c, Scheduler)
}
