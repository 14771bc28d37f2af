// Package di contains dependency injection tokens for the marketdata context.
package di

import (
	"github.com/fd1az/arbitrage-engine/business/marketdata/app"
	"github.com/fd1az/arbitrage-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Cache = di.NewToken[*app.Cache]("marketdata.Cache")
)

// Private dependency tokens - internal to marketdata module
var (
	FeedRunner = di.NewToken[*app.FeedRunner]("marketdata:feedRunner")
)

// GetCache resolves the shared market data cache.
func GetCache(c di.ServiceRegistry) *app.Cache {
	return di.GetToken(c, Cache)
}

func GetFeedRunner(c di.ServiceRegistry) *app.FeedRunner {
	return di.GetToken(c, FeedRunner)
}
