// Package di contains dependency injection tokens for the registry context.
package di

import (
	"github.com/fd1az/arbitrage-engine/business/registry/app"
	"github.com/fd1az/arbitrage-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Registry = di.NewToken[*app.Registry]("registry.Registry")
)

// Private dependency tokens - internal to registry module
var (
	Publisher = di.NewToken[app.Publisher]("registry:publisher")
)

// GetRegistry resolves the opportunity registry.
func GetRegistry(c di.ServiceRegistry) *app.Registry {
	return di.GetToken(c, Registry)
}

func GetPublisher(c di.ServiceRegistry) app.Publisher {
	return di.GetToken(c, Publisher)
}
