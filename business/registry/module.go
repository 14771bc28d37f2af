// Package registry implements the opportunity registry bounded context.
package registry

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fd1az/arbitrage-engine/business/registry/app"
	registryDI "github.com/fd1az/arbitrage-engine/business/registry/di"
	"github.com/fd1az/arbitrage-engine/business/registry/infra/redispub"
	"github.com/fd1az/arbitrage-engine/business/registry/infra/rest"
	"github.com/fd1az/arbitrage-engine/internal/config"
	"github.com/fd1az/arbitrage-engine/internal/di"
	"github.com/fd1az/arbitrage-engine/internal/logger"
	"github.com/fd1az/arbitrage-engine/internal/monolith"
)

// Module implements the registry bounded context.
type Module struct{}

// RegisterServices registers the event publisher and the registry.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, registryDI.Publisher, func(sr di.ServiceRegistry) app.Publisher {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)
		rdb, _ := sr.Get(monolith.RedisService).(*redis.Client)
		if rdb == nil {
			return app.NopPublisher{}
		}
		return redispub.New(rdb, cfg.Redis.Channel, log)
	})

	di.RegisterToken(c, registryDI.Registry, func(sr di.ServiceRegistry) *app.Registry {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)

		reg, err := app.New(app.Config{
			Retention:     cfg.Registry.Retention,
			SweepInterval: cfg.Registry.SweepInterval,
		}, registryDI.GetPublisher(sr), log)
		if err != nil {
			panic("failed to create opportunity registry: " + err.Error())
		}
		return reg
	})

	return nil
}

// Startup starts the sweeper and mounts the read API.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	reg := registryDI.GetRegistry(mono.Services())

	go reg.Run(ctx)

	rest.New(reg).Register(mono.HTTP().API())

	mono.Health().RegisterCheck("registry", func(ctx context.Context) (bool, string) {
		st := reg.Stats(ctx)
		return true, fmt.Sprintf("%d active, %d claimed", st.Active, st.Claimed)
	})

	mono.Logger().Info(ctx, "registry module started", "redis_events", mono.Redis() != nil)
	return nil
}
