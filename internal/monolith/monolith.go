// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"

	"github.com/fd1az/arbitrage-engine/internal/asset"
	"github.com/fd1az/arbitrage-engine/internal/config"
	"github.com/fd1az/arbitrage-engine/internal/di"
	"github.com/fd1az/arbitrage-engine/internal/health"
	"github.com/fd1az/arbitrage-engine/internal/httpserver"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	EthClient(chainID uint64) (*ethclient.Client, bool)
	Redis() *redis.Client // nil when redis is disabled
	AssetRegistry() *asset.Registry
	Health() *health.Server
	HTTP() *httpserver.Server
	Services() di.ServiceRegistry
}

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// Service names registered by the container itself.
const (
	ConfigService        = "config"
	LoggerService        = "logger"
	AssetRegistryService = "assetRegistry"
	RedisService         = "redis"
	EthClientsService    = "ethClients" // map[uint64]*ethclient.Client
)

type app struct {
	config        *config.Config
	logger        logger.LoggerInterface
	ethClients    map[uint64]*ethclient.Client
	redis         *redis.Client
	assetRegistry *asset.Registry
	health        *health.Server
	http          *httpserver.Server
	container     di.Container
}

// New creates a new Monolith instance, dialing one RPC client per configured chain.
func New(cfg *config.Config, log logger.LoggerInterface, healthSrv *health.Server, httpSrv *httpserver.Server) (*app, error) {
	a := &app{
		config:     cfg,
		logger:     log,
		ethClients: make(map[uint64]*ethclient.Client, len(cfg.Chains)),
		health:     healthSrv,
		http:       httpSrv,
		container:  di.NewContainer(),
	}

	for _, ch := range cfg.Chains {
		client, err := ethclient.Dial(ch.HTTPURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("dial chain %d (%s): %w", ch.ID, ch.Name, err)
		}
		a.ethClients[ch.ID] = client
	}

	registry, err := buildAssetRegistry(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.assetRegistry = registry

	if cfg.Redis.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		healthSrv.RegisterCheck("redis", health.FromError(func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}))
	}

	a.container.Register(ConfigService, cfg)
	a.container.Register(LoggerService, log)
	a.container.Register(AssetRegistryService, registry)
	a.container.Register(RedisService, a.redis)
	a.container.Register(EthClientsService, a.ethClients)

	return a, nil
}

func buildAssetRegistry(cfg *config.Config) (*asset.Registry, error) {
	registry := asset.NewRegistry()
	for _, ch := range cfg.Chains {
		native := asset.Asset{ChainID: ch.ID, Symbol: ch.NativeSymbol, Decimals: 18}
		if err := registry.Register(native); err != nil {
			return nil, err
		}
		for _, tok := range ch.Tokens {
			a := asset.Asset{
				ChainID:  ch.ID,
				Symbol:   tok.Symbol,
				Logical:  tok.Logical,
				Decimals: tok.Decimals,
				Stable:   tok.Stable,
			}
			if tok.Address != "" {
				a.Address = common.HexToAddress(tok.Address)
			}
			if err := registry.Register(a); err != nil {
				return nil, fmt.Errorf("chain %d: %w", ch.ID, err)
			}
		}
	}
	return registry, nil
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) EthClient(chainID uint64) (*ethclient.Client, bool) {
	c, ok := a.ethClients[chainID]
	return c, ok
}

func (a *app) Redis() *redis.Client {
	return a.redis
}

func (a *app) AssetRegistry() *asset.Registry {
	return a.assetRegistry
}

func (a *app) Health() *health.Server {
	return a.health
}

func (a *app) HTTP() *httpserver.Server {
	return a.http
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules in order.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all resources.
func (a *app) Close() error {
	for _, c := range a.ethClients {
		c.Close()
	}
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
