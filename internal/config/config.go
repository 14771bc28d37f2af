// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Server     ServerConfig     `mapstructure:"server"`
	Health     HealthConfig     `mapstructure:"health"`
	Chains     []ChainConfig    `mapstructure:"chains"`
	MarketData MarketDataConfig `mapstructure:"marketdata"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceProvider  string `mapstructure:"trace_provider"` // zipkin, honeycomb, newrelic, console
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// ServerConfig holds the REST API settings.
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// HealthConfig holds the health probe server settings.
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// TokenConfig describes one token on one chain.
type TokenConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Logical  string `mapstructure:"logical"` // cross-chain identity, defaults to Symbol
	Address  string `mapstructure:"address"`
	Decimals uint8  `mapstructure:"decimals"`
	Stable   bool   `mapstructure:"stable"`
}

// PoolConfig is one Uniswap V3 pool direction polled through the quoter.
type PoolConfig struct {
	Dex         string `mapstructure:"dex"`
	TokenIn     string `mapstructure:"token_in"`
	TokenOut    string `mapstructure:"token_out"`
	FeeTier     uint32 `mapstructure:"fee_tier"`
	ProbeAmount string `mapstructure:"probe_amount"` // in TokenIn units
}

// QuoterConfig configures the on-chain quoter poller for a chain.
type QuoterConfig struct {
	Address      string        `mapstructure:"address"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Pools        []PoolConfig  `mapstructure:"pools"`
}

// ChainConfig holds per-chain node and cost settings.
type ChainConfig struct {
	ID              uint64        `mapstructure:"id"`
	Name            string        `mapstructure:"name"`
	WebSocketURL    string        `mapstructure:"websocket_url"`
	HTTPURL         string        `mapstructure:"http_url"`
	NativeSymbol    string        `mapstructure:"native_symbol"`
	GasPerHop       uint64        `mapstructure:"gas_per_hop"`
	MaxGasPriceGwei float64       `mapstructure:"max_gas_price_gwei"`
	GasCacheTTL     time.Duration `mapstructure:"gas_cache_ttl"`
	ScanInterval    time.Duration `mapstructure:"scan_interval"`
	Tokens          []TokenConfig `mapstructure:"tokens"`
	Quoter          QuoterConfig  `mapstructure:"quoter"`
}

// MaxGasPriceWei returns the gas price cap in wei.
func (c *ChainConfig) MaxGasPriceWei() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxGasPriceGwei).Shift(9)
}

// MarketDataConfig holds cache and feed settings.
type MarketDataConfig struct {
	Staleness     time.Duration `mapstructure:"staleness"`
	Shards        int           `mapstructure:"shards"`
	FeedURL       string        `mapstructure:"feed_url"`
	FeedReconnect time.Duration `mapstructure:"feed_reconnect"`
}

// StrategyConfig configures one strategy kind.
type StrategyConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MinProfitPercent float64       `mapstructure:"min_profit_percent"`
	TTL              time.Duration `mapstructure:"ttl"`
}

// MinProfitPercentDecimal returns the threshold as decimal.Decimal.
func (c StrategyConfig) MinProfitPercentDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinProfitPercent)
}

// StrategiesConfig has one entry per strategy kind.
type StrategiesConfig struct {
	SimpleIntraDex StrategyConfig `mapstructure:"simple_intra_dex"`
	Triangular     StrategyConfig `mapstructure:"triangular"`
	CrossDex       StrategyConfig `mapstructure:"cross_dex"`
	CrossChain     StrategyConfig `mapstructure:"cross_chain"`
}

// DexFeeConfig overrides the swap fee of one DEX.
type DexFeeConfig struct {
	Dex    string `mapstructure:"dex"`
	FeeBps int64  `mapstructure:"fee_bps"`
}

// TradeSizeConfig is the notional used when a path starts at Symbol.
type TradeSizeConfig struct {
	Symbol string `mapstructure:"symbol"`
	Amount string `mapstructure:"amount"`
}

// BridgeConfig is the cost of moving assets between two chains.
type BridgeConfig struct {
	From                uint64        `mapstructure:"from"`
	To                  uint64        `mapstructure:"to"`
	FeeBps              int64         `mapstructure:"fee_bps"`
	FixedFee            string        `mapstructure:"fixed_fee"` // in the bridged asset
	Latency             time.Duration `mapstructure:"latency"`
	PenaltyBpsPerMinute float64       `mapstructure:"penalty_bps_per_minute"`
}

// DetectionConfig holds detector settings.
type DetectionConfig struct {
	MaxHops        int               `mapstructure:"max_hops"`
	Epsilon        string            `mapstructure:"epsilon"`
	MinConfidence  float64           `mapstructure:"min_confidence"`
	MaxDepthRatio  float64           `mapstructure:"max_depth_ratio"`
	DefaultFeeBps  int64             `mapstructure:"default_fee_bps"`
	DexFees        []DexFeeConfig    `mapstructure:"dex_fees"`
	TradeSizes     []TradeSizeConfig `mapstructure:"trade_sizes"`
	Strategies     StrategiesConfig  `mapstructure:"strategies"`
	Bridges        []BridgeConfig    `mapstructure:"bridges"`
	BridgeQuoteURL string            `mapstructure:"bridge_quote_url"`
}

// EpsilonDecimal returns the near-zero tolerance.
func (c *DetectionConfig) EpsilonDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(c.Epsilon)
	if err != nil {
		return decimal.New(1, -9)
	}
	return d
}

// TradeSizesDecimal returns the trade sizes keyed by symbol.
func (c *DetectionConfig) TradeSizesDecimal() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(c.TradeSizes))
	for _, ts := range c.TradeSizes {
		if d, err := decimal.NewFromString(ts.Amount); err == nil {
			out[ts.Symbol] = d
		}
	}
	return out
}

// DexFeesBps returns the fee overrides keyed by DEX id.
func (c *DetectionConfig) DexFeesBps() map[string]int64 {
	out := make(map[string]int64, len(c.DexFees))
	for _, f := range c.DexFees {
		out[f.Dex] = f.FeeBps
	}
	return out
}

// RegistryConfig holds opportunity registry settings.
type RegistryConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// Overflow policies for the execution coordinator.
const (
	OverflowQueue  = "queue"
	OverflowReject = "reject"
)

// ExecutionConfig holds coordinator settings.
type ExecutionConfig struct {
	MaxConcurrent           int           `mapstructure:"max_concurrent"`
	OverflowPolicy          string        `mapstructure:"overflow_policy"`
	QueueSize               int           `mapstructure:"queue_size"`
	SlippageTolerance       float64       `mapstructure:"slippage_tolerance"`
	OutcomeTimeout          time.Duration `mapstructure:"outcome_timeout"`
	MaxAttempts             int           `mapstructure:"max_attempts"`
	BackoffInitial          time.Duration `mapstructure:"backoff_initial"`
	BackoffMax              time.Duration `mapstructure:"backoff_max"`
	LaneLocker              string        `mapstructure:"lane_locker"` // memory or redis
	LaneLockTTL             time.Duration `mapstructure:"lane_lock_ttl"`
	DryRun                  bool          `mapstructure:"dry_run"`
	SubmissionURL           string        `mapstructure:"submission_url"`
	SubmissionTimeout       time.Duration `mapstructure:"submission_timeout"`
	SubmissionRatePerMinute int           `mapstructure:"submission_rate_per_minute"`
	SubmissionToken         string        `mapstructure:"submission_token"`
	DryRunDelay             time.Duration `mapstructure:"dry_run_delay"`
}

// SlippageToleranceDecimal returns the tolerance fraction as decimal.Decimal.
func (c *ExecutionConfig) SlippageToleranceDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.SlippageTolerance)
}

// Ledger drivers.
const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
	LedgerSQLite   = "sqlite"
)

// LedgerConfig selects and configures the execution ledger store.
type LedgerConfig struct {
	Driver      string `mapstructure:"driver"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	MaxConns    int    `mapstructure:"max_conns"`
	SQLitePath  string `mapstructure:"sqlite_path"`
}

// RedisConfig holds the optional Redis connection.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// Chain returns the configuration of the chain with the given id.
func (c *Config) Chain(id uint64) (ChainConfig, bool) {
	for _, ch := range c.Chains {
		if ch.ID == id {
			return ch, true
		}
	}
	return ChainConfig{}, false
}

// ChainIDs returns the configured chain ids in config order.
func (c *Config) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(c.Chains))
	for _, ch := range c.Chains {
		ids = append(ids, ch.ID)
	}
	return ids
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "ARB_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "ARB_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "ARB_LOG_LEVEL", "LOG_LEVEL")

	// Servers
	v.BindEnv("server.port", "ARB_SERVER_PORT", "PORT")
	v.BindEnv("health.port", "ARB_HEALTH_PORT")

	// Market data
	v.BindEnv("marketdata.feed_url", "ARB_MARKETDATA_FEED_URL")

	// Execution
	v.BindEnv("execution.submission_url", "ARB_SUBMISSION_URL", "SUBMISSION_URL")
	v.BindEnv("execution.dry_run", "ARB_DRY_RUN")
	v.BindEnv("execution.submission_token", "ARB_SUBMISSION_TOKEN")

	// Ledger
	v.BindEnv("ledger.driver", "ARB_LEDGER_DRIVER")
	v.BindEnv("ledger.postgres_dsn", "ARB_POSTGRES_DSN", "DATABASE_URL")
	v.BindEnv("ledger.sqlite_path", "ARB_SQLITE_PATH")

	// Redis
	v.BindEnv("redis.enabled", "ARB_REDIS_ENABLED")
	v.BindEnv("redis.addr", "ARB_REDIS_ADDR", "REDIS_ADDR")
	v.BindEnv("redis.password", "ARB_REDIS_PASSWORD", "REDIS_PASSWORD")

	// Telemetry
	v.BindEnv("telemetry.enabled", "ARB_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "ARB_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "ARB_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.otlp_headers", "ARB_OTEL_HEADERS", "OTEL_EXPORTER_OTLP_HEADERS")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "arbitrage-engine")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("health.port", 8081)

	v.SetDefault("marketdata.staleness", "5s")
	v.SetDefault("marketdata.shards", 32)
	v.SetDefault("marketdata.feed_reconnect", "2s")

	v.SetDefault("detection.max_hops", 4)
	v.SetDefault("detection.epsilon", "0.000000001")
	v.SetDefault("detection.min_confidence", 0.5)
	v.SetDefault("detection.max_depth_ratio", 0.2)
	v.SetDefault("detection.default_fee_bps", 30) // 0.3%
	v.SetDefault("detection.strategies.simple_intra_dex.enabled", true)
	v.SetDefault("detection.strategies.simple_intra_dex.min_profit_percent", 0.1)
	v.SetDefault("detection.strategies.simple_intra_dex.ttl", "30s")
	v.SetDefault("detection.strategies.triangular.enabled", true)
	v.SetDefault("detection.strategies.triangular.min_profit_percent", 0.3)
	v.SetDefault("detection.strategies.triangular.ttl", "45s")
	v.SetDefault("detection.strategies.cross_dex.enabled", true)
	v.SetDefault("detection.strategies.cross_dex.min_profit_percent", 0.1)
	v.SetDefault("detection.strategies.cross_dex.ttl", "60s")
	v.SetDefault("detection.strategies.cross_chain.enabled", true)
	v.SetDefault("detection.strategies.cross_chain.min_profit_percent", 1.0)
	v.SetDefault("detection.strategies.cross_chain.ttl", "120s")

	v.SetDefault("registry.retention", "10m")
	v.SetDefault("registry.sweep_interval", "5s")

	v.SetDefault("execution.max_concurrent", 4)
	v.SetDefault("execution.overflow_policy", OverflowQueue)
	v.SetDefault("execution.queue_size", 16)
	v.SetDefault("execution.slippage_tolerance", 0.5)
	v.SetDefault("execution.outcome_timeout", "2m")
	v.SetDefault("execution.max_attempts", 3)
	v.SetDefault("execution.backoff_initial", "500ms")
	v.SetDefault("execution.backoff_max", "10s")
	v.SetDefault("execution.lane_locker", "memory")
	v.SetDefault("execution.lane_lock_ttl", "5m")
	v.SetDefault("execution.dry_run", true)
	v.SetDefault("execution.submission_timeout", "10s")
	v.SetDefault("execution.submission_rate_per_minute", 120)
	v.SetDefault("execution.dry_run_delay", "200ms")

	v.SetDefault("ledger.driver", LedgerMemory)
	v.SetDefault("ledger.max_conns", 8)
	v.SetDefault("ledger.sqlite_path", "ledger.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.channel", "arbitrage:opportunities")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "arbitrage-engine")
	v.SetDefault("telemetry.trace_provider", "zipkin")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}

	seen := make(map[uint64]bool, len(c.Chains))
	for i, ch := range c.Chains {
		if ch.ID == 0 {
			return fmt.Errorf("chains[%d].id is required", i)
		}
		if seen[ch.ID] {
			return fmt.Errorf("chains[%d]: duplicate chain id %d", i, ch.ID)
		}
		seen[ch.ID] = true

		if ch.HTTPURL == "" {
			return fmt.Errorf("chains[%d].http_url is required", i)
		}
		if ch.NativeSymbol == "" {
			return fmt.Errorf("chains[%d].native_symbol is required", i)
		}
		if ch.GasPerHop == 0 {
			return fmt.Errorf("chains[%d].gas_per_hop must be positive", i)
		}
		if ch.Quoter.Address != "" && !common.IsHexAddress(ch.Quoter.Address) {
			return fmt.Errorf("invalid chains[%d].quoter.address: %s", i, ch.Quoter.Address)
		}
		for j, tok := range ch.Tokens {
			if tok.Address != "" && !common.IsHexAddress(tok.Address) {
				return fmt.Errorf("invalid chains[%d].tokens[%d].address: %s", i, j, tok.Address)
			}
		}
	}

	if c.MarketData.Staleness <= 0 {
		return fmt.Errorf("marketdata.staleness must be positive")
	}
	if c.Detection.MaxHops < 2 || c.Detection.MaxHops > 4 {
		return fmt.Errorf("detection.max_hops must be between 2 and 4")
	}
	if c.Detection.MinConfidence < 0 || c.Detection.MinConfidence > 1 {
		return fmt.Errorf("detection.min_confidence must be within [0,1]")
	}
	if _, err := decimal.NewFromString(c.Detection.Epsilon); err != nil {
		return fmt.Errorf("invalid detection.epsilon: %w", err)
	}
	for _, ts := range c.Detection.TradeSizes {
		d, err := decimal.NewFromString(ts.Amount)
		if err != nil || !d.IsPositive() {
			return fmt.Errorf("invalid detection.trade_sizes amount for %s: %q", ts.Symbol, ts.Amount)
		}
	}

	switch c.Execution.OverflowPolicy {
	case OverflowQueue, OverflowReject:
	default:
		return fmt.Errorf("execution.overflow_policy must be %q or %q", OverflowQueue, OverflowReject)
	}
	if c.Execution.MaxConcurrent <= 0 {
		return fmt.Errorf("execution.max_concurrent must be positive")
	}
	if c.Execution.SlippageTolerance <= 0 || c.Execution.SlippageTolerance > 1 {
		return fmt.Errorf("execution.slippage_tolerance must be within (0,1]")
	}
	if !c.Execution.DryRun && c.Execution.SubmissionURL == "" {
		return fmt.Errorf("execution.submission_url is required unless dry_run is set")
	}
	if c.Execution.LaneLocker == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("execution.lane_locker=redis requires redis.enabled")
	}

	switch c.Ledger.Driver {
	case LedgerMemory, LedgerSQLite:
	case LedgerPostgres:
		if c.Ledger.PostgresDSN == "" {
			return fmt.Errorf("ledger.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown ledger.driver %q", c.Ledger.Driver)
	}

	return nil
}
