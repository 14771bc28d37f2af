// Package ethereum provides EVM chain adapters built on go-ethereum.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbitrage-engine/business/blockchain/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/circuitbreaker"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

const (
	tracerName = "github.com/fd1az/arbitrage-engine/business/blockchain/infra/ethereum"
	meterName  = "github.com/fd1az/arbitrage-engine/business/blockchain/infra/ethereum"
)

// HeaderSource is the slice of ethclient.Client used for polling.
type HeaderSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// HeadSubscriber is a websocket client able to stream new heads.
type HeadSubscriber interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (goethereum.Subscription, error)
	Close()
}

// DialFunc opens a HeadSubscriber for a websocket URL.
type DialFunc func(ctx context.Context, url string) (HeadSubscriber, error)

func dialEthClient(ctx context.Context, url string) (HeadSubscriber, error) {
	return ethclient.DialContext(ctx, url)
}

// SubscriberConfig holds configuration for one chain's block subscriber.
type SubscriberConfig struct {
	ChainID        uint64
	WSURL          string        // websocket endpoint (primary), optional
	PollInterval   time.Duration // polling interval for the HTTP fallback
	ReconnectDelay time.Duration // time spent on the fallback before retrying websocket
	BufferSize     int
}

// DefaultSubscriberConfig returns sensible defaults.
func DefaultSubscriberConfig(chainID uint64, wsURL string) SubscriberConfig {
	return SubscriberConfig{
		ChainID:        chainID,
		WSURL:          wsURL,
		PollInterval:   12 * time.Second, // ~1 L1 block
		ReconnectDelay: 30 * time.Second,
		BufferSize:     16,
	}
}

type subscriberMetrics struct {
	blocksReceived   metric.Int64Counter
	subscribeErrors  metric.Int64Counter
	connectionState  metric.Int64Gauge
	blockLatency     metric.Float64Histogram
	httpFallbackUsed metric.Int64Counter
}

// Subscriber streams blocks of one chain: websocket newHeads when available, with
// HTTP polling behind a circuit breaker as fallback.
type Subscriber struct {
	config SubscriberConfig
	logger logger.LoggerInterface
	http   HeaderSource
	dial   DialFunc

	mu         sync.RWMutex
	state      domain.ConnectionState
	lastSeenAt time.Time

	usingHTTP  atomic.Bool
	lastBlock  atomic.Uint64
	reconnects atomic.Int32
	started    atomic.Bool
	closed     atomic.Bool

	blocks chan *domain.Block
	done   chan struct{}

	httpCB *circuitbreaker.CircuitBreaker[*types.Header]

	tracer  trace.Tracer
	metrics *subscriberMetrics
	attrs   metric.MeasurementOption
}

// NewSubscriber creates a block subscriber. http is required; websocket is optional.
func NewSubscriber(cfg SubscriberConfig, http HeaderSource, log logger.LoggerInterface) (*Subscriber, error) {
	if http == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(fmt.Sprintf("chain %d: http client is required", cfg.ChainID)))
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 12 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 16
	}

	s := &Subscriber{
		config: cfg,
		logger: log,
		http:   http,
		dial:   dialEthClient,
		state:  domain.StateDisconnected,
		blocks: make(chan *domain.Block, cfg.BufferSize),
		done:   make(chan struct{}),
		tracer: otel.Tracer(tracerName),
		attrs:  metric.WithAttributes(attribute.String("chain_id", strconv.FormatUint(cfg.ChainID, 10))),
	}

	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	httpCfg := circuitbreaker.DefaultConfig(fmt.Sprintf("eth-http-%d", cfg.ChainID))
	httpCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		s.logger.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	s.httpCB = circuitbreaker.New[*types.Header](httpCfg)

	return s, nil
}

func (s *Subscriber) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &subscriberMetrics{}

	s.metrics.blocksReceived, err = meter.Int64Counter(
		"eth_blocks_received_total",
		metric.WithDescription("Total blocks received"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return err
	}

	s.metrics.subscribeErrors, err = meter.Int64Counter(
		"eth_subscribe_errors_total",
		metric.WithDescription("Total subscription and polling errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	s.metrics.connectionState, err = meter.Int64Gauge(
		"eth_connection_state",
		metric.WithDescription("Connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return err
	}

	s.metrics.blockLatency, err = meter.Float64Histogram(
		"eth_block_latency_ms",
		metric.WithDescription("Latency from block timestamp to receipt"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	s.metrics.httpFallbackUsed, err = meter.Int64Counter(
		"eth_http_fallback_total",
		metric.WithDescription("Times the HTTP fallback was entered"),
		metric.WithUnit("{fallback}"),
	)
	return err
}

// Subscribe starts the block loop once and returns the block channel. The channel is
// closed when ctx ends or the subscriber is closed.
func (s *Subscriber) Subscribe(ctx context.Context) (<-chan *domain.Block, error) {
	if s.closed.Load() {
		return nil, apperror.New(apperror.CodeEthereumSubscribeFailed,
			apperror.WithContext("subscriber is closed"))
	}
	if s.started.CompareAndSwap(false, true) {
		s.setState(domain.StateConnecting)
		go s.run(ctx)
	}
	return s.blocks, nil
}

func (s *Subscriber) run(ctx context.Context) {
	defer close(s.blocks)

	for !s.stopped(ctx) {
		if s.config.WSURL != "" {
			err := s.runWS(ctx)
			if s.stopped(ctx) {
				return
			}
			s.metrics.subscribeErrors.Add(ctx, 1, s.attrs)
			s.logger.Warn(ctx, "websocket head subscription ended, polling over http",
				"chain_id", s.config.ChainID, "error", err)
			s.reconnects.Add(1)
		}

		s.usingHTTP.Store(true)
		s.metrics.httpFallbackUsed.Add(ctx, 1, s.attrs)
		s.setState(domain.StateConnected)

		var window <-chan time.Time
		if s.config.WSURL != "" {
			window = time.After(s.config.ReconnectDelay)
		}
		s.poll(ctx, window)
		if s.config.WSURL != "" && !s.stopped(ctx) {
			s.setState(domain.StateReconnecting)
		}
	}
}

func (s *Subscriber) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-s.done:
		return true
	default:
		return false
	}
}

// runWS streams heads until the subscription fails.
func (s *Subscriber) runWS(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "eth.subscribe.ws",
		trace.WithAttributes(attribute.Int64("chain_id", int64(s.config.ChainID))),
	)
	client, err := s.dial(ctx, s.config.WSURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		span.End()
		return fmt.Errorf("dial ws: %w", err)
	}
	defer client.Close()

	headers := make(chan *types.Header, s.config.BufferSize)
	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "subscribe failed")
		span.End()
		return fmt.Errorf("subscribe new heads: %w", err)
	}
	defer sub.Unsubscribe()
	span.End()

	s.usingHTTP.Store(false)
	s.setState(domain.StateConnected)
	s.logger.Info(ctx, "subscribed to new heads via ws", "chain_id", s.config.ChainID)

	for {
		select {
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return err
		case header := <-headers:
			if header != nil {
				s.processHeader(ctx, header, false)
			}
		}
	}
}

// poll fetches the latest header every PollInterval until window fires (nil = forever).
func (s *Subscriber) poll(ctx context.Context, window <-chan time.Time) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.pollLatest(ctx)
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-window:
			return
		case <-ticker.C:
			s.pollLatest(ctx)
		}
	}
}

func (s *Subscriber) pollLatest(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "eth.poll.block")
	defer span.End()

	header, err := s.httpCB.Execute(func() (*types.Header, error) {
		return s.http.HeaderByNumber(ctx, nil) // nil = latest
	})
	if err != nil {
		span.RecordError(err)
		s.logger.Warn(ctx, "http poll failed", "chain_id", s.config.ChainID, "error", err)
		s.metrics.subscribeErrors.Add(ctx, 1, s.attrs)
		return
	}

	if header.Number.Uint64() <= s.lastBlock.Load() {
		span.AddEvent("duplicate_block")
		return
	}

	s.processHeader(ctx, header, true)
}

func (s *Subscriber) processHeader(ctx context.Context, header *types.Header, fromHTTP bool) {
	block := s.headerToBlock(header)
	latency := time.Since(block.Timestamp)

	s.metrics.blockLatency.Record(ctx, float64(latency.Milliseconds()), s.attrs)
	s.lastBlock.Store(block.Number)
	s.mu.Lock()
	s.lastSeenAt = time.Now()
	s.mu.Unlock()

	select {
	case s.blocks <- block:
		s.metrics.blocksReceived.Add(ctx, 1, s.attrs)
		s.logger.Debug(ctx, "block received",
			"chain_id", s.config.ChainID,
			"number", block.Number,
			"from_http", fromHTTP,
			"latency_ms", latency.Milliseconds())
	default:
		s.logger.Warn(ctx, "block dropped, buffer full", "chain_id", s.config.ChainID, "number", block.Number)
	}
}

func (s *Subscriber) headerToBlock(header *types.Header) *domain.Block {
	return &domain.Block{
		ChainID:    s.config.ChainID,
		Number:     header.Number.Uint64(),
		Hash:       header.Hash(),
		ParentHash: header.ParentHash,
		Timestamp:  time.Unix(int64(header.Time), 0),
		BaseFee:    header.BaseFee,
	}
}

// LatestBlock retrieves the most recent block over HTTP.
func (s *Subscriber) LatestBlock(ctx context.Context) (*domain.Block, error) {
	ctx, span := s.tracer.Start(ctx, "eth.latest_block")
	defer span.End()

	header, err := s.httpCB.Execute(func() (*types.Header, error) {
		return s.http.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, apperror.New(apperror.CodeEthereumRPCError,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("chain %d: latest block", s.config.ChainID)))
	}
	return s.headerToBlock(header), nil
}

// State returns the current connection state.
func (s *Subscriber) State() domain.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns detailed connection status.
func (s *Subscriber) Status() domain.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.ConnectionStatus{
		ChainID:    s.config.ChainID,
		State:      s.state,
		LastBlock:  s.lastBlock.Load(),
		LastSeenAt: s.lastSeenAt,
		Reconnects: int(s.reconnects.Load()),
		UsingHTTP:  s.usingHTTP.Load(),
	}
}

// Close stops the block loop. The block channel is closed by the loop itself.
func (s *Subscriber) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.done)
	s.setState(domain.StateDisconnected)
	return nil
}

func (s *Subscriber) setState(state domain.ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	var v int64
	switch state {
	case domain.StateConnecting:
		v = 1
	case domain.StateConnected:
		v = 2
	case domain.StateReconnecting:
		v = 3
	}
	s.metrics.connectionState.Record(context.Background(), v, s.attrs)
}
