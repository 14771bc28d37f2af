// Package wsfeed reads market snapshots pushed over a websocket.
package wsfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-engine/business/marketdata/app"
	"github.com/fd1az/arbitrage-engine/business/marketdata/domain"
	"github.com/fd1az/arbitrage-engine/internal/logger"
	"github.com/fd1az/arbitrage-engine/internal/wsconn"
)

var _ app.Feed = (*Feed)(nil)

// Frame is one snapshot on the wire. A message carries a single frame or an array.
type Frame struct {
	ChainID    uint64          `json:"chain_id"`
	Dex        string          `json:"dex"`
	TokenIn    string          `json:"token_in"`
	TokenOut   string          `json:"token_out"`
	Price      decimal.Decimal `json:"price"`
	Depth      decimal.Decimal `json:"depth"`
	ObservedAt time.Time       `json:"observed_at"`
	LatencyMs  int64           `json:"latency_ms"`
}

// Snapshot converts the frame.
func (f Frame) Snapshot() domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Key:            domain.SnapshotKey{ChainID: f.ChainID, DexID: f.Dex, TokenIn: f.TokenIn, TokenOut: f.TokenOut},
		Price:          f.Price,
		LiquidityDepth: f.Depth,
		ObservedAt:     f.ObservedAt,
		SourceLatency:  time.Duration(f.LatencyMs) * time.Millisecond,
	}
}

type subscribe struct {
	Type   string   `json:"type"`
	Chains []uint64 `json:"chains"`
}

// Feed subscribes to a snapshot stream and offers every frame to the sink.
type Feed struct {
	cfg    wsconn.Config
	chains []uint64
	sink   app.Sink
	logger logger.LoggerInterface
}

// New creates a feed for url, subscribing to chains on every (re)connect.
func New(url string, reconnect time.Duration, chains []uint64, sink app.Sink, log logger.LoggerInterface) *Feed {
	cfg := wsconn.DefaultConfig(url, "marketdata-feed")
	if reconnect > 0 {
		cfg.InitialBackoff = reconnect
	}
	return &Feed{cfg: cfg, chains: chains, sink: sink, logger: log}
}

// Name implements app.Feed.
func (f *Feed) Name() string {
	return "wsfeed"
}

// Run connects and reads until ctx is done or the client gives up reconnecting.
func (f *Feed) Run(ctx context.Context) error {
	client, err := wsconn.New(f.cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	closed := make(chan error, 1)
	client.OnMessage(f.handle)
	client.OnStateChange(func(state wsconn.State, err error) {
		switch state {
		case wsconn.StateConnected:
			go f.subscribe(ctx, client)
		case wsconn.StateClosed, wsconn.StateDisconnected:
			select {
			case closed <- err:
			default:
			}
		}
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-closed:
		if err == nil {
			err = fmt.Errorf("feed connection closed")
		}
		return err
	}
}

func (f *Feed) subscribe(ctx context.Context, client *wsconn.Client) {
	if len(f.chains) == 0 {
		return
	}
	if err := client.SendJSON(ctx, subscribe{Type: "subscribe", Chains: f.chains}); err != nil {
		f.logger.Warn(ctx, "feed subscribe failed", "error", err)
	}
}

func (f *Feed) handle(ctx context.Context, msg []byte) {
	frames, err := Decode(msg)
	if err != nil {
		f.logger.Warn(ctx, "undecodable feed message", "error", err)
		return
	}
	for _, fr := range frames {
		if _, err := f.sink.Offer(ctx, fr.Snapshot()); err != nil {
			f.logger.Debug(ctx, "feed snapshot rejected", "error", err)
		}
	}
}

// Decode parses a single frame or an array of frames.
func Decode(msg []byte) ([]Frame, error) {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 {
		return nil, fmt.Errorf("empty message")
	}
	if msg[0] == '[' {
		var frames []Frame
		if err := json.Unmarshal(msg, &frames); err != nil {
			return nil, err
		}
		return frames, nil
	}
	var fr Frame
	if err := json.Unmarshal(msg, &fr); err != nil {
		return nil, err
	}
	return []Frame{fr}, nil
}
