// Package redispub broadcasts registry lifecycle events over Redis pub/sub.
package redispub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fd1az/arbitrage-engine/business/registry/domain"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

const publishTimeout = 500 * time.Millisecond

// Publisher publishes each event as JSON on one channel. Subscribers that are not
// listening miss events; the registry itself remains the source of truth.
type Publisher struct {
	rdb     *redis.Client
	channel string
	logger  logger.LoggerInterface
}

// New creates a publisher on channel.
func New(rdb *redis.Client, channel string, log logger.LoggerInterface) *Publisher {
	return &Publisher{rdb: rdb, channel: channel, logger: log}
}

// Publish sends e. Failures are logged and dropped.
func (p *Publisher) Publish(ctx context.Context, e domain.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Warn(ctx, "encode registry event", "type", e.Type, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn(ctx, "redis: publish registry event",
			"channel", p.channel, "type", e.Type, "fingerprint", e.Fingerprint, "error", err)
	}
}
