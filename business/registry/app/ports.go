package app

import (
	"context"

	"github.com/fd1az/arbitrage-engine/business/registry/domain"
)

// Publisher broadcasts lifecycle events. Publishing is best effort and must not block
// the caller for long.
type Publisher interface {
	Publish(ctx context.Context, e domain.Event)
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(context.Context, domain.Event) {}
