package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Invalidator evicts cached availability figures keyed by item name.
// Fire-and-forget: a failed eviction is logged, never propagated, so a
// cache outage cannot fail a stock mutation.
type Invalidator struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewInvalidator(client *redis.Client, log zerolog.Logger) *Invalidator {
	return &Invalidator{
		client: client,
		log:    log.With().Str("component", "cache").Logger(),
	}
}

func (i *Invalidator) InvalidateItem(ctx context.Context, name string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := i.client.Del(ctx, "item:"+name).Err(); err != nil {
		i.log.Warn().Err(err).Str("item", name).Msg("cache invalidation failed")
	}
}

// Noop satisfies the invalidator port when no cache is configured.
type Noop struct{}

func (Noop) InvalidateItem(context.Context, string) {}
