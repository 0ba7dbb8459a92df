package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const dedupeKeyTTL = 24 * time.Hour

// WebhookDeduper suppresses repeated deliveries of the same provider event.
// Seen claims the event id; Forget releases the claim when processing fails,
// so the provider retry of that delivery is not treated as a duplicate.
type WebhookDeduper interface {
	Seen(ctx context.Context, provider, eventID string) bool
	Forget(ctx context.Context, provider, eventID string)
}

type redisWebhookDeduper struct {
	cache  *redis.Client
	logger zerolog.Logger
}

// NewWebhookDeduper constructs a Redis-backed deduper. A nil client disables
// deduplication and every event is processed.
func NewWebhookDeduper(cache *redis.Client, logger zerolog.Logger) WebhookDeduper {
	return &redisWebhookDeduper{
		cache:  cache,
		logger: logger.With().Str("component", "webhook_deduper").Logger(),
	}
}

func (d *redisWebhookDeduper) Seen(ctx context.Context, provider, eventID string) bool {
	if d.cache == nil || eventID == "" {
		return false
	}

	stored, err := d.cache.SetNX(ctx, dedupeKey(provider, eventID), 1, dedupeKeyTTL).Result()
	if err != nil {
		d.logger.Warn().Err(err).Str("provider", provider).Msg("webhook dedupe check failed")
		return false
	}

	return !stored
}

func (d *redisWebhookDeduper) Forget(ctx context.Context, provider, eventID string) {
	if d.cache == nil || eventID == "" {
		return
	}

	if err := d.cache.Del(ctx, dedupeKey(provider, eventID)).Err(); err != nil {
		d.logger.Warn().Err(err).Str("provider", provider).Msg("webhook dedupe release failed")
	}
}

func dedupeKey(provider, eventID string) string {
	return "webhook:" + provider + ":" + eventID
}
