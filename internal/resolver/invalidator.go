package resolver

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/mgoulart/shortlinks/internal/events"
)

// Invalidator drops cache entries when the provisioning engine mutates a
// link, so a deleted link stops redirecting and a renamed code stops
// resolving under its old name without waiting out the cache TTL. Created
// events clear negative entries for codes that were looked up before they
// existed. It implements events.Handler; clicks are ignored.
type Invalidator struct {
	cache *redis.Client
}

func NewInvalidator(cache *redis.Client) *Invalidator {
	return &Invalidator{cache: cache}
}

func (i *Invalidator) OnLinkCreated(ctx context.Context, event events.LinkEvent) error {
	return i.drop(ctx, event.ShortCode)
}

func (i *Invalidator) OnLinkUpdated(ctx context.Context, event events.LinkEvent) error {
	codes := []string{event.ShortCode}
	if event.PreviousShortCode != "" && event.PreviousShortCode != event.ShortCode {
		codes = append(codes, event.PreviousShortCode)
	}
	return i.drop(ctx, codes...)
}

func (i *Invalidator) OnLinkDeleted(ctx context.Context, event events.LinkDeletedEvent) error {
	return i.drop(ctx, event.ShortCode)
}

func (i *Invalidator) OnClick(ctx context.Context, event events.ClickEvent) error {
	return nil
}

func (i *Invalidator) drop(ctx context.Context, codes ...string) error {
	keys := make([]string, 0, len(codes))
	for _, code := range codes {
		keys = append(keys, cacheKey(code))
	}
	return i.cache.Del(ctx, keys...).Err()
}
