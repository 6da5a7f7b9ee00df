package resolver

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mgoulart/shortlinks/internal"
	"github.com/mgoulart/shortlinks/internal/apperrors"
	"github.com/mgoulart/shortlinks/internal/events"
	"github.com/mgoulart/shortlinks/internal/logger"
	"github.com/mgoulart/shortlinks/internal/metrics"
)

// RedirectStatus is the status code every successful resolution answers with.
const RedirectStatus = 301

// negativeCacheMarker is stored for codes known to be absent, so repeated
// lookups of bogus codes do not hit the database.
const negativeCacheMarker = ""

// LinkSource is the read-side view of the link store. Missing codes return
// (nil, nil).
type LinkSource interface {
	FindByCode(ctx context.Context, code string) (*internal.Link, error)
}

// ClickContext carries the request metadata attached to a click fact.
type ClickContext struct {
	IPAddress string
	UserAgent string
}

// Redirect is a resolved destination.
type Redirect struct {
	URL    string
	Status int
}

// Service resolves short codes to destinations and records clicks. It does
// not participate in the quota protocol.
type Service struct {
	links       LinkSource
	cache       *redis.Client
	cacheTTL    time.Duration
	negativeTTL time.Duration
	emitter     events.Emitter

	now func() time.Time
	wg  sync.WaitGroup
}

// NewService builds a resolver. cache may be nil to disable caching.
func NewService(links LinkSource, cache *redis.Client, cacheTTL, negativeTTL time.Duration, emitter events.Emitter) *Service {
	return &Service{
		links:       links,
		cache:       cache,
		cacheTTL:    cacheTTL,
		negativeTTL: negativeTTL,
		emitter:     emitter,
		now:         time.Now,
	}
}

// Resolve looks up a code and returns its destination. Expired and absent
// codes are both NotFound so expired links are not distinguishable from ones
// that never existed. On success the click fact is emitted on a detached
// goroutine; the redirect never waits on it.
func (s *Service) Resolve(ctx context.Context, code string, click ClickContext) (Redirect, error) {
	link, err := s.lookup(ctx, code)
	if err != nil {
		return Redirect{}, err
	}
	if link == nil {
		return Redirect{}, apperrors.NotFound("Shortcode not defined.")
	}

	now := s.now()
	if link.ExpiresAt != nil && link.ExpiresAt.Before(now) {
		return Redirect{}, apperrors.NotFound("Shortcode not defined.")
	}

	s.wg.Add(1)
	go s.emitClick(link, click, now)

	metrics.RedirectsResolved.Inc()
	return Redirect{URL: link.OriginalURL, Status: RedirectStatus}, nil
}

// Close drains in-flight click emissions. Call it only after the HTTP server
// has stopped accepting requests; a Resolve racing Close could Add to the
// WaitGroup after Wait has started.
func (s *Service) Close() {
	s.wg.Wait()
}

func cacheKey(code string) string {
	return "link:" + code
}

func (s *Service) lookup(ctx context.Context, code string) (*internal.Link, error) {
	key := cacheKey(code)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key).Result()
		if err == nil {
			if cached == negativeCacheMarker {
				return nil, nil
			}
			var link internal.Link
			if err := json.Unmarshal([]byte(cached), &link); err == nil {
				return &link, nil
			}
			logger.FromContext(ctx).Warn("failed to unmarshal cached link", "cache_key", key, "err", err)
		} else if err != redis.Nil {
			logger.FromContext(ctx).Warn("error reading link cache", "cache_key", key, "err", err)
		}
	}

	link, err := s.links.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if link == nil {
			if err := s.cache.Set(ctx, key, negativeCacheMarker, s.negativeTTL).Err(); err != nil {
				logger.FromContext(ctx).Warn("error caching negative lookup", "cache_key", key, "err", err)
			}
		} else if body, err := json.Marshal(link); err == nil {
			if err := s.cache.Set(ctx, key, body, s.cacheTTL).Err(); err != nil {
				logger.FromContext(ctx).Warn("error caching link", "cache_key", key, "err", err)
			}
		}
	}

	return link, nil
}

// emitClick runs detached from the request. Failures are logged, never
// surfaced or retried.
func (s *Service) emitClick(link *internal.Link, click ClickContext, clickedAt time.Time) {
	defer s.wg.Done()

	err := s.emitter.Emit(context.Background(), events.KindShortlinkClick, events.ClickEvent{
		ShortlinkID: link.ID,
		ShortCode:   link.ShortCode,
		OwnerUserID: link.OwnerUserID,
		ClickedAt:   clickedAt.UTC(),
		IPAddress:   click.IPAddress,
		UserAgent:   click.UserAgent,
	})
	if err != nil {
		metrics.EventEmitFailures.WithLabelValues(string(events.KindShortlinkClick)).Inc()
		logger.Default().Error("failed to emit click event",
			"short_code", link.ShortCode, "shortlink_id", link.ID, "err", err)
	}
}

// ClientAddress picks the client address for a click fact: the first segment
// of the forwarded-for header when present, else the transport peer address.
func ClientAddress(forwardedFor, peer string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return peer
}
