package analytics

import (
	"context"
	"time"

	"github.com/mgoulart/shortlinks/internal"
	"github.com/mgoulart/shortlinks/internal/apperrors"
)

const (
	// DefaultLimit and MaxLimit bound click-history pagination.
	DefaultLimit = 50
	MaxLimit     = 200
)

// SubscriptionResolver answers the caller's tier. Implemented by the quota
// service client.
type SubscriptionResolver interface {
	GetSubscription(ctx context.Context, userID int64) (internal.Subscription, error)
}

// ClickRecord is one entry of the click history.
type ClickRecord struct {
	Timestamp time.Time `json:"timestamp"`
	IPAddress string    `json:"ip_address"`
	UserAgent *string   `json:"user_agent"`
}

type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Report is the paginated click history for one short code.
type Report struct {
	ShortCode   string        `json:"shortcode"`
	TotalClicks int64         `json:"total_clicks"`
	History     []ClickRecord `json:"history"`
	Pagination  Pagination    `json:"pagination"`
}

// QueryService answers click-history queries, gated to PRO users who own the
// code according to the mirror. Authorization deliberately reads the mirror,
// not the link store: a row the mirror has not seen yet is NotFound even if
// the link exists.
type QueryService struct {
	subscriptions SubscriptionResolver
	reflections   ReflectionStore
	clicks        ClickStore
}

func NewQueryService(subscriptions SubscriptionResolver, reflections ReflectionStore, clicks ClickStore) *QueryService {
	return &QueryService{
		subscriptions: subscriptions,
		reflections:   reflections,
		clicks:        clicks,
	}
}

func (q *QueryService) GetAnalytics(ctx context.Context, userID int64, shortCode string, limit, offset int) (Report, error) {
	if err := q.assertProUser(ctx, userID); err != nil {
		return Report{}, err
	}

	reflection, err := q.reflections.FindByOwnerAndCode(ctx, userID, shortCode)
	if err != nil {
		return Report{}, err
	}
	if reflection == nil {
		return Report{}, apperrors.NotFound("Shortlink not found.")
	}

	safeLimit := resolveLimit(limit)
	safeOffset := resolveOffset(offset)

	// Count and page run concurrently against the same shortlink id.
	var (
		total int64
		page  []internal.ClickFact
	)
	errs := make(chan error, 2)
	go func() {
		n, err := q.clicks.CountByShortlink(ctx, reflection.ShortlinkID)
		total = n
		errs <- err
	}()
	go func() {
		p, err := q.clicks.PageByShortlink(ctx, reflection.ShortlinkID, safeLimit, safeOffset)
		page = p
		errs <- err
	}()
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			return Report{}, err
		}
	}

	history := make([]ClickRecord, 0, len(page))
	for _, fact := range page {
		history = append(history, ClickRecord{
			Timestamp: fact.ClickedAt,
			IPAddress: fact.IPAddress,
			UserAgent: fact.UserAgent,
		})
	}

	return Report{
		ShortCode:   shortCode,
		TotalClicks: total,
		History:     history,
		Pagination:  Pagination{Limit: safeLimit, Offset: safeOffset},
	}, nil
}

// assertProUser gates the query surface: unknown users are NotFound, every
// tier but PRO is Forbidden.
func (q *QueryService) assertProUser(ctx context.Context, userID int64) error {
	sub, err := q.subscriptions.GetSubscription(ctx, userID)
	if err != nil {
		return err
	}
	if sub.Tier != internal.TierPro {
		return apperrors.Forbidden("Analytics are available for Pro users only.")
	}
	return nil
}

func resolveLimit(limit int) int {
	if limit == 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	if limit < 1 {
		return 1
	}
	return limit
}

func resolveOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
