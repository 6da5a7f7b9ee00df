package shortlinks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mgoulart/shortlinks/internal"
	"github.com/mgoulart/shortlinks/internal/apperrors"
	"github.com/mgoulart/shortlinks/internal/events"
	"github.com/mgoulart/shortlinks/internal/logger"
	"github.com/mgoulart/shortlinks/internal/metrics"
)

const (
	// DefaultLimit and MaxLimit bound listing pagination.
	DefaultLimit = 50
	MaxLimit     = 200
)

var codePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,12}$`)

// SubscriptionResolver answers the caller's tier. Implemented by the quota
// service client.
type SubscriptionResolver interface {
	GetSubscription(ctx context.Context, userID int64) (internal.Subscription, error)
}

// Service is the provisioning engine: it creates, updates and deletes links
// for a user under the monthly quota and propagates lifecycle events to the
// analytics side.
type Service struct {
	store         Store
	subscriptions SubscriptionResolver
	emitter       events.Emitter
	baseURL       string

	now     func() time.Time
	newCode func() string
}

func NewService(store Store, subscriptions SubscriptionResolver, emitter events.Emitter, baseURL string) *Service {
	return &Service{
		store:         store,
		subscriptions: subscriptions,
		emitter:       emitter,
		baseURL:       strings.TrimRight(baseURL, "/"),
		now:           time.Now,
		newCode:       generateCode,
	}
}

// CreateItem is one requested link in a provisioning batch.
type CreateItem struct {
	OriginalURL string
	ShortCode   string
	ExpiresAt   *time.Time
}

// UpdatePatch carries the mutable link fields; nil means "leave unchanged".
type UpdatePatch struct {
	OriginalURL *string
	ShortCode   *string
	ExpiresAt   *time.Time
}

// LinkResponse is a link record plus its derived shortened URL.
type LinkResponse struct {
	ID           int64      `json:"id"`
	OwnerUserID  int64      `json:"owner_user_id"`
	ShortCode    string     `json:"short_code"`
	OriginalURL  string     `json:"original_url"`
	ExpiresAt    *time.Time `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ShortenedURL string     `json:"shortened_url"`
}

// ListResponse is an owner-scoped page of links.
type ListResponse struct {
	Data       []LinkResponse `json:"data"`
	Pagination Pagination     `json:"pagination"`
}

type Pagination struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

// MonthlyUsage reports how many links the user created in the current UTC
// calendar month.
type MonthlyUsage struct {
	UserID       int64     `json:"userId"`
	CreatedCount int64     `json:"createdCount"`
	PeriodStart  time.Time `json:"periodStart"`
	PeriodEnd    time.Time `json:"periodEnd"`
}

// Create provisions a single link.
func (s *Service) Create(ctx context.Context, ownerID int64, item CreateItem) (LinkResponse, error) {
	created, err := s.CreateBatch(ctx, ownerID, []CreateItem{item})
	if err != nil {
		return LinkResponse{}, err
	}
	return created[0], nil
}

// CreateBatch provisions every item or none of them.
//
// The whole batch runs inside one owner-scoped critical section: the tier is
// resolved and the monthly counter read while holding the lock, which closes
// the check-then-act race between concurrent requests from the same user.
// Lifecycle events are emitted only after the unit commits.
func (s *Service) CreateBatch(ctx context.Context, ownerID int64, items []CreateItem) ([]LinkResponse, error) {
	if len(items) == 0 {
		return nil, apperrors.InvalidArgument("At least one shortlink is required.")
	}

	now := s.now()
	created := make([]*internal.Link, 0, len(items))

	err := s.store.WithOwnerLock(ctx, ownerID, func(tx Tx) error {
		sub, err := s.subscriptions.GetSubscription(ctx, ownerID)
		if err != nil {
			return err
		}

		monthlyLimit := internal.MonthlyLimitByTier[sub.Tier]
		start, end := monthWindowUTC(now)

		count, err := tx.CountCreatedInWindow(ctx, ownerID, start, end)
		if err != nil {
			return err
		}
		if count+int64(len(items)) > int64(monthlyLimit) {
			return apperrors.QuotaExceeded(fmt.Sprintf("Monthly shortlinks limit reached (%d).", monthlyLimit))
		}

		for _, item := range items {
			link, err := s.buildLink(ctx, tx, sub, ownerID, item, now)
			if err != nil {
				return err
			}
			if err := tx.Insert(ctx, link); err != nil {
				return err
			}
			created = append(created, link)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	responses := make([]LinkResponse, 0, len(created))
	for _, link := range created {
		s.emitLinkEvent(ctx, events.KindShortlinkCreated, link, "")
		metrics.LinksProvisioned.Inc()
		responses = append(responses, s.toResponse(link))
	}
	return responses, nil
}

func (s *Service) buildLink(ctx context.Context, tx Tx, sub internal.Subscription, ownerID int64, item CreateItem, now time.Time) (*internal.Link, error) {
	if err := validateOriginalURL(item.OriginalURL); err != nil {
		return nil, err
	}
	if item.ExpiresAt != nil && !item.ExpiresAt.After(now) {
		return nil, apperrors.InvalidArgument("expiresAt must be a future date/time.")
	}

	code := strings.TrimSpace(item.ShortCode)
	if code != "" {
		if !codePattern.MatchString(code) {
			return nil, apperrors.InvalidArgument("Shortcode must be 3-12 alphanumeric, dash or underscore characters.")
		}
		if sub.Tier != internal.TierPro {
			return nil, apperrors.Forbidden("Custom short codes are available for Pro users.")
		}
		taken, err := tx.CodeTaken(ctx, code, 0)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperrors.Conflict("Shortcode already taken.")
		}
	} else {
		code = s.newCode()
	}

	return &internal.Link{
		OwnerUserID: ownerID,
		ShortCode:   code,
		OriginalURL: item.OriginalURL,
		ExpiresAt:   item.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// FindOne returns the caller's link by code.
func (s *Service) FindOne(ctx context.Context, ownerID int64, code string) (LinkResponse, error) {
	link, err := s.store.FindByOwnerAndCode(ctx, ownerID, code)
	if err != nil {
		return LinkResponse{}, err
	}
	if link == nil {
		return LinkResponse{}, apperrors.NotFound("Shortlink not found.")
	}
	return s.toResponse(link), nil
}

// List returns an owner-scoped page of links, newest first.
func (s *Service) List(ctx context.Context, ownerID int64, limit, offset int) (ListResponse, error) {
	safeLimit := resolveLimit(limit)
	safeOffset := resolveOffset(offset)

	links, total, err := s.store.ListByOwner(ctx, ownerID, safeLimit, safeOffset)
	if err != nil {
		return ListResponse{}, err
	}

	data := make([]LinkResponse, 0, len(links))
	for i := range links {
		data = append(data, s.toResponse(&links[i]))
	}

	return ListResponse{
		Data: data,
		Pagination: Pagination{
			Limit:  safeLimit,
			Offset: safeOffset,
			Total:  total,
		},
	}, nil
}

// Update patches the caller's link. A patch with no fields is a no-op that
// still returns the current state; changing the code re-runs the PRO and
// uniqueness checks. A successful save emits shortlink_updated.
func (s *Service) Update(ctx context.Context, ownerID int64, code string, patch UpdatePatch) (LinkResponse, error) {
	link, err := s.store.FindByOwnerAndCode(ctx, ownerID, code)
	if err != nil {
		return LinkResponse{}, err
	}
	if link == nil {
		return LinkResponse{}, apperrors.NotFound("Shortlink not found.")
	}

	if patch.OriginalURL == nil && patch.ShortCode == nil && patch.ExpiresAt == nil {
		return s.toResponse(link), nil
	}

	now := s.now()

	if patch.OriginalURL != nil {
		if err := validateOriginalURL(*patch.OriginalURL); err != nil {
			return LinkResponse{}, err
		}
		link.OriginalURL = *patch.OriginalURL
	}

	if patch.ExpiresAt != nil {
		if !patch.ExpiresAt.After(now) {
			return LinkResponse{}, apperrors.InvalidArgument("expiresAt must be a future date/time.")
		}
		link.ExpiresAt = patch.ExpiresAt
	}

	if patch.ShortCode != nil {
		requested := strings.TrimSpace(*patch.ShortCode)
		if requested != "" && requested != link.ShortCode {
			if !codePattern.MatchString(requested) {
				return LinkResponse{}, apperrors.InvalidArgument("Shortcode must be 3-12 alphanumeric, dash or underscore characters.")
			}

			sub, err := s.subscriptions.GetSubscription(ctx, ownerID)
			if err != nil {
				return LinkResponse{}, err
			}
			if sub.Tier != internal.TierPro {
				return LinkResponse{}, apperrors.Forbidden("Custom short codes are available for Pro users.")
			}

			taken, err := s.store.CodeTaken(ctx, requested, link.ID)
			if err != nil {
				return LinkResponse{}, err
			}
			if taken {
				return LinkResponse{}, apperrors.Conflict("Shortcode already taken.")
			}

			link.ShortCode = requested
		}
	}

	link.UpdatedAt = now
	if err := s.store.Update(ctx, link); err != nil {
		return LinkResponse{}, err
	}

	previousCode := ""
	if link.ShortCode != code {
		previousCode = code
	}
	s.emitLinkEvent(ctx, events.KindShortlinkUpdated, link, previousCode)
	return s.toResponse(link), nil
}

// Delete hard-deletes the caller's link and emits shortlink_deleted.
func (s *Service) Delete(ctx context.Context, ownerID int64, code string) error {
	link, err := s.store.FindByOwnerAndCode(ctx, ownerID, code)
	if err != nil {
		return err
	}
	if link == nil {
		return apperrors.NotFound("Shortlink not found.")
	}

	if err := s.store.Delete(ctx, link); err != nil {
		return err
	}

	s.emitDeletedEvent(ctx, link)
	return nil
}

// Usage reports the caller's monthly creation count and its window.
func (s *Service) Usage(ctx context.Context, ownerID int64) (MonthlyUsage, error) {
	start, end := monthWindowUTC(s.now())

	count, err := s.store.CountCreatedInWindow(ctx, ownerID, start, end)
	if err != nil {
		return MonthlyUsage{}, err
	}

	return MonthlyUsage{
		UserID:       ownerID,
		CreatedCount: count,
		PeriodStart:  start,
		PeriodEnd:    end,
	}, nil
}

// emitLinkEvent fires a lifecycle event after the fact. Failures are logged
// and dropped; they never surface to the caller. previousCode is non-empty
// only when an update renamed the code.
func (s *Service) emitLinkEvent(ctx context.Context, kind events.Kind, link *internal.Link, previousCode string) {
	err := s.emitter.Emit(ctx, kind, events.LinkEvent{
		ShortlinkID:       link.ID,
		OwnerUserID:       link.OwnerUserID,
		ShortCode:         link.ShortCode,
		PreviousShortCode: previousCode,
		CreatedAt:         link.CreatedAt.UTC(),
		UpdatedAt:         link.UpdatedAt.UTC(),
	})
	if err != nil {
		metrics.EventEmitFailures.WithLabelValues(string(kind)).Inc()
		logger.FromContext(ctx).Error("failed to emit shortlink event",
			"cmd", string(kind), "shortlink_id", link.ID, "err", err)
	}
}

func (s *Service) emitDeletedEvent(ctx context.Context, link *internal.Link) {
	err := s.emitter.Emit(ctx, events.KindShortlinkDeleted, events.LinkDeletedEvent{
		ShortlinkID: link.ID,
		OwnerUserID: link.OwnerUserID,
		ShortCode:   link.ShortCode,
	})
	if err != nil {
		metrics.EventEmitFailures.WithLabelValues(string(events.KindShortlinkDeleted)).Inc()
		logger.FromContext(ctx).Error("failed to emit shortlink event",
			"cmd", string(events.KindShortlinkDeleted), "shortlink_id", link.ID, "err", err)
	}
}

func (s *Service) toResponse(link *internal.Link) LinkResponse {
	return LinkResponse{
		ID:           link.ID,
		OwnerUserID:  link.OwnerUserID,
		ShortCode:    link.ShortCode,
		OriginalURL:  link.OriginalURL,
		ExpiresAt:    link.ExpiresAt,
		CreatedAt:    link.CreatedAt,
		UpdatedAt:    link.UpdatedAt,
		ShortenedURL: s.baseURL + "/r/" + link.ShortCode,
	}
}

func validateOriginalURL(raw string) error {
	parsed, err := url.ParseRequestURI(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return apperrors.InvalidArgument("originalUrl must be a valid http(s) URL.")
	}
	return nil
}

// monthWindowUTC returns the half-open current UTC calendar month
// [day 1 00:00:00, next month day 1 00:00:00).
func monthWindowUTC(now time.Time) (time.Time, time.Time) {
	year, month, _ := now.UTC().Date()
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// generateCode returns an 8-char hex short code.
func generateCode() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
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
