package analytics

import (
	"context"

	"github.com/mgoulart/shortlinks/internal"
	"github.com/mgoulart/shortlinks/internal/events"
)

// ReflectionStore owns the ownership mirror.
type ReflectionStore interface {
	Upsert(ctx context.Context, reflection internal.Reflection) error
	Delete(ctx context.Context, shortlinkID int64) error
	FindByOwnerAndCode(ctx context.Context, ownerID int64, code string) (*internal.Reflection, error)
}

// ClickStore owns the append-only click history.
type ClickStore interface {
	Append(ctx context.Context, fact internal.ClickFact) error
	CountByShortlink(ctx context.Context, shortlinkID int64) (int64, error)
	PageByShortlink(ctx context.Context, shortlinkID int64, limit, offset int) ([]internal.ClickFact, error)
}

// Reflector applies link lifecycle events to the ownership mirror and records
// click facts. It implements events.Handler.
//
// Events are applied strictly by arrival order: created/updated is an
// unconditional last-write-wins upsert and deleted is an idempotent delete.
// There is no fencing, so a deleted consumed before its created leaves a row
// that a late created would resurrect. The mirrored updatedAt would be the
// natural fencing field if this contract is ever strengthened.
type Reflector struct {
	reflections ReflectionStore
	clicks      ClickStore
}

func NewReflector(reflections ReflectionStore, clicks ClickStore) *Reflector {
	return &Reflector{reflections: reflections, clicks: clicks}
}

func (r *Reflector) OnLinkCreated(ctx context.Context, event events.LinkEvent) error {
	return r.upsert(ctx, event)
}

func (r *Reflector) OnLinkUpdated(ctx context.Context, event events.LinkEvent) error {
	return r.upsert(ctx, event)
}

func (r *Reflector) OnLinkDeleted(ctx context.Context, event events.LinkDeletedEvent) error {
	return r.reflections.Delete(ctx, event.ShortlinkID)
}

// OnClick appends the fact verbatim. A click may arrive before the link's
// created event; that is recorded anyway. Duplicate delivery produces
// duplicate facts.
func (r *Reflector) OnClick(ctx context.Context, event events.ClickEvent) error {
	var userAgent *string
	if event.UserAgent != "" {
		ua := event.UserAgent
		userAgent = &ua
	}

	return r.clicks.Append(ctx, internal.ClickFact{
		ShortlinkID: event.ShortlinkID,
		ShortCode:   event.ShortCode,
		OwnerUserID: event.OwnerUserID,
		IPAddress:   event.IPAddress,
		UserAgent:   userAgent,
		ClickedAt:   event.ClickedAt,
	})
}

func (r *Reflector) upsert(ctx context.Context, event events.LinkEvent) error {
	return r.reflections.Upsert(ctx, internal.Reflection{
		ShortlinkID: event.ShortlinkID,
		OwnerUserID: event.OwnerUserID,
		ShortCode:   event.ShortCode,
		CreatedAt:   event.CreatedAt,
		UpdatedAt:   event.UpdatedAt,
	})
}
