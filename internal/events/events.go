package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies one of the cross-service event types. The set is closed;
// Dispatch matches it exhaustively.
type Kind string

const (
	KindShortlinkCreated Kind = "shortlink_created"
	KindShortlinkUpdated Kind = "shortlink_updated"
	KindShortlinkDeleted Kind = "shortlink_deleted"
	KindShortlinkClick   Kind = "track_shortlink_click"
)

// Envelope is the wire frame for every event: the command name plus its
// JSON payload.
type Envelope struct {
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data"`
}

// LinkEvent is the payload of shortlink_created and shortlink_updated.
// PreviousShortCode is set only on updates that renamed the code, so cache
// consumers can drop entries keyed by the old name.
type LinkEvent struct {
	ShortlinkID       int64     `json:"shortlinkId"`
	OwnerUserID       int64     `json:"ownerUserId"`
	ShortCode         string    `json:"shortCode"`
	PreviousShortCode string    `json:"previousShortCode,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// LinkDeletedEvent is the payload of shortlink_deleted.
type LinkDeletedEvent struct {
	ShortlinkID int64  `json:"shortlinkId"`
	OwnerUserID int64  `json:"ownerUserId"`
	ShortCode   string `json:"shortCode"`
}

// ClickEvent is the payload of track_shortlink_click.
type ClickEvent struct {
	ShortlinkID int64     `json:"shortlinkId"`
	ShortCode   string    `json:"shortCode"`
	OwnerUserID int64     `json:"ownerUserId"`
	ClickedAt   time.Time `json:"clickedAt"`
	IPAddress   string    `json:"ipAddress"`
	UserAgent   string    `json:"userAgent,omitempty"`
}

// Emitter sends one event. Delivery is at-least-once and fire-and-forget from
// the caller's point of view: callers log failures and move on.
type Emitter interface {
	Emit(ctx context.Context, kind Kind, payload any) error
}

// Handler consumes the closed event set.
type Handler interface {
	OnLinkCreated(ctx context.Context, event LinkEvent) error
	OnLinkUpdated(ctx context.Context, event LinkEvent) error
	OnLinkDeleted(ctx context.Context, event LinkDeletedEvent) error
	OnClick(ctx context.Context, event ClickEvent) error
}

// Encode frames a payload into the wire envelope.
func Encode(kind Kind, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return json.Marshal(Envelope{Cmd: string(kind), Data: data})
}

// Dispatch decodes one wire message and routes it to the handler.
// Unknown command names and undecodable payloads are reported as errors so
// consumers can drop the message instead of requeueing it forever.
func Dispatch(ctx context.Context, body []byte, h Handler) error {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode event envelope: %w", err)
	}

	switch Kind(env.Cmd) {
	case KindShortlinkCreated:
		var event LinkEvent
		if err := json.Unmarshal(env.Data, &event); err != nil {
			return fmt.Errorf("decode %s payload: %w", env.Cmd, err)
		}
		return h.OnLinkCreated(ctx, event)
	case KindShortlinkUpdated:
		var event LinkEvent
		if err := json.Unmarshal(env.Data, &event); err != nil {
			return fmt.Errorf("decode %s payload: %w", env.Cmd, err)
		}
		return h.OnLinkUpdated(ctx, event)
	case KindShortlinkDeleted:
		var event LinkDeletedEvent
		if err := json.Unmarshal(env.Data, &event); err != nil {
			return fmt.Errorf("decode %s payload: %w", env.Cmd, err)
		}
		return h.OnLinkDeleted(ctx, event)
	case KindShortlinkClick:
		var event ClickEvent
		if err := json.Unmarshal(env.Data, &event); err != nil {
			return fmt.Errorf("decode %s payload: %w", env.Cmd, err)
		}
		return h.OnClick(ctx, event)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, env.Cmd)
	}
}
