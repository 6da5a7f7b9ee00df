package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	created []LinkEvent
	updated []LinkEvent
	deleted []LinkDeletedEvent
	clicks  []ClickEvent
}

func (h *recordingHandler) OnLinkCreated(_ context.Context, e LinkEvent) error {
	h.created = append(h.created, e)
	return nil
}

func (h *recordingHandler) OnLinkUpdated(_ context.Context, e LinkEvent) error {
	h.updated = append(h.updated, e)
	return nil
}

func (h *recordingHandler) OnLinkDeleted(_ context.Context, e LinkDeletedEvent) error {
	h.deleted = append(h.deleted, e)
	return nil
}

func (h *recordingHandler) OnClick(_ context.Context, e ClickEvent) error {
	h.clicks = append(h.clicks, e)
	return nil
}

func TestEncodeFramesEnvelope(t *testing.T) {
	body, err := Encode(KindShortlinkDeleted, LinkDeletedEvent{
		ShortlinkID: 7,
		OwnerUserID: 42,
		ShortCode:   "abc12345",
	})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(body, &env))
	assert.Equal(t, "shortlink_deleted", env.Cmd)

	var payload LinkDeletedEvent
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, int64(7), payload.ShortlinkID)
	assert.Equal(t, int64(42), payload.OwnerUserID)
	assert.Equal(t, "abc12345", payload.ShortCode)
}

func TestDispatchRoutesEveryKind(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	h := &recordingHandler{}

	link := LinkEvent{ShortlinkID: 1, OwnerUserID: 2, ShortCode: "abc12345", CreatedAt: now, UpdatedAt: now}
	click := ClickEvent{ShortlinkID: 1, ShortCode: "abc12345", OwnerUserID: 2, ClickedAt: now, IPAddress: "203.0.113.10", UserAgent: "go-test"}

	for _, msg := range []struct {
		kind    Kind
		payload any
	}{
		{KindShortlinkCreated, link},
		{KindShortlinkUpdated, link},
		{KindShortlinkDeleted, LinkDeletedEvent{ShortlinkID: 1, OwnerUserID: 2, ShortCode: "abc12345"}},
		{KindShortlinkClick, click},
	} {
		body, err := Encode(msg.kind, msg.payload)
		require.NoError(t, err)
		require.NoError(t, Dispatch(context.Background(), body, h))
	}

	require.Len(t, h.created, 1)
	require.Len(t, h.updated, 1)
	require.Len(t, h.deleted, 1)
	require.Len(t, h.clicks, 1)

	assert.Equal(t, link, h.created[0])
	assert.Equal(t, link, h.updated[0])
	assert.Equal(t, click, h.clicks[0])
	assert.True(t, h.clicks[0].ClickedAt.Equal(now))
}

func TestDispatchUnknownKind(t *testing.T) {
	body, err := json.Marshal(Envelope{Cmd: "shortlink_archived", Data: json.RawMessage(`{}`)})
	require.NoError(t, err)

	err = Dispatch(context.Background(), body, &recordingHandler{})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestDispatchMalformedBody(t *testing.T) {
	err := Dispatch(context.Background(), []byte("not json"), &recordingHandler{})
	assert.Error(t, err)
}

func TestClickEventOmitsEmptyUserAgent(t *testing.T) {
	body, err := json.Marshal(ClickEvent{ShortlinkID: 1, ShortCode: "abc12345", OwnerUserID: 2, IPAddress: "203.0.113.10"})
	require.NoError(t, err)
	assert.NotContains(t, string(body), "userAgent")
}
