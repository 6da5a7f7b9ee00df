package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgoulart/shortlinks/internal"
	"github.com/mgoulart/shortlinks/internal/apperrors"
	"github.com/mgoulart/shortlinks/internal/events"
)

type memoryLinkSource struct {
	links map[string]internal.Link
}

func (m *memoryLinkSource) FindByCode(_ context.Context, code string) (*internal.Link, error) {
	link, ok := m.links[code]
	if !ok {
		return nil, nil
	}
	copied := link
	return &copied, nil
}

type clickRecorder struct {
	clicks chan events.ClickEvent
}

func newClickRecorder() *clickRecorder {
	return &clickRecorder{clicks: make(chan events.ClickEvent, 8)}
}

func (r *clickRecorder) Emit(_ context.Context, kind events.Kind, payload any) error {
	if kind == events.KindShortlinkClick {
		r.clicks <- payload.(events.ClickEvent)
	}
	return nil
}

var resolverNow = time.Date(2026, time.August, 15, 10, 30, 0, 0, time.UTC)

func newTestResolver(links map[string]internal.Link) (*Service, *clickRecorder) {
	recorder := newClickRecorder()
	svc := NewService(&memoryLinkSource{links: links}, nil, time.Hour, 5*time.Minute, recorder)
	svc.now = func() time.Time { return resolverNow }
	return svc, recorder
}

func TestResolveEmitsClick(t *testing.T) {
	svc, recorder := newTestResolver(map[string]internal.Link{
		"abc12345": {ID: 7, OwnerUserID: 3, ShortCode: "abc12345", OriginalURL: "https://example.com"},
	})

	redirect, err := svc.Resolve(context.Background(), "abc12345", ClickContext{
		IPAddress: "203.0.113.10",
		UserAgent: "go-test",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", redirect.URL)
	assert.Equal(t, 301, redirect.Status)

	select {
	case click := <-recorder.clicks:
		assert.Equal(t, int64(7), click.ShortlinkID)
		assert.Equal(t, int64(3), click.OwnerUserID)
		assert.Equal(t, "abc12345", click.ShortCode)
		assert.Equal(t, "203.0.113.10", click.IPAddress)
		assert.Equal(t, "go-test", click.UserAgent)
		assert.True(t, click.ClickedAt.Equal(resolverNow))
	case <-time.After(time.Second):
		t.Fatal("click event never emitted")
	}
}

func TestResolveUnknownCode(t *testing.T) {
	svc, recorder := newTestResolver(map[string]internal.Link{})

	_, err := svc.Resolve(context.Background(), "missing1", ClickContext{IPAddress: "203.0.113.10"})
	assert.True(t, apperrors.IsNotFound(err))

	svc.Close()
	select {
	case <-recorder.clicks:
		t.Fatal("no click should be emitted for unknown codes")
	default:
	}
}

func TestResolveExpiryBoundary(t *testing.T) {
	expired := resolverNow.Add(-time.Second)
	alive := resolverNow.Add(time.Hour)

	svc, recorder := newTestResolver(map[string]internal.Link{
		"expired1": {ID: 1, OwnerUserID: 3, ShortCode: "expired1", OriginalURL: "https://example.com", ExpiresAt: &expired},
		"alive123": {ID: 2, OwnerUserID: 3, ShortCode: "alive123", OriginalURL: "https://example.com", ExpiresAt: &alive},
	})

	_, err := svc.Resolve(context.Background(), "expired1", ClickContext{IPAddress: "203.0.113.10"})
	assert.True(t, apperrors.IsNotFound(err), "expired codes must be indistinguishable from absent ones")

	redirect, err := svc.Resolve(context.Background(), "alive123", ClickContext{IPAddress: "203.0.113.10"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", redirect.URL)

	svc.Close()
	require.Len(t, recorder.clicks, 1)
}

func TestClientAddress(t *testing.T) {
	tests := []struct {
		name         string
		forwardedFor string
		peer         string
		want         string
	}{
		{"no header", "", "127.0.0.1", "127.0.0.1"},
		{"single address", "203.0.113.10", "127.0.0.1", "203.0.113.10"},
		{"chain takes first", "203.0.113.10, 70.41.3.18, 150.172.238.178", "127.0.0.1", "203.0.113.10"},
		{"whitespace trimmed", "  203.0.113.10 , 70.41.3.18", "127.0.0.1", "203.0.113.10"},
		{"blank header falls back", "  ,70.41.3.18", "127.0.0.1", "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClientAddress(tt.forwardedFor, tt.peer))
		})
	}
}
