package quota

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgoulart/shortlinks/internal"
	"github.com/mgoulart/shortlinks/internal/apperrors"
)

func TestGetSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/subscriptions/42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user_id":42,"subscription_type":"PRO"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	sub, err := client.GetSubscription(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, internal.Subscription{UserID: 42, Tier: internal.TierPro}, sub)
}

func TestGetSubscriptionUnknownUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetSubscription(context.Background(), 7)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetSubscriptionServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetSubscription(context.Background(), 7)
	require.Error(t, err)
	_, isApp := apperrors.KindOf(err)
	assert.False(t, isApp)
}
