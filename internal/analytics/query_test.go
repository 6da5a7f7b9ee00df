package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgoulart/shortlinks/internal"
	"github.com/mgoulart/shortlinks/internal/apperrors"
)

func queryFixture(t *testing.T) (*QueryService, *memoryReflectionStore, *memoryClickStore) {
	t.Helper()
	subscriptions := &staticSubscriptions{subs: map[int64]internal.Subscription{
		1: {UserID: 1, Tier: internal.TierFree},
		2: {UserID: 2, Tier: internal.TierPro},
	}}
	reflections := newMemoryReflectionStore()
	clicks := &memoryClickStore{}
	return NewQueryService(subscriptions, reflections, clicks), reflections, clicks
}

func TestGetAnalyticsRequiresProTier(t *testing.T) {
	service, _, _ := queryFixture(t)

	_, err := service.GetAnalytics(context.Background(), 1, "abc12345", 0, 0)
	require.Error(t, err)
	kind, ok := apperrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindForbidden, kind)
}

func TestGetAnalyticsUnknownUser(t *testing.T) {
	service, _, _ := queryFixture(t)

	_, err := service.GetAnalytics(context.Background(), 99, "abc12345", 0, 0)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetAnalyticsUnknownShortcode(t *testing.T) {
	service, reflections, _ := queryFixture(t)

	// Reflection exists but for another owner: not visible to user 2.
	require.NoError(t, reflections.Upsert(context.Background(), internal.Reflection{
		ShortlinkID: 7, OwnerUserID: 9, ShortCode: "abc12345",
	}))

	_, err := service.GetAnalytics(context.Background(), 2, "abc12345", 0, 0)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetAnalyticsOrdersHistoryNewestFirst(t *testing.T) {
	service, reflections, clicks := queryFixture(t)
	ctx := context.Background()

	require.NoError(t, reflections.Upsert(ctx, internal.Reflection{
		ShortlinkID: 7, OwnerUserID: 2, ShortCode: "abc12345",
	}))
	for i := 0; i < 3; i++ {
		require.NoError(t, clicks.Append(ctx, internal.ClickFact{
			ShortlinkID: 7,
			ShortCode:   "abc12345",
			OwnerUserID: 2,
			IPAddress:   "203.0.113.10",
			ClickedAt:   analyticsNow.Add(time.Duration(i) * time.Minute),
		}))
	}

	report, err := service.GetAnalytics(ctx, 2, "abc12345", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, "abc12345", report.ShortCode)
	assert.Equal(t, int64(3), report.TotalClicks)
	require.Len(t, report.History, 3)
	assert.True(t, report.History[0].Timestamp.After(report.History[1].Timestamp))
	assert.True(t, report.History[1].Timestamp.After(report.History[2].Timestamp))
}

func TestGetAnalyticsPaginationClamping(t *testing.T) {
	service, reflections, clicks := queryFixture(t)
	ctx := context.Background()

	require.NoError(t, reflections.Upsert(ctx, internal.Reflection{
		ShortlinkID: 7, OwnerUserID: 2, ShortCode: "abc12345",
	}))
	for i := 0; i < 60; i++ {
		require.NoError(t, clicks.Append(ctx, internal.ClickFact{
			ShortlinkID: 7,
			ShortCode:   "abc12345",
			OwnerUserID: 2,
			IPAddress:   "203.0.113.10",
			ClickedAt:   analyticsNow.Add(time.Duration(i) * time.Second),
		}))
	}

	cases := []struct {
		name       string
		limit      int
		offset     int
		wantLimit  int
		wantOffset int
		wantLen    int
	}{
		{"zero limit defaults", 0, 0, 50, 0, 50},
		{"oversized limit capped", 500, 0, 200, 0, 60},
		{"negative limit raised to one", -3, 0, 1, 0, 1},
		{"negative offset floored", 10, -5, 10, 0, 10},
		{"offset past end", 10, 100, 10, 100, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report, err := service.GetAnalytics(ctx, 2, "abc12345", tc.limit, tc.offset)
			require.NoError(t, err)
			assert.Equal(t, tc.wantLimit, report.Pagination.Limit)
			assert.Equal(t, tc.wantOffset, report.Pagination.Offset)
			assert.Len(t, report.History, tc.wantLen)
			assert.Equal(t, int64(60), report.TotalClicks)
		})
	}
}

func TestGetAnalyticsEmptyHistory(t *testing.T) {
	service, reflections, _ := queryFixture(t)
	ctx := context.Background()

	require.NoError(t, reflections.Upsert(ctx, internal.Reflection{
		ShortlinkID: 7, OwnerUserID: 2, ShortCode: "abc12345",
	}))

	report, err := service.GetAnalytics(ctx, 2, "abc12345", 0, 0)
	require.NoError(t, err)
	assert.Zero(t, report.TotalClicks)
	assert.Empty(t, report.History)
}
