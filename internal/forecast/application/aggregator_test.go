package application

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
	"github.com/wyfcoding/menuforecast/internal/forecast/infrastructure/persistence/memory"
)

func TestAggregator_CollectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	loc := time.UTC
	now := time.Date(2026, 5, 10, 8, 0, 0, 0, loc)

	orders := memory.NewOrderStore()
	orders.Add(
		order(time.Date(2026, 5, 4, 13, 5, 0, 0, loc), domain.OrderStatusCompleted, line("noodle", 2, 12), line("tea", 1, 4)),
		order(time.Date(2026, 5, 4, 13, 40, 0, 0, loc), domain.OrderStatusServed, line("noodle", 1, 12)),
		order(time.Date(2026, 5, 4, 19, 10, 0, 0, loc), domain.OrderStatusCancelled, line("rice", 3, 8)),
		// 超出回溯窗口
		order(time.Date(2025, 12, 1, 12, 0, 0, 0, loc), domain.OrderStatusCompleted, line("noodle", 9, 12)),
	)
	buckets := memory.NewBucketRepository()
	weather := cloudy()
	agg := NewAggregator(orders, buckets, weather, noHolidays{}, Options{Location: loc, Now: fixedClock(now)})

	n, err := agg.CollectHistoricalData(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	first := buckets.All()

	n, err = agg.CollectHistoricalData(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, first, buckets.All())

	require.Len(t, first, 2)
	lunch := first[0]
	assert.Equal(t, 13, lunch.Hour)
	assert.Equal(t, time.Monday, lunch.DayOfWeek)
	assert.Equal(t, int64(2), lunch.TotalOrderCount)
	assert.True(t, lunch.TotalRevenue.Equal(decimal.NewFromInt(40)))
	q, ok := lunch.Quantity("noodle")
	require.True(t, ok)
	assert.Equal(t, int64(3), q)
	assert.Equal(t, domain.WeatherCloudy, lunch.Weather.Condition)
}

func TestAggregator_WindowEdgeBucketStaysComplete(t *testing.T) {
	ctx := context.Background()
	loc := time.UTC
	now := time.Date(2026, 5, 10, 2, 0, 0, 0, loc)

	// 2026-02-09 正好在 90 天前
	orders := memory.NewOrderStore()
	orders.Add(
		order(time.Date(2026, 2, 9, 1, 50, 0, 0, loc), domain.OrderStatusCompleted, line("noodle", 4, 12)),
		order(time.Date(2026, 2, 9, 2, 5, 0, 0, loc), domain.OrderStatusCompleted, line("noodle", 5, 12)),
		order(time.Date(2026, 2, 9, 2, 40, 0, 0, loc), domain.OrderStatusCompleted, line("noodle", 1, 12)),
	)
	buckets := memory.NewBucketRepository()
	agg := NewAggregator(orders, buckets, cloudy(), noHolidays{}, Options{Location: loc, Now: func() time.Time { return now }})

	edge := func() *domain.HistoricalBucket {
		t.Helper()
		all := buckets.All()
		require.Len(t, all, 1)
		return all[0]
	}

	_, err := agg.CollectHistoricalData(ctx, 90)
	require.NoError(t, err)
	before := edge()
	assert.Equal(t, 2, before.Hour)
	assert.Equal(t, int64(2), before.TotalOrderCount)
	q, _ := before.Quantity("noodle")
	assert.Equal(t, int64(6), q)

	// 半小时后再跑一次，边缘桶不被部分小时覆盖
	now = now.Add(30 * time.Minute)
	_, err = agg.CollectHistoricalData(ctx, 90)
	require.NoError(t, err)
	after := edge()
	assert.Equal(t, int64(2), after.TotalOrderCount)
	q, _ = after.Quantity("noodle")
	assert.Equal(t, int64(6), q)
}

func TestAggregator_EmptyWindowReturnsZero(t *testing.T) {
	ctx := context.Background()
	buckets := memory.NewBucketRepository()
	agg := NewAggregator(memory.NewOrderStore(), buckets, cloudy(), noHolidays{}, Options{Location: time.UTC})

	n, err := agg.CollectHistoricalData(ctx, 90)
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := buckets.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAggregator_RejectsNonPositiveLookback(t *testing.T) {
	agg := NewAggregator(memory.NewOrderStore(), memory.NewBucketRepository(), cloudy(), noHolidays{}, Options{})
	_, err := agg.CollectHistoricalData(context.Background(), 0)
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}
