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

func TestQueryService_AccuracySummary(t *testing.T) {
	ctx := context.Background()
	preds := memory.NewPredictionRepository()
	day := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	scores := []struct {
		hour int
		acc  float64
	}{{12, 0.8}, {12, 0.6}, {13, 1.0}, {19, 0.4}}
	for i, s := range scores {
		p := storePrediction(t, preds, day.AddDate(0, 0, i).Add(time.Duration(s.hour)*time.Hour))
		_, err := preds.SetAccuracy(ctx, p.ID, s.acc)
		require.NoError(t, err)
	}
	// 未评分的不计入
	storePrediction(t, preds, day.Add(20*time.Hour))

	q := NewQueryService(preds, nil, nil, 6*time.Hour, Options{Location: time.UTC})
	summary, err := q.AccuracySummary(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.ScoredCount)
	assert.InDelta(t, 0.7, summary.OverallAccuracy, 1e-9)
	require.Len(t, summary.ByHour, 3)
	assert.Equal(t, 12, summary.ByHour[0].Hour)
	assert.InDelta(t, 0.7, summary.ByHour[0].Accuracy, 1e-9)
	assert.Equal(t, 2, summary.ByHour[0].Count)
	assert.Equal(t, 19, summary.ByHour[2].Hour)

	require.Len(t, summary.Recent, 2)
	assert.Equal(t, 19, summary.Recent[0].Hour)
	assert.Equal(t, 13, summary.Recent[1].Hour)
}

func TestQueryService_AccuracySummaryEmpty(t *testing.T) {
	q := NewQueryService(memory.NewPredictionRepository(), nil, nil, 6*time.Hour, Options{})
	summary, err := q.AccuracySummary(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, summary.ScoredCount)
	assert.Empty(t, summary.Recent)
}

func TestQueryService_ListUpcoming(t *testing.T) {
	ctx := context.Background()
	preds := memory.NewPredictionRepository()
	now := time.Date(2026, 5, 4, 10, 5, 0, 0, time.UTC)
	for h := 9; h <= 17; h++ {
		storePrediction(t, preds, time.Date(2026, 5, 4, h, 0, 0, 0, time.UTC))
	}

	q := NewQueryService(preds, nil, nil, 6*time.Hour, Options{Location: time.UTC, Now: fixedClock(now)})
	upcoming, err := q.ListUpcoming(ctx)
	require.NoError(t, err)
	require.Len(t, upcoming, 6)
	assert.Equal(t, 11, upcoming[0].Hour)
	assert.Equal(t, 16, upcoming[5].Hour)

	n, err := q.CountUpcoming(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestQueryService_GetPredictionEnrichesMenu(t *testing.T) {
	ctx := context.Background()
	preds := memory.NewPredictionRepository()
	orders := memory.NewOrderStore()
	orders.AddMenuItem(&domain.MenuItem{ID: "a", Name: "Beef Noodle", Category: "main", Price: decimal.NewFromInt(28)})
	storePrediction(t, preds, time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC),
		domain.PredictedItem{MenuItemID: "a", PredictedQuantity: 3},
		domain.PredictedItem{MenuItemID: "ghost", PredictedQuantity: 1})

	q := NewQueryService(preds, orders, nil, 6*time.Hour, Options{Location: time.UTC})
	dto, err := q.GetPrediction(ctx, time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), 12)
	require.NoError(t, err)
	assert.Equal(t, "Beef Noodle", dto.Items[0].Name)
	assert.Equal(t, "main", dto.Items[0].Category)
	assert.Empty(t, dto.Items[1].Name)

	_, err = q.GetPrediction(ctx, time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), 13)
	assert.ErrorIs(t, err, domain.ErrPredictionNotFound)
}

func TestForecastService_GenerateReturnsExisting(t *testing.T) {
	ctx := context.Background()
	buckets := memory.NewBucketRepository()
	preds := memory.NewPredictionRepository()
	seedMondayLunch(t, buckets)

	opts := Options{Location: time.UTC}
	forecaster := newTestForecaster(buckets, preds, nil)
	query := NewQueryService(preds, nil, nil, 6*time.Hour, opts)
	agg := NewAggregator(memory.NewOrderStore(), buckets, cloudy(), noHolidays{}, opts)
	svc := NewForecastService(agg, forecaster, query, 90, time.UTC)

	target := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	first, created, err := svc.Generate(ctx, target, 13)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := svc.Generate(ctx, target, 13)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, mustListAll(t, preds), 1)
}
