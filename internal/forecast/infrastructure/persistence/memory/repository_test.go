package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
)

func newPrediction(date time.Time, hour int) *domain.Prediction {
	return &domain.Prediction{
		PredictionFor: domain.StartOfDay(date),
		Hour:          hour,
		TargetAt:      domain.TargetTime(date, hour),
		Items:         []domain.PredictedItem{{MenuItemID: "a", PredictedQuantity: 3}},
	}
}

func TestPredictionRepository_SetAccuracyOnlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewPredictionRepository()
	p := newPrediction(time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), 12)
	require.NoError(t, repo.Create(ctx, p))

	ok, err := repo.SetAccuracy(ctx, p.ID, 0.5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SetAccuracy(ctx, p.ID, 0.9)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.Get(ctx, p.PredictionFor, 12)
	require.NoError(t, err)
	assert.Equal(t, 0.5, *got.Accuracy)

	_, err = repo.SetAccuracy(ctx, 999, 1)
	assert.ErrorIs(t, err, domain.ErrPredictionNotFound)
}

func TestPredictionRepository_ListUnscoredWindow(t *testing.T) {
	ctx := context.Background()
	repo := NewPredictionRepository()
	day := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	for h := 8; h <= 12; h++ {
		require.NoError(t, repo.Create(ctx, newPrediction(day, h)))
	}

	got, err := repo.ListUnscored(ctx, day.Add(9*time.Hour), day.Add(11*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 9, got[0].Hour)
	assert.Equal(t, 11, got[2].Hour)

	got, err = repo.ListUnscored(ctx, day, day.Add(24*time.Hour), 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestPredictionRepository_DeleteBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewPredictionRepository()
	today := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, newPrediction(today.AddDate(0, 0, -31), 10)))
	require.NoError(t, repo.Create(ctx, newPrediction(today.AddDate(0, 0, -29), 10)))

	n, err := repo.DeleteBefore(ctx, today.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	exists, err := repo.Exists(ctx, today.AddDate(0, 0, -29), 10)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBucketRepository_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := NewBucketRepository()
	b := domain.NewHistoricalBucket(time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), 13)
	b.TotalOrderCount = 4
	require.NoError(t, repo.Upsert(ctx, []*domain.HistoricalBucket{b}))
	id := b.ID

	b2 := domain.NewHistoricalBucket(b.Date, 13)
	b2.TotalOrderCount = 2
	require.NoError(t, repo.Upsert(ctx, []*domain.HistoricalBucket{b2}))

	n, _ := repo.Count(ctx)
	assert.Equal(t, int64(1), n)
	got, err := repo.FindByDayOfWeekAndHour(ctx, time.Monday, 13)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, int64(2), got[0].TotalOrderCount)
}
