package redis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
)

func TestUpcomingKeyIsPerHour(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	a := time.Date(2026, 5, 4, 10, 0, 0, 0, loc)
	b := time.Date(2026, 5, 4, 2, 0, 0, 0, time.UTC)

	assert.Equal(t, upcomingKey(a), upcomingKey(b))
	assert.NotEqual(t, upcomingKey(a), upcomingKey(a.Add(time.Hour)))
	assert.Contains(t, upcomingKey(a), upcomingKeyPrefix)
}

func TestRestoreLocationAfterRoundTrip(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	c := &predictionCache{loc: loc}
	date := time.Date(2026, 5, 4, 0, 0, 0, 0, loc)
	p := &domain.Prediction{
		ID:                    7,
		PredictionFor:         date,
		Hour:                  12,
		TargetAt:              domain.TargetTime(date, 12),
		TotalPredictedOrders:  19,
		TotalPredictedRevenue: decimal.RequireFromString("2216.67"),
		CreatedAt:             date.Add(9 * time.Hour),
	}

	raw, err := json.Marshal([]*domain.Prediction{p})
	require.NoError(t, err)
	var out []*domain.Prediction
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out, 1)
	c.restoreLocation(out[0])

	assert.Equal(t, loc, out[0].TargetAt.Location())
	assert.True(t, out[0].TargetAt.Equal(p.TargetAt))
	assert.Equal(t, "2026-05-04", out[0].PredictionFor.Format(domain.DateLayout))
	assert.True(t, out[0].TotalPredictedRevenue.Equal(p.TotalPredictedRevenue))
}

func TestGeneratedMessage(t *testing.T) {
	date := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	msg := newGeneratedMessage(&domain.Prediction{
		ID:                    3,
		PredictionFor:         date,
		Hour:                  19,
		TotalPredictedOrders:  8,
		TotalPredictedRevenue: decimal.NewFromInt(120),
		Items:                 []domain.PredictedItem{{MenuItemID: "x"}, {MenuItemID: "y"}},
	})

	assert.Equal(t, "2026-05-04", msg.PredictionFor)
	assert.Equal(t, "120.00", msg.TotalPredictedRevenue)
	assert.Equal(t, 2, msg.ItemCount)
}
