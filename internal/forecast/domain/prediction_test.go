package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeAccuracy(t *testing.T) {
	tests := []struct {
		name      string
		predicted []PredictedItem
		actual    map[string]int64
		want      float64
	}{
		{
			name:      "over-predicted with no sales",
			predicted: []PredictedItem{{MenuItemID: "a", PredictedQuantity: 5}},
			actual:    map[string]int64{},
			want:      0,
		},
		{
			name:      "zero predicted and zero sold",
			predicted: []PredictedItem{{MenuItemID: "a", PredictedQuantity: 0}},
			actual:    map[string]int64{},
			want:      1,
		},
		{
			name: "mean over items",
			predicted: []PredictedItem{
				{MenuItemID: "a", PredictedQuantity: 10},
				{MenuItemID: "b", PredictedQuantity: 4},
			},
			actual: map[string]int64{"a": 8, "b": 4, "c": 7},
			want:   (0.8 + 1.0) / 2,
		},
		{
			name:      "empty prediction with no sales",
			predicted: nil,
			actual:    map[string]int64{},
			want:      1,
		},
		{
			name:      "empty prediction with sales",
			predicted: nil,
			actual:    map[string]int64{"a": 2},
			want:      0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Prediction{Items: tt.predicted}
			assert.InDelta(t, tt.want, p.ComputeAccuracy(tt.actual), 1e-9)
		})
	}
}

func TestSetAccuracyOnce(t *testing.T) {
	p := &Prediction{}
	require.NoError(t, p.SetAccuracy(0.7))
	assert.ErrorIs(t, p.SetAccuracy(0.9), ErrAlreadyScored)
	assert.Equal(t, 0.7, *p.Accuracy)
}

func TestPredictionWindow(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	p := &Prediction{PredictionFor: time.Date(2026, 5, 4, 0, 0, 0, 0, loc), Hour: 13}
	from, to := p.Window()
	assert.Equal(t, time.Date(2026, 5, 4, 13, 0, 0, 0, loc), from)
	assert.Equal(t, time.Hour, to.Sub(from))
}

func TestBucketAddOrder(t *testing.T) {
	b := NewHistoricalBucket(time.Date(2026, 5, 4, 13, 27, 0, 0, time.UTC), 13)
	assert.Equal(t, time.Monday, b.DayOfWeek)
	assert.Equal(t, 0, b.Date.Hour())

	b.AddOrder(&Order{Lines: []OrderLine{
		{MenuItemID: "noodle", Quantity: 2, UnitPrice: decimal.NewFromInt(12)},
		{MenuItemID: "tea", Quantity: 1, UnitPrice: decimal.NewFromFloat(3.5)},
	}})
	b.AddOrder(&Order{Lines: []OrderLine{
		{MenuItemID: "noodle", Quantity: 1, UnitPrice: decimal.NewFromInt(12)},
	}})

	assert.Equal(t, int64(2), b.TotalOrderCount)
	assert.True(t, b.TotalRevenue.Equal(decimal.NewFromFloat(39.5)))
	require.Len(t, b.ItemTotals, 2)
	assert.Equal(t, "noodle", b.ItemTotals[0].MenuItemID)

	q, ok := b.Quantity("noodle")
	assert.True(t, ok)
	assert.Equal(t, int64(3), q)
	_, ok = b.Quantity("rice")
	assert.False(t, ok)
}

func TestInsufficientDataErrorIs(t *testing.T) {
	var err error = &InsufficientDataError{DayOfWeek: time.Monday, Hour: 13}
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Contains(t, err.Error(), "Monday")
}

func TestDayInKeepsCalendarDate(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*3600)
	ny := time.FixedZone("EST", -5*3600)

	late := time.Date(2026, 3, 2, 23, 30, 0, 0, shanghai)
	got := DayIn(late, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), got)

	got = DayIn(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), ny)
	assert.Equal(t, time.Monday, got.Weekday())
	assert.Equal(t, ny, got.Location())
	// 对比：按时区换算会落到前一天
	assert.Equal(t, time.Sunday, StartOfDay(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).In(ny)).Weekday())
}
