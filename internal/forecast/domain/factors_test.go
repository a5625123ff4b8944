package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrendMultiplier(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	saturday := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		date time.Time
		hour int
		want float64
	}{
		{"weekday off-peak", monday, 10, 1.0},
		{"weekday lunch", monday, 13, 1.3},
		{"weekday dinner edge", monday, 21, 1.3},
		{"weekday after dinner", monday, 22, 1.0},
		{"weekend off-peak", saturday, 9, 1.2},
		{"weekend peak", saturday, 19, 1.2 * 1.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TrendMultiplier(tt.date, tt.hour), 1e-9)
		})
	}
}

func TestSeasonalMultiplier(t *testing.T) {
	assert.Equal(t, 0.90, SeasonalMultiplier(time.January))
	assert.Equal(t, 1.30, SeasonalMultiplier(time.June))
	assert.Equal(t, 1.25, SeasonalMultiplier(time.July))
	assert.Equal(t, 1.30, SeasonalMultiplier(time.December))
}

func TestWeatherMultiplier(t *testing.T) {
	assert.Equal(t, 1.1, WeatherMultiplier(WeatherSunny))
	assert.Equal(t, 1.3, WeatherMultiplier(WeatherRainy))
	assert.Equal(t, 1.0, WeatherMultiplier(WeatherCloudy))
	assert.Equal(t, 1.4, WeatherMultiplier(WeatherStormy))
	assert.Equal(t, 1.0, WeatherMultiplier("foggy"))
}

func TestConfidence(t *testing.T) {
	// [10,12,11]: avg=11, var=2/3
	assert.InDelta(t, 1-(2.0/3.0)/12, Confidence(11, 2.0/3.0), 1e-9)
	assert.Equal(t, 0.95, Confidence(5, 0))
	assert.Equal(t, 0.1, Confidence(1, 100))
}

func TestPredictQuantity(t *testing.T) {
	assert.Equal(t, int64(14), PredictQuantity(11, 1.3, 1.0, 1.0))
	assert.Equal(t, int64(0), PredictQuantity(0, 1.3, 1.3, 1.4))
	assert.Equal(t, int64(0), PredictQuantity(-3, 1, 1, 1))
}
