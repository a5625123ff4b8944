package domain

import (
	"math"
	"time"
)

// 预测解释因子名称，按此顺序写入 PredictedItem.Factors
const (
	FactorHistoricalAverage  = "historical_average"
	FactorTrendAdjustment    = "trend_adjustment"
	FactorSeasonalAdjustment = "seasonal_adjustment"
	FactorWeatherImpact      = "weather_impact"
)

const (
	weekendBoost  = 1.2
	peakHourBoost = 1.3

	minConfidence = 0.1
	maxConfidence = 0.95
)

// 1 月到 12 月的季节系数
var seasonalFactors = [12]float64{0.90, 0.95, 1.00, 1.10, 1.20, 1.30, 1.25, 1.20, 1.10, 1.05, 1.15, 1.30}

var weatherFactors = map[string]float64{
	WeatherSunny:  1.1,
	WeatherRainy:  1.3,
	WeatherCloudy: 1.0,
	WeatherStormy: 1.4,
}

// IsPeakHour 午餐 12-14 点与晚餐 19-21 点
func IsPeakHour(hour int) bool {
	return (hour >= 12 && hour <= 14) || (hour >= 19 && hour <= 21)
}

// TrendMultiplier 周末 1.2，高峰时段 1.3，两者相乘
func TrendMultiplier(date time.Time, hour int) float64 {
	m := 1.0
	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		m *= weekendBoost
	}
	if IsPeakHour(hour) {
		m *= peakHourBoost
	}
	return m
}

// SeasonalMultiplier 按月份查表
func SeasonalMultiplier(month time.Month) float64 {
	if month < time.January || month > time.December {
		return 1.0
	}
	return seasonalFactors[month-1]
}

// WeatherMultiplier 按天气状况查表，未知状况为 1.0
func WeatherMultiplier(condition string) float64 {
	if f, ok := weatherFactors[condition]; ok {
		return f
	}
	return 1.0
}

// Confidence 稳定性得分 clamp(1 - variance/(avg+1), 0.1, 0.95)
func Confidence(avg, variance float64) float64 {
	c := 1 - variance/(avg+1)
	if math.IsNaN(c) {
		return minConfidence
	}
	return math.Max(minConfidence, math.Min(maxConfidence, c))
}

// PredictQuantity round(avg × trend × seasonal × weather)，下限 0
func PredictQuantity(avg, trend, seasonal, weather float64) int64 {
	q := math.Round(avg * trend * seasonal * weather)
	if q < 0 || math.IsNaN(q) {
		return 0
	}
	return int64(q)
}
