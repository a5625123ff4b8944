package domain

import (
	"context"
	"time"
)

// 天气状况
const (
	WeatherSunny  = "sunny"
	WeatherRainy  = "rainy"
	WeatherCloudy = "cloudy"
	WeatherStormy = "stormy"
)

// Weather 天气快照
type Weather struct {
	// 温度（摄氏度）
	Temperature float64 `json:"temperature"`
	// 状况：sunny, rainy, cloudy, stormy
	Condition string `json:"condition"`
	// 湿度（百分比）
	Humidity float64 `json:"humidity"`
}

// WeatherProvider 天气查询能力。默认实现为确定性模拟数据，真实实现可替换为天气服务。
type WeatherProvider interface {
	WeatherAt(ctx context.Context, date time.Time, hour int) (Weather, error)
}

// HolidayCalendar 节假日与特殊活动
type HolidayCalendar interface {
	IsHoliday(date time.Time) bool
	// SpecialEvent 返回当天的活动名称，没有则返回空串
	SpecialEvent(date time.Time) string
}
