// Package weather 天气与节假日的默认实现：按 (日期, 小时) 派生的确定性模拟天气，以及静态节假日表
package weather

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
)

var conditions = []string{
	domain.WeatherSunny,
	domain.WeatherCloudy,
	domain.WeatherRainy,
	domain.WeatherStormy,
}

// MockProvider 模拟天气。同一 (日期, 小时) 永远返回相同结果。
type MockProvider struct {
	seed uint64
}

// NewMockProvider 创建模拟天气，seed 用于区分不同环境
func NewMockProvider(seed uint64) *MockProvider {
	return &MockProvider{seed: seed}
}

// WeatherAt 实现 domain.WeatherProvider
func (p *MockProvider) WeatherAt(_ context.Context, date time.Time, hour int) (domain.Weather, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(date.Format(domain.DateLayout)))
	_, _ = h.Write([]byte{byte(hour)})
	r := rand.New(rand.NewPCG(h.Sum64(), p.seed))

	// 温度随月份起伏，夏季高
	seasonal := 15 - 12*math.Cos(2*math.Pi*float64(date.Month()-1)/12)
	temp := seasonal + r.Float64()*10 - 5

	return domain.Weather{
		Temperature: math.Round(temp*10) / 10,
		Condition:   conditions[r.IntN(len(conditions))],
		Humidity:    math.Round(30 + r.Float64()*60),
	}, nil
}

// StaticCalendar 静态节假日表，键为 MM-DD
type StaticCalendar struct {
	holidays map[string]struct{}
	events   map[string]string
}

// NewStaticCalendar 创建节假日表。events 的键为 MM-DD，值为活动名称。
func NewStaticCalendar(holidays []string, events map[string]string) *StaticCalendar {
	c := &StaticCalendar{
		holidays: make(map[string]struct{}, len(holidays)),
		events:   make(map[string]string, len(events)),
	}
	for _, d := range holidays {
		c.holidays[strings.TrimSpace(d)] = struct{}{}
	}
	for d, name := range events {
		c.events[strings.TrimSpace(d)] = name
	}
	return c
}

func (c *StaticCalendar) IsHoliday(date time.Time) bool {
	_, ok := c.holidays[date.Format("01-02")]
	return ok
}

func (c *StaticCalendar) SpecialEvent(date time.Time) string {
	return c.events[date.Format("01-02")]
}
