package application

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
)

type fixedWeather struct {
	w     domain.Weather
	calls int
}

func (f *fixedWeather) WeatherAt(context.Context, time.Time, int) (domain.Weather, error) {
	f.calls++
	return f.w, nil
}

type noHolidays struct{}

func (noHolidays) IsHoliday(time.Time) bool      { return false }
func (noHolidays) SpecialEvent(time.Time) string { return "" }

type recordingPublisher struct {
	events []domain.ForecastEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.ForecastEvent) error {
	p.events = append(p.events, e)
	return p.err
}

// failingOrders 对指定窗口起点返回错误，其余委托给 next
type failingOrders struct {
	next   domain.OrderSource
	failAt time.Time
}

func (f *failingOrders) ListOrdersBetween(ctx context.Context, from, to time.Time, statuses ...domain.OrderStatus) ([]*domain.Order, error) {
	if from.Equal(f.failAt) {
		return nil, errors.New("connection reset")
	}
	return f.next.ListOrdersBetween(ctx, from, to, statuses...)
}

func (f *failingOrders) CountOrdersSince(ctx context.Context, since time.Time) (int64, error) {
	return f.next.CountOrdersSince(ctx, since)
}

func cloudy() *fixedWeather {
	return &fixedWeather{w: domain.Weather{Temperature: 20, Condition: domain.WeatherCloudy, Humidity: 50}}
}

func order(at time.Time, status domain.OrderStatus, lines ...domain.OrderLine) *domain.Order {
	return &domain.Order{ID: at.Format(time.RFC3339Nano), CreatedAt: at, Status: status, Lines: lines}
}

func line(item string, qty int64, price int64) domain.OrderLine {
	return domain.OrderLine{MenuItemID: item, Quantity: qty, UnitPrice: decimal.NewFromInt(price)}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
