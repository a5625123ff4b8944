package application

import (
	"context"
	"fmt"
	"sort"

	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
	"github.com/wyfcoding/menuforecast/pkg/utils"
)

// Aggregator 把原始订单折叠成 (日期, 小时) 历史桶
type Aggregator struct {
	orders   domain.OrderSource
	buckets  domain.BucketRepository
	weather  domain.WeatherProvider
	holidays domain.HolidayCalendar
	opts     Options
}

// NewAggregator 创建聚合器
func NewAggregator(
	orders domain.OrderSource,
	buckets domain.BucketRepository,
	weather domain.WeatherProvider,
	holidays domain.HolidayCalendar,
	opts Options,
) *Aggregator {
	return &Aggregator{
		orders:   orders,
		buckets:  buckets,
		weather:  weather,
		holidays: holidays,
		opts:     opts.withDefaults(),
	}
}

// CollectHistoricalData 读取回溯窗口内的全部订单并重算涉及到的桶，返回写入的桶数。
// 窗口起点向下取整到小时，每次都从订单全量重算，重复执行结果一致。没有订单时返回 0。
func (a *Aggregator) CollectHistoricalData(ctx context.Context, lookbackDays int) (int, error) {
	if lookbackDays <= 0 {
		return 0, &domain.ValidationError{Field: "lookback_days", Reason: "must be positive"}
	}
	now := a.opts.now()
	// 起点取整点，边缘桶总是按完整小时重算
	from := utils.StartOfHour(now.In(a.opts.Location).AddDate(0, 0, -lookbackDays))

	orders, err := a.orders.ListOrdersBetween(ctx, from, now)
	if err != nil {
		return 0, domain.StoreError("list orders", err)
	}
	if len(orders) == 0 {
		a.opts.Logger.InfoContext(ctx, "no orders in lookback window", "from", from, "to", now)
		return 0, nil
	}

	byKey := make(map[domain.BucketKey]*domain.HistoricalBucket)
	for _, o := range orders {
		t := o.CreatedAt.In(a.opts.Location)
		b := domain.NewHistoricalBucket(t, t.Hour())
		if existing, ok := byKey[b.Key()]; ok {
			b = existing
		} else {
			byKey[b.Key()] = b
		}
		b.AddOrder(o)
	}

	buckets := make([]*domain.HistoricalBucket, 0, len(byKey))
	for _, b := range byKey {
		w, err := a.weather.WeatherAt(ctx, b.Date, b.Hour)
		if err != nil {
			return 0, fmt.Errorf("weather lookup for %s %02d:00: %w", b.Date.Format(domain.DateLayout), b.Hour, err)
		}
		b.Weather = w
		b.IsHoliday = a.holidays.IsHoliday(b.Date)
		b.SpecialEvent = a.holidays.SpecialEvent(b.Date)
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		if !buckets[i].Date.Equal(buckets[j].Date) {
			return buckets[i].Date.Before(buckets[j].Date)
		}
		return buckets[i].Hour < buckets[j].Hour
	})

	if err := a.buckets.Upsert(ctx, buckets); err != nil {
		return 0, domain.StoreError("upsert buckets", err)
	}

	a.opts.Metrics.RecordBuckets(len(buckets))
	a.opts.Logger.InfoContext(ctx, "historical data collected",
		"orders", len(orders),
		"buckets", len(buckets),
		"lookback_days", lookbackDays,
	)
	return len(buckets), nil
}
