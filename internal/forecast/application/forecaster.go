package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
	"gonum.org/v1/gonum/stat"
)

// Forecaster 基于同星期同小时历史桶生成菜品需求预测
type Forecaster struct {
	buckets     domain.BucketRepository
	predictions domain.PredictionRepository
	weather     domain.WeatherProvider
	publisher   domain.EventPublisher
	cache       domain.PredictionCache
	opts        Options
	locks       *targetLocks
}

// NewForecaster 创建预测器，publisher 与 cache 可为 nil
func NewForecaster(
	buckets domain.BucketRepository,
	predictions domain.PredictionRepository,
	weather domain.WeatherProvider,
	publisher domain.EventPublisher,
	cache domain.PredictionCache,
	opts Options,
) *Forecaster {
	return &Forecaster{
		buckets:     buckets,
		predictions: predictions,
		weather:     weather,
		publisher:   publisher,
		cache:       cache,
		opts:        opts.withDefaults(),
		locks:       newTargetLocks(),
	}
}

// itemSeries 某菜品在匹配桶中的数量序列
type itemSeries struct {
	menuItemID string
	quantities []float64
}

// EnsurePrediction 目标已有预测时直接返回，否则生成，created 表示本次是否新建。
// 同一目标的调用在进程内串行，检查与写入之间不会插入另一次生成。
func (f *Forecaster) EnsurePrediction(ctx context.Context, targetDate time.Time, targetHour int) (p *domain.Prediction, created bool, err error) {
	if err := ValidateTarget(targetDate, targetHour); err != nil {
		return nil, false, err
	}
	date := domain.DayIn(targetDate, f.opts.Location)
	unlock := f.locks.lock(domain.BucketKey{Date: date.Format(domain.DateLayout), Hour: targetHour})
	defer unlock()

	existing, err := f.predictions.Get(ctx, date, targetHour)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, domain.ErrPredictionNotFound):
		return nil, false, domain.StoreError("get prediction", err)
	}

	p, err = f.GeneratePredictions(ctx, date, targetHour)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// GeneratePredictions 生成并保存 (targetDate, targetHour) 的预测。
// 不检查是否已存在，重复调用会产生重复记录，去重由调用方负责。
func (f *Forecaster) GeneratePredictions(ctx context.Context, targetDate time.Time, targetHour int) (*domain.Prediction, error) {
	if err := ValidateTarget(targetDate, targetHour); err != nil {
		return nil, err
	}
	date := domain.DayIn(targetDate, f.opts.Location)
	dow := date.Weekday()

	buckets, err := f.buckets.FindByDayOfWeekAndHour(ctx, dow, targetHour)
	if err != nil {
		return nil, domain.StoreError("find buckets", err)
	}
	if len(buckets) == 0 {
		f.opts.Metrics.RecordPredictionFailure("insufficient_data")
		return nil, &domain.InsufficientDataError{DayOfWeek: dow, Hour: targetHour}
	}

	weather, err := f.weather.WeatherAt(ctx, date, targetHour)
	if err != nil {
		return nil, fmt.Errorf("weather lookup: %w", err)
	}
	trend := domain.TrendMultiplier(date, targetHour)
	seasonal := domain.SeasonalMultiplier(date.Month())
	weatherImpact := domain.WeatherMultiplier(weather.Condition)

	series := collectSeries(buckets)
	items := make([]domain.PredictedItem, 0, len(series))
	var totalOrders int64
	for _, s := range series {
		avg, variance := stat.PopMeanVariance(s.quantities, nil)
		qty := domain.PredictQuantity(avg, trend, seasonal, weatherImpact)
		items = append(items, domain.PredictedItem{
			MenuItemID:        s.menuItemID,
			PredictedQuantity: qty,
			Confidence:        domain.Confidence(avg, variance),
			Factors: []domain.Factor{
				{Name: domain.FactorHistoricalAverage, Impact: avg},
				{Name: domain.FactorTrendAdjustment, Impact: trend},
				{Name: domain.FactorSeasonalAdjustment, Impact: seasonal},
				{Name: domain.FactorWeatherImpact, Impact: weatherImpact},
			},
		})
		totalOrders += qty
	}

	p := &domain.Prediction{
		PredictionFor:         date,
		Hour:                  targetHour,
		TargetAt:              domain.TargetTime(date, targetHour),
		Items:                 items,
		TotalPredictedOrders:  totalOrders,
		TotalPredictedRevenue: predictedRevenue(buckets, totalOrders),
		Weather:               weather,
		CreatedAt:             f.opts.now(),
	}
	if err := f.predictions.Create(ctx, p); err != nil {
		f.opts.Metrics.RecordPredictionFailure("store")
		return nil, domain.StoreError("create prediction", err)
	}
	f.opts.Metrics.RecordPrediction()

	if f.cache != nil {
		if err := f.cache.Invalidate(ctx); err != nil {
			f.opts.Logger.WarnContext(ctx, "failed to invalidate upcoming cache", "error", err)
		}
		if err := f.cache.PublishGenerated(ctx, p); err != nil {
			f.opts.Logger.WarnContext(ctx, "failed to publish prediction", "error", err)
		}
	}
	publishEvent(ctx, f.publisher, f.opts.Logger, domain.PredictionGeneratedEvent{
		BaseEvent:             domain.BaseEvent{Timestamp: p.CreatedAt},
		PredictionID:          p.ID,
		PredictionFor:         date.Format(domain.DateLayout),
		Hour:                  targetHour,
		ItemCount:             len(items),
		TotalPredictedOrders:  totalOrders,
		TotalPredictedRevenue: p.TotalPredictedRevenue.StringFixed(2),
		WeatherCondition:      weather.Condition,
		Temperature:           weather.Temperature,
	})

	f.opts.Logger.InfoContext(ctx, "prediction generated",
		"prediction_for", date.Format(domain.DateLayout),
		"hour", targetHour,
		"matched_buckets", len(buckets),
		"items", len(items),
		"total_predicted_orders", totalOrders,
	)
	return p, nil
}

// collectSeries 菜品按在桶中首次出现的顺序排列，序列只包含出现过该菜品的桶
func collectSeries(buckets []*domain.HistoricalBucket) []*itemSeries {
	var ordered []*itemSeries
	index := make(map[string]*itemSeries)
	for _, b := range buckets {
		for _, it := range b.ItemTotals {
			s, ok := index[it.MenuItemID]
			if !ok {
				s = &itemSeries{menuItemID: it.MenuItemID}
				index[it.MenuItemID] = s
				ordered = append(ordered, s)
			}
			s.quantities = append(s.quantities, float64(it.Quantity))
		}
	}
	return ordered
}

// predictedRevenue avgRevenue × (totalOrders / avgOrderCount)。
// 两个平均值的桶数约掉，等价于 sumRevenue × totalOrders / sumOrderCount。
func predictedRevenue(buckets []*domain.HistoricalBucket, totalOrders int64) decimal.Decimal {
	sumRevenue := decimal.Zero
	var sumOrders int64
	for _, b := range buckets {
		sumRevenue = sumRevenue.Add(b.TotalRevenue)
		sumOrders += b.TotalOrderCount
	}
	if sumOrders == 0 {
		return decimal.Zero
	}
	return sumRevenue.Mul(decimal.NewFromInt(totalOrders)).Div(decimal.NewFromInt(sumOrders)).Round(2)
}

// ValidateTarget 校验预测目标
func ValidateTarget(date time.Time, hour int) error {
	if date.IsZero() {
		return &domain.ValidationError{Field: "date", Reason: "is required"}
	}
	if hour < 0 || hour > 23 {
		return &domain.ValidationError{Field: "hour", Reason: fmt.Sprintf("%d out of range 0-23", hour)}
	}
	return nil
}
