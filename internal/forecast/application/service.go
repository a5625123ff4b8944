package application

import (
	"context"
	"time"

	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
)

// ForecastService 预测模块对外的触发面：训练、生成、查询
type ForecastService struct {
	aggregator   *Aggregator
	forecaster   *Forecaster
	query        *QueryService
	lookbackDays int
	loc          *time.Location
}

// NewForecastService 创建预测应用服务
func NewForecastService(
	aggregator *Aggregator,
	forecaster *Forecaster,
	query *QueryService,
	lookbackDays int,
	loc *time.Location,
) *ForecastService {
	return &ForecastService{
		aggregator:   aggregator,
		forecaster:   forecaster,
		query:        query,
		lookbackDays: lookbackDays,
		loc:          loc,
	}
}

// Train 按配置的回溯天数重算历史桶，返回桶数
func (s *ForecastService) Train(ctx context.Context) (int, error) {
	return s.aggregator.CollectHistoricalData(ctx, s.lookbackDays)
}

// Generate 返回目标的预测；已存在时直接返回已有记录，created 为 false
func (s *ForecastService) Generate(ctx context.Context, date time.Time, hour int) (dto *PredictionDTO, created bool, err error) {
	if err := ValidateTarget(date, hour); err != nil {
		return nil, false, err
	}
	p, created, err := s.forecaster.EnsurePrediction(ctx, domain.DayIn(date, s.loc), hour)
	if err != nil {
		return nil, false, err
	}
	return toPredictionDTO(p), created, nil
}

// GetPrediction 查询预测
func (s *ForecastService) GetPrediction(ctx context.Context, date time.Time, hour int) (*PredictionDTO, error) {
	return s.query.GetPrediction(ctx, date, hour)
}

// ListUpcoming 即将到来的预测
func (s *ForecastService) ListUpcoming(ctx context.Context) ([]*PredictionDTO, error) {
	return s.query.ListUpcoming(ctx)
}

// AccuracySummary 准确率汇总
func (s *ForecastService) AccuracySummary(ctx context.Context, recent int) (*AccuracySummaryDTO, error) {
	return s.query.AccuracySummary(ctx, recent)
}

// Location 业务时区
func (s *ForecastService) Location() *time.Location {
	return s.loc
}
