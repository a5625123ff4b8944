package application

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
	"github.com/wyfcoding/menuforecast/pkg/utils"
	"gonum.org/v1/gonum/stat"
)

// QueryService 预测查询服务
type QueryService struct {
	predictions domain.PredictionRepository
	menu        domain.MenuItemSource
	cache       domain.PredictionCache
	// 即将到来窗口长度
	window time.Duration
	opts   Options
}

// NewQueryService 创建查询服务，menu 与 cache 可为 nil
func NewQueryService(
	predictions domain.PredictionRepository,
	menu domain.MenuItemSource,
	cache domain.PredictionCache,
	window time.Duration,
	opts Options,
) *QueryService {
	return &QueryService{
		predictions: predictions,
		menu:        menu,
		cache:       cache,
		window:      window,
		opts:        opts.withDefaults(),
	}
}

// GetPrediction 查询 (date, hour) 的预测并补全菜品名称
func (s *QueryService) GetPrediction(ctx context.Context, date time.Time, hour int) (*PredictionDTO, error) {
	if err := ValidateTarget(date, hour); err != nil {
		return nil, err
	}
	p, err := s.predictions.Get(ctx, domain.DayIn(date, s.opts.Location), hour)
	if err != nil {
		return nil, domain.StoreError("get prediction", err)
	}
	dto := toPredictionDTO(p)
	s.enrich(ctx, dto)
	return dto, nil
}

// ListUpcoming 返回目标时间在 [now, now+window) 的预测
func (s *QueryService) ListUpcoming(ctx context.Context) ([]*PredictionDTO, error) {
	now := s.opts.now()
	// 按整点缓存 [hour, hour+window+1h)，再按当前时间过滤
	from := utils.StartOfHour(now)
	to := from.Add(s.window + time.Hour)

	var preds []*domain.Prediction
	hit := false
	if s.cache != nil {
		cached, ok, err := s.cache.GetUpcoming(ctx, from)
		if err != nil {
			s.opts.Logger.WarnContext(ctx, "upcoming cache read failed", "error", err)
		}
		preds, hit = cached, ok
	}
	if !hit {
		var err error
		preds, err = s.predictions.ListBetween(ctx, from, to)
		if err != nil {
			return nil, domain.StoreError("list upcoming predictions", err)
		}
		if s.cache != nil {
			if err := s.cache.SetUpcoming(ctx, from, preds); err != nil {
				s.opts.Logger.WarnContext(ctx, "upcoming cache write failed", "error", err)
			}
		}
	}

	end := now.Add(s.window)
	out := make([]*PredictionDTO, 0, len(preds))
	for _, p := range preds {
		if p.TargetAt.Before(now) || !p.TargetAt.Before(end) {
			continue
		}
		out = append(out, toPredictionDTO(p))
	}
	return out, nil
}

// CountUpcoming 直接从存储统计 [now, now+window) 的预测数
func (s *QueryService) CountUpcoming(ctx context.Context) (int, error) {
	now := s.opts.now()
	preds, err := s.predictions.ListBetween(ctx, now, now.Add(s.window))
	if err != nil {
		return 0, domain.StoreError("count upcoming predictions", err)
	}
	return len(preds), nil
}

// AccuracySummary 总体平均准确率、按小时平均准确率与最近 recent 条已评分预测
func (s *QueryService) AccuracySummary(ctx context.Context, recent int) (*AccuracySummaryDTO, error) {
	if recent <= 0 {
		recent = 10
	}
	scored, err := s.predictions.ListScored(ctx, 0)
	if err != nil {
		return nil, domain.StoreError("list scored predictions", err)
	}

	summary := &AccuracySummaryDTO{
		ScoredCount: len(scored),
		ByHour:      []HourAccuracyDTO{},
		Recent:      make([]*PredictionDTO, 0, recent),
	}
	if len(scored) == 0 {
		return summary, nil
	}

	all := make([]float64, 0, len(scored))
	byHour := make(map[int][]float64)
	for _, p := range scored {
		acc := utils.DerefFloat64(p.Accuracy)
		all = append(all, acc)
		byHour[p.Hour] = append(byHour[p.Hour], acc)
	}
	summary.OverallAccuracy = stat.Mean(all, nil)
	for hour, values := range byHour {
		summary.ByHour = append(summary.ByHour, HourAccuracyDTO{
			Hour:     hour,
			Accuracy: stat.Mean(values, nil),
			Count:    len(values),
		})
	}
	sort.Slice(summary.ByHour, func(i, j int) bool { return summary.ByHour[i].Hour < summary.ByHour[j].Hour })

	for i := 0; i < len(scored) && i < recent; i++ {
		summary.Recent = append(summary.Recent, toPredictionDTO(scored[i]))
	}
	return summary, nil
}

// enrich 用菜品信息补全名称与分类，查不到的保持原样
func (s *QueryService) enrich(ctx context.Context, dto *PredictionDTO) {
	if s.menu == nil {
		return
	}
	for i := range dto.Items {
		item, err := s.menu.GetMenuItem(ctx, dto.Items[i].MenuItemID)
		if err != nil {
			if !errors.Is(err, domain.ErrMenuItemNotFound) {
				s.opts.Logger.WarnContext(ctx, "menu item lookup failed", "menu_item_id", dto.Items[i].MenuItemID, "error", err)
			}
			continue
		}
		dto.Items[i].Name = item.Name
		dto.Items[i].Category = item.Category
	}
}
