// Package memory 内存版仓储，database.driver=memory 时使用，也用于测试
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
)

// BucketRepository 历史桶内存仓储
type BucketRepository struct {
	mu      sync.RWMutex
	seq     uint
	buckets map[domain.BucketKey]*domain.HistoricalBucket
}

// NewBucketRepository 创建历史桶内存仓储
func NewBucketRepository() *BucketRepository {
	return &BucketRepository{buckets: make(map[domain.BucketKey]*domain.HistoricalBucket)}
}

func (r *BucketRepository) Upsert(_ context.Context, buckets []*domain.HistoricalBucket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range buckets {
		c := copyBucket(b)
		if old, ok := r.buckets[c.Key()]; ok {
			c.ID = old.ID
		} else {
			r.seq++
			c.ID = r.seq
		}
		b.ID = c.ID
		r.buckets[c.Key()] = c
	}
	return nil
}

func (r *BucketRepository) FindByDayOfWeekAndHour(_ context.Context, dow time.Weekday, hour int) ([]*domain.HistoricalBucket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.HistoricalBucket
	for _, b := range r.buckets {
		if b.DayOfWeek == dow && b.Hour == hour {
			out = append(out, copyBucket(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *BucketRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.buckets)), nil
}

// All 返回全部桶的快照，按 (日期, 小时) 排序
func (r *BucketRepository) All() []*domain.HistoricalBucket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.HistoricalBucket, 0, len(r.buckets))
	for _, b := range r.buckets {
		out = append(out, copyBucket(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Hour < out[j].Hour
	})
	return out
}

// PredictionRepository 预测内存仓储
type PredictionRepository struct {
	mu          sync.RWMutex
	seq         uint
	predictions map[uint]*domain.Prediction
	now         func() time.Time
}

// NewPredictionRepository 创建预测内存仓储
func NewPredictionRepository() *PredictionRepository {
	return &PredictionRepository{
		predictions: make(map[uint]*domain.Prediction),
		now:         time.Now,
	}
}

func (r *PredictionRepository) Create(_ context.Context, p *domain.Prediction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	p.ID = r.seq
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now()
	}
	r.predictions[p.ID] = copyPrediction(p)
	return nil
}

func (r *PredictionRepository) Exists(ctx context.Context, date time.Time, hour int) (bool, error) {
	_, err := r.Get(ctx, date, hour)
	if err == domain.ErrPredictionNotFound {
		return false, nil
	}
	return err == nil, err
}

// Get 同一目标存在多条时返回最早创建的一条
func (r *PredictionRepository) Get(_ context.Context, date time.Time, hour int) (*domain.Prediction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	target := domain.TargetTime(date, hour)
	var found *domain.Prediction
	for _, p := range r.predictions {
		if p.TargetAt.Equal(target) && (found == nil || p.ID < found.ID) {
			found = p
		}
	}
	if found == nil {
		return nil, domain.ErrPredictionNotFound
	}
	return copyPrediction(found), nil
}

func (r *PredictionRepository) ListBetween(_ context.Context, from, to time.Time) ([]*domain.Prediction, error) {
	return r.filter(func(p *domain.Prediction) bool {
		return !p.TargetAt.Before(from) && p.TargetAt.Before(to)
	}, byTargetAsc, 0), nil
}

func (r *PredictionRepository) ListUnscored(_ context.Context, from, to time.Time, limit int) ([]*domain.Prediction, error) {
	return r.filter(func(p *domain.Prediction) bool {
		return p.Accuracy == nil && !p.TargetAt.Before(from) && !p.TargetAt.After(to)
	}, byTargetAsc, limit), nil
}

func (r *PredictionRepository) SetAccuracy(_ context.Context, id uint, accuracy float64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.predictions[id]
	if !ok {
		return false, domain.ErrPredictionNotFound
	}
	if p.SetAccuracy(accuracy) != nil {
		return false, nil
	}
	return true, nil
}

func (r *PredictionRepository) ListScored(_ context.Context, limit int) ([]*domain.Prediction, error) {
	return r.filter(func(p *domain.Prediction) bool {
		return p.Accuracy != nil
	}, byTargetDesc, limit), nil
}

func (r *PredictionRepository) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, p := range r.predictions {
		if p.PredictionFor.Before(cutoff) {
			delete(r.predictions, id)
			n++
		}
	}
	return n, nil
}

func (r *PredictionRepository) filter(keep func(*domain.Prediction) bool, less func(a, b *domain.Prediction) bool, limit int) []*domain.Prediction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Prediction
	for _, p := range r.predictions {
		if keep(p) {
			out = append(out, copyPrediction(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func byTargetAsc(a, b *domain.Prediction) bool {
	if a.TargetAt.Equal(b.TargetAt) {
		return a.ID < b.ID
	}
	return a.TargetAt.Before(b.TargetAt)
}

func byTargetDesc(a, b *domain.Prediction) bool {
	if a.TargetAt.Equal(b.TargetAt) {
		return a.ID > b.ID
	}
	return a.TargetAt.After(b.TargetAt)
}

// TrainingMetaRepository 训练元数据内存仓储
type TrainingMetaRepository struct {
	mu   sync.RWMutex
	meta *domain.TrainingMeta
}

// NewTrainingMetaRepository 创建训练元数据内存仓储
func NewTrainingMetaRepository() *TrainingMetaRepository {
	return &TrainingMetaRepository{}
}

func (r *TrainingMetaRepository) Get(_ context.Context) (*domain.TrainingMeta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.meta == nil {
		return nil, nil
	}
	m := *r.meta
	return &m, nil
}

func (r *TrainingMetaRepository) Save(_ context.Context, meta *domain.TrainingMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := *meta
	r.meta = &m
	return nil
}

func copyBucket(b *domain.HistoricalBucket) *domain.HistoricalBucket {
	c := *b
	c.ItemTotals = append([]domain.ItemTotal(nil), b.ItemTotals...)
	// 复制后索引重建
	return domain.RebuildBucket(&c)
}

func copyPrediction(p *domain.Prediction) *domain.Prediction {
	c := *p
	c.Items = make([]domain.PredictedItem, len(p.Items))
	for i, it := range p.Items {
		it.Factors = append([]domain.Factor(nil), it.Factors...)
		c.Items[i] = it
	}
	if p.Accuracy != nil {
		acc := *p.Accuracy
		c.Accuracy = &acc
	}
	return &c
}
