package mysql

import (
	"context"
	"time"

	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
	pkgdb "github.com/wyfcoding/menuforecast/pkg/db"
	"gorm.io/gorm"
)

const upsertBatchSize = 200

// bucketRepository 历史桶仓储实现
type bucketRepository struct {
	db  *gorm.DB
	loc *time.Location
}

// NewBucketRepository 创建历史桶仓储
func NewBucketRepository(db *gorm.DB, loc *time.Location) domain.BucketRepository {
	return &bucketRepository{db: db, loc: loc}
}

// Upsert 按 (bucket_date, hour) 覆盖写入
func (r *bucketRepository) Upsert(ctx context.Context, buckets []*domain.HistoricalBucket) error {
	if len(buckets) == 0 {
		return nil
	}
	models := make([]*HistoricalBucketModel, len(buckets))
	for i, b := range buckets {
		models[i] = toBucketModel(b)
	}
	onConflict := pkgdb.UpsertClause(
		[]string{"bucket_date", "hour"},
		[]string{
			"day_of_week", "temperature", "weather_condition", "humidity",
			"is_holiday", "special_event", "item_totals",
			"total_order_count", "total_revenue", "updated_at",
		},
	)
	return r.db.WithContext(ctx).Clauses(onConflict).CreateInBatches(models, upsertBatchSize).Error
}

func (r *bucketRepository) FindByDayOfWeekAndHour(ctx context.Context, dow time.Weekday, hour int) ([]*domain.HistoricalBucket, error) {
	var models []*HistoricalBucketModel
	if err := r.db.WithContext(ctx).
		Where("day_of_week = ? AND hour = ?", int(dow), hour).
		Order("bucket_date ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.HistoricalBucket, 0, len(models))
	for _, m := range models {
		b, err := toBucket(m, r.loc)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *bucketRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&HistoricalBucketModel{}).Count(&n).Error
	return n, err
}
