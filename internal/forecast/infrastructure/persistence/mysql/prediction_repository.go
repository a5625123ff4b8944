package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
	pkgdb "github.com/wyfcoding/menuforecast/pkg/db"
	"gorm.io/gorm"
)

// predictionRepository 预测仓储实现
type predictionRepository struct {
	db  *gorm.DB
	loc *time.Location
}

// NewPredictionRepository 创建预测仓储
func NewPredictionRepository(db *gorm.DB, loc *time.Location) domain.PredictionRepository {
	return &predictionRepository{db: db, loc: loc}
}

func (r *predictionRepository) Create(ctx context.Context, p *domain.Prediction) error {
	model := toPredictionModel(p)
	if !p.CreatedAt.IsZero() {
		model.CreatedAt = p.CreatedAt
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	p.ID = model.ID
	p.CreatedAt = model.CreatedAt
	return nil
}

func (r *predictionRepository) Exists(ctx context.Context, date time.Time, hour int) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&PredictionModel{}).
		Where("prediction_for = ? AND hour = ?", date.Format(domain.DateLayout), hour).
		Count(&n).Error
	return n > 0, err
}

// Get 同一目标存在多条时返回最早的一条
func (r *predictionRepository) Get(ctx context.Context, date time.Time, hour int) (*domain.Prediction, error) {
	var model PredictionModel
	err := r.db.WithContext(ctx).
		Where("prediction_for = ? AND hour = ?", date.Format(domain.DateLayout), hour).
		Order("id ASC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPredictionNotFound
		}
		return nil, err
	}
	return toPrediction(&model, r.loc)
}

func (r *predictionRepository) ListBetween(ctx context.Context, from, to time.Time) ([]*domain.Prediction, error) {
	return r.find(r.db.WithContext(ctx).
		Where("target_at >= ? AND target_at < ?", from, to).
		Order("target_at ASC, id ASC"))
}

func (r *predictionRepository) ListUnscored(ctx context.Context, from, to time.Time, limit int) ([]*domain.Prediction, error) {
	return r.find(r.db.WithContext(ctx).
		Where("accuracy IS NULL AND target_at BETWEEN ? AND ?", from, to).
		Order("target_at ASC, id ASC").
		Limit(limit))
}

// SetAccuracy 条件更新保证 accuracy 只写一次
func (r *predictionRepository) SetAccuracy(ctx context.Context, id uint, accuracy float64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&PredictionModel{}).
		Where("id = ? AND accuracy IS NULL", id).
		Update("accuracy", accuracy)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	var n int64
	if err := r.db.WithContext(ctx).Model(&PredictionModel{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	if n == 0 {
		return false, domain.ErrPredictionNotFound
	}
	return false, nil
}

func (r *predictionRepository) ListScored(ctx context.Context, limit int) ([]*domain.Prediction, error) {
	q := r.db.WithContext(ctx).
		Where("accuracy IS NOT NULL").
		Order("target_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return r.find(q)
}

// DeleteBefore 物理删除
func (r *predictionRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Unscoped().
		Where("prediction_for < ?", cutoff.Format(domain.DateLayout)).
		Delete(&PredictionModel{})
	return result.RowsAffected, result.Error
}

func (r *predictionRepository) find(q *gorm.DB) ([]*domain.Prediction, error) {
	var models []*PredictionModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Prediction, 0, len(models))
	for _, m := range models {
		p, err := toPrediction(m, r.loc)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// trainingMetaRepository 训练元数据仓储实现
type trainingMetaRepository struct {
	db *gorm.DB
}

// NewTrainingMetaRepository 创建训练元数据仓储
func NewTrainingMetaRepository(db *gorm.DB) domain.TrainingMetaRepository {
	return &trainingMetaRepository{db: db}
}

const trainingMetaID = 1

func (r *trainingMetaRepository) Get(ctx context.Context) (*domain.TrainingMeta, error) {
	var model TrainingMetaModel
	if err := r.db.WithContext(ctx).Where("id = ?", trainingMetaID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.TrainingMeta{LastTrainingAt: model.LastTrainingAt, UpdatedAt: model.UpdatedAt}, nil
}

func (r *trainingMetaRepository) Save(ctx context.Context, meta *domain.TrainingMeta) error {
	model := &TrainingMetaModel{
		ID:             trainingMetaID,
		LastTrainingAt: meta.LastTrainingAt,
		UpdatedAt:      meta.UpdatedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(pkgdb.UpsertClause([]string{"id"}, []string{"last_training_at", "updated_at"})).
		Create(model).Error
}
