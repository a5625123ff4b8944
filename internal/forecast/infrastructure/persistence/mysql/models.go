// Package mysql 基于 GORM 的仓储实现，MySQL 与 PostgreSQL 通用
package mysql

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// HistoricalBucketModel 历史桶表
type HistoricalBucketModel struct {
	gorm.Model
	// 日期 YYYY-MM-DD，与 hour 组成唯一键
	BucketDate string `gorm:"column:bucket_date;type:varchar(10);not null;uniqueIndex:uk_bucket_date_hour,priority:1"`
	Hour       int    `gorm:"column:hour;not null;uniqueIndex:uk_bucket_date_hour,priority:2;index:idx_bucket_dow_hour,priority:2"`
	DayOfWeek  int    `gorm:"column:day_of_week;not null;index:idx_bucket_dow_hour,priority:1"`
	// 天气快照
	Temperature      float64 `gorm:"column:temperature"`
	WeatherCondition string  `gorm:"column:weather_condition;type:varchar(16)"`
	Humidity         float64 `gorm:"column:humidity"`
	IsHoliday        bool    `gorm:"column:is_holiday;not null;default:false"`
	SpecialEvent     string  `gorm:"column:special_event;type:varchar(64)"`
	// 菜品累计，按首次出现顺序
	ItemTotals      datatypes.JSONSlice[domain.ItemTotal] `gorm:"column:item_totals"`
	TotalOrderCount int64                                 `gorm:"column:total_order_count;not null"`
	TotalRevenue    decimal.Decimal                       `gorm:"column:total_revenue;type:decimal(20,2);not null"`
}

// TableName 指定表名
func (HistoricalBucketModel) TableName() string {
	return "forecast_historical_buckets"
}

// PredictionModel 预测表
type PredictionModel struct {
	gorm.Model
	// 每个目标至多一条，多实例并发生成时由唯一键兜底
	PredictionFor string    `gorm:"column:prediction_for;type:varchar(10);not null;uniqueIndex:uk_prediction_target,priority:1"`
	Hour          int       `gorm:"column:hour;not null;uniqueIndex:uk_prediction_target,priority:2"`
	TargetAt      time.Time `gorm:"column:target_at;not null;index"`
	// 菜品预测明细
	Items                 datatypes.JSONSlice[domain.PredictedItem] `gorm:"column:items"`
	TotalPredictedOrders  int64                                     `gorm:"column:total_predicted_orders;not null"`
	TotalPredictedRevenue decimal.Decimal                           `gorm:"column:total_predicted_revenue;type:decimal(20,2);not null"`
	// 未评分为 NULL
	Accuracy         *float64 `gorm:"column:accuracy"`
	Temperature      float64  `gorm:"column:temperature"`
	WeatherCondition string   `gorm:"column:weather_condition;type:varchar(16)"`
	Humidity         float64  `gorm:"column:humidity"`
}

// TableName 指定表名
func (PredictionModel) TableName() string {
	return "forecast_predictions"
}

// TrainingMetaModel 训练元数据表，只有 id=1 一行
type TrainingMetaModel struct {
	ID             uint      `gorm:"column:id;primaryKey"`
	LastTrainingAt time.Time `gorm:"column:last_training_at;not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

// TableName 指定表名
func (TrainingMetaModel) TableName() string {
	return "forecast_training_meta"
}

// 以下为点餐系统的表，本模块只读

// OrderModel 订单表
type OrderModel struct {
	ID        string           `gorm:"column:id;primaryKey;type:varchar(64)"`
	Status    string           `gorm:"column:status;type:varchar(20);index"`
	CreatedAt time.Time        `gorm:"column:created_at;index"`
	Items     []OrderItemModel `gorm:"foreignKey:OrderID"`
}

// TableName 指定表名
func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel 订单行表
type OrderItemModel struct {
	ID         uint            `gorm:"column:id;primaryKey"`
	OrderID    string          `gorm:"column:order_id;type:varchar(64);index"`
	MenuItemID string          `gorm:"column:menu_item_id;type:varchar(64)"`
	Quantity   int64           `gorm:"column:quantity"`
	UnitPrice  decimal.Decimal `gorm:"column:unit_price;type:decimal(10,2)"`
}

// TableName 指定表名
func (OrderItemModel) TableName() string {
	return "order_items"
}

// MenuItemModel 菜品表
type MenuItemModel struct {
	ID       string          `gorm:"column:id;primaryKey;type:varchar(64)"`
	Name     string          `gorm:"column:name;type:varchar(128)"`
	Category string          `gorm:"column:category;type:varchar(64)"`
	Price    decimal.Decimal `gorm:"column:price;type:decimal(10,2)"`
}

// TableName 指定表名
func (MenuItemModel) TableName() string {
	return "menu_items"
}

// AutoMigrate 创建预测模块自有的表；withReadModels 为 true 时一并创建订单/菜品表，仅用于本地环境
func AutoMigrate(db *gorm.DB, withReadModels bool) error {
	models := []any{&HistoricalBucketModel{}, &PredictionModel{}, &TrainingMetaModel{}}
	if withReadModels {
		models = append(models, &OrderModel{}, &OrderItemModel{}, &MenuItemModel{})
	}
	return db.AutoMigrate(models...)
}

func toBucketModel(b *domain.HistoricalBucket) *HistoricalBucketModel {
	return &HistoricalBucketModel{
		BucketDate:       b.Date.Format(domain.DateLayout),
		Hour:             b.Hour,
		DayOfWeek:        int(b.DayOfWeek),
		Temperature:      b.Weather.Temperature,
		WeatherCondition: b.Weather.Condition,
		Humidity:         b.Weather.Humidity,
		IsHoliday:        b.IsHoliday,
		SpecialEvent:     b.SpecialEvent,
		ItemTotals:       datatypes.NewJSONSlice(b.ItemTotals),
		TotalOrderCount:  b.TotalOrderCount,
		TotalRevenue:     b.TotalRevenue,
	}
}

func toBucket(m *HistoricalBucketModel, loc *time.Location) (*domain.HistoricalBucket, error) {
	date, err := time.ParseInLocation(domain.DateLayout, m.BucketDate, loc)
	if err != nil {
		return nil, err
	}
	return domain.RebuildBucket(&domain.HistoricalBucket{
		ID:        m.ID,
		Date:      date,
		Hour:      m.Hour,
		DayOfWeek: time.Weekday(m.DayOfWeek),
		Weather: domain.Weather{
			Temperature: m.Temperature,
			Condition:   m.WeatherCondition,
			Humidity:    m.Humidity,
		},
		IsHoliday:       m.IsHoliday,
		SpecialEvent:    m.SpecialEvent,
		ItemTotals:      []domain.ItemTotal(m.ItemTotals),
		TotalOrderCount: m.TotalOrderCount,
		TotalRevenue:    m.TotalRevenue,
	}), nil
}

func toPredictionModel(p *domain.Prediction) *PredictionModel {
	return &PredictionModel{
		PredictionFor:         p.PredictionFor.Format(domain.DateLayout),
		Hour:                  p.Hour,
		TargetAt:              p.TargetAt,
		Items:                 datatypes.NewJSONSlice(p.Items),
		TotalPredictedOrders:  p.TotalPredictedOrders,
		TotalPredictedRevenue: p.TotalPredictedRevenue,
		Accuracy:              p.Accuracy,
		Temperature:           p.Weather.Temperature,
		WeatherCondition:      p.Weather.Condition,
		Humidity:              p.Weather.Humidity,
	}
}

func toPrediction(m *PredictionModel, loc *time.Location) (*domain.Prediction, error) {
	date, err := time.ParseInLocation(domain.DateLayout, m.PredictionFor, loc)
	if err != nil {
		return nil, err
	}
	return &domain.Prediction{
		ID:                    m.ID,
		PredictionFor:         date,
		Hour:                  m.Hour,
		TargetAt:              m.TargetAt.In(loc),
		Items:                 []domain.PredictedItem(m.Items),
		TotalPredictedOrders:  m.TotalPredictedOrders,
		TotalPredictedRevenue: m.TotalPredictedRevenue,
		Accuracy:              m.Accuracy,
		Weather: domain.Weather{
			Temperature: m.Temperature,
			Condition:   m.WeatherCondition,
			Humidity:    m.Humidity,
		},
		CreatedAt: m.CreatedAt.In(loc),
	}, nil
}
