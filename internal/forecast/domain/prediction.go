package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Factor 预测解释因子
type Factor struct {
	Name   string  `json:"name"`
	Impact float64 `json:"impact"`
}

// PredictedItem 单个菜品的预测
type PredictedItem struct {
	MenuItemID        string   `json:"menu_item_id"`
	PredictedQuantity int64    `json:"predicted_quantity"`
	Confidence        float64  `json:"confidence"`
	Factors           []Factor `json:"factors"`
}

// Prediction 某日某小时的需求预测。创建后不可变，唯一例外是 Accuracy 的一次性写入。
type Prediction struct {
	ID uint
	// 目标日期，时分秒为 0
	PredictionFor time.Time
	Hour          int
	// 目标小时的起点 = PredictionFor + Hour
	TargetAt              time.Time
	Items                 []PredictedItem
	TotalPredictedOrders  int64
	TotalPredictedRevenue decimal.Decimal
	// 未评分时为 nil
	Accuracy  *float64
	Weather   Weather
	CreatedAt time.Time
}

// TargetTime 计算 (date, hour) 对应的小时起点
func TargetTime(date time.Time, hour int) time.Time {
	return StartOfDay(date).Add(time.Duration(hour) * time.Hour)
}

// Window 返回实际订单的统计窗口 [target, target+1h)
func (p *Prediction) Window() (time.Time, time.Time) {
	start := TargetTime(p.PredictionFor, p.Hour)
	return start, start.Add(time.Hour)
}

// IsScored 是否已评分
func (p *Prediction) IsScored() bool {
	return p.Accuracy != nil
}

// SetAccuracy 写入准确率，只允许一次
func (p *Prediction) SetAccuracy(accuracy float64) error {
	if p.Accuracy != nil {
		return ErrAlreadyScored
	}
	p.Accuracy = &accuracy
	return nil
}

// ItemAccuracy max(0, 1 - |predicted-actual| / max(predicted, actual, 1))
func ItemAccuracy(predicted, actual int64) float64 {
	denom := math.Max(math.Max(float64(predicted), float64(actual)), 1)
	return math.Max(0, 1-math.Abs(float64(predicted-actual))/denom)
}

// ComputeAccuracy 按预测的菜品列表求平均准确率。
// 列表为空时：实际也没有销量记 1，否则记 0。
func (p *Prediction) ComputeAccuracy(actual map[string]int64) float64 {
	if len(p.Items) == 0 {
		for _, q := range actual {
			if q > 0 {
				return 0
			}
		}
		return 1
	}
	var sum float64
	for _, it := range p.Items {
		sum += ItemAccuracy(it.PredictedQuantity, actual[it.MenuItemID])
	}
	return sum / float64(len(p.Items))
}

// ActualQuantities 汇总订单中各菜品的实际数量
func ActualQuantities(orders []*Order) map[string]int64 {
	actual := make(map[string]int64)
	for _, o := range orders {
		for _, line := range o.Lines {
			actual[line.MenuItemID] += line.Quantity
		}
	}
	return actual
}
