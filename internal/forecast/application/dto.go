package application

import (
	"time"

	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
)

// GeneratePredictionRequest 生成预测请求
type GeneratePredictionRequest struct {
	Date string `json:"date" binding:"required"`
	Hour *int   `json:"hour" binding:"required"`
}

// PredictedItemDTO 菜品预测
type PredictedItemDTO struct {
	MenuItemID        string          `json:"menu_item_id"`
	Name              string          `json:"name,omitempty"`
	Category          string          `json:"category,omitempty"`
	PredictedQuantity int64           `json:"predicted_quantity"`
	Confidence        float64         `json:"confidence"`
	Factors           []domain.Factor `json:"factors"`
}

// PredictionDTO 预测
type PredictionDTO struct {
	ID                    uint               `json:"id"`
	PredictionFor         string             `json:"prediction_for"`
	Hour                  int                `json:"hour"`
	TargetAt              time.Time          `json:"target_at"`
	Items                 []PredictedItemDTO `json:"items"`
	TotalPredictedOrders  int64              `json:"total_predicted_orders"`
	TotalPredictedRevenue string             `json:"total_predicted_revenue"`
	Accuracy              *float64           `json:"accuracy,omitempty"`
	Weather               domain.Weather     `json:"weather"`
	CreatedAt             time.Time          `json:"created_at"`
}

// HourAccuracyDTO 按小时的平均准确率
type HourAccuracyDTO struct {
	Hour     int     `json:"hour"`
	Accuracy float64 `json:"accuracy"`
	Count    int     `json:"count"`
}

// AccuracySummaryDTO 准确率汇总
type AccuracySummaryDTO struct {
	OverallAccuracy float64           `json:"overall_accuracy"`
	ScoredCount     int               `json:"scored_count"`
	ByHour          []HourAccuracyDTO `json:"by_hour"`
	Recent          []*PredictionDTO  `json:"recent"`
}

func toPredictionDTO(p *domain.Prediction) *PredictionDTO {
	dto := &PredictionDTO{
		ID:                    p.ID,
		PredictionFor:         p.PredictionFor.Format(domain.DateLayout),
		Hour:                  p.Hour,
		TargetAt:              p.TargetAt,
		Items:                 make([]PredictedItemDTO, len(p.Items)),
		TotalPredictedOrders:  p.TotalPredictedOrders,
		TotalPredictedRevenue: p.TotalPredictedRevenue.StringFixed(2),
		Accuracy:              p.Accuracy,
		Weather:               p.Weather,
		CreatedAt:             p.CreatedAt,
	}
	for i, it := range p.Items {
		dto.Items[i] = PredictedItemDTO{
			MenuItemID:        it.MenuItemID,
			PredictedQuantity: it.PredictedQuantity,
			Confidence:        it.Confidence,
			Factors:           it.Factors,
		}
	}
	return dto
}
