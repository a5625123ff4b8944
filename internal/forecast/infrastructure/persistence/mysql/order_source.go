package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
	"gorm.io/gorm"
)

// OrderSource 点餐系统订单/菜品表的只读视图
type OrderSource struct {
	db *gorm.DB
}

// NewOrderSource 创建订单读源，同时实现 domain.MenuItemSource
func NewOrderSource(db *gorm.DB) *OrderSource {
	return &OrderSource{db: db}
}

func (s *OrderSource) ListOrdersBetween(ctx context.Context, from, to time.Time, statuses ...domain.OrderStatus) ([]*domain.Order, error) {
	q := s.db.WithContext(ctx).
		Preload("Items").
		Where("created_at >= ? AND created_at < ?", from, to)
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, st := range statuses {
			values[i] = string(st)
		}
		q = q.Where("status IN ?", values)
	}

	var models []*OrderModel
	if err := q.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	orders := make([]*domain.Order, len(models))
	for i, m := range models {
		o := &domain.Order{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			Status:    domain.OrderStatus(m.Status),
			Lines:     make([]domain.OrderLine, len(m.Items)),
		}
		for j, it := range m.Items {
			o.Lines[j] = domain.OrderLine{
				MenuItemID: it.MenuItemID,
				Quantity:   it.Quantity,
				UnitPrice:  it.UnitPrice,
			}
		}
		orders[i] = o
	}
	return orders, nil
}

func (s *OrderSource) CountOrdersSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&OrderModel{}).Where("created_at > ?", since).Count(&n).Error
	return n, err
}

func (s *OrderSource) GetMenuItem(ctx context.Context, id string) (*domain.MenuItem, error) {
	var m MenuItemModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMenuItemNotFound
		}
		return nil, err
	}
	return &domain.MenuItem{ID: m.ID, Name: m.Name, Category: m.Category, Price: m.Price}, nil
}
