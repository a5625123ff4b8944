package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
)

// OrderStore 订单与菜品的内存只读视图，Add/AddMenuItem 用于装载数据
type OrderStore struct {
	mu     sync.RWMutex
	orders []*domain.Order
	menu   map[string]*domain.MenuItem
}

// NewOrderStore 创建内存订单视图
func NewOrderStore() *OrderStore {
	return &OrderStore{menu: make(map[string]*domain.MenuItem)}
}

// Add 追加订单
func (s *OrderStore) Add(orders ...*domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, orders...)
	sort.SliceStable(s.orders, func(i, j int) bool { return s.orders[i].CreatedAt.Before(s.orders[j].CreatedAt) })
}

// AddMenuItem 写入菜品
func (s *OrderStore) AddMenuItem(items ...*domain.MenuItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		c := *it
		s.menu[it.ID] = &c
	}
}

func (s *OrderStore) ListOrdersBetween(_ context.Context, from, to time.Time, statuses ...domain.OrderStatus) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Order
	for _, o := range s.orders {
		if o.CreatedAt.Before(from) || !o.CreatedAt.Before(to) {
			continue
		}
		if len(statuses) > 0 && !hasStatus(statuses, o.Status) {
			continue
		}
		c := *o
		c.Lines = append([]domain.OrderLine(nil), o.Lines...)
		out = append(out, &c)
	}
	return out, nil
}

func (s *OrderStore) CountOrdersSince(_ context.Context, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, o := range s.orders {
		if o.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (s *OrderStore) GetMenuItem(_ context.Context, id string) (*domain.MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.menu[id]
	if !ok {
		return nil, domain.ErrMenuItemNotFound
	}
	c := *it
	return &c, nil
}

func hasStatus(statuses []domain.OrderStatus, s domain.OrderStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}
