package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusServed    OrderStatus = "served"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// FulfilledStatuses 视为已实际消费的订单状态，准确率只统计这些订单
var FulfilledStatuses = []OrderStatus{
	OrderStatusDelivered,
	OrderStatusServed,
	OrderStatusCompleted,
}

// OrderLine 订单行
type OrderLine struct {
	MenuItemID string
	Quantity   int64
	UnitPrice  decimal.Decimal
}

// Order 历史订单（只读视图，订单本身由点餐系统维护）
type Order struct {
	ID        string
	CreatedAt time.Time
	Status    OrderStatus
	Lines     []OrderLine
}

// MenuItem 菜品（仅用于展示补全，不参与预测计算）
type MenuItem struct {
	ID       string
	Name     string
	Category string
	Price    decimal.Decimal
}

// OrderSource 订单读接口
type OrderSource interface {
	// ListOrdersBetween 查询 created_at ∈ [from, to) 的订单；statuses 为空表示不限状态
	ListOrdersBetween(ctx context.Context, from, to time.Time, statuses ...OrderStatus) ([]*Order, error)
	// CountOrdersSince 统计 created_at > since 的订单数
	CountOrdersSince(ctx context.Context, since time.Time) (int64, error)
}

// MenuItemSource 菜品读接口
type MenuItemSource interface {
	// GetMenuItem 不存在时返回 ErrMenuItemNotFound
	GetMenuItem(ctx context.Context, id string) (*MenuItem, error)
}
