// 包 domain 菜品需求预测的领域模型：历史桶、预测、训练元数据及其端口
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout 日期格式
const DateLayout = "2006-01-02"

// ItemTotal 某菜品在一个桶内的累计
type ItemTotal struct {
	MenuItemID string          `json:"menu_item_id"`
	Quantity   int64           `json:"quantity"`
	Revenue    decimal.Decimal `json:"revenue"`
}

// BucketKey 桶的唯一键 (日期, 小时)
type BucketKey struct {
	Date string
	Hour int
}

// HistoricalBucket 某日某小时全部订单的聚合
type HistoricalBucket struct {
	ID uint
	// 日期，时分秒为 0
	Date      time.Time
	Hour      int
	DayOfWeek time.Weekday
	// 采集时的天气快照
	Weather      Weather
	IsHoliday    bool
	SpecialEvent string
	// 按首次出现顺序排列，MenuItemID 在桶内唯一
	ItemTotals      []ItemTotal
	TotalOrderCount int64
	TotalRevenue    decimal.Decimal

	index map[string]int
}

// NewHistoricalBucket 创建空桶，date 会被截断到当天 0 点
func NewHistoricalBucket(date time.Time, hour int) *HistoricalBucket {
	day := StartOfDay(date)
	return &HistoricalBucket{
		Date:         day,
		Hour:         hour,
		DayOfWeek:    day.Weekday(),
		TotalRevenue: decimal.Zero,
	}
}

// Key 返回桶的唯一键
func (b *HistoricalBucket) Key() BucketKey {
	return BucketKey{Date: b.Date.Format(DateLayout), Hour: b.Hour}
}

// AddOrder 累加一笔订单：订单数 +1，逐行累加营收与菜品数量
func (b *HistoricalBucket) AddOrder(o *Order) {
	b.TotalOrderCount++
	for _, line := range o.Lines {
		revenue := line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity))
		b.TotalRevenue = b.TotalRevenue.Add(revenue)

		if b.index == nil {
			b.reindex()
		}
		if i, ok := b.index[line.MenuItemID]; ok {
			b.ItemTotals[i].Quantity += line.Quantity
			b.ItemTotals[i].Revenue = b.ItemTotals[i].Revenue.Add(revenue)
			continue
		}
		b.index[line.MenuItemID] = len(b.ItemTotals)
		b.ItemTotals = append(b.ItemTotals, ItemTotal{
			MenuItemID: line.MenuItemID,
			Quantity:   line.Quantity,
			Revenue:    revenue,
		})
	}
}

// Quantity 返回菜品在桶内的数量以及是否出现过
func (b *HistoricalBucket) Quantity(menuItemID string) (int64, bool) {
	if b.index == nil {
		b.reindex()
	}
	i, ok := b.index[menuItemID]
	if !ok {
		return 0, false
	}
	return b.ItemTotals[i].Quantity, true
}

// RebuildBucket 丢弃内部索引，复制或从存储加载后调用，索引在下次访问时重建
func RebuildBucket(b *HistoricalBucket) *HistoricalBucket {
	b.index = nil
	return b
}

func (b *HistoricalBucket) reindex() {
	b.index = make(map[string]int, len(b.ItemTotals))
	for i, it := range b.ItemTotals {
		b.index[it.MenuItemID] = i
	}
}

// StartOfDay 截断到 t 所在时区当天 0 点
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayIn 保留调用方给出的年月日，在 loc 下取当天 0 点。
// 不做时区换算，UTC 的 2026-03-02 在任何 loc 下仍是 2026-03-02。
func DayIn(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
