package history

import (
	"context"
	"fmt"
	"time"

	"grocery_pos/internal/model"

	"gorm.io/gorm"
)

// OrderItem 订单详情中的一行。
type OrderItem struct {
	ProductName string `json:"product_name"`
	PriceCents  int64  `json:"price_cents"`
	Quantity    int64  `json:"quantity"`
}

// OrderDetail 订单 ⋈ 用户名 ⋈ 订单行 ⋈ 商品名 的聚合视图，
// 供历史界面与导出协作方只读消费。
type OrderDetail struct {
	OrderID    uint        `json:"order_id"`
	UserName   string      `json:"user_name"`
	TotalCents int64       `json:"total_cents"`
	CreatedAt  time.Time   `json:"created_at"`
	Items      []OrderItem `json:"items"`
}

// Aggregator 从规范化表重建销售历史。
type Aggregator struct {
	db *gorm.DB
}

func NewAggregator(db *gorm.DB) *Aggregator {
	return &Aggregator{db: db}
}

// joinedRow 是四表 JOIN 的展开行，每个订单行一条。
type joinedRow struct {
	OrderID         uint
	TotalCents      int64
	CreatedAt       time.Time
	UserName        string
	ProductName     string
	Quantity        int64
	PriceAtPurchase int64
}

// ListOrders 返回全部订单详情，最新在前。
// 一次 JOIN 查询取回展开行，再按 order_id 收拢成组：
// 首次出现的行填充组头，后续行只追加 items。
func (a *Aggregator) ListOrders(ctx context.Context) ([]OrderDetail, error) {
	var rows []joinedRow
	err := a.db.WithContext(ctx).Raw(`
		SELECT
			o.id AS order_id,
			o.total_cents,
			o.created_at,
			u.name AS user_name,
			p.name AS product_name,
			ol.quantity,
			ol.price_at_purchase_cents AS price_at_purchase
		FROM orders o
		JOIN users u ON o.user_id = u.id
		JOIN order_lines ol ON o.id = ol.order_id
		JOIN products p ON ol.product_id = p.id
		ORDER BY o.created_at DESC, o.id DESC
	`).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	details := make([]OrderDetail, 0, len(rows))
	index := make(map[uint]int, len(rows))
	for _, r := range rows {
		i, seen := index[r.OrderID]
		if !seen {
			details = append(details, OrderDetail{
				OrderID:    r.OrderID,
				UserName:   r.UserName,
				TotalCents: r.TotalCents,
				CreatedAt:  r.CreatedAt,
			})
			i = len(details) - 1
			index[r.OrderID] = i
		}
		details[i].Items = append(details[i].Items, OrderItem{
			ProductName: r.ProductName,
			PriceCents:  r.PriceAtPurchase,
			Quantity:    r.Quantity,
		})
	}
	return details, nil
}

// PurgeAll 清空全部订单与订单行，一个事务内完成：
// 任一步失败整体回滚，数据保持原样。用户与商品表不受影响。
func (a *Aggregator) PurgeAll(ctx context.Context) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&model.OrderLine{}).Error; err != nil {
			return fmt.Errorf("purge order lines: %w", err)
		}
		if err := tx.Where("1 = 1").Delete(&model.Order{}).Error; err != nil {
			return fmt.Errorf("purge orders: %w", err)
		}
		return nil
	})
}
