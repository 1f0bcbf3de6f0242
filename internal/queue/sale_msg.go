package queue

import (
	"fmt"
	"time"
)

// SaleLine 销售事件中的一行。
type SaleLine struct {
	ProductID  uint   `json:"product_id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int64  `json:"quantity"`
}

// SaleMessage 是结账提交后写入 Kafka 的销售事件，
// 供报表/导出等下游只读消费，不参与账务本身。
type SaleMessage struct {
	OrderID    uint       `json:"order_id"`
	UserID     uint       `json:"user_id"`
	TotalCents int64      `json:"total_cents"`
	Lines      []SaleLine `json:"lines"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Validate 做最小字段校验，防止下游处理脏消息。
func (m SaleMessage) Validate() error {
	if m.OrderID == 0 {
		return fmt.Errorf("order_id is required")
	}
	if m.UserID == 0 {
		return fmt.Errorf("user_id is required")
	}
	if m.TotalCents < 0 {
		return fmt.Errorf("total must be >= 0")
	}
	if len(m.Lines) == 0 {
		return fmt.Errorf("sale must have at least one line")
	}
	for i, l := range m.Lines {
		if l.ProductID == 0 {
			return fmt.Errorf("line %d: product_id is required", i)
		}
		if l.Quantity <= 0 {
			return fmt.Errorf("line %d: quantity must be > 0", i)
		}
	}
	return nil
}
