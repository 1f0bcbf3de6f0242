package model

import "time"

// Order 一笔已落账的销售记录，提交后不可变。
type Order struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserID uint `gorm:"not null;index" json:"user_id"`
	// TotalCents 总金额，单位分；恒等于其所有行的 price_at_purchase * quantity 之和。
	TotalCents int64 `gorm:"not null" json:"total_cents"`
}

func (Order) TableName() string { return "orders" }

// OrderLine 订单行，与 Order 在同一事务内写入，提交后不可变。
// PriceAtPurchaseCents 在成交瞬间冻结单价，之后改商品价不影响历史账。
type OrderLine struct {
	ID uint `gorm:"primarykey" json:"id"`

	OrderID              uint  `gorm:"not null;index" json:"order_id"`
	ProductID            uint  `gorm:"not null;index" json:"product_id"`
	PriceAtPurchaseCents int64 `gorm:"not null" json:"price_at_purchase_cents"`
	Quantity             int64 `gorm:"not null;default:1" json:"quantity"`
}

func (OrderLine) TableName() string { return "order_lines" }
