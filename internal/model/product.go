package model

import "time"

// ProductStatus 描述商品的上下架状态。
// 用枚举而不是 bool，后续如需“停售”等状态可以直接扩展。
type ProductStatus int

const (
	ProductActive   ProductStatus = iota // 在售，可加入购物车
	ProductInactive                      // 已下架（软删除），保留行以支撑历史订单
)

// Product 商品档案：名称、单价、条码、库存。
// Stock 是权威库存，只在结账事务内扣减；Redis 缓存的库存仅用于展示。
// “删除”商品即置 Status=ProductInactive，行永不物理删除，
// 避免历史 order_lines 出现悬空外键。
type Product struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name string `gorm:"size:128;not null" json:"name"`
	// PriceCents 单位：分
	PriceCents int64 `gorm:"not null" json:"price_cents"`
	// Barcode 可为空；非空时要求在「在售商品」范围内唯一（应用层校验，
	// 不能用 DB 唯一索引：下架商品的条码允许被复用）。
	Barcode string        `gorm:"size:64;index" json:"barcode"`
	Stock   int64         `gorm:"not null;default:0" json:"stock"`
	Status  ProductStatus `gorm:"not null;default:0;index" json:"status"`
}

func (Product) TableName() string { return "products" }

// Active 返回商品是否在售。
func (p Product) Active() bool { return p.Status == ProductActive }
