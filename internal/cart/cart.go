package cart

import (
	"errors"
	"fmt"
	"sync"

	"grocery_pos/internal/model"
)

// ErrLineNotFound 调整数量时购物车内没有该商品的行。
var ErrLineNotFound = errors.New("cart line not found")

// InsufficientStockError 想要的数量超过可用库存。
// 购物车侧用它做加购前的快速拦截（建议值），结账协调器在事务内
// 用同一类型做权威拦截；Available 让 UI 能直接提示剩余件数。
type InsufficientStockError struct {
	ProductName string
	Available   int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: %d available", e.ProductName, e.Available)
}

// Line 购物车行。StockCeiling 记录加购时刻看到的库存，
// 只约束本购物车内的增量操作，真正的库存裁决发生在结账事务里。
type Line struct {
	ProductID      uint   `json:"product_id"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	StockCeiling   int64  `json:"stock_ceiling"`
	Quantity       int64  `json:"quantity"`
}

// Cart 单个结账会话的内存购物车，从不落盘。
// 会话归属单个终端，但 HTTP handler 可能并发触达，所以仍带锁。
type Cart struct {
	mu    sync.Mutex
	lines []Line
}

func New() *Cart { return &Cart{} }

// AddLine 把商品加入购物车：已有行累加数量，否则新增一行。
// 累计数量超过商品当前库存 → InsufficientStockError（此处用的是
// 调用方刚读到的库存，提交时还会再验一次）。
func (c *Cart) AddLine(p model.Product, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be > 0")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(p.ID)
	var current int64
	if idx >= 0 {
		current = c.lines[idx].Quantity
	}
	if current+qty > p.Stock {
		return &InsufficientStockError{ProductName: p.Name, Available: p.Stock - current}
	}

	if idx >= 0 {
		c.lines[idx].Quantity += qty
		// 刷新行上的库存快照，后续 SetQuantity 以最近观察为准。
		c.lines[idx].StockCeiling = p.Stock
		c.lines[idx].UnitPriceCents = p.PriceCents
		return nil
	}
	c.lines = append(c.lines, Line{
		ProductID:      p.ID,
		Name:           p.Name,
		UnitPriceCents: p.PriceCents,
		StockCeiling:   p.Stock,
		Quantity:       qty,
	})
	return nil
}

// SetQuantity 按增量调整行数量：下限钳制为 0，归零的行移除；
// 超过行上记录的库存上限 → InsufficientStockError（与 AddLine 同一类型，
// UI 两条路径渲染同一种提示）。
func (c *Cart) SetQuantity(productID uint, delta int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(productID)
	if idx < 0 {
		return ErrLineNotFound
	}

	line := c.lines[idx]
	newQty := line.Quantity + delta
	if newQty < 0 {
		newQty = 0
	}
	if delta > 0 && newQty > line.StockCeiling {
		return &InsufficientStockError{ProductName: line.Name, Available: line.StockCeiling - line.Quantity}
	}

	if newQty == 0 {
		c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
		return nil
	}
	c.lines[idx].Quantity = newQty
	return nil
}

// Clear 清空全部行。
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}

// TotalCents 即时计算 Σ(单价 × 数量)，不做缓存。
func (c *Cart) TotalCents() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	for _, l := range c.lines {
		total += l.UnitPriceCents * l.Quantity
	}
	return total
}

// Lines 返回行快照，调用方修改副本不影响购物车。
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// indexOf 调用方必须持锁。
func (c *Cart) indexOf(productID uint) int {
	for i, l := range c.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}
