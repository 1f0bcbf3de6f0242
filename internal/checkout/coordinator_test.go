package checkout

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"grocery_pos/internal/cart"
	"grocery_pos/internal/catalog"
	"grocery_pos/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupCheckoutTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Product{}, &model.Order{}, &model.OrderLine{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name string) model.User {
	t.Helper()
	u := model.User{Name: name}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func seedProduct(t *testing.T, db *gorm.DB, name string, price, stock int64) model.Product {
	t.Helper()
	p := model.Product{Name: name, PriceCents: price, Stock: stock, Status: model.ProductActive}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p
}

func lineFor(p model.Product, qty int64) cart.Line {
	return cart.Line{
		ProductID:      p.ID,
		Name:           p.Name,
		UnitPriceCents: p.PriceCents,
		StockCeiling:   p.Stock,
		Quantity:       qty,
	}
}

func TestCheckoutCommitsOrderLinesAndStock(t *testing.T) {
	ctx := context.Background()
	db := setupCheckoutTestDB(t)
	u := seedUser(t, db, "Ana")
	bread := seedProduct(t, db, "Pan", 100, 10)
	milk := seedProduct(t, db, "Leche", 50, 4)

	co := NewCoordinator(db, nil, nil, nil)
	res, err := co.Checkout(ctx, u.ID, []cart.Line{lineFor(bread, 2), lineFor(milk, 1)})
	require.NoError(t, err)
	require.Equal(t, StateCommitted, res.State)
	require.Equal(t, int64(250), res.TotalCents)
	require.NotZero(t, res.OrderID)

	var order model.Order
	require.NoError(t, db.First(&order, res.OrderID).Error)
	require.Equal(t, u.ID, order.UserID)
	require.Equal(t, int64(250), order.TotalCents)

	var lines []model.OrderLine
	require.NoError(t, db.Where("order_id = ?", res.OrderID).Order("id ASC").Find(&lines).Error)
	require.Len(t, lines, 2)
	require.Equal(t, int64(100), lines[0].PriceAtPurchaseCents)
	require.Equal(t, int64(50), lines[1].PriceAtPurchaseCents)

	var p model.Product
	require.NoError(t, db.First(&p, bread.ID).Error)
	require.Equal(t, int64(8), p.Stock)
	p = model.Product{}
	require.NoError(t, db.First(&p, milk.ID).Error)
	require.Equal(t, int64(3), p.Stock)
}

func TestCheckoutFreezesPriceAtPurchase(t *testing.T) {
	ctx := context.Background()
	db := setupCheckoutTestDB(t)
	u := seedUser(t, db, "Ana")
	p := seedProduct(t, db, "Pan", 100, 10)

	line := lineFor(p, 1)
	// 加购之后商品涨价，成交价仍按加购时的单价
	require.NoError(t, db.Model(&model.Product{}).Where("id = ?", p.ID).Update("price_cents", 999).Error)

	co := NewCoordinator(db, nil, nil, nil)
	res, err := co.Checkout(ctx, u.ID, []cart.Line{line})
	require.NoError(t, err)

	var ol model.OrderLine
	require.NoError(t, db.Where("order_id = ?", res.OrderID).First(&ol).Error)
	require.Equal(t, int64(100), ol.PriceAtPurchaseCents)
	require.Equal(t, int64(100), res.TotalCents)
}

func TestCheckoutRejectsWithoutUserOrLines(t *testing.T) {
	ctx := context.Background()
	db := setupCheckoutTestDB(t)
	u := seedUser(t, db, "Ana")
	p := seedProduct(t, db, "Pan", 100, 10)
	co := NewCoordinator(db, nil, nil, nil)

	res, err := co.Checkout(ctx, 0, []cart.Line{lineFor(p, 1)})
	require.ErrorIs(t, err, ErrNoUserSelected)
	require.Equal(t, StateAborted, res.State)

	res, err = co.Checkout(ctx, u.ID, nil)
	require.ErrorIs(t, err, ErrEmptyCart)
	require.Equal(t, StateAborted, res.State)

	_, err = co.Checkout(ctx, 999, []cart.Line{lineFor(p, 1)})
	require.ErrorIs(t, err, ErrUnknownUser)

	// 前置校验失败不允许留下任何痕迹
	var count int64
	require.NoError(t, db.Model(&model.Order{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCheckoutInsufficientStockRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	db := setupCheckoutTestDB(t)
	u := seedUser(t, db, "Ana")
	bread := seedProduct(t, db, "Pan", 100, 10)
	milk := seedProduct(t, db, "Leche", 50, 1)

	co := NewCoordinator(db, nil, nil, nil)
	// 第一行可以满足，第二行不足 → 整单回滚
	res, err := co.Checkout(ctx, u.ID, []cart.Line{lineFor(bread, 2), lineFor(milk, 3)})
	var stockErr *cart.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, "Leche", stockErr.ProductName)
	require.Equal(t, int64(1), stockErr.Available)
	require.Equal(t, StateAborted, res.State)

	var orders, lines int64
	require.NoError(t, db.Model(&model.Order{}).Count(&orders).Error)
	require.NoError(t, db.Model(&model.OrderLine{}).Count(&lines).Error)
	require.Zero(t, orders)
	require.Zero(t, lines)

	// 第一行已扣过的库存也必须回来
	var p model.Product
	require.NoError(t, db.First(&p, bread.ID).Error)
	require.Equal(t, int64(10), p.Stock)
	p = model.Product{}
	require.NoError(t, db.First(&p, milk.ID).Error)
	require.Equal(t, int64(1), p.Stock)
}

func TestSequentialCheckoutsRereadStock(t *testing.T) {
	ctx := context.Background()
	db := setupCheckoutTestDB(t)
	u := seedUser(t, db, "Ana")
	p := seedProduct(t, db, "Pan", 100, 5)
	co := NewCoordinator(db, nil, nil, nil)

	// 两个购物车都基于 stock=5 的快照各要 3 件
	first := lineFor(p, 3)
	second := lineFor(p, 3)

	res, err := co.Checkout(ctx, u.ID, []cart.Line{first})
	require.NoError(t, err)
	require.Equal(t, StateCommitted, res.State)

	// 第二单提交时重读库存（2 件），快照作废
	_, err = co.Checkout(ctx, u.ID, []cart.Line{second})
	var stockErr *cart.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, int64(2), stockErr.Available)

	var fresh model.Product
	require.NoError(t, db.First(&fresh, p.ID).Error)
	require.Equal(t, int64(2), fresh.Stock)
}

// TestRandomCheckoutsNeverOversell 随机序列下的守恒检查：
// 任意加购/结账序列之后库存永不为负，且扣减量与成交量严格相等。
func TestRandomCheckoutsNeverOversell(t *testing.T) {
	ctx := context.Background()
	db := setupCheckoutTestDB(t)
	u := seedUser(t, db, "Ana")
	const initial = int64(20)
	p := seedProduct(t, db, "Pan", 100, initial)
	co := NewCoordinator(db, nil, nil, nil)

	rng := rand.New(rand.NewSource(42))
	var committed int64
	for i := 0; i < 60; i++ {
		qty := int64(rng.Intn(4) + 1)
		// 模拟陈旧购物车：上限永远按初始库存申报
		stale := cart.Line{ProductID: p.ID, Name: p.Name, UnitPriceCents: p.PriceCents, StockCeiling: initial, Quantity: qty}

		res, err := co.Checkout(ctx, u.ID, []cart.Line{stale})
		if err != nil {
			var stockErr *cart.InsufficientStockError
			require.ErrorAs(t, err, &stockErr)
			continue
		}
		require.Equal(t, StateCommitted, res.State)
		committed += qty

		var fresh model.Product
		require.NoError(t, db.First(&fresh, p.ID).Error)
		require.GreaterOrEqual(t, fresh.Stock, int64(0))
	}

	var fresh model.Product
	require.NoError(t, db.First(&fresh, p.ID).Error)
	require.Equal(t, initial-committed, fresh.Stock)
	require.GreaterOrEqual(t, fresh.Stock, int64(0))
}

// 结账不会动商品档案的软删除状态，下架商品仍可出现在历史里。
func TestCheckoutSellsByStockNotStatus(t *testing.T) {
	ctx := context.Background()
	db := setupCheckoutTestDB(t)
	u := seedUser(t, db, "Ana")
	p := seedProduct(t, db, "Pan", 100, 5)

	store := catalog.NewStore(db, nil)
	require.NoError(t, store.Deactivate(ctx, p.ID))

	// 加购发生在下架之前：行已在购物车里，结账只裁决库存
	co := NewCoordinator(db, nil, nil, nil)
	res, err := co.Checkout(ctx, u.ID, []cart.Line{lineFor(p, 1)})
	require.NoError(t, err)
	require.Equal(t, StateCommitted, res.State)
}
