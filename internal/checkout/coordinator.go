package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grocery_pos/internal/cart"
	"grocery_pos/internal/model"
	"grocery_pos/internal/queue"
	posredis "grocery_pos/pkg/redis"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrNoUserSelected 结账前未绑定用户。
	ErrNoUserSelected = errors.New("no user selected for checkout")
	// ErrEmptyCart 购物车为空。
	ErrEmptyCart = errors.New("cart is empty")
	// ErrUnknownUser 绑定的用户在 DB 里不存在。
	ErrUnknownUser = errors.New("checkout user does not exist")
)

// State 结账状态机：Pending → Validating → Committed/Aborted。
// 只能通过 Checkout 进入，Committed/Aborted 是终态。
type State int

const (
	StatePending State = iota
	StateValidating
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateValidating:
		return "validating"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Result 结账结果。State 为 Committed 时 OrderID/TotalCents 有效。
type Result struct {
	OrderID    uint
	TotalCents int64
	State      State
}

// Coordinator 把购物车 + 用户转成一笔持久订单。
// 订单行、订单头、库存扣减在同一个 DB 事务内完成，任何一步失败
// 整体回滚——部分成交永远不可见。outbox 与库存缓存都在提交之后
// best-effort 处理，失败只记日志，绝不反悔已提交的账。
type Coordinator struct {
	db     *gorm.DB
	outbox *queue.Outbox
	cache  *posredis.StockCache
	log    *logrus.Logger
}

// NewCoordinator 创建协调器。outbox 与 cache 都可为 nil（测试常用）。
func NewCoordinator(db *gorm.DB, outbox *queue.Outbox, cache *posredis.StockCache, log *logrus.Logger) *Coordinator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Coordinator{db: db, outbox: outbox, cache: cache, log: log}
}

// Checkout 执行一次原子结账。
// 流程：
//  1. 前置校验（用户已选、购物车非空），不动存储直接 Aborted
//  2. 开事务：写订单头（总额 = Σ 单价×数量）
//  3. 逐行在事务内重读商品当前库存——这是权威校验，购物车早前的
//     检查只是建议；current < quantity 则整个事务回滚
//  4. 写订单行（冻结成交价，永远不用商品的实时价）并条件扣减库存
//  5. 全部成功才提交 → Committed；调用方只在 Committed 时清空购物车
func (co *Coordinator) Checkout(ctx context.Context, userID uint, lines []cart.Line) (Result, error) {
	aborted := Result{State: StateAborted}

	if userID == 0 {
		return aborted, ErrNoUserSelected
	}
	if len(lines) == 0 {
		return aborted, ErrEmptyCart
	}
	var total int64
	for _, l := range lines {
		if l.Quantity <= 0 {
			return aborted, fmt.Errorf("line for product %d has non-positive quantity", l.ProductID)
		}
		total += l.UnitPriceCents * l.Quantity
	}

	var (
		orderID    uint
		finalStock = make(map[uint]int64, len(lines))
	)
	err := co.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u model.User
		if err := tx.First(&u, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownUser
			}
			return fmt.Errorf("load checkout user: %w", err)
		}

		order := model.Order{UserID: userID, TotalCents: total}
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, l := range lines {
			// 权威库存校验：重读当前值，不信购物车的快照。
			var p model.Product
			if err := tx.First(&p, l.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("product %d no longer exists", l.ProductID)
				}
				return fmt.Errorf("reload product %d: %w", l.ProductID, err)
			}
			if p.Stock < l.Quantity {
				return &cart.InsufficientStockError{ProductName: p.Name, Available: p.Stock}
			}

			line := model.OrderLine{
				OrderID:              order.ID,
				ProductID:            p.ID,
				PriceAtPurchaseCents: l.UnitPriceCents,
				Quantity:             l.Quantity,
			}
			if err := tx.Create(&line).Error; err != nil {
				return fmt.Errorf("create order line: %w", err)
			}

			// 条件 UPDATE 再兜一层：stock >= quantity 才扣，保证 I1 永不破。
			res := tx.Model(&model.Product{}).
				Where("id = ? AND stock >= ?", p.ID, l.Quantity).
				UpdateColumn("stock", gorm.Expr("stock - ?", l.Quantity))
			if res.Error != nil {
				return fmt.Errorf("decrement stock for product %d: %w", p.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return &cart.InsufficientStockError{ProductName: p.Name, Available: p.Stock}
			}
			finalStock[p.ID] = p.Stock - l.Quantity
		}

		orderID = order.ID
		return nil
	})
	if err != nil {
		co.log.WithFields(logrus.Fields{
			"user_id": userID,
			"lines":   len(lines),
			"state":   StateAborted.String(),
		}).WithError(err).Warn("checkout aborted")
		return aborted, err
	}

	co.log.WithFields(logrus.Fields{
		"order_id":    orderID,
		"user_id":     userID,
		"total_cents": total,
		"state":       StateCommitted.String(),
	}).Info("checkout committed")

	co.afterCommit(ctx, orderID, userID, total, lines, finalStock)

	return Result{OrderID: orderID, TotalCents: total, State: StateCommitted}, nil
}

// afterCommit 提交后的附带动作：刷新展示库存、投递销售事件。
// 全部 best-effort，失败只记日志。
func (co *Coordinator) afterCommit(ctx context.Context, orderID, userID uint, total int64, lines []cart.Line, finalStock map[uint]int64) {
	if co.cache != nil {
		for id, stock := range finalStock {
			if err := co.cache.Set(ctx, id, stock); err != nil {
				co.log.WithError(err).WithField("product_id", id).Warn("refresh stock cache")
			}
		}
	}

	if co.outbox == nil {
		return
	}
	msg := queue.SaleMessage{
		OrderID:    orderID,
		UserID:     userID,
		TotalCents: total,
		CreatedAt:  time.Now().UTC(),
	}
	for _, l := range lines {
		msg.Lines = append(msg.Lines, queue.SaleLine{
			ProductID:  l.ProductID,
			Name:       l.Name,
			PriceCents: l.UnitPriceCents,
			Quantity:   l.Quantity,
		})
	}
	if err := co.outbox.Publish(ctx, msg); err != nil {
		co.log.WithError(err).WithField("order_id", orderID).Warn("publish sale event")
	}
}
