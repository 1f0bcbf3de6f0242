package catalog

import (
	"context"
	"errors"
	"fmt"

	"grocery_pos/internal/model"
	posredis "grocery_pos/pkg/redis"

	"gorm.io/gorm"
)

// ProductInput 创建/编辑商品的字段集合。
type ProductInput struct {
	Name       string
	PriceCents int64
	Barcode    string
	Stock      int64
}

// Store 负责商品与用户档案的持久化读写。
// 条码唯一性（仅在售商品范围内）与「同条码复活下架商品」都在这里的
// 事务内裁决；展示库存缓存为 best-effort，cache 可以为 nil（测试常用）。
type Store struct {
	db    *gorm.DB
	cache *posredis.StockCache
}

func NewStore(db *gorm.DB, cache *posredis.StockCache) *Store {
	return &Store{db: db, cache: cache}
}

// ListActive 返回全部在售商品，按名称升序。
func (s *Store) ListActive(ctx context.Context) ([]model.Product, error) {
	var list []model.Product
	err := s.db.WithContext(ctx).
		Where("status = ?", model.ProductActive).
		Order("name ASC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list active products: %w", err)
	}
	return list, nil
}

// Get 按 ID 取商品，在售/下架都命中。
func (s *Store) Get(ctx context.Context, id uint) (*model.Product, error) {
	var p model.Product
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("load product: %w", err)
	}
	return &p, nil
}

// FindByBarcode 按条码查商品，在售/下架都命中，
// 调用方（扫码确认流程）据此决定是直接加购还是提示复活。
func (s *Store) FindByBarcode(ctx context.Context, code string) (*model.Product, error) {
	if code == "" {
		return nil, ErrProductNotFound
	}
	var p model.Product
	err := s.db.WithContext(ctx).Where("barcode = ?", code).Order("status ASC").First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("find product by barcode: %w", err)
	}
	return &p, nil
}

// Create 新建商品。
// 条码被在售商品占用 → DuplicateBarcodeError；
// 条码只被下架商品占用 → 原行更新字段并复活，不插入重复行。
func (s *Store) Create(ctx context.Context, in ProductInput) (*model.Product, error) {
	if err := validateProductInput(in); err != nil {
		return nil, err
	}

	var out model.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.Barcode != "" {
			holder, err := barcodeHolder(tx, in.Barcode, 0)
			if err != nil {
				return err
			}
			if holder != nil {
				if holder.Active() {
					return &DuplicateBarcodeError{Barcode: in.Barcode, HolderID: holder.ID, HolderName: holder.Name}
				}
				// 复活路径：复用旧行，历史 order_lines 的外键保持有效。
				holder.Name = in.Name
				holder.PriceCents = in.PriceCents
				holder.Stock = in.Stock
				holder.Status = model.ProductActive
				if err := tx.Save(holder).Error; err != nil {
					return fmt.Errorf("reactivate product: %w", err)
				}
				out = *holder
				return nil
			}
		}

		p := model.Product{
			Name:       in.Name,
			PriceCents: in.PriceCents,
			Barcode:    in.Barcode,
			Stock:      in.Stock,
			Status:     model.ProductActive,
		}
		if err := tx.Create(&p).Error; err != nil {
			return fmt.Errorf("create product: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.refreshStock(ctx, out.ID, out.Stock)
	return &out, nil
}

// Update 编辑商品档案（含库存盘点修正）。条码冲突规则同 Create，排除自身。
func (s *Store) Update(ctx context.Context, id uint, in ProductInput) (*model.Product, error) {
	if err := validateProductInput(in); err != nil {
		return nil, err
	}

	var out model.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p model.Product
		if err := tx.First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return fmt.Errorf("load product: %w", err)
		}

		if in.Barcode != "" {
			holder, err := barcodeHolder(tx, in.Barcode, id)
			if err != nil {
				return err
			}
			if holder != nil && holder.Active() {
				return &DuplicateBarcodeError{Barcode: in.Barcode, HolderID: holder.ID, HolderName: holder.Name}
			}
		}

		p.Name = in.Name
		p.PriceCents = in.PriceCents
		p.Barcode = in.Barcode
		p.Stock = in.Stock
		if err := tx.Save(&p).Error; err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.refreshStock(ctx, out.ID, out.Stock)
	return &out, nil
}

// Deactivate 下架商品（软删除）。行保留，历史订单不受影响。
func (s *Store) Deactivate(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", id).
		Update("status", model.ProductInactive)
	if res.Error != nil {
		return fmt.Errorf("deactivate product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, id)
	}
	return nil
}

// DisplayStock 返回展示用库存：先查缓存，未命中回源 DB 并回填。
// 展示库存只是建议值，成交与否以结账事务内的再校验为准。
func (s *Store) DisplayStock(ctx context.Context, id uint) (int64, error) {
	if s.cache != nil {
		if stock, ok, err := s.cache.Get(ctx, id); err == nil && ok {
			return stock, nil
		}
	}

	var p model.Product
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("load product stock: %w", err)
	}
	s.refreshStock(ctx, p.ID, p.Stock)
	return p.Stock, nil
}

// refreshStock 更新展示库存缓存。失败只影响展示，不影响账务。
func (s *Store) refreshStock(ctx context.Context, id uint, stock int64) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Set(ctx, id, stock)
}

// barcodeHolder 查找占用条码的商品行，excludeID 用于排除自身（更新场景）。
// 在售行优先返回，保证冲突裁决看到的是 active 持有者。
func barcodeHolder(tx *gorm.DB, barcode string, excludeID uint) (*model.Product, error) {
	var holder model.Product
	q := tx.Where("barcode = ?", barcode)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	err := q.Order("status ASC").First(&holder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup barcode holder: %w", err)
	}
	return &holder, nil
}

func validateProductInput(in ProductInput) error {
	if in.Name == "" {
		return fmt.Errorf("product name is required")
	}
	if in.PriceCents < 0 {
		return fmt.Errorf("price must be >= 0")
	}
	if in.Stock < 0 {
		return fmt.Errorf("stock must be >= 0")
	}
	return nil
}
