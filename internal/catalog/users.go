package catalog

import (
	"context"
	"errors"
	"fmt"

	"grocery_pos/internal/model"

	"gorm.io/gorm"
)

// ListUsers 返回全部用户，按名称升序。
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var list []model.User
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return list, nil
}

// CreateUser 新建用户。
func (s *Store) CreateUser(ctx context.Context, name string) (*model.User, error) {
	if name == "" {
		return nil, fmt.Errorf("user name is required")
	}
	u := model.User{Name: name}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

// RenameUser 更新用户名称（用户档案唯一允许的变更）。
func (s *Store) RenameUser(ctx context.Context, id uint, name string) (*model.User, error) {
	if name == "" {
		return nil, fmt.Errorf("user name is required")
	}
	var u model.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&u, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("load user: %w", err)
		}
		u.Name = name
		if err := tx.Save(&u).Error; err != nil {
			return fmt.Errorf("rename user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUser 删除用户。
// 名下存在历史订单时拒绝（ErrUserHasOrders）：历史查询要 JOIN 用户名，
// 删行会把账目打穿，宁可让管理员先清账。
func (s *Store) DeleteUser(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u model.User
		if err := tx.First(&u, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("load user: %w", err)
		}

		var n int64
		if err := tx.Model(&model.Order{}).Where("user_id = ?", id).Count(&n).Error; err != nil {
			return fmt.Errorf("count user orders: %w", err)
		}
		if n > 0 {
			return ErrUserHasOrders
		}

		if err := tx.Delete(&model.User{}, id).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}
