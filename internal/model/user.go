package model

import "time"

// User 收银员/店员档案，由管理界面维护。
// 历史订单通过 user_id 关联，存在订单的用户不允许删除。
type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name string `gorm:"size:128;not null" json:"name"`
}

func (User) TableName() string { return "users" }
