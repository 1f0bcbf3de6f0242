package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrProductNotFound 商品不存在（含条码查找未命中）。
	ErrProductNotFound = errors.New("product not found")
	// ErrUserNotFound 用户不存在。
	ErrUserNotFound = errors.New("user not found")
	// ErrUserHasOrders 用户名下存在历史订单，禁止删除。
	ErrUserHasOrders = errors.New("user has orders and cannot be deleted")
)

// DuplicateBarcodeError 条码已被另一个在售商品占用。
// 带上占用者名称，UI 可以直接提示冲突对象，无需二次查询。
type DuplicateBarcodeError struct {
	Barcode    string
	HolderID   uint
	HolderName string
}

func (e *DuplicateBarcodeError) Error() string {
	return fmt.Sprintf("barcode %q already used by active product %q (id=%d)", e.Barcode, e.HolderName, e.HolderID)
}
