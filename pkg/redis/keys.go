package redis

import "fmt"

// StockKey 统一约定商品展示库存的键名。
func StockKey(productID uint) string {
	return fmt.Sprintf("grocery_pos:stock:%d", productID)
}

// CheckoutRateKey 结账接口限流键（按用户或 IP）。
func CheckoutRateKey(subject string) string {
	return fmt.Sprintf("grocery_pos:rate:checkout:%s", subject)
}
