package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminPIN 校验 X-Admin-Pin 请求头。
// 商品/用户维护与清空历史都挂在它后面；demo 级静态 PIN，
// 对应收银机管理界面的进入口令，不是真正的认证体系。
func AdminPIN(pin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Admin-Pin")
		if subtle.ConstantTimeCompare([]byte(got), []byte(pin)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "PIN 无效"})
			return
		}
		c.Next()
	}
}
