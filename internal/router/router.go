package router

import (
	"errors"
	"net/http"
	"strconv"

	"grocery_pos/internal/cart"
	"grocery_pos/internal/catalog"
	"grocery_pos/internal/checkout"
	"grocery_pos/internal/config"
	"grocery_pos/internal/history"
	"grocery_pos/internal/middleware"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
)

// Setup 注册全部 HTTP 路由。
// rdb 允许为 nil（测试环境），此时结账接口不挂限流。
func Setup(r *gin.Engine, store *catalog.Store, sessions *cart.Sessions, co *checkout.Coordinator, agg *history.Aggregator, rdb *rd.Client, cfg config.AppConfig) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	// Products（读路径对所有终端开放）
	r.GET("/api/products", listProducts(store))
	r.GET("/api/products/barcode/:code", findByBarcode(store))
	r.GET("/api/products/:id/stock", displayStock(store))

	// Users（收银界面要选人，所以列表开放）
	r.GET("/api/users", listUsers(store))

	// Cart sessions
	r.POST("/api/carts", openCart(sessions))
	r.GET("/api/carts/:id", showCart(sessions))
	r.POST("/api/carts/:id/lines", addCartLine(sessions, store))
	r.PATCH("/api/carts/:id/lines/:product_id", setCartQuantity(sessions))
	r.DELETE("/api/carts/:id/lines", clearCart(sessions))

	// Checkout
	checkoutHandlers := []gin.HandlerFunc{}
	if rdb != nil {
		checkoutHandlers = append(checkoutHandlers, middleware.CheckoutRateLimit(rdb, cfg.CheckoutRateLimit, cfg.CheckoutRateWindow))
	}
	checkoutHandlers = append(checkoutHandlers, doCheckout(sessions, co))
	r.POST("/api/checkout", checkoutHandlers...)

	// History
	r.GET("/api/orders", listOrders(agg))

	// 管理操作统一挂在静态 PIN 后面（对应管理界面的进入口令）。
	admin := r.Group("/api", middleware.AdminPIN(cfg.AdminPIN))
	admin.POST("/products", createProduct(store))
	admin.PUT("/products/:id", updateProduct(store))
	admin.DELETE("/products/:id", deactivateProduct(store))
	admin.POST("/users", createUser(store))
	admin.PUT("/users/:id", renameUser(store))
	admin.DELETE("/users/:id", deleteUser(store))
	admin.DELETE("/orders", purgeOrders(agg))
}

// productInput 创建/编辑商品的请求体。
type productInput struct {
	Name       string `json:"name" binding:"required"`
	PriceCents int64  `json:"price_cents" binding:"min=0"`
	Barcode    string `json:"barcode"`
	Stock      int64  `json:"stock" binding:"min=0"`
}

func listProducts(store *catalog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := store.ListActive(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

// findByBarcode 扫码确认流程：下架商品也返回（带 active 标记），
// 前端据此提示“该条码属于已下架商品，重新建档将复用原记录”。
func findByBarcode(store *catalog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := store.FindByBarcode(c.Request.Context(), c.Param("code"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"product": p, "active": p.Active()}})
	}
}

func displayStock(store *catalog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uintParam(c, "id")
		if !ok {
			return
		}
		stock, err := store.DisplayStock(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"stock": stock}})
	}
}

func createProduct(store *catalog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req productInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		p, err := store.Create(c.Request.Context(), catalog.ProductInput{
			Name:       req.Name,
			PriceCents: req.PriceCents,
			Barcode:    req.Barcode,
			Stock:      req.Stock,
		})
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": p})
	}
}

func updateProduct(store *catalog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uintParam(c, "id")
		if !ok {
			return
		}
		var req productInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		p, err := store.Update(c.Request.Context(), id, catalog.ProductInput{
			Name:       req.Name,
			PriceCents: req.PriceCents,
			Barcode:    req.Barcode,
			Stock:      req.Stock,
		})
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": p})
	}
}

func deactivateProduct(store *catalog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uintParam(c, "id")
		if !ok {
			return
		}
		if err := store.Deactivate(c.Request.Context(), id); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "商品已下架"})
	}
}

func listUsers(store *catalog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := store.ListUsers(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func createUser(store *catalog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		u, err := store.CreateUser(c.Request.Context(), req.Name)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": u})
	}
}

func renameUser(store *catalog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uintParam(c, "id")
		if !ok {
			return
		}
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		u, err := store.RenameUser(c.Request.Context(), id, req.Name)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": u})
	}
}

func deleteUser(store *catalog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uintParam(c, "id")
		if !ok {
			return
		}
		if err := store.DeleteUser(c.Request.Context(), id); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "用户已删除"})
	}
}

func openCart(sessions *cart.Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := sessions.Open()
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"cart_id": id}})
	}
}

func showCart(sessions *cart.Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		ct, err := sessions.Get(c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
			"lines":       ct.Lines(),
			"total_cents": ct.TotalCents(),
		}})
	}
}

// addCartLine 加购：以 DB 里的当前商品快照做库存上限检查。
// 这里的检查只保证界面响应合理，成交与否以结账事务内的再校验为准。
func addCartLine(sessions *cart.Sessions, store *catalog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ct, err := sessions.Get(c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		var req struct {
			ProductID uint  `json:"product_id" binding:"required,min=1"`
			Quantity  int64 `json:"quantity" binding:"omitempty,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		if req.Quantity <= 0 {
			req.Quantity = 1
		}

		p, err := store.Get(c.Request.Context(), req.ProductID)
		if err != nil {
			fail(c, err)
			return
		}
		if !p.Active() {
			c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": "商品已下架，无法加入购物车"})
			return
		}
		if err := ct.AddLine(*p, req.Quantity); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
			"lines":       ct.Lines(),
			"total_cents": ct.TotalCents(),
		}})
	}
}

func setCartQuantity(sessions *cart.Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		ct, err := sessions.Get(c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		productID, ok := uintParam(c, "product_id")
		if !ok {
			return
		}
		var req struct {
			Delta int64 `json:"delta" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		if err := ct.SetQuantity(productID, req.Delta); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
			"lines":       ct.Lines(),
			"total_cents": ct.TotalCents(),
		}})
	}
}

func clearCart(sessions *cart.Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		ct, err := sessions.Get(c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ct.Clear()
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "购物车已清空"})
	}
}

// doCheckout 收银台「收款」动作。
// 只有 Committed 才清空购物车；Aborted 时购物车原样保留，
// 收银员可以改数量后重试。
func doCheckout(sessions *cart.Sessions, co *checkout.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			CartID string `json:"cart_id" binding:"required"`
			UserID uint   `json:"user_id" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}

		ct, err := sessions.Get(req.CartID)
		if err != nil {
			fail(c, err)
			return
		}

		res, err := co.Checkout(c.Request.Context(), req.UserID, ct.Lines())
		if err != nil {
			fail(c, err)
			return
		}

		ct.Clear()
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
			"order_id":    res.OrderID,
			"total_cents": res.TotalCents,
			"state":       res.State.String(),
		}})
	}
}

func listOrders(agg *history.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := agg.ListOrders(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func purgeOrders(agg *history.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := agg.PurgeAll(c.Request.Context()); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "历史记录已清空"})
	}
}

// uintParam 解析路径参数，失败时直接写 400 响应。
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": name + " 无效"})
		return 0, false
	}
	return uint(v), true
}

// fail 把领域错误映射为 HTTP 响应。
// 错误信息里已带够渲染条件（剩余库存、冲突条码等），前端无需二次查询。
func fail(c *gin.Context, err error) {
	var dup *catalog.DuplicateBarcodeError
	var stock *cart.InsufficientStockError

	switch {
	case errors.As(err, &stock):
		c.JSON(http.StatusConflict, gin.H{
			"code": 409,
			"msg":  "库存不足：" + stock.ProductName,
			"data": gin.H{"product_name": stock.ProductName, "available": stock.Available},
		})
	case errors.As(err, &dup):
		c.JSON(http.StatusConflict, gin.H{
			"code": 409,
			"msg":  "条码已被在售商品占用：" + dup.HolderName,
			"data": gin.H{"barcode": dup.Barcode, "holder_id": dup.HolderID, "holder_name": dup.HolderName},
		})
	case errors.Is(err, catalog.ErrUserHasOrders):
		c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": "该用户存在历史订单，无法删除"})
	case errors.Is(err, checkout.ErrNoUserSelected):
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "请先选择用户"})
	case errors.Is(err, checkout.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "购物车为空"})
	case errors.Is(err, checkout.ErrUnknownUser):
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "用户不存在"})
	case errors.Is(err, catalog.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "商品不存在"})
	case errors.Is(err, catalog.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "用户不存在"})
	case errors.Is(err, cart.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "购物车会话不存在"})
	case errors.Is(err, cart.ErrLineNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "购物车内没有该商品"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
	}
}
