package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"grocery_pos/internal/cart"
	"grocery_pos/internal/catalog"
	"grocery_pos/internal/checkout"
	"grocery_pos/internal/config"
	"grocery_pos/internal/history"
	"grocery_pos/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testPIN = "4321"

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Product{}, &model.Order{}, &model.OrderLine{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := catalog.NewStore(db, nil)
	sessions := cart.NewSessions()
	co := checkout.NewCoordinator(db, nil, nil, nil)
	agg := history.NewAggregator(db)

	r := gin.New()
	Setup(r, store, sessions, co, agg, nil, config.AppConfig{AdminPIN: testPIN})
	return r, db
}

func do(t *testing.T, r *gin.Engine, method, path, body string, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("X-Admin-Pin", testPIN)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func dataField(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Data
}

func TestAdminRoutesRequirePIN(t *testing.T) {
	r, _ := setupRouter(t)

	w := do(t, r, http.MethodPost, "/api/products", `{"name":"Pan","price_cents":100,"stock":5}`, false)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, http.MethodPost, "/api/products", `{"name":"Pan","price_cents":100,"stock":5}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodDelete, "/api/orders", "", false)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPOSFlowEndToEnd(t *testing.T) {
	r, db := setupRouter(t)

	// 建档
	w := do(t, r, http.MethodPost, "/api/users", `{"name":"Ana"}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	userID := uint(dataField(t, w)["id"].(float64))

	w = do(t, r, http.MethodPost, "/api/products", `{"name":"Pan","price_cents":100,"barcode":"750100","stock":5}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	productID := uint(dataField(t, w)["id"].(float64))

	// 扫码命中
	w = do(t, r, http.MethodGet, "/api/products/barcode/750100", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, dataField(t, w)["active"])

	// 开购物车、加购
	w = do(t, r, http.MethodPost, "/api/carts", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	cartID := dataField(t, w)["cart_id"].(string)

	w = do(t, r, http.MethodPost, "/api/carts/"+cartID+"/lines",
		fmt.Sprintf(`{"product_id":%d,"quantity":2}`, productID), false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, float64(200), dataField(t, w)["total_cents"])

	// 超过库存的加购被拦下
	w = do(t, r, http.MethodPost, "/api/carts/"+cartID+"/lines",
		fmt.Sprintf(`{"product_id":%d,"quantity":9}`, productID), false)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, float64(3), dataField(t, w)["available"])

	// 收款
	w = do(t, r, http.MethodPost, "/api/checkout",
		fmt.Sprintf(`{"cart_id":"%s","user_id":%d}`, cartID, userID), false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := dataField(t, w)
	require.Equal(t, "committed", data["state"])
	require.Equal(t, float64(200), data["total_cents"])

	// 成功后购物车被清空
	w = do(t, r, http.MethodGet, "/api/carts/"+cartID, "", false)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(0), dataField(t, w)["total_cents"])

	// 库存落到 3
	var p model.Product
	require.NoError(t, db.First(&p, productID).Error)
	require.Equal(t, int64(3), p.Stock)

	// 历史可见
	w = do(t, r, http.MethodGet, "/api/orders", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	var listOut struct {
		Data []history.OrderDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listOut))
	require.Len(t, listOut.Data, 1)
	require.Equal(t, "Ana", listOut.Data[0].UserName)
	require.Len(t, listOut.Data[0].Items, 1)

	// 清空历史（PIN 保护），商品和用户保留
	w = do(t, r, http.MethodDelete, "/api/orders", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/api/orders", "", false)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listOut))
	require.Empty(t, listOut.Data)

	w = do(t, r, http.MethodGet, "/api/products", "", false)
	var productsOut struct {
		Data []model.Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &productsOut))
	require.Len(t, productsOut.Data, 1)
}

func TestCheckoutAbortKeepsCart(t *testing.T) {
	r, db := setupRouter(t)

	w := do(t, r, http.MethodPost, "/api/users", `{"name":"Ana"}`, true)
	userID := uint(dataField(t, w)["id"].(float64))
	w = do(t, r, http.MethodPost, "/api/products", `{"name":"Pan","price_cents":100,"stock":5}`, true)
	productID := uint(dataField(t, w)["id"].(float64))

	w = do(t, r, http.MethodPost, "/api/carts", "", false)
	cartID := dataField(t, w)["cart_id"].(string)
	w = do(t, r, http.MethodPost, "/api/carts/"+cartID+"/lines",
		fmt.Sprintf(`{"product_id":%d,"quantity":4}`, productID), false)
	require.Equal(t, http.StatusOK, w.Code)

	// 加购之后别的终端把货卖掉了
	require.NoError(t, db.Model(&model.Product{}).Where("id = ?", productID).
		Update("stock", 1).Error)

	w = do(t, r, http.MethodPost, "/api/checkout",
		fmt.Sprintf(`{"cart_id":"%s","user_id":%d}`, cartID, userID), false)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, float64(1), dataField(t, w)["available"])

	// Aborted：购物车原样保留，收银员可改数量重试
	w = do(t, r, http.MethodGet, "/api/carts/"+cartID, "", false)
	require.Equal(t, float64(400), dataField(t, w)["total_cents"])

	// 没有半截订单
	var orders int64
	require.NoError(t, db.Model(&model.Order{}).Count(&orders).Error)
	require.Zero(t, orders)
}

func TestCartSessionNotFound(t *testing.T) {
	r, _ := setupRouter(t)
	w := do(t, r, http.MethodGet, "/api/carts/nope", "", false)
	require.Equal(t, http.StatusNotFound, w.Code)
}
