package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Result 记录单次结账的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

// 超卖压测：N 个并发终端结同一个商品的账，结束后核对最终库存。
// 库存为 S、每单买 1 件时，成功单数不应超过 S，且最终库存 ≥ 0。
func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	productID := flag.Int("product", 1, "product id")
	userID := flag.Int("user", 1, "user id to charge against")
	n := flag.Int("n", 200, "checkout attempts")
	concurrency := flag.Int("c", 50, "max concurrency")
	qty := flag.Int("qty", 1, "quantity per checkout")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	before, err := getStock(client, *baseURL, *productID)
	if err != nil {
		panic(fmt.Sprintf("read initial stock: %v", err))
	}
	fmt.Printf("start oversell test: product=%d stock=%d attempts=%d concurrency=%d qty=%d\n",
		*productID, before, *n, *concurrency, *qty)

	results := runCheckouts(client, *baseURL, *productID, *userID, *n, *concurrency, *qty)
	printSummary("oversell", results)

	after, err := getStock(client, *baseURL, *productID)
	if err != nil {
		fmt.Println("stock check err:", err)
		return
	}
	committed := countStatus(results, http.StatusOK)
	fmt.Printf("final stock: %d (was %d), committed=%d\n", after, before, committed)
	if after < 0 {
		fmt.Println("FAIL: stock went negative")
		return
	}
	if int64(committed*(*qty)) != before-after {
		fmt.Println("FAIL: committed quantity does not match stock delta")
		return
	}
	fmt.Println("OK: no oversell observed")
}

// runCheckouts 每次尝试都完整走一遍「开会话 → 加购 → 结账」。
func runCheckouts(client *http.Client, baseURL string, productID, userID, n, concurrency, qty int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = oneCheckout(client, baseURL, productID, userID, qty)
		}(i)
	}
	wg.Wait()
	return results
}

func oneCheckout(client *http.Client, baseURL string, productID, userID, qty int) Result {
	var opened struct {
		Data struct {
			CartID string `json:"cart_id"`
		} `json:"data"`
	}
	if res := postJSON(client, baseURL+"/api/carts", nil, &opened); res.Err != nil || res.Status != http.StatusOK {
		return res
	}
	cartID := opened.Data.CartID

	addBody := map[string]any{"product_id": productID, "quantity": qty}
	if res := postJSON(client, fmt.Sprintf("%s/api/carts/%s/lines", baseURL, cartID), addBody, nil); res.Err != nil || res.Status != http.StatusOK {
		return res
	}

	checkoutBody := map[string]any{"cart_id": cartID, "user_id": userID}
	return postJSON(client, baseURL+"/api/checkout", checkoutBody, nil)
}

func postJSON(client *http.Client, url string, body any, out any) Result {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return Result{Err: err}
		}
	}
	resp, err := client.Post(url, "application/json", &buf)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if out != nil {
		_ = json.Unmarshal(b, out)
	}
	return Result{Status: resp.StatusCode, Body: string(b)}
}

func getStock(client *http.Client, baseURL string, productID int) (int64, error) {
	resp, err := client.Get(fmt.Sprintf("%s/api/products/%d/stock", baseURL, productID))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	var out struct {
		Data struct {
			Stock int64 `json:"stock"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Data.Stock, nil
}

func countStatus(results []Result, status int) int {
	n := 0
	for _, r := range results {
		if r.Status == status {
			n++
		}
	}
	return n
}

func printSummary(name string, results []Result) {
	counts := map[int]int{}
	errs := 0
	for _, r := range results {
		if r.Err != nil {
			errs++
			continue
		}
		counts[r.Status]++
	}
	fmt.Printf("[%s] total=%d errors=%d\n", name, len(results), errs)
	for status, n := range counts {
		fmt.Printf("  HTTP %d: %d\n", status, n)
	}
}
