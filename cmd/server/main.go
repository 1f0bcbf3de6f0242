package main

import (
	"context"
	"os/signal"
	"syscall"

	"grocery_pos/internal/cart"
	"grocery_pos/internal/catalog"
	"grocery_pos/internal/checkout"
	"grocery_pos/internal/config"
	"grocery_pos/internal/history"
	"grocery_pos/internal/model"
	"grocery_pos/internal/queue"
	"grocery_pos/internal/router"
	posredis "grocery_pos/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// .env 仅开发环境存在，缺失不算错。
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// 1. 连接 SQLite，自动建表
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Product{}, &model.Order{}, &model.OrderLine{}); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	// 2. Redis：展示库存缓存、结账限流、销售事件 outbox
	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	cache := posredis.NewStockCache(rdb, cfg.StockCacheTTL)
	outbox := queue.NewOutbox(rdb, cfg.SaleEventStream)

	// 3. Relay：Stream → Kafka，随进程退出优雅停止
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()
	relay := queue.NewRelay(rdb, producer, log, cfg.SaleEventStream, cfg.SaleEventGroup, cfg.SaleEventConsumer)
	go relay.Run(ctx)

	// 4. 组件装配：显式传递共享的存储句柄，不走全局状态
	store := catalog.NewStore(db, cache)
	sessions := cart.NewSessions()
	co := checkout.NewCoordinator(db, outbox, cache, log)
	agg := history.NewAggregator(db)

	r := gin.Default()
	router.Setup(r, store, sessions, co, agg, rdb, cfg)

	log.WithField("addr", cfg.HTTPAddr).Info("grocery_pos server starting")
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("http server: %v", err)
	}
}
