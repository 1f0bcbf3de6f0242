package queue

import (
	"context"
	"encoding/json"
	"fmt"

	rd "github.com/redis/go-redis/v9"
)

// Outbox 把销售事件写进 Redis Stream，由 Relay 异步转发 Kafka。
// 事件只在 DB 事务提交之后写入；Stream 在 Redis 侧持久排队，
// Kafka 短暂不可用时事件不会丢。
type Outbox struct {
	rdb    *rd.Client
	stream string
}

func NewOutbox(rdb *rd.Client, stream string) *Outbox {
	return &Outbox{rdb: rdb, stream: stream}
}

// Publish 序列化事件并 XADD 入流。
func (o *Outbox) Publish(ctx context.Context, msg SaleMessage) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid sale message: %w", err)
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		Values: map[string]interface{}{"payload": string(b)},
	}).Err()
}
