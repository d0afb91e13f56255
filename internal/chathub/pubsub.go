package chathub

import (
	"context"
	"encoding/json"
	"strings"

	"rando/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannelPrefix = "rando:"

// RedisNotifier fans events out across instances through Redis Pub/Sub.
// Every instance, the publisher included, receives each event once via
// Listen and hands it to its local Broker.
type RedisNotifier struct {
	Redis *redis.Client
	local *Broker
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{Redis: rdb, local: NewBroker()}
}

func (n *RedisNotifier) Publish(ctx context.Context, topic string, ev models.Event) error {
	ev.Topic = topic
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.Redis.Publish(ctx, redisChannelPrefix+topic, payload).Err()
}

func (n *RedisNotifier) Subscribe(topic string, h Handler) func() {
	return n.local.Subscribe(topic, h)
}

// Listen pumps Redis messages into the local broker until ctx is done.
func (n *RedisNotifier) Listen(ctx context.Context) error {
	pubsub := n.Redis.PSubscribe(ctx, redisChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	zap.L().Info("redis notifier listening", zap.String("pattern", redisChannelPrefix+"*"))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev models.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				zap.L().Warn("dropping malformed redis event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			_ = n.local.Publish(ctx, strings.TrimPrefix(msg.Channel, redisChannelPrefix), ev)
		}
	}
}
