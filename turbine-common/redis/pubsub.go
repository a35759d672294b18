package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"windturbine/turbine-common/config"
	"windturbine/turbine-common/pubsub"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	minCheckTimeout = 50 * time.Millisecond
	maxCheckTimeout = 2 * time.Second
)

// checkTimeout 单次拨号或 PING 的上限，跟随重连间隔
func checkTimeout(interval time.Duration) time.Duration {
	switch {
	case interval <= 0 || interval > maxCheckTimeout:
		return maxCheckTimeout
	case interval < minCheckTimeout:
		return minCheckTimeout
	default:
		return interval
	}
}

// Broker 基于 Redis Pub/Sub 的消息通道
// Redis Pub/Sub 本身不持久化，断线期间的消息会丢失。
type Broker struct {
	client   *redis.Client
	interval time.Duration
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	subs map[string]context.CancelFunc

	state pubsub.ConnState
}

// NewBroker 创建 Redis 通道；不在创建时强制连接
// 后台按重连间隔 PING，IsConnected 读取最近一次结果。
func NewBroker(cfg *config.RedisConfig, reconnectInterval time.Duration, logger *zap.Logger) *Broker {
	timeout := checkTimeout(reconnectInterval)
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: timeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	b := &Broker{
		client:   client,
		interval: reconnectInterval,
		logger:   logger.With(zap.String("broker", cfg.Addr)),
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[string]context.CancelFunc),
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.state.Watch(ctx, reconnectInterval, timeout, func(ctx context.Context) error {
			return b.client.Ping(ctx).Err()
		})
	}()
	return b
}

// Publish 发布消息
func (b *Broker) Publish(ctx context.Context, topic string, payload []byte) error {
	if b.ctx.Err() != nil {
		return pubsub.ErrClosed
	}
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		if ctx.Err() == nil {
			b.state.Set(false)
		}
		return fmt.Errorf("failed to publish to channel %s: %w", topic, err)
	}
	b.state.Set(true)
	return nil
}

// Subscribe 在后台订阅频道，直到 Unsubscribe 或 Close
// 订阅生命周期绑定在 Broker 上，而不是调用方的 ctx。
func (b *Broker) Subscribe(_ context.Context, topic string, handler pubsub.Handler) error {
	if b.ctx.Err() != nil {
		return pubsub.ErrClosed
	}

	subCtx, cancel := context.WithCancel(b.ctx)

	b.mu.Lock()
	if prev, ok := b.subs[topic]; ok {
		prev()
	}
	b.subs[topic] = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go b.run(subCtx, topic, handler)
	return nil
}

func (b *Broker) run(ctx context.Context, topic string, handler pubsub.Handler) {
	defer b.wg.Done()

	for ctx.Err() == nil {
		var ps *redis.PubSub
		err := pubsub.RetryEvery(ctx, b.interval, func(ctx context.Context) error {
			ps = b.client.Subscribe(ctx, topic)
			if _, err := ps.Receive(ctx); err != nil {
				_ = ps.Close()
				return err
			}
			return nil
		}, func(attempt int, err error) {
			b.state.Set(false)
			b.logger.Warn("Redis subscribe failed, retrying",
				zap.String("channel", topic),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		})
		if err != nil {
			return
		}

		b.state.Set(true)
		b.logger.Info("Subscribed to Redis channel", zap.String("channel", topic))
		b.consume(ctx, ps, handler)
		_ = ps.Close()
	}
}

// consume 读取消息直到 ctx 取消或通道关闭
func (b *Broker) consume(ctx context.Context, ps *redis.PubSub, handler pubsub.Handler) {
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				b.logger.Warn("Redis subscription channel closed, resubscribing")
				return
			}
			if err := handler(msg.Channel, []byte(msg.Payload)); err != nil {
				b.logger.Warn("Error handling Redis message",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
			}
		}
	}
}

// Unsubscribe 取消订阅
func (b *Broker) Unsubscribe(topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		if cancel, ok := b.subs[t]; ok {
			cancel()
			delete(b.subs, t)
		}
	}
	return nil
}

// IsConnected 返回缓存的连接状态，不阻塞
func (b *Broker) IsConnected() bool {
	return b.ctx.Err() == nil && b.state.Connected()
}

// Close 停止所有订阅和探测并关闭连接
func (b *Broker) Close() error {
	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

var _ pubsub.Broker = (*Broker)(nil)
