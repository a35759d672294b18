// Package pubsub 定义传输无关的发布/订阅通道。
//
// 具体实现见 turbine-common/mqtt、turbine-common/redis、turbine-common/kafka，
// 由 turbine-common/broker 按 BROKER_KIND 选择。
package pubsub

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var ErrClosed = errors.New("broker closed")

// Handler 消息处理函数类型
// 返回的错误只记录日志，不影响后续消息
type Handler func(topic string, payload []byte) error

// Broker 发布/订阅通道
type Broker interface {
	// Publish 发布消息（至少一次投递意图）
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe 订阅主题；连接断开后自动重新订阅
	Subscribe(ctx context.Context, topic string, handler Handler) error
	// Unsubscribe 取消订阅
	Unsubscribe(topics ...string) error
	// IsConnected 返回最近一次观测到的连接状态，不阻塞
	IsConnected() bool
	// Close 断开连接
	Close() error
}

// RetryEvery 以固定间隔重试 fn，直到成功或 ctx 取消；重试次数不限
// onErr 在每次失败后调用（可为 nil）
func RetryEvery(ctx context.Context, interval time.Duration, fn func(ctx context.Context) error, onErr func(attempt int, err error)) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if onErr != nil {
			onErr(attempt, err)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ConnState 缓存的连接状态
// IsConnected 只读这里，不在调用方的请求路径上做网络往返。
type ConnState struct {
	connected atomic.Bool
}

func (s *ConnState) Set(ok bool)     { s.connected.Store(ok) }
func (s *ConnState) Connected() bool { return s.connected.Load() }

// Watch 立即探测一次，之后每隔 interval 探测一次，直到 ctx 取消
// 单次探测限时 timeout；ctx 取消时不再更新状态
func (s *ConnState) Watch(ctx context.Context, interval, timeout time.Duration, check func(ctx context.Context) error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := check(checkCtx)
		cancel()
		if ctx.Err() != nil {
			return
		}
		s.Set(err == nil)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
