package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"dev365-portal/internal/logging"
)

// Subscriber Redis订阅者，用于监听其他实例广播的缓存失效消息
type Subscriber struct {
	client    *redis.Client
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	handlers  map[string]func(string, string)
	isRunning bool
	done      chan struct{}
}

// NewSubscriber 创建Redis订阅者实例
func NewSubscriber(client *redis.Client) *Subscriber {
	ctx, cancel := context.WithCancel(context.Background())
	return &Subscriber{
		client:   client,
		ctx:      ctx,
		cancel:   cancel,
		handlers: make(map[string]func(string, string)),
	}
}

// AddHandler 添加事件处理函数，需在Start之前调用
func (s *Subscriber) AddHandler(channel string, handler func(string, string)) {
	s.mu.Lock()
	s.handlers[channel] = handler
	s.mu.Unlock()
}

// Start 启动订阅者
func (s *Subscriber) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return fmt.Errorf("subscriber is already running")
	}
	if len(s.handlers) == 0 {
		return fmt.Errorf("subscriber has no handlers")
	}

	// 构建频道列表
	channels := make([]string, 0, len(s.handlers))
	for channel := range s.handlers {
		channels = append(channels, channel)
	}

	// 订阅频道并等待确认
	pubsub := s.client.Subscribe(s.ctx, channels...)
	if _, err := pubsub.Receive(s.ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe: %v", err)
	}

	s.isRunning = true
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		defer func() {
			if err := pubsub.Close(); err != nil {
				logging.DefaultLogger.Warn("Failed to close pubsub: %v", err)
			}
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			logging.DefaultLogger.Info("Redis subscriber stopped")
		}()

		logging.DefaultLogger.Info("Redis subscriber started on %v", channels)
		for {
			msg, err := pubsub.ReceiveMessage(s.ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || s.ctx.Err() != nil {
					return
				}
				logging.DefaultLogger.Warn("Failed to receive message: %v", err)
				continue
			}

			s.mu.Lock()
			handler, exists := s.handlers[msg.Channel]
			s.mu.Unlock()
			if exists {
				handler(msg.Channel, msg.Payload)
			}
		}
	}()

	return nil
}

// Stop 停止订阅者并等待接收循环退出
func (s *Subscriber) Stop() {
	s.cancel()
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Publish 发布消息到指定频道
func (s *Subscriber) Publish(ctx context.Context, channel, message string) error {
	return s.client.Publish(ctx, channel, message).Err()
}

// IsRunning 检查订阅者是否正在运行
func (s *Subscriber) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
