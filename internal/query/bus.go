package query

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"dev365-portal/internal/redis"
)

// InvalidationChannel is the Redis channel carrying invalidated keys
const InvalidationChannel = "dev365:cache:invalidate"

type invalidationMessage struct {
	Origin string   `json:"origin"`
	Keys   []string `json:"keys"`
}

// ErrorHandler is told about bus messages that could not be applied or sent
type ErrorHandler func(err error)

// Bus propagates invalidations between portal instances over Redis pub/sub.
// Messages sent by this instance are ignored on receipt.
type Bus struct {
	client     *redis.Client
	subscriber *redis.Subscriber
	cache      *Cache
	instance   string
	onError    ErrorHandler
}

// NewBus wires cache to client. Call Start to begin receiving.
func NewBus(client *redis.Client, cache *Cache, onError ErrorHandler) *Bus {
	b := &Bus{
		client:   client,
		cache:    cache,
		instance: uuid.NewString(),
		onError:  onError,
	}
	b.subscriber = redis.NewSubscriber(client.GetRawClient())
	b.subscriber.AddHandler(InvalidationChannel, func(_ string, payload string) {
		if err := b.handle(context.Background(), payload); err != nil && b.onError != nil {
			b.onError(err)
		}
	})
	cache.SetPublisher(b, onError)
	return b
}

// Instance returns the id this process stamps on its messages
func (b *Bus) Instance() string {
	return b.instance
}

// Start subscribes to the invalidation channel
func (b *Bus) Start() error {
	return b.subscriber.Start()
}

// Stop unsubscribes
func (b *Bus) Stop() {
	b.subscriber.Stop()
}

// PublishInvalidation implements Publisher
func (b *Bus) PublishInvalidation(ctx context.Context, keys []string) error {
	payload, err := encodeInvalidation(b.instance, keys)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, InvalidationChannel, payload)
}

func (b *Bus) handle(ctx context.Context, payload string) error {
	msg, err := decodeInvalidation(payload)
	if err != nil {
		return err
	}
	if msg.Origin == b.instance {
		return nil
	}
	return b.cache.ApplyRemoteInvalidation(ctx, msg.Keys)
}

func encodeInvalidation(origin string, keys []string) (string, error) {
	raw, err := json.Marshal(invalidationMessage{Origin: origin, Keys: keys})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeInvalidation(payload string) (invalidationMessage, error) {
	var msg invalidationMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return msg, fmt.Errorf("decode invalidation message: %w", err)
	}
	return msg, nil
}
