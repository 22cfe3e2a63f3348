// Package query is the cached read and invalidating write layer between
// the portal handlers and the backend API client.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"dev365-portal/internal/clock"
)

// EventType says what happened to a key
type EventType int

const (
	// EventUpdated a fresh value was stored
	EventUpdated EventType = iota
	// EventInvalidated the value was marked stale
	EventInvalidated
	// EventFailed a fetch for the key returned an error
	EventFailed
)

func (t EventType) String() string {
	switch t {
	case EventUpdated:
		return "updated"
	case EventInvalidated:
		return "invalidated"
	case EventFailed:
		return "failed"
	}
	return "unknown"
}

// Event is delivered to subscribers of a key
type Event struct {
	Key  Key
	Type EventType
	Err  error
}

// Observer receives cache activity, labelled by key namespace
type Observer interface {
	CacheHit(namespace string)
	CacheMiss(namespace string)
	CacheInvalidated(namespace string)
}

// Publisher broadcasts invalidated keys to other processes sharing the store
type Publisher interface {
	PublishInvalidation(ctx context.Context, keys []string) error
}

type subscription struct {
	ch chan Event
}

type invalidationMark struct {
	seq uint64
	at  time.Time
}

// Cache is the process-wide query cache. It is created explicitly and
// passed to whoever needs it.
type Cache struct {
	store     Store
	clock     clock.Clock
	staleTime time.Duration
	observer  Observer
	publisher Publisher

	// onPublishError hears about broadcasts that did not go out
	onPublishError ErrorHandler

	group singleflight.Group

	mu    sync.Mutex
	seq   uint64
	marks map[string]invalidationMark
	subs  map[string]map[*subscription]struct{}
}

// CacheOption configures a Cache
type CacheOption func(*Cache)

// WithStore sets the backing store, in memory by default
func WithStore(s Store) CacheOption {
	return func(c *Cache) { c.store = s }
}

// WithClock sets the clock used for freshness
func WithClock(clk clock.Clock) CacheOption {
	return func(c *Cache) { c.clock = clk }
}

// WithStaleTime sets how long a fetched value is served without refetching
func WithStaleTime(d time.Duration) CacheOption {
	return func(c *Cache) { c.staleTime = d }
}

// WithObserver reports hits, misses and invalidations
func WithObserver(o Observer) CacheOption {
	return func(c *Cache) { c.observer = o }
}

// WithPublisher broadcasts every local invalidation
func WithPublisher(p Publisher) CacheOption {
	return func(c *Cache) { c.publisher = p }
}

// WithPublishErrorHandler receives broadcasts that failed after the local
// invalidation succeeded
func WithPublishErrorHandler(h ErrorHandler) CacheOption {
	return func(c *Cache) { c.onPublishError = h }
}

// NewCache creates a cache
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		store:     NewMemoryStore(),
		clock:     clock.System,
		staleTime: 30 * time.Second,
		marks:     make(map[string]invalidationMark),
		subs:      make(map[string]map[*subscription]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetPublisher attaches a publisher after construction. onErr may be nil.
func (c *Cache) SetPublisher(p Publisher, onErr ErrorHandler) {
	c.mu.Lock()
	c.publisher = p
	if onErr != nil {
		c.onPublishError = onErr
	}
	c.mu.Unlock()
}

// Fetcher loads a value from the network
type Fetcher[T any] func(ctx context.Context) (T, error)

type fetchOptions struct {
	staleTime *time.Duration
}

// FetchOption tunes a single Fetch
type FetchOption func(*fetchOptions)

// MaxAge overrides the cache stale time for one read; zero always refetches
func MaxAge(d time.Duration) FetchOption {
	return func(o *fetchOptions) { o.staleTime = &d }
}

// Fetch returns the cached value for key while it is fresh, otherwise calls
// fn. Concurrent misses of one key share a single call to fn. A failed fetch
// leaves the cache untouched.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fn Fetcher[T], opts ...FetchOption) (T, error) {
	var zero T
	o := fetchOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	staleTime := c.staleTime
	if o.staleTime != nil {
		staleTime = *o.staleTime
	}

	k := key.String()
	now := c.clock.Now()

	if e, ok, err := c.store.Get(ctx, k); err == nil && ok && c.fresh(e, now, staleTime) {
		var v T
		if err := json.Unmarshal(e.Data, &v); err == nil {
			_ = c.store.Touch(ctx, k, now)
			if c.observer != nil {
				c.observer.CacheHit(key.Namespace())
			}
			return v, nil
		}
	}

	if c.observer != nil {
		c.observer.CacheMiss(key.Namespace())
	}

	raw, err, _ := c.group.Do(k, func() (interface{}, error) {
		startSeq := c.currentSeq()
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode cache entry %s: %w", k, err)
		}
		fetchedAt := c.clock.Now()
		entry := &Entry{
			Data:        data,
			FetchedAt:   fetchedAt,
			LastAccess:  fetchedAt,
			Invalidated: c.invalidatedSince(k, startSeq),
		}
		if err := c.store.Set(ctx, k, entry); err != nil {
			return nil, fmt.Errorf("store cache entry %s: %w", k, err)
		}
		// an invalidation that ran between the check above and Set may have
		// found nothing to mark; flag the stored result here instead
		if !entry.Invalidated && c.invalidatedSince(k, startSeq) {
			if err := c.store.MarkInvalidated(ctx, k); err != nil {
				return nil, err
			}
		}
		c.notify(key, Event{Key: key, Type: EventUpdated})
		return []byte(data), nil
	})
	if err != nil {
		c.notify(key, Event{Key: key, Type: EventFailed, Err: err})
		return zero, err
	}

	var v T
	if err := json.Unmarshal(raw.([]byte), &v); err != nil {
		return zero, fmt.Errorf("decode cache entry %s: %w", k, err)
	}
	return v, nil
}

func (c *Cache) fresh(e *Entry, now time.Time, staleTime time.Duration) bool {
	if e.Invalidated || staleTime <= 0 {
		return false
	}
	return now.Sub(e.FetchedAt) < staleTime
}

func (c *Cache) currentSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// invalidatedSince reports whether k was invalidated after a fetch began,
// in which case the result is stored already stale
func (c *Cache) invalidatedSince(k string, startSeq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.marks[k]
	return ok && m.seq > startSeq
}

// Invalidate marks exactly the given keys stale. The next read of each goes
// to the network; an in-flight fetch of the key is no longer shared.
// Only a failure to mark the local store is returned. A failed broadcast is
// reported to the publish error handler, other instances then catch up when
// their copies go stale.
func (c *Cache) Invalidate(ctx context.Context, keys ...Key) error {
	encoded, err := c.invalidateLocal(ctx, keys)
	if err != nil {
		return err
	}
	c.mu.Lock()
	pub, onErr := c.publisher, c.onPublishError
	c.mu.Unlock()
	if pub != nil && len(encoded) > 0 {
		if err := pub.PublishInvalidation(ctx, encoded); err != nil && onErr != nil {
			onErr(fmt.Errorf("publish invalidation: %w", err))
		}
	}
	return nil
}

// InvalidatePrefix invalidates every stored key under prefix
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix Key) error {
	keys, err := c.store.Keys(ctx, prefix.String())
	if err != nil {
		return fmt.Errorf("list cache keys: %w", err)
	}
	matched := make([]Key, 0, len(keys))
	for _, raw := range keys {
		k, err := ParseKey(raw)
		if err != nil {
			continue
		}
		if k.HasPrefix(prefix) {
			matched = append(matched, k)
		}
	}
	return c.Invalidate(ctx, matched...)
}

// ApplyRemoteInvalidation handles keys invalidated by another process. It
// updates local bookkeeping and subscribers without publishing again.
func (c *Cache) ApplyRemoteInvalidation(ctx context.Context, encoded []string) error {
	keys := make([]Key, 0, len(encoded))
	for _, raw := range encoded {
		k, err := ParseKey(raw)
		if err != nil {
			return err
		}
		keys = append(keys, k)
	}
	_, err := c.invalidateLocal(ctx, keys)
	return err
}

func (c *Cache) invalidateLocal(ctx context.Context, keys []Key) ([]string, error) {
	encoded := make([]string, 0, len(keys))
	now := c.clock.Now()
	for _, key := range keys {
		k := key.String()
		encoded = append(encoded, k)

		c.mu.Lock()
		c.seq++
		c.marks[k] = invalidationMark{seq: c.seq, at: now}
		c.mu.Unlock()
		c.group.Forget(k)

		if err := c.store.MarkInvalidated(ctx, k); err != nil {
			return encoded, err
		}
		if c.observer != nil {
			c.observer.CacheInvalidated(key.Namespace())
		}
		c.notify(key, Event{Key: key, Type: EventInvalidated})
	}
	return encoded, nil
}

// Peek returns the stored entry for key without counting a read
func (c *Cache) Peek(ctx context.Context, key Key) (*Entry, bool, error) {
	return c.store.Get(ctx, key.String())
}

// IsFresh reports whether the next Fetch of key would be served from the cache
func (c *Cache) IsFresh(ctx context.Context, key Key) bool {
	e, ok, err := c.store.Get(ctx, key.String())
	return err == nil && ok && c.fresh(e, c.clock.Now(), c.staleTime)
}

// Subscribe returns a channel of events for key and a function that ends
// the subscription. Events are dropped for subscribers that fall behind.
func (c *Cache) Subscribe(key Key) (<-chan Event, func()) {
	sub := &subscription{ch: make(chan Event, 16)}
	k := key.String()

	c.mu.Lock()
	if c.subs[k] == nil {
		c.subs[k] = make(map[*subscription]struct{})
	}
	c.subs[k][sub] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs[k], sub)
			if len(c.subs[k]) == 0 {
				delete(c.subs, k)
			}
			c.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

func (c *Cache) notify(key Key, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sub := range c.subs[key.String()] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Reset drops every entry and all invalidation bookkeeping
func (c *Cache) Reset(ctx context.Context) error {
	c.mu.Lock()
	c.marks = make(map[string]invalidationMark)
	c.mu.Unlock()
	return c.store.Clear(ctx)
}

// GC removes entries nobody has read for longer than maxIdle and returns
// how many were dropped
func (c *Cache) GC(ctx context.Context, maxIdle time.Duration) (int, error) {
	now := c.clock.Now()
	keys, err := c.store.Keys(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list cache keys: %w", err)
	}

	var expired []string
	for _, k := range keys {
		e, ok, err := c.store.Get(ctx, k)
		if err != nil || !ok {
			continue
		}
		if now.Sub(e.LastAccess) > maxIdle {
			expired = append(expired, k)
		}
	}
	if len(expired) > 0 {
		if err := c.store.Delete(ctx, expired...); err != nil {
			return 0, fmt.Errorf("delete cache entries: %w", err)
		}
	}

	c.mu.Lock()
	for k, m := range c.marks {
		if now.Sub(m.at) > maxIdle {
			delete(c.marks, k)
		}
	}
	c.mu.Unlock()

	return len(expired), nil
}
