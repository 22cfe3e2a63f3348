package preview

import (
	"sync"
	"time"
)

// lruNode LRU缓存节点
type lruNode struct {
	key        string
	value      *Shot
	prev, next *lruNode
}

// lruCache 截图LRU缓存
type lruCache struct {
	capacity   int
	cache      map[string]*lruNode
	head, tail *lruNode
	mutex      sync.Mutex
}

// newLRUCache 创建新的LRU缓存
func newLRUCache(capacity int) *lruCache {
	if capacity <= 0 {
		capacity = 100
	}

	head := &lruNode{}
	tail := &lruNode{}
	head.next = tail
	tail.prev = head

	return &lruCache{
		capacity: capacity,
		cache:    make(map[string]*lruNode),
		head:     head,
		tail:     tail,
	}
}

func (c *lruCache) removeNode(node *lruNode) {
	node.prev.next = node.next
	node.next.prev = node.prev
}

func (c *lruCache) addToHead(node *lruNode) {
	node.next = c.head.next
	node.prev = c.head
	c.head.next.prev = node
	c.head.next = node
}

// get 获取未过期的截图并移到头部
func (c *lruCache) get(key string, ttl time.Duration, now time.Time) (*Shot, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	node, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	if ttl > 0 && now.Sub(node.value.CapturedAt) > ttl {
		c.removeNode(node)
		delete(c.cache, key)
		return nil, false
	}
	c.removeNode(node)
	c.addToHead(node)
	return node.value, true
}

// put 存入截图，容量满时淘汰最久未使用的
func (c *lruCache) put(key string, value *Shot) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if node, ok := c.cache[key]; ok {
		node.value = value
		c.removeNode(node)
		c.addToHead(node)
		return
	}

	if len(c.cache) >= c.capacity {
		removed := c.tail.prev
		c.removeNode(removed)
		delete(c.cache, removed.key)
	}

	node := &lruNode{key: key, value: value}
	c.addToHead(node)
	c.cache[key] = node
}

// remove 移除指定键
func (c *lruCache) remove(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if node, ok := c.cache[key]; ok {
		c.removeNode(node)
		delete(c.cache, key)
	}
}

// clearExpired 清理过期截图，返回清理数量
func (c *lruCache) clearExpired(ttl time.Duration, now time.Time) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	removed := 0
	for current := c.head.next; current != c.tail; {
		next := current.next
		if now.Sub(current.value.CapturedAt) > ttl {
			c.removeNode(current)
			delete(c.cache, current.key)
			removed++
		}
		current = next
	}
	return removed
}

func (c *lruCache) len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.cache)
}
