package registry

import (
	"container/list"
)

// lruKey identifies one memory-resident chat session.
type lruKey struct {
	userID    int64
	sessionID string
}

// lruCache keeps a recency-ordered list of live sessions and evicts the
// least-recently-touched ones once capacity is exceeded. It is only ever
// accessed from the executor goroutine, so it carries no lock. Eviction
// cascades through onEvict into the session registry; |index| == |list|
// holds after every operation.
type lruCache struct {
	capacity int
	order    *list.List               // front = most recently used
	index    map[string]*list.Element // sessionID -> node
	onEvict  func(userID int64, sessionID string)
}

func newLRUCache(capacity int, onEvict func(userID int64, sessionID string)) *lruCache {
	return &lruCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
		onEvict:  onEvict,
	}
}

// touch marks a session as just used: existing entries move to the front,
// new ones are inserted there. Runs eviction before returning.
func (c *lruCache) touch(userID int64, sessionID string) {
	if elem, ok := c.index[sessionID]; ok {
		c.order.MoveToFront(elem)
	} else {
		c.index[sessionID] = c.order.PushFront(lruKey{userID: userID, sessionID: sessionID})
	}
	c.evictIfOverCapacity()
}

// remove drops a session from the recency list without evicting anything.
func (c *lruCache) remove(sessionID string) {
	if elem, ok := c.index[sessionID]; ok {
		c.order.Remove(elem)
		delete(c.index, sessionID)
	}
}

// evictIfOverCapacity removes tail entries until the list fits, cascading
// each eviction to onEvict.
func (c *lruCache) evictIfOverCapacity() {
	for c.order.Len() > c.capacity {
		tail := c.order.Back()
		key := tail.Value.(lruKey)

		c.order.Remove(tail)
		delete(c.index, key.sessionID)

		if c.onEvict != nil {
			c.onEvict(key.userID, key.sessionID)
		}
	}
}

func (c *lruCache) len() int {
	return c.order.Len()
}
