package rbld

type lruCache struct {
	maxItems   int
	items      map[cacheKey]*cacheItem
	head, tail *cacheItem
}

type cacheItem struct {
	Key        cacheKey
	Entry      *CacheEntry
	prev, next *cacheItem
}

// cacheKey identifies an L1/L2 cache entry: the canonical form of the
// queried IP together with the RBL zone host it was checked against.
type cacheKey struct {
	IP      string
	RBLHost string
}

func newLRUCache(capacity int) *lruCache {
	head := new(cacheItem)
	tail := new(cacheItem)
	head.next = tail
	tail.prev = head

	return &lruCache{
		maxItems: capacity,
		items:    make(map[cacheKey]*cacheItem),
		head:     head,
		tail:     tail,
	}
}

func (c *lruCache) add(key cacheKey, entry *CacheEntry) {
	item := c.touch(key)
	if item != nil {
		item.Entry = entry
		return
	}
	item = &cacheItem{
		Key:   key,
		Entry: entry,
		next:  c.head.next,
		prev:  c.head,
	}
	c.head.next.prev = item
	c.head.next = item
	c.items[key] = item
	c.resize()
}

// touch loads a cache item and moves it to the top of the list (most
// recently used).
func (c *lruCache) touch(key cacheKey) *cacheItem {
	item := c.items[key]
	if item == nil {
		return nil
	}
	item.prev.next = item.next
	item.next.prev = item.prev
	item.next = c.head.next
	item.prev = c.head
	c.head.next.prev = item
	c.head.next = item
	return item
}

func (c *lruCache) delete(key cacheKey) {
	item := c.items[key]
	if item == nil {
		return
	}
	item.prev.next = item.next
	item.next.prev = item.prev
	delete(c.items, key)
}

func (c *lruCache) get(key cacheKey) *CacheEntry {
	item := c.touch(key)
	if item != nil {
		return item.Entry
	}
	return nil
}

// resize shrinks the cache down to the maximum number of items, evicting
// the least-recently used entries first. A maxItems of 0 means unlimited.
func (c *lruCache) resize() {
	if c.maxItems <= 0 {
		return
	}
	drop := len(c.items) - c.maxItems
	for i := 0; i < drop; i++ {
		item := c.tail.prev
		item.prev.next = c.tail
		c.tail.prev = item.prev
		delete(c.items, item.Key)
	}
}

func (c *lruCache) reset() {
	head := new(cacheItem)
	tail := new(cacheItem)
	head.next = tail
	tail.prev = head

	c.head = head
	c.tail = tail
	c.items = make(map[cacheKey]*cacheItem)
}

// deleteFunc iterates over cached entries and deletes any for which f
// returns true, returning the number deleted.
func (c *lruCache) deleteFunc(f func(*CacheEntry) bool) int {
	var removed int
	item := c.head.next
	for item != c.tail {
		next := item.next
		if f(item.Entry) {
			item.prev.next = item.next
			item.next.prev = item.prev
			delete(c.items, item.Key)
			removed++
		}
		item = next
	}
	return removed
}

func (c *lruCache) size() int {
	return len(c.items)
}
