package work

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheEntry struct {
	solution   Solution
	difficulty Difficulty
}

// WorkCache is a bounded, thread safe map from root to the best known
// solution for it. Entries are evicted in least recently used order.
//
// A store with a lower difficulty than the cached entry keeps the cached
// solution but still counts as a use of the entry.
type WorkCache struct {
	lock    sync.Mutex
	lru     *lru.Cache[Root, cacheEntry]
	metrics *Metrics
}

// NewWorkCache creates a WorkCache holding at most capacity roots.
func NewWorkCache(capacity int) (*WorkCache, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCacheCapacity
	}
	l, err := lru.New[Root, cacheEntry](capacity)
	if err != nil {
		return nil, err
	}
	return &WorkCache{lru: l}, nil
}

// SetMetrics sets the metrics that record lookups. Nil disables them.
func (c *WorkCache) SetMetrics(m *Metrics) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.metrics = m
}

// Store records solution for root. An existing entry with a higher difficulty
// is kept, otherwise it is replaced. Either way the root becomes the most
// recently used.
func (c *WorkCache) Store(root Root, solution Solution, difficulty Difficulty) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if old, ok := c.lru.Get(root); ok && difficulty < old.difficulty {
		return
	}
	c.lru.Add(root, cacheEntry{solution: solution, difficulty: difficulty})
}

// StoreResult stores a generated result with the difficulty it achieved.
func (c *WorkCache) StoreResult(result *Result) {
	c.Store(result.Root, result.Solution, result.AchievedDifficulty())
}

// Get returns the cached solution for root if its difficulty is at least
// minimum. A miss, including an entry below minimum, leaves recency
// untouched.
func (c *WorkCache) Get(root Root, minimum Difficulty) (Solution, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	entry, ok := c.lru.Peek(root)
	if !ok || entry.difficulty < minimum {
		c.metrics.observeCacheLookup(false)
		return 0, false
	}
	c.lru.Get(root)
	c.metrics.observeCacheLookup(true)
	return entry.solution, true
}

// Len returns the number of cached roots.
func (c *WorkCache) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.lru.Len()
}

// Purge removes every entry.
func (c *WorkCache) Purge() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.lru.Purge()
}

// Generate returns a cached solution for root meeting difficulty, or
// generates one with g, stores it and returns it.
func (c *WorkCache) Generate(ctx context.Context, g Generator, root Root, difficulty Difficulty) (Solution, error) {
	if solution, ok := c.Get(root, difficulty); ok {
		return solution, nil
	}

	h, err := g.Generate(root, difficulty)
	if err != nil {
		return 0, err
	}
	result, err := h.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			h.Cancel()
		}
		return 0, err
	}

	c.StoreResult(result)
	return result.Solution, nil
}
