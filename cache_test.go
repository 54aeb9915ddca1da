package work

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkCacheOverwrite(t *testing.T) {
	c, err := NewWorkCache(4)
	require.NoError(t, err)

	root := Root{1}
	c.Store(root, 1, 10)
	c.Store(root, 2, 5)

	s, ok := c.Get(root, 10)
	require.True(t, ok)
	assert.Equal(t, Solution(1), s)

	_, ok = c.Get(root, 11)
	assert.False(t, ok)

	s, ok = c.Get(root, 5)
	require.True(t, ok)
	assert.Equal(t, Solution(1), s, "a lower difficulty does not replace the entry")

	c.Store(root, 3, 10)
	s, ok = c.Get(root, 10)
	require.True(t, ok)
	assert.Equal(t, Solution(3), s, "an equal difficulty replaces the entry")

	c.Store(root, 4, 20)
	s, ok = c.Get(root, 0)
	require.True(t, ok)
	assert.Equal(t, Solution(4), s)
	assert.Equal(t, 1, c.Len())
}

func TestWorkCacheEviction(t *testing.T) {
	const capacity = 3
	tests := []struct {
		name    string
		touch   func(c *WorkCache)
		evicted Root
	}{
		{"oldest store", func(c *WorkCache) {}, Root{0}},
		{"get touches", func(c *WorkCache) { c.Get(Root{0}, 0) }, Root{1}},
		{"lower store touches", func(c *WorkCache) { c.Store(Root{0}, 9, 0) }, Root{1}},
		{"miss does not touch", func(c *WorkCache) { c.Get(Root{0}, 100) }, Root{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewWorkCache(capacity)
			require.NoError(t, err)
			for i := 0; i < capacity; i++ {
				c.Store(Root{byte(i)}, Solution(i), 10)
			}
			tt.touch(c)
			c.Store(Root{capacity}, capacity, 10)

			assert.Equal(t, capacity, c.Len())
			_, ok := c.Get(tt.evicted, 0)
			assert.False(t, ok, "%s should be evicted", tt.evicted)
			for i := 0; i <= capacity; i++ {
				if root := (Root{byte(i)}); root != tt.evicted {
					_, ok := c.Get(root, 0)
					assert.True(t, ok, "%s should be cached", root)
				}
			}
		})
	}
}

func TestWorkCacheInvalidCapacity(t *testing.T) {
	_, err := NewWorkCache(0)
	assert.ErrorIs(t, err, ErrInvalidCacheCapacity)
	_, err = NewWorkCache(-1)
	assert.ErrorIs(t, err, ErrInvalidCacheCapacity)
}

func TestWorkCacheStoreResult(t *testing.T) {
	c, err := NewWorkCache(1)
	require.NoError(t, err)

	root := testRoot(t)
	c.StoreResult(&Result{Solution: testWork, Root: root, Difficulty: DifficultyV1, Multiplier: 1})

	s, ok := c.Get(root, testWorkDiff)
	require.True(t, ok, "the achieved difficulty is stored")
	assert.Equal(t, testWork, s)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestWorkCacheConcurrent(t *testing.T) {
	c, err := NewWorkCache(16)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				root := Root{byte(j % 32)}
				c.Store(root, Solution(i), Difficulty(j))
				c.Get(root, Difficulty(j))
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 16)
}

func TestWorkCacheGenerate(t *testing.T) {
	s := &testSearcher{}
	g := newTestGenerator(t, s, nil)
	c, err := NewWorkCache(8)
	require.NoError(t, err)

	metrics, err := NewMetrics(nil)
	require.NoError(t, err)
	c.SetMetrics(metrics)

	ctx := context.Background()
	first, err := c.Generate(ctx, g, Root{1}, testDifficultyLow)
	require.NoError(t, err)
	second, err := c.Generate(ctx, g, Root{1}, testDifficultyLow)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, s.roots(), 1, "second call is answered from the cache")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("hit")))

	errSearch := errors.New("search failed")
	failing := newTestGenerator(t, &testSearcher{err: errSearch}, nil)
	_, err = c.Generate(ctx, failing, Root{2}, testDifficultyLow)
	assert.ErrorIs(t, err, errSearch)
	assert.Equal(t, 1, c.Len())
}

func TestWorkCacheGenerateCancel(t *testing.T) {
	blocked := newBlockingSearcher()
	g := newTestGenerator(t, blocked, nil)
	c, err := NewWorkCache(8)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := c.Generate(ctx, g, Root{1}, testDifficultyLow)
		errs <- err
	}()
	blocked.waitStarted(t)
	cancel()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("generate did not return")
	}
	assert.Equal(t, Root{1}, blocked.waitCancelled(t), "the abandoned request is cancelled")
	assert.Equal(t, 0, c.Len())
}

func ExampleWorkCache() {
	c, _ := NewWorkCache(128)
	root := Root{1}
	c.Store(root, 0x1111, 0xff00000000000000)
	c.Store(root, 0x2222, 0xf000000000000000)

	s, ok := c.Get(root, 0xff00000000000000)
	fmt.Println(s, ok)
	// Output: 0000000000001111 true
}
