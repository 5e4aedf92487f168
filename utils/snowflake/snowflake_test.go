package snowflake

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Unique(t *testing.T) {
	g := NewGenerator(1)

	seen := make(map[int64]bool)
	for range 10000 {
		id := g.Next()
		require.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
}

func TestGenerator_Monotonic(t *testing.T) {
	g := NewGenerator(1)

	prev := g.Next()
	for range 1000 {
		id := g.Next()
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestGenerator_ConcurrentUnique(t *testing.T) {
	g := NewGenerator(2)

	const workers = 8
	const perWorker = 2000

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, perWorker)
			for range perWorker {
				local = append(local, g.Next())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				assert.False(t, seen[id])
				seen[id] = true
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestGenerator_NextString(t *testing.T) {
	g := NewGenerator(3)

	a := g.NextString()
	b := g.NextString()
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
	// 固定位宽，字典序不会在位数变化处断裂
	assert.Len(t, a, 19)
	assert.Len(t, b, 19)
}
