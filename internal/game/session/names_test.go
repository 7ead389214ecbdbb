package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestNameCounter_Wraps(t *testing.T) {
	c := NewNameCounter(3)
	got := []int{c.Next(), c.Next(), c.Next(), c.Next(), c.Next()}
	assert.Equal(t, []int{1, 2, 3, 1, 2}, got)
}

func TestNameCounter_Anonymous(t *testing.T) {
	c := NewNameCounter(0)
	assert.Equal(t, "Anonymous1", c.Anonymous())
	assert.Equal(t, "Anonymous2", c.Anonymous())
}

func TestNameCounter_ConcurrentCallsGetDistinctValues(t *testing.T) {
	c := NewNameCounter(1000)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int]int)
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				n := c.Next()
				mu.Lock()
				seen[n]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 500)
	for n, count := range seen {
		assert.Equal(t, 1, count, "value %d handed out twice", n)
	}
}

// Property: the k-th call returns ((k-1) mod max) + 1.
func TestPropertyNameCounter_Sequence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		max := rapid.IntRange(1, 50).Draw(t, "max")
		calls := rapid.IntRange(1, 200).Draw(t, "calls")
		c := NewNameCounter(max)
		for k := 1; k <= calls; k++ {
			want := (k-1)%max + 1
			if got := c.Next(); got != want {
				t.Fatalf("call %d: got %d, want %d", k, got, want)
			}
		}
	})
}

func TestIsStale(t *testing.T) {
	ps := PlayerSession{}
	now := ps.LastActivityAt.Add(DefaultStaleAfter)
	assert.False(t, IsStale(ps, now, DefaultStaleAfter), "exactly at the threshold is not stale")
	assert.True(t, IsStale(ps, now.Add(1), DefaultStaleAfter))
}
