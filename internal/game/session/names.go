package session

import (
	"fmt"
	"sync/atomic"
)

// DefaultNameMax is the anonymous-name ceiling used when none is configured.
const DefaultNameMax = 1000

// NameCounter generates the rotating AnonymousN display names. It yields
// 1..max and then starts again at 1. Safe for concurrent use.
type NameCounter struct {
	max uint64
	n   atomic.Uint64
}

// NewNameCounter creates a counter starting before 1.
//
// Postcondition: max <= 0 selects DefaultNameMax.
func NewNameCounter(max int) *NameCounter {
	if max <= 0 {
		max = DefaultNameMax
	}
	return &NameCounter{max: uint64(max)}
}

// Next atomically advances the counter and returns the new value in [1, max].
func (c *NameCounter) Next() int {
	for {
		cur := c.n.Load()
		next := cur + 1
		if cur >= c.max {
			next = 1
		}
		if c.n.CompareAndSwap(cur, next) {
			return int(next)
		}
	}
}

// Anonymous returns the next generated display name.
func (c *NameCounter) Anonymous() string {
	return fmt.Sprintf("Anonymous%d", c.Next())
}
