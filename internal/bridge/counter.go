package bridge

import "sync/atomic"

// PresenceCounter tracks connected clients. It is never clamped: a
// Decrement without a matching Increment reports a negative value.
type PresenceCounter struct {
	n atomic.Int64
}

// NewPresenceCounter returns a counter starting at zero.
func NewPresenceCounter() *PresenceCounter {
	return &PresenceCounter{}
}

// Increment adds one and returns the new value.
func (c *PresenceCounter) Increment() int64 {
	return c.n.Add(1)
}

// Decrement subtracts one and returns the new value.
func (c *PresenceCounter) Decrement() int64 {
	return c.n.Add(-1)
}

// Load returns the current count.
func (c *PresenceCounter) Load() int64 {
	return c.n.Load()
}
