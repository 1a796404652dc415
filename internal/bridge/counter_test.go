package bridge

import (
	"sync"
	"testing"
)

func TestPresenceCounterSequential(t *testing.T) {
	c := NewPresenceCounter()

	if got := c.Increment(); got != 1 {
		t.Errorf("Increment() = %d, want 1", got)
	}
	if got := c.Increment(); got != 2 {
		t.Errorf("Increment() = %d, want 2", got)
	}
	if got := c.Decrement(); got != 1 {
		t.Errorf("Decrement() = %d, want 1", got)
	}
	if got := c.Load(); got != 1 {
		t.Errorf("Load() = %d, want 1", got)
	}
}

func TestPresenceCounterGoesNegative(t *testing.T) {
	c := NewPresenceCounter()
	if got := c.Decrement(); got != -1 {
		t.Errorf("Decrement() on zero = %d, want -1", got)
	}
	if got := c.Increment(); got != 0 {
		t.Errorf("Increment() = %d, want 0", got)
	}
}

func TestPresenceCounterConcurrent(t *testing.T) {
	const registers, disconnects = 500, 180
	c := NewPresenceCounter()

	var wg sync.WaitGroup
	for i := 0; i < registers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Increment()
		}()
	}
	for i := 0; i < disconnects; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Decrement()
		}()
	}
	wg.Wait()

	if got := c.Load(); got != registers-disconnects {
		t.Errorf("Load() = %d, want %d", got, registers-disconnects)
	}
}

func TestPresenceCounterIncrementsAreDistinct(t *testing.T) {
	const n = 1000
	c := NewPresenceCounter()

	results := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.Increment()
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool, n)
	for v := range results {
		if v < 1 || v > n {
			t.Fatalf("Increment returned %d, outside 1..%d", v, n)
		}
		if seen[v] {
			t.Fatalf("Increment returned %d twice", v)
		}
		seen[v] = true
	}
}
