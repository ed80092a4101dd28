package enrol

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestCache(t *testing.T) {
	c := NewCache(2)
	if !c.TryMarkEnrolling("C1") {
		t.Error("first mark should succeed")
	}
	if c.TryMarkEnrolling("C1") {
		t.Error("second mark should fail")
	}

	// evict C1
	c.TryMarkEnrolling("C2")
	c.TryMarkEnrolling("C3")
	if have, want := c.Len(), 2; have != want {
		t.Errorf("len: have: %v, want: %v", have, want)
	}
	if !c.TryMarkEnrolling("C1") {
		t.Error("evicted identity should mark again")
	}
}

func TestCacheDefaultSize(t *testing.T) {
	c := NewCache(0)
	for i := 0; i < DefaultCacheSize+1; i++ {
		c.TryMarkEnrolling(fmt.Sprintf("C.%d", i))
	}
	if have, want := c.Len(), DefaultCacheSize; have != want {
		t.Errorf("len: have: %v, want: %v", have, want)
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := NewCache(10)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.TryMarkEnrolling("C1") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if have, want := wins.Load(), int32(1); have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}
