package bypass

import (
	"sync"
	"testing"
)

func TestCatalog_Swap(t *testing.T) {
	first := newTestRegistry(t)
	c := NewCatalog(first)

	if _, err := c.Resolve("encoding", "hex"); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	prev := c.Swap(first.Without([]string{"encoding/hex"}))
	if prev != first {
		t.Error("Swap should return the previous registry")
	}
	if _, err := c.Resolve("encoding", "hex"); err == nil {
		t.Error("expected hex to be gone after swap")
	}
	if got := c.Categories(); len(got) != 2 {
		t.Errorf("Categories() = %v", got)
	}
}

func TestCatalog_ConcurrentReadsDuringSwap(t *testing.T) {
	base := newTestRegistry(t)
	c := NewCatalog(base)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snap := c.Snapshot()
				// A snapshot is internally consistent whichever registry it is.
				names := snap.List("encoding")["encoding"]
				if len(names) != 1 && len(names) != 2 {
					t.Errorf("inconsistent snapshot: %v", names)
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			c.Swap(base.Without([]string{"encoding/hex"}))
		} else {
			c.Swap(base)
		}
	}
	wg.Wait()
}
