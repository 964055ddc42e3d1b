package live

import (
	"sync"
	"testing"
)

func TestChainFirstCallHasNoPrevious(t *testing.T) {
	c := NewChain()
	current, previous := c.Next("b1")
	if current == "" {
		t.Fatal("expected a fingerprint")
	}
	if previous != "" {
		t.Fatalf("expected empty previous, got %s", previous)
	}
}

func TestChainContinuity(t *testing.T) {
	c := NewChain()
	last := ""
	for i := 0; i < 50; i++ {
		current, previous := c.Next("b1")
		if previous != last {
			t.Fatalf("call %d: previous %s does not chain to %s", i, previous, last)
		}
		if current == previous {
			t.Fatalf("call %d: fingerprint not advanced", i)
		}
		last = current
	}
}

func TestChainBoardsAreIndependent(t *testing.T) {
	c := NewChain()
	a1, _ := c.Next("a")
	b1, _ := c.Next("b")
	_, aPrev := c.Next("a")
	_, bPrev := c.Next("b")
	if aPrev != a1 || bPrev != b1 {
		t.Fatalf("chains interleaved: a %s->%s, b %s->%s", a1, aPrev, b1, bPrev)
	}
}

// Concurrent publishers on one board must never observe the same previous
// fingerprint.
func TestChainConcurrentNextIsSerialized(t *testing.T) {
	c := NewChain()
	const n = 200
	var wg sync.WaitGroup
	prevs := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, previous := c.Next("b1")
			prevs <- previous
		}()
	}
	wg.Wait()
	close(prevs)
	seen := make(map[string]bool, n)
	for p := range prevs {
		if seen[p] {
			t.Fatalf("previous fingerprint %q observed twice", p)
		}
		seen[p] = true
	}
}

func TestChainForgetResets(t *testing.T) {
	c := NewChain()
	c.Next("b1")
	c.Forget("b1")
	if _, previous := c.Next("b1"); previous != "" {
		t.Fatalf("expected reset chain, got previous %s", previous)
	}
}
