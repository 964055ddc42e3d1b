package live

import (
	"sync"

	"github.com/google/uuid"
)

// Chain issues the per-board rolling fingerprints that let subscribers detect
// missed messages. Only the latest fingerprint per board is kept; a process
// restart resets the chain, costing connected clients one resync.
type Chain struct {
	mu     sync.RWMutex
	boards map[string]*chainEntry
}

type chainEntry struct {
	mu   sync.Mutex
	last string
}

func NewChain() *Chain {
	return &Chain{boards: make(map[string]*chainEntry)}
}

func (c *Chain) entry(boardID string) *chainEntry {
	c.mu.RLock()
	e, ok := c.boards[boardID]
	c.mu.RUnlock()
	if ok {
		return e
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.boards[boardID]; !ok {
		e = &chainEntry{}
		c.boards[boardID] = e
	}
	return e
}

// Next issues a fresh fingerprint for the board and returns it together with
// the previously issued one (empty on the first call for a board). The
// read-modify-write is serialized per board; different boards never contend.
func (c *Chain) Next(boardID string) (current, previous string) {
	e := c.entry(boardID)
	e.mu.Lock()
	defer e.mu.Unlock()
	previous = e.last
	current = uuid.NewString()
	e.last = current
	return current, previous
}

// Forget drops the chain state for a board, typically after deletion.
func (c *Chain) Forget(boardID string) {
	c.mu.Lock()
	delete(c.boards, boardID)
	c.mu.Unlock()
}
