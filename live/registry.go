package live

import (
	"sync"

	"github.com/GoldenGamerLP/keeplist/domain"
)

// Subscriber is one live viewing session of a board. Multiple subscribers may
// share a board and a user (multi-tab, multi-device); each has a distinct
// session fingerprint and its own bounded outbound channel.
type Subscriber struct {
	Fingerprint string
	User        *domain.User
	C           chan []byte

	closeOnce sync.Once
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.C) })
}

// Registry tracks which sessions currently watch which board. Membership
// changes are visible to the very next fan-out. Operations on different
// boards do not block each other.
type Registry struct {
	mu     sync.RWMutex
	boards map[string]*boardSubs
}

type boardSubs struct {
	mu   sync.Mutex
	subs map[string]*Subscriber
}

func NewRegistry() *Registry {
	return &Registry{boards: make(map[string]*boardSubs)}
}

func (r *Registry) board(boardID string, create bool) *boardSubs {
	r.mu.RLock()
	b, ok := r.boards[boardID]
	r.mu.RUnlock()
	if ok || !create {
		return b
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.boards[boardID]; !ok {
		b = &boardSubs{subs: make(map[string]*Subscriber)}
		r.boards[boardID] = b
	}
	return b
}

// Add registers a subscriber. A subscriber with the same session fingerprint
// replaces the previous registration and the stale channel is closed.
// Channels are only ever closed while the board mutex is held, the same mutex
// Broadcast sends under, so a close can never race a delivery.
func (r *Registry) Add(boardID string, sub *Subscriber) {
	b := r.board(boardID, true)
	b.mu.Lock()
	defer b.mu.Unlock()
	if old := b.subs[sub.Fingerprint]; old != nil {
		old.close()
	}
	b.subs[sub.Fingerprint] = sub
}

// Remove deregisters a session and closes its channel. Removing an unknown
// session is a no-op.
func (r *Registry) Remove(boardID, fingerprint string) {
	b := r.board(boardID, false)
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[fingerprint]; ok {
		delete(b.subs, fingerprint)
		sub.close()
	}
}

// Broadcast delivers data to every current subscriber of the board with a
// non-blocking send. A subscriber whose channel is full is deregistered on
// the spot, its channel closed; the dropped session fingerprints are
// returned. Sends happen under the board mutex so a concurrent Remove cannot
// close a channel mid-delivery.
func (r *Registry) Broadcast(boardID string, data []byte) []string {
	b := r.board(boardID, false)
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var stalled []string
	for fp, sub := range b.subs {
		select {
		case sub.C <- data:
		default:
			delete(b.subs, fp)
			sub.close()
			stalled = append(stalled, fp)
		}
	}
	return stalled
}

// List snapshots the current subscribers of a board.
func (r *Registry) List(boardID string) []*Subscriber {
	b := r.board(boardID, false)
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		out = append(out, s)
	}
	return out
}

// Boards returns the ids of boards having at least one subscriber.
func (r *Registry) Boards() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.boards))
	for id, b := range r.boards {
		b.mu.Lock()
		n := len(b.subs)
		b.mu.Unlock()
		if n > 0 {
			out = append(out, id)
		}
	}
	return out
}

// Stats computes the presence statistics for a board: total connections and
// distinct authenticated users.
func (r *Registry) Stats(boardID string) domain.UserStatistics {
	stats := domain.UserStatistics{Users: []domain.User{}}
	for _, sub := range r.List(boardID) {
		stats.ClientCount++
		if sub.User == nil {
			continue
		}
		seen := false
		for _, u := range stats.Users {
			if u.ID == sub.User.ID {
				seen = true
				break
			}
		}
		if !seen {
			stats.Users = append(stats.Users, *sub.User)
		}
	}
	stats.VerifiedUserCount = len(stats.Users)
	return stats
}
