package live

import (
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/GoldenGamerLP/keeplist/domain"
)

const defaultSubscriberBuffer = 32

// Hub stamps domain events with the next chain fingerprint and fans them out
// to every subscriber of the board. Delivery is fire-and-forget: a stalled
// subscriber is dropped (forcing its own resync on reconnect) instead of
// back-pressuring the publisher.
type Hub struct {
	chain    *Chain
	registry *Registry

	mu     sync.Mutex
	boards map[string]*sync.Mutex

	buffer int
}

func NewHub() *Hub {
	return &Hub{
		chain:    NewChain(),
		registry: NewRegistry(),
		boards:   make(map[string]*sync.Mutex),
		buffer:   defaultSubscriberBuffer,
	}
}

// Registry exposes the subscriber registry, e.g. for presence statistics.
func (h *Hub) Registry() *Registry { return h.registry }

// Subscribe registers a new viewing session and returns its subscriber. The
// caller drains Subscriber.C until it is closed or the session ends.
func (h *Hub) Subscribe(boardID, fingerprint string, user *domain.User) *Subscriber {
	sub := &Subscriber{
		Fingerprint: fingerprint,
		User:        user,
		C:           make(chan []byte, h.buffer),
	}
	h.registry.Add(boardID, sub)
	log.Debugf("subscribed %s to board %s", fingerprint, boardID)
	return sub
}

// Unsubscribe removes a session. Safe to call more than once.
func (h *Hub) Unsubscribe(boardID, fingerprint string) {
	h.registry.Remove(boardID, fingerprint)
	log.Debugf("unsubscribed %s from board %s", fingerprint, boardID)
}

func (h *Hub) boardLock(boardID string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.boards[boardID]
	if !ok {
		l = &sync.Mutex{}
		h.boards[boardID] = l
	}
	return l
}

// Publish stamps the event and delivers it to every current subscriber of the
// board. It never fails: marshal problems are logged, slow subscribers are
// dropped, and a board without subscribers still advances the chain so a
// later-connecting client does not start from a stale fingerprint. Stamping
// and fan-out hold the board's publish lock, so subscribers observe messages
// in chain order.
func (h *Hub) Publish(boardID, userID, publisher string, action domain.Action, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("publish %s on board %s: marshal payload: %v", action, boardID, err)
		return
	}

	l := h.boardLock(boardID)
	l.Lock()
	defer l.Unlock()

	current, previous := h.chain.Next(boardID)
	msg := domain.SyncMessage{
		Publisher: publisher,
		UserID:    userID,
		Action:    action,
		Payload:   raw,
		Verification: domain.Verification{
			CurrentFingerprint:  current,
			PreviousFingerprint: previous,
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("publish %s on board %s: marshal message: %v", action, boardID, err)
		return
	}

	for _, fp := range h.registry.Broadcast(boardID, data) {
		log.Warnf("dropping stalled subscriber %s on board %s", fp, boardID)
	}
}

// Forget releases per-board state after a board is deleted.
func (h *Hub) Forget(boardID string) {
	h.chain.Forget(boardID)
	h.mu.Lock()
	delete(h.boards, boardID)
	h.mu.Unlock()
}
