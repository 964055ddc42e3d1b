// Package client implements the board-viewing side of the sync protocol: the
// full fetch, the inbound event stream, the fingerprint continuity check with
// automatic resync, and the optimistic local mutation protocol.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/GoldenGamerLP/keeplist/domain"
)

// State is the lifecycle of one board view.
type State int

const (
	StateDisconnected State = iota
	StateLoading
	StateLive
	StateResyncing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateLoading:
		return "loading"
	case StateLive:
		return "live"
	case StateResyncing:
		return "resyncing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Fetcher retrieves the full current board snapshot.
type Fetcher interface {
	FetchBoard(ctx context.Context, boardID string) (*domain.Board, error)
}

// Notifier surfaces user-facing notices.
type Notifier interface {
	Notify(title, description string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(title, description string)

func (f NotifierFunc) Notify(title, description string) { f(title, description) }

type nopNotifier struct{}

func (nopNotifier) Notify(string, string) {}

// Reconciler keeps a local copy of one board consistent with the server by
// applying incremental sync events, falling back to a full refetch whenever
// fingerprint continuity cannot be verified. Inbound events are processed one
// at a time, in arrival order.
type Reconciler struct {
	boardID     string
	fingerprint string
	fetcher     Fetcher
	mutator     Mutator
	notifier    Notifier
	onDeleted   func()

	mu              sync.Mutex
	state           State
	board           *domain.Board
	lastFingerprint string
	presence        *domain.UserStatistics
	epoch           int
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithNotifier routes user-facing notices to n.
func WithNotifier(n Notifier) Option { return func(r *Reconciler) { r.notifier = n } }

// WithMutator enables the optimistic mutation methods.
func WithMutator(m Mutator) Option { return func(r *Reconciler) { r.mutator = m } }

// WithFingerprint overrides the generated session fingerprint.
func WithFingerprint(fp string) Option { return func(r *Reconciler) { r.fingerprint = fp } }

// WithOnBoardDeleted registers the navigate-away hook fired when the board is
// deleted server-side.
func WithOnBoardDeleted(f func()) Option { return func(r *Reconciler) { r.onDeleted = f } }

// NewReconciler creates a reconciler for one board view in the Disconnected
// state.
func NewReconciler(boardID string, fetcher Fetcher, opts ...Option) *Reconciler {
	r := &Reconciler{
		boardID:     boardID,
		fingerprint: uuid.NewString(),
		fetcher:     fetcher,
		notifier:    nopNotifier{},
		state:       StateDisconnected,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fingerprint returns the session fingerprint used as publisher for this
// session's own mutations.
func (r *Reconciler) Fingerprint() string { return r.fingerprint }

// State returns the current lifecycle state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Board returns the local snapshot. Callers must treat it as read-only.
func (r *Reconciler) Board() *domain.Board {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.board
}

// Presence returns the last received presence statistics, if any.
func (r *Reconciler) Presence() *domain.UserStatistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence
}

// Open fetches the full board and transitions to Live. On fetch failure the
// view returns to Disconnected and the subscription must not be opened. A
// Close during the fetch discards the result.
func (r *Reconciler) Open(ctx context.Context) error {
	r.mu.Lock()
	if r.state == StateClosed {
		r.mu.Unlock()
		return errors.New("view is closed")
	}
	r.state = StateLoading
	epoch := r.epoch
	r.mu.Unlock()

	board, err := r.fetcher.FetchBoard(ctx, r.boardID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed || r.epoch != epoch {
		return nil
	}
	if err != nil {
		r.state = StateDisconnected
		return err
	}
	r.board = board
	r.lastFingerprint = ""
	r.state = StateLive
	return nil
}

// Close tears the view down. Terminal for this session.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.state = StateClosed
	r.epoch++
	r.board = nil
	r.presence = nil
	r.mu.Unlock()
}

// HandleFrame processes one inbound frame from the event stream. Keep-alive
// and empty frames are inert.
func (r *Reconciler) HandleFrame(ctx context.Context, frame []byte) {
	if len(frame) == 0 || bytes.HasPrefix(frame, []byte("ping")) {
		return
	}
	var msg domain.SyncMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		r.notifier.Notify("Sync", "malformed event ignored")
		return
	}
	r.handleMessage(ctx, msg)
}

func (r *Reconciler) handleMessage(ctx context.Context, msg domain.SyncMessage) {
	r.mu.Lock()
	if r.state != StateLive {
		r.mu.Unlock()
		return
	}

	prev := msg.Verification.PreviousFingerprint
	if prev != "" && r.lastFingerprint != "" && prev != r.lastFingerprint {
		// a message was missed, the incremental stream can no longer be trusted
		r.state = StateResyncing
		r.lastFingerprint = ""
		epoch := r.epoch
		r.mu.Unlock()
		r.notifier.Notify("Sync", "fingerprint mismatch, reloading data")
		r.resync(ctx, epoch)
		return
	}
	r.lastFingerprint = msg.Verification.CurrentFingerprint

	// board deletion is honored regardless of publisher, including for the
	// session that requested it
	if msg.Action == domain.ActionDeleteBoard {
		r.state = StateClosed
		r.epoch++
		r.board = nil
		r.presence = nil
		r.mu.Unlock()
		r.notifier.Notify("Board Deleted", "this board is no longer available")
		if r.onDeleted != nil {
			r.onDeleted()
		}
		return
	}

	if msg.Publisher == r.fingerprint {
		// self-echo: the local snapshot was already updated optimistically
		r.mu.Unlock()
		return
	}

	if msg.Action == domain.ActionUserStatistics {
		var stats domain.UserStatistics
		if err := json.Unmarshal(msg.Payload, &stats); err == nil {
			r.presence = &stats
		}
		r.mu.Unlock()
		return
	}

	err := domain.Apply(r.board, msg.Action, msg.Payload)
	r.mu.Unlock()
	switch {
	case err == nil:
		r.notifier.Notify(applyNotice(msg.Action), "board updated")
	case errors.Is(err, domain.ErrUnknownAction):
		r.notifier.Notify("Sync", "unknown event: "+string(msg.Action))
	default:
		r.notifier.Notify("Sync", "update could not be applied: "+err.Error())
	}
}

// resync refetches the full board after a detected gap. A teardown during the
// fetch discards the result.
func (r *Reconciler) resync(ctx context.Context, epoch int) {
	board, err := r.fetcher.FetchBoard(ctx, r.boardID)

	r.mu.Lock()
	if r.state != StateResyncing || r.epoch != epoch {
		r.mu.Unlock()
		return
	}
	if err != nil {
		r.state = StateDisconnected
		r.mu.Unlock()
		r.notifier.Notify("Sync", "reload failed: "+err.Error())
		return
	}
	r.board = board
	r.state = StateLive
	r.mu.Unlock()
}

// transportDrop marks the view disconnected after the event stream ends.
func (r *Reconciler) transportDrop() {
	r.mu.Lock()
	if r.state != StateClosed {
		r.state = StateDisconnected
	}
	r.mu.Unlock()
}

// Listen drains the stream into the reconciler until it ends or the context
// is cancelled. The view transitions to Disconnected when the transport
// drops.
func (r *Reconciler) Listen(ctx context.Context, stream interface{ Next() ([]byte, error) }) error {
	for {
		frame, err := stream.Next()
		if err != nil {
			r.transportDrop()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		r.HandleFrame(ctx, frame)
		if r.State() == StateClosed {
			return nil
		}
	}
}

func applyNotice(action domain.Action) string {
	switch action {
	case domain.ActionCreateCollection:
		return "Collection Created"
	case domain.ActionCreateTask:
		return "Task Created"
	case domain.ActionEditBoard:
		return "Board Updated"
	case domain.ActionEditCollection:
		return "Collection Updated"
	case domain.ActionEditTask:
		return "Task Updated"
	case domain.ActionDeleteCollection:
		return "Collection Deleted"
	case domain.ActionDeleteTask:
		return "Task Deleted"
	case domain.ActionMoveCollection:
		return "Collection Moved"
	case domain.ActionMoveTask:
		return "Task Moved"
	}
	return "Sync"
}
