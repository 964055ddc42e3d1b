package client

import (
	"context"
	"encoding/json"

	"github.com/GoldenGamerLP/keeplist/domain"
)

// Mutator invokes the server-side mutation endpoints.
type Mutator interface {
	CreateCollection(ctx context.Context, boardID, title, description, color string) (*domain.Collection, error)
	CreateTask(ctx context.Context, boardID, collectionID, title, description string) (*domain.Task, error)
	EditBoard(ctx context.Context, boardID string, p domain.EditBoardPayload) error
	EditCollection(ctx context.Context, boardID string, p domain.EditCollectionPayload) error
	EditTask(ctx context.Context, boardID, collectionID string, task domain.Task) error
	MoveCollection(ctx context.Context, boardID string, p domain.MoveCollectionPayload) error
	MoveTask(ctx context.Context, boardID string, p domain.MoveTaskPayload) error
	DeleteCollection(ctx context.Context, boardID, collectionID string) error
	DeleteTask(ctx context.Context, boardID, collectionID, taskID string) error
	UpdateCollaborators(ctx context.Context, boardID string, collaborators []string) error
	DeleteBoard(ctx context.Context, boardID string) error
}

// The optimistic protocol: invoke the endpoint, and on success apply the
// identical change to the local snapshot directly. The server's broadcast of
// this mutation will be suppressed as a self-echo, so the local UI response
// never waits on the broadcast round-trip.
//
// applyLocal runs the same transition the event path uses. Mutations landing
// while the view is resyncing are not applied locally; the refetch result
// supersedes them.
func (r *Reconciler) applyLocal(action domain.Action, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateLive || r.board == nil {
		return
	}
	if err := domain.Apply(r.board, action, raw); err != nil {
		r.notifier.Notify("Sync", "local update failed: "+err.Error())
	}
}

func (r *Reconciler) fail(description string, err error) error {
	r.notifier.Notify("Failure", "an error occurred while "+description+": "+err.Error())
	return err
}

func (r *Reconciler) CreateCollection(ctx context.Context, title, description, color string) error {
	col, err := r.mutator.CreateCollection(ctx, r.boardID, title, description, color)
	if err != nil {
		return r.fail("creating collection "+title, err)
	}
	r.applyLocal(domain.ActionCreateCollection, col)
	r.notifier.Notify("Success", "created collection "+col.Title)
	return nil
}

func (r *Reconciler) CreateTask(ctx context.Context, collectionID, title, description string) error {
	task, err := r.mutator.CreateTask(ctx, r.boardID, collectionID, title, description)
	if err != nil {
		return r.fail("creating task "+title, err)
	}
	r.applyLocal(domain.ActionCreateTask, domain.CreateTaskPayload{CollectionID: collectionID, Task: *task})
	r.notifier.Notify("Success", "created task "+task.Title)
	return nil
}

func (r *Reconciler) EditBoard(ctx context.Context, p domain.EditBoardPayload) error {
	if err := r.mutator.EditBoard(ctx, r.boardID, p); err != nil {
		return r.fail("editing board "+p.Title, err)
	}
	r.applyLocal(domain.ActionEditBoard, p)
	r.notifier.Notify("Success", "edited board "+p.Title)
	return nil
}

func (r *Reconciler) EditCollection(ctx context.Context, p domain.EditCollectionPayload) error {
	if err := r.mutator.EditCollection(ctx, r.boardID, p); err != nil {
		return r.fail("editing collection "+p.Title, err)
	}
	r.applyLocal(domain.ActionEditCollection, p)
	r.notifier.Notify("Success", "edited collection "+p.Title)
	return nil
}

func (r *Reconciler) EditTask(ctx context.Context, collectionID string, task domain.Task) error {
	if err := r.mutator.EditTask(ctx, r.boardID, collectionID, task); err != nil {
		return r.fail("editing task "+task.Title, err)
	}
	r.applyLocal(domain.ActionEditTask, domain.EditTaskPayload{CollectionID: collectionID, Task: task})
	r.notifier.Notify("Success", "edited task "+task.Title)
	return nil
}

func (r *Reconciler) MoveCollection(ctx context.Context, p domain.MoveCollectionPayload) error {
	if err := r.mutator.MoveCollection(ctx, r.boardID, p); err != nil {
		return r.fail("moving collection", err)
	}
	r.applyLocal(domain.ActionMoveCollection, p)
	r.notifier.Notify("Success", "moved collection")
	return nil
}

func (r *Reconciler) MoveTask(ctx context.Context, p domain.MoveTaskPayload) error {
	if err := r.mutator.MoveTask(ctx, r.boardID, p); err != nil {
		return r.fail("moving task", err)
	}
	r.applyLocal(domain.ActionMoveTask, p)
	r.notifier.Notify("Success", "moved task")
	return nil
}

func (r *Reconciler) DeleteCollection(ctx context.Context, collectionID string) error {
	if err := r.mutator.DeleteCollection(ctx, r.boardID, collectionID); err != nil {
		return r.fail("deleting collection", err)
	}
	r.applyLocal(domain.ActionDeleteCollection, domain.DeleteCollectionPayload{CollectionID: collectionID})
	r.notifier.Notify("Success", "deleted collection")
	return nil
}

func (r *Reconciler) DeleteTask(ctx context.Context, collectionID, taskID string) error {
	if err := r.mutator.DeleteTask(ctx, r.boardID, collectionID, taskID); err != nil {
		return r.fail("deleting task", err)
	}
	r.applyLocal(domain.ActionDeleteTask, domain.DeleteTaskPayload{CollectionID: collectionID, TaskID: taskID})
	r.notifier.Notify("Success", "deleted task")
	return nil
}

// UpdateCollaborators has no broadcast counterpart; the local snapshot is
// edited directly.
func (r *Reconciler) UpdateCollaborators(ctx context.Context, collaborators []string) error {
	if err := r.mutator.UpdateCollaborators(ctx, r.boardID, collaborators); err != nil {
		return r.fail("updating collaborators", err)
	}
	r.mu.Lock()
	if r.state == StateLive && r.board != nil {
		r.board.Collaborators = collaborators
	}
	r.mu.Unlock()
	r.notifier.Notify("Success", "updated collaborators")
	return nil
}

// DeleteBoard deletes the whole board and tears the view down. The server's
// system-originated deletion event reaches the other viewers.
func (r *Reconciler) DeleteBoard(ctx context.Context) error {
	if err := r.mutator.DeleteBoard(ctx, r.boardID); err != nil {
		return r.fail("deleting board", err)
	}
	r.Close()
	r.notifier.Notify("Success", "deleted board")
	if r.onDeleted != nil {
		r.onDeleted()
	}
	return nil
}
