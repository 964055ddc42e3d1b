package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownAction      = errors.New("unknown action")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrTaskNotFound       = errors.New("task not found")
	ErrIndexOutOfRange    = errors.New("index out of range")
)

// Apply mutates the board in place according to one sync action. It is the
// single state transition used both by the optimistic local path and by the
// event-driven path, so the two can never diverge. A returned error means the
// board was left untouched; callers surface it to the user instead of
// resyncing, since a failed edit does not break the structural hierarchy.
//
// Presence and board-deletion actions are session-level concerns and are not
// handled here; they yield ErrUnknownAction like any other non-board action.
func Apply(b *Board, action Action, payload json.RawMessage) error {
	switch action {
	case ActionCreateCollection:
		var col Collection
		if err := json.Unmarshal(payload, &col); err != nil {
			return err
		}
		if col.Tasks == nil {
			col.Tasks = []Task{}
		}
		b.Collection = append(b.Collection, col)
		return nil

	case ActionCreateTask:
		var p CreateTaskPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		col := b.FindCollection(p.CollectionID)
		if col == nil {
			return fmt.Errorf("create task %s: %w", p.Task.ID, ErrCollectionNotFound)
		}
		col.Tasks = append(col.Tasks, p.Task)
		return nil

	case ActionEditBoard:
		var p EditBoardPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		b.Title = p.Title
		b.Description = p.Description
		b.Color = p.Color
		b.Tags = p.Tags
		return nil

	case ActionEditCollection:
		var p EditCollectionPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		col := b.FindCollection(p.CollectionID)
		if col == nil {
			return fmt.Errorf("edit collection %s: %w", p.CollectionID, ErrCollectionNotFound)
		}
		col.Title = p.Title
		col.Description = p.Description
		col.Color = p.Color
		return nil

	case ActionEditTask:
		var p EditTaskPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		col := b.FindCollection(p.CollectionID)
		if col == nil {
			return fmt.Errorf("edit task %s: %w", p.Task.ID, ErrCollectionNotFound)
		}
		task := col.FindTask(p.Task.ID)
		if task == nil {
			return fmt.Errorf("edit task %s: %w", p.Task.ID, ErrTaskNotFound)
		}
		id := task.ID
		*task = p.Task
		task.ID = id
		return nil

	case ActionDeleteCollection:
		var p DeleteCollectionPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		for i := range b.Collection {
			if b.Collection[i].ID == p.CollectionID {
				b.Collection = append(b.Collection[:i], b.Collection[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("delete collection %s: %w", p.CollectionID, ErrCollectionNotFound)

	case ActionDeleteTask:
		var p DeleteTaskPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		col := b.FindCollection(p.CollectionID)
		if col == nil {
			return fmt.Errorf("delete task %s: %w", p.TaskID, ErrCollectionNotFound)
		}
		for i := range col.Tasks {
			if col.Tasks[i].ID == p.TaskID {
				col.Tasks = append(col.Tasks[:i], col.Tasks[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("delete task %s: %w", p.TaskID, ErrTaskNotFound)

	case ActionMoveCollection:
		var p MoveCollectionPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		if b.FindCollection(p.CollectionID) == nil {
			return fmt.Errorf("move collection %s: %w", p.CollectionID, ErrCollectionNotFound)
		}
		if p.OldIndex < 0 || p.OldIndex >= len(b.Collection) || b.Collection[p.OldIndex].ID != p.CollectionID {
			return fmt.Errorf("move collection %s at %d: %w", p.CollectionID, p.OldIndex, ErrIndexOutOfRange)
		}
		col := b.Collection[p.OldIndex]
		b.Collection = append(b.Collection[:p.OldIndex], b.Collection[p.OldIndex+1:]...)
		b.Collection = insertCollection(b.Collection, clampIndex(p.NewIndex, len(b.Collection)), col)
		return nil

	case ActionMoveTask:
		var p MoveTaskPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		from := b.FindCollection(p.FromCollection)
		to := b.FindCollection(p.ToCollection)
		if from == nil || to == nil {
			return fmt.Errorf("move task %s: %w", p.TaskID, ErrCollectionNotFound)
		}
		if from.FindTask(p.TaskID) == nil {
			return fmt.Errorf("move task %s: %w", p.TaskID, ErrTaskNotFound)
		}
		if p.OldIndex < 0 || p.OldIndex >= len(from.Tasks) || from.Tasks[p.OldIndex].ID != p.TaskID {
			return fmt.Errorf("move task %s at %d: %w", p.TaskID, p.OldIndex, ErrIndexOutOfRange)
		}
		task := from.Tasks[p.OldIndex]
		from.Tasks = append(from.Tasks[:p.OldIndex], from.Tasks[p.OldIndex+1:]...)
		to.Tasks = insertTask(to.Tasks, clampIndex(p.NewIndex, len(to.Tasks)), task)
		return nil
	}

	return fmt.Errorf("%w: %s", ErrUnknownAction, action)
}

func clampIndex(i, max int) int {
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}

func insertCollection(s []Collection, i int, c Collection) []Collection {
	s = append(s, Collection{})
	copy(s[i+1:], s[i:])
	s[i] = c
	return s
}

func insertTask(s []Task, i int, t Task) []Task {
	s = append(s, Task{})
	copy(s[i+1:], s[i:])
	s[i] = t
	return s
}
