package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func testBoard() *Board {
	return &Board{
		ID:    "b1",
		Title: "board",
		Collection: []Collection{
			{ID: "c1", Title: "first", Tasks: []Task{
				{ID: "t1", Title: "one"},
				{ID: "t2", Title: "two"},
			}},
			{ID: "c2", Title: "second", Tasks: []Task{}},
		},
	}
}

func mustApply(t *testing.T, b *Board, action Action, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := Apply(b, action, raw); err != nil {
		t.Fatalf("apply %s: %v", action, err)
	}
}

func applyErr(t *testing.T, b *Board, action Action, payload any) error {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return Apply(b, action, raw)
}

func TestApplyCreateCollectionAppends(t *testing.T) {
	b := testBoard()
	mustApply(t, b, ActionCreateCollection, Collection{ID: "c3", Title: "third"})
	if len(b.Collection) != 3 || b.Collection[2].ID != "c3" {
		t.Fatalf("unexpected collections %+v", b.Collection)
	}
	if b.Collection[2].Tasks == nil {
		t.Fatal("expected empty task slice")
	}
}

func TestApplyCreateTaskAppendsToNamedCollection(t *testing.T) {
	b := testBoard()
	mustApply(t, b, ActionCreateTask, CreateTaskPayload{CollectionID: "c2", Task: Task{ID: "t3", Title: "three"}})
	if len(b.Collection[1].Tasks) != 1 || b.Collection[1].Tasks[0].ID != "t3" {
		t.Fatalf("unexpected tasks %+v", b.Collection[1].Tasks)
	}

	err := applyErr(t, b, ActionCreateTask, CreateTaskPayload{CollectionID: "nope", Task: Task{ID: "t4"}})
	if !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestApplyEditBoardOverwritesMetadata(t *testing.T) {
	b := testBoard()
	mustApply(t, b, ActionEditBoard, EditBoardPayload{Title: "new", Description: "d", Color: "#fff", Tags: []string{"a"}})
	if b.Title != "new" || b.Description != "d" || b.Color != "#fff" || len(b.Tags) != 1 {
		t.Fatalf("unexpected board %+v", b)
	}
	if len(b.Collection) != 2 {
		t.Fatal("collections must be untouched")
	}
}

func TestApplyEditTaskPreservesID(t *testing.T) {
	b := testBoard()
	mustApply(t, b, ActionEditTask, EditTaskPayload{CollectionID: "c1", Task: Task{ID: "t1", Title: "renamed", Status: "done"}})
	task := b.Collection[0].Tasks[0]
	if task.ID != "t1" || task.Title != "renamed" || task.Status != "done" {
		t.Fatalf("unexpected task %+v", task)
	}

	err := applyErr(t, b, ActionEditTask, EditTaskPayload{CollectionID: "c1", Task: Task{ID: "missing", Title: "x"}})
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestApplyDeleteRemovesByIdentifier(t *testing.T) {
	b := testBoard()
	mustApply(t, b, ActionDeleteTask, DeleteTaskPayload{CollectionID: "c1", TaskID: "t1"})
	if len(b.Collection[0].Tasks) != 1 || b.Collection[0].Tasks[0].ID != "t2" {
		t.Fatalf("unexpected tasks %+v", b.Collection[0].Tasks)
	}

	mustApply(t, b, ActionDeleteCollection, DeleteCollectionPayload{CollectionID: "c1"})
	if len(b.Collection) != 1 || b.Collection[0].ID != "c2" {
		t.Fatalf("unexpected collections %+v", b.Collection)
	}

	err := applyErr(t, b, ActionDeleteCollection, DeleteCollectionPayload{CollectionID: "c1"})
	if !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestApplyMoveCollectionReorders(t *testing.T) {
	b := testBoard()
	mustApply(t, b, ActionMoveCollection, MoveCollectionPayload{CollectionID: "c1", OldIndex: 0, NewIndex: 1})
	if b.Collection[0].ID != "c2" || b.Collection[1].ID != "c1" {
		t.Fatalf("unexpected order %+v", b.Collection)
	}

	err := applyErr(t, b, ActionMoveCollection, MoveCollectionPayload{CollectionID: "c1", OldIndex: 0, NewIndex: 1})
	if !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange on identifier mismatch, got %v", err)
	}
}

func TestApplyMoveTaskAcrossCollections(t *testing.T) {
	b := testBoard()
	mustApply(t, b, ActionMoveTask, MoveTaskPayload{TaskID: "t1", FromCollection: "c1", ToCollection: "c2", OldIndex: 0, NewIndex: 0})
	if len(b.Collection[0].Tasks) != 1 || len(b.Collection[1].Tasks) != 1 {
		t.Fatalf("unexpected task split %+v", b.Collection)
	}
	if b.Collection[1].Tasks[0].ID != "t1" {
		t.Fatalf("expected t1 in c2, got %+v", b.Collection[1].Tasks)
	}

	err := applyErr(t, b, ActionMoveTask, MoveTaskPayload{TaskID: "t1", FromCollection: "c1", ToCollection: "c2", OldIndex: 0, NewIndex: 0})
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestApplyMoveTaskSamePositionIsIdempotent(t *testing.T) {
	b := testBoard()
	mustApply(t, b, ActionMoveTask, MoveTaskPayload{TaskID: "t2", FromCollection: "c1", ToCollection: "c1", OldIndex: 1, NewIndex: 1})
	got := b.Collection[0].Tasks
	if len(got) != 2 || got[0].ID != "t1" || got[1].ID != "t2" {
		t.Fatalf("order changed: %+v", got)
	}
}

func TestApplyMoveTaskWithinCollection(t *testing.T) {
	b := testBoard()
	mustApply(t, b, ActionMoveTask, MoveTaskPayload{TaskID: "t1", FromCollection: "c1", ToCollection: "c1", OldIndex: 0, NewIndex: 1})
	got := b.Collection[0].Tasks
	if got[0].ID != "t2" || got[1].ID != "t1" {
		t.Fatalf("unexpected order %+v", got)
	}
}

func TestApplyUnknownActionLeavesBoardUntouched(t *testing.T) {
	b := testBoard()
	err := Apply(b, Action("somethingElse"), json.RawMessage(`{}`))
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if len(b.Collection) != 2 {
		t.Fatalf("board mutated: %+v", b)
	}
}

func TestApplyPresenceIsNotABoardMutation(t *testing.T) {
	b := testBoard()
	err := Apply(b, ActionUserStatistics, json.RawMessage(`{"clientCount":1}`))
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}
