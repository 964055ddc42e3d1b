package domain

import "encoding/json"

// Action discriminates sync message kinds. The set is closed; Apply and the
// client reconciler switch over it exhaustively and treat anything else as a
// diagnostic.
type Action string

const (
	ActionCreateCollection Action = "createCollection"
	ActionCreateTask       Action = "createTask"
	ActionEditBoard        Action = "editTaskBoard"
	ActionEditCollection   Action = "editCollection"
	ActionEditTask         Action = "editTask"
	ActionDeleteCollection Action = "deleteCollection"
	ActionDeleteTask       Action = "deleteTask"
	ActionMoveCollection   Action = "moveCollection"
	ActionMoveTask         Action = "moveTask"

	// ActionUserStatistics carries presence counts; it never mutates a board.
	ActionUserStatistics Action = "updateUserStatistics"
	// ActionDeleteBoard is server-originated and always honored, including
	// by the session that requested the deletion. The wire name is the
	// protocol's historical one.
	ActionDeleteBoard Action = "deleteKeepList"
)

// SystemPublisher is the publisher of events no viewing session originated
// (presence ticks, board deletion). It never collides with a session
// fingerprint, so self-echo suppression never drops these.
const SystemPublisher = "server"

// Verification chains a message to its predecessor on the same board. A
// subscriber whose recorded fingerprint differs from PreviousFingerprint has
// missed a message and must resync.
type Verification struct {
	CurrentFingerprint  string `json:"currentFingerprint"`
	PreviousFingerprint string `json:"previousFingerprint,omitempty"`
}

// SyncMessage is the wire form of one domain event, constructed once at
// fan-out time and immutable thereafter.
type SyncMessage struct {
	Publisher    string          `json:"publisher"`
	UserID       string          `json:"userId,omitempty"`
	Action       Action          `json:"action"`
	Payload      json.RawMessage `json:"payload"`
	Verification Verification    `json:"verification"`
}

type CreateTaskPayload struct {
	CollectionID string `json:"collectionId"`
	Task         Task   `json:"task"`
}

type EditBoardPayload struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Color       string   `json:"color"`
	Tags        []string `json:"tags"`
}

type EditCollectionPayload struct {
	CollectionID string `json:"collectionId"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Color        string `json:"color"`
}

type EditTaskPayload struct {
	CollectionID string `json:"collectionId"`
	Task         Task   `json:"task"`
}

type DeleteCollectionPayload struct {
	CollectionID string `json:"collectionId"`
}

type DeleteTaskPayload struct {
	CollectionID string `json:"collectionId"`
	TaskID       string `json:"taskId"`
}

type MoveCollectionPayload struct {
	CollectionID string `json:"collectionId"`
	OldIndex     int    `json:"oldIndex"`
	NewIndex     int    `json:"newIndex"`
}

type MoveTaskPayload struct {
	TaskID         string `json:"taskId"`
	FromCollection string `json:"fromCollection"`
	ToCollection   string `json:"toCollection"`
	OldIndex       int    `json:"oldIndex"`
	NewIndex       int    `json:"newIndex"`
}

type DeleteBoardPayload struct {
	BoardID string `json:"boardId"`
}

// UserStatistics is the presence payload published on a fixed interval for
// every board with at least one subscriber.
type UserStatistics struct {
	ClientCount       int    `json:"clientCount"`
	VerifiedUserCount int    `json:"verifiedUserCount"`
	Users             []User `json:"users"`
}
