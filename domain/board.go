package domain

import "time"

// Board is the root aggregate shared between collaborators. Collection order
// is significant and preserved end-to-end.
type Board struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Color         string          `json:"color"`
	Tags          []string        `json:"tags"`
	Collection    []Collection    `json:"collection"`
	Author        string          `json:"author"`
	Collaborators []string        `json:"collaborators"`
	CreatedAt     time.Time       `json:"createdAt"`
	LastUpdated   *time.Time      `json:"lastUpdated,omitempty"`
	Userlookup    map[string]User `json:"userlookup,omitempty"`
}

// Collection is a named ordered group of tasks within a board.
type Collection struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Tasks       []Task `json:"tasks"`
}

// Task is a unit of work within a collection. The scheduling and
// classification fields are carried opaquely through sync events.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Status      string     `json:"status,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Comments    []string   `json:"comments,omitempty"`
	Attachments []string   `json:"attachments,omitempty"`
}

// User is the public snapshot of an account embedded in boards and
// presence statistics.
type User struct {
	ID          string    `json:"_id"`
	Mail        string    `json:"mail"`
	Displayname string    `json:"displayname"`
	LastLogin   time.Time `json:"last_login"`
}

// HasAccess reports whether the given user may read or mutate the board.
func (b *Board) HasAccess(userID string) bool {
	if userID == "" {
		return false
	}
	if b.Author == userID {
		return true
	}
	for _, c := range b.Collaborators {
		if c == userID {
			return true
		}
	}
	return false
}

// FindCollection returns the collection with the given id, or nil.
func (b *Board) FindCollection(id string) *Collection {
	for i := range b.Collection {
		if b.Collection[i].ID == id {
			return &b.Collection[i]
		}
	}
	return nil
}

// FindTask returns the task with the given id, or nil.
func (c *Collection) FindTask(id string) *Task {
	for i := range c.Tasks {
		if c.Tasks[i].ID == id {
			return &c.Tasks[i]
		}
	}
	return nil
}
