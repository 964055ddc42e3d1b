package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/GoldenGamerLP/keeplist/domain"
)

// Client talks to the board API over HTTP. It implements Fetcher and Mutator
// and opens the SSE event stream for a board.
type Client struct {
	baseURL     string
	token       string
	fingerprint string
	http        *http.Client
}

// NewClient creates an API client. The fingerprint is sent as the publisher
// of every mutation so the server's broadcast can be recognized as a
// self-echo; it must match the reconciler's session fingerprint.
func NewClient(baseURL, token, fingerprint string) *Client {
	return &Client{
		baseURL:     baseURL,
		token:       token,
		fingerprint: fingerprint,
		http:        &http.Client{},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	u := c.baseURL + path
	if c.fingerprint != "" {
		u += "?uniqueFingerprint=" + url.QueryEscape(c.fingerprint)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// FetchBoard retrieves the full board snapshot.
func (c *Client) FetchBoard(ctx context.Context, boardID string) (*domain.Board, error) {
	var board domain.Board
	if err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(boardID), nil, &board); err != nil {
		return nil, err
	}
	return &board, nil
}

// OpenStream subscribes to a board's event stream.
func (c *Client) OpenStream(ctx context.Context, boardID string) (*Stream, error) {
	u := fmt.Sprintf("%s/api/v1/tasks/sync/%s?uniqueFingerprint=%s",
		c.baseURL, url.PathEscape(boardID), url.QueryEscape(c.fingerprint))
	if c.token != "" {
		u += "&token=" + url.QueryEscape(c.token)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("subscribe board %s: status %d", boardID, resp.StatusCode)
	}
	return NewStream(resp.Body), nil
}

func (c *Client) CreateCollection(ctx context.Context, boardID, title, description, color string) (*domain.Collection, error) {
	body := map[string]any{"boardId": boardID, "title": title, "description": description, "color": color}
	var col domain.Collection
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks/actions/createCollection", body, &col); err != nil {
		return nil, err
	}
	return &col, nil
}

func (c *Client) CreateTask(ctx context.Context, boardID, collectionID, title, description string) (*domain.Task, error) {
	body := map[string]any{"boardId": boardID, "collectionId": collectionID, "title": title, "description": description}
	var task domain.Task
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks/actions/createTask", body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) EditBoard(ctx context.Context, boardID string, p domain.EditBoardPayload) error {
	body := map[string]any{"boardId": boardID, "title": p.Title, "description": p.Description, "color": p.Color, "tags": p.Tags}
	return c.do(ctx, http.MethodPost, "/api/v1/tasks/actions/editTaskBoard", body, nil)
}

func (c *Client) EditCollection(ctx context.Context, boardID string, p domain.EditCollectionPayload) error {
	body := map[string]any{"boardId": boardID, "collectionId": p.CollectionID, "title": p.Title, "description": p.Description, "color": p.Color}
	return c.do(ctx, http.MethodPost, "/api/v1/tasks/actions/editCollection", body, nil)
}

func (c *Client) EditTask(ctx context.Context, boardID, collectionID string, task domain.Task) error {
	body := map[string]any{"boardId": boardID, "collectionId": collectionID, "task": task}
	return c.do(ctx, http.MethodPost, "/api/v1/tasks/actions/editTask", body, nil)
}

func (c *Client) MoveCollection(ctx context.Context, boardID string, p domain.MoveCollectionPayload) error {
	body := map[string]any{"boardId": boardID, "collectionId": p.CollectionID, "oldIndex": p.OldIndex, "newIndex": p.NewIndex}
	return c.do(ctx, http.MethodPost, "/api/v1/tasks/actions/moveCollection", body, nil)
}

func (c *Client) MoveTask(ctx context.Context, boardID string, p domain.MoveTaskPayload) error {
	body := map[string]any{
		"boardId":         boardID,
		"taskId":          p.TaskID,
		"collectionId":    p.FromCollection,
		"newCollectionId": p.ToCollection,
		"oldIndex":        p.OldIndex,
		"newIndex":        p.NewIndex,
	}
	return c.do(ctx, http.MethodPost, "/api/v1/tasks/actions/moveTask", body, nil)
}

func (c *Client) DeleteCollection(ctx context.Context, boardID, collectionID string) error {
	body := map[string]any{"boardId": boardID, "collectionId": collectionID}
	return c.do(ctx, http.MethodDelete, "/api/v1/tasks/actions/deleteCollection", body, nil)
}

func (c *Client) DeleteTask(ctx context.Context, boardID, collectionID, taskID string) error {
	body := map[string]any{"boardId": boardID, "collectionId": collectionID, "taskId": taskID}
	return c.do(ctx, http.MethodDelete, "/api/v1/tasks/actions/deleteTask", body, nil)
}

func (c *Client) UpdateCollaborators(ctx context.Context, boardID string, collaborators []string) error {
	body := map[string]any{"boardId": boardID, "collaborators": collaborators}
	return c.do(ctx, http.MethodPost, "/api/v1/tasks/actions/updateCollaborators", body, nil)
}

func (c *Client) DeleteBoard(ctx context.Context, boardID string) error {
	body := map[string]any{"boardId": boardID}
	return c.do(ctx, http.MethodDelete, "/api/v1/tasks/actions/deleteBoard", body, nil)
}
