package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/GoldenGamerLP/keeplist/domain"
	"github.com/GoldenGamerLP/keeplist/live"
	"github.com/GoldenGamerLP/keeplist/storage"
)

type fakeStore struct {
	mu     sync.Mutex
	boards map[string]*domain.Board
	users  map[string]domain.User
}

func newFakeStore(boards ...*domain.Board) *fakeStore {
	s := &fakeStore{boards: make(map[string]*domain.Board), users: make(map[string]domain.User)}
	for _, b := range boards {
		s.boards[b.ID] = b
	}
	return s
}

func (s *fakeStore) GetBoard(ctx context.Context, boardID string) (*domain.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[boardID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (s *fakeStore) InsertBoard(ctx context.Context, b *domain.Board) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.boards[b.ID]; ok {
		return storage.ErrConflict
	}
	s.boards[b.ID] = b
	return nil
}

func (s *fakeStore) UpdateBoard(ctx context.Context, boardID string, mutate func(*domain.Board) error) (*domain.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[boardID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if err := mutate(b); err != nil {
		return nil, err
	}
	copied := *b
	return &copied, nil
}

func (s *fakeStore) DeleteBoard(ctx context.Context, boardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.boards[boardID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.boards, boardID)
	return nil
}

func (s *fakeStore) GetUsers(ctx context.Context, ids []string) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *fakeStore) FindUserByMail(ctx context.Context, mail string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Mail == mail {
			copied := u
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

// fakeAuth maps bearer tokens directly to user IDs.
type fakeAuth struct {
	tokens map[string]string
}

func (a *fakeAuth) UserIDFromAuthHeader(h string) (string, error) {
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return "", errors.New("missing authorization header")
	}
	userID, ok := a.tokens[token]
	if !ok {
		return "", errors.New("unknown token")
	}
	return userID, nil
}

func newTestServer(store Storage, auth Authenticator, hub *live.Hub) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	Register(e, store, auth, hub, Config{PingInterval: time.Hour})
	return e
}

func doRequest(e *echo.Echo, method, target, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func boardFixture() *domain.Board {
	return &domain.Board{
		ID:            "board-1",
		Title:         "Sprint",
		Description:   "current sprint",
		Color:         "#fff",
		Tags:          []string{},
		Author:        "alice",
		Collaborators: []string{"bob"},
		Collection: []domain.Collection{
			{ID: "col-1", Title: "Todo", Tasks: []domain.Task{{ID: "task-1", Title: "ship it"}}},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func testAuth() *fakeAuth {
	return &fakeAuth{tokens: map[string]string{
		"alice-token": "alice",
		"bob-token":   "bob",
		"eve-token":   "eve",
	}}
}

func TestGetBoardRequiresAuth(t *testing.T) {
	e := newTestServer(newFakeStore(boardFixture()), testAuth(), live.NewHub())
	rec := doRequest(e, http.MethodGet, "/api/v1/tasks/board-1", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGetBoardNotFound(t *testing.T) {
	e := newTestServer(newFakeStore(), testAuth(), live.NewHub())
	rec := doRequest(e, http.MethodGet, "/api/v1/tasks/missing", "alice-token", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetBoardForbiddenForStranger(t *testing.T) {
	e := newTestServer(newFakeStore(boardFixture()), testAuth(), live.NewHub())
	rec := doRequest(e, http.MethodGet, "/api/v1/tasks/board-1", "eve-token", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestGetBoardPopulatesUserlookup(t *testing.T) {
	store := newFakeStore(boardFixture())
	store.users["alice"] = domain.User{ID: "alice", Mail: "alice@example.com", Displayname: "Alice"}
	store.users["bob"] = domain.User{ID: "bob", Mail: "bob@example.com", Displayname: "Bob"}
	e := newTestServer(store, testAuth(), live.NewHub())

	rec := doRequest(e, http.MethodGet, "/api/v1/tasks/board-1", "bob-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got domain.Board
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(got.Userlookup) != 2 {
		t.Fatalf("expected author and collaborator in lookup, got %v", got.Userlookup)
	}
	if got.Userlookup["alice"].Displayname != "Alice" {
		t.Fatalf("unexpected lookup entry: %+v", got.Userlookup["alice"])
	}
}

func TestFindUserByMail(t *testing.T) {
	store := newFakeStore()
	store.users["bob"] = domain.User{ID: "bob", Mail: "bob@example.com", Displayname: "Bob"}
	e := newTestServer(store, testAuth(), live.NewHub())

	rec := doRequest(e, http.MethodGet, "/api/v1/tasks/finduser?email=bob@example.com", "alice-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got domain.User
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.ID != "bob" {
		t.Fatalf("expected bob, got %+v", got)
	}

	rec = doRequest(e, http.MethodGet, "/api/v1/tasks/finduser?email=nobody@example.com", "alice-token", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSyncBoardRejectsMissingFingerprint(t *testing.T) {
	e := newTestServer(newFakeStore(boardFixture()), testAuth(), live.NewHub())
	rec := doRequest(e, http.MethodGet, "/api/v1/tasks/sync/board-1", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// streamRecorder is a concurrency-safe ResponseWriter for the SSE handler,
// which keeps writing from its own goroutine while the test inspects output.
type streamRecorder struct {
	mu     sync.Mutex
	header http.Header
	code   int
	body   bytes.Buffer
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{header: make(http.Header)}
}

func (r *streamRecorder) Header() http.Header { return r.header }

func (r *streamRecorder) WriteHeader(code int) {
	r.mu.Lock()
	r.code = code
	r.mu.Unlock()
}

func (r *streamRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.Write(p)
}

func (r *streamRecorder) Flush() {}

func (r *streamRecorder) Body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.String()
}

func TestSyncBoardStreamsPublishedEvents(t *testing.T) {
	hub := live.NewHub()
	e := newTestServer(newFakeStore(boardFixture()), testAuth(), hub)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/sync/board-1?uniqueFingerprint=fp-1", nil).WithContext(ctx)
	rec := newStreamRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.ServeHTTP(rec, req)
	}()

	// wait for the subscription to be registered
	deadline := time.After(2 * time.Second)
	for len(hub.Registry().List("board-1")) == 0 {
		select {
		case <-deadline:
			t.Fatal("subscriber never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	hub.Publish("board-1", "alice", "fp-other", domain.ActionEditBoard, domain.EditBoardPayload{Title: "renamed"})

	// give the handler a moment to flush, then tear the stream down
	for i := 0; i < 400 && !strings.Contains(rec.Body(), "data: "); i++ {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	body := rec.Body()
	line, ok := strings.CutPrefix(strings.TrimSpace(body), "data: ")
	if !ok {
		t.Fatalf("expected an SSE data frame, got %q", body)
	}
	var msg domain.SyncMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if msg.Action != domain.ActionEditBoard || msg.Publisher != "fp-other" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Verification.CurrentFingerprint == "" {
		t.Fatalf("message not stamped: %+v", msg)
	}
}
