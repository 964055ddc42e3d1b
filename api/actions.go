package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/GoldenGamerLP/keeplist/domain"
	"github.com/GoldenGamerLP/keeplist/live"
	"github.com/GoldenGamerLP/keeplist/storage"
)

const actionBodyMaxSize = 1 << 20

func registerActions(e *echo.Echo, store Storage, auth Authenticator, hub *live.Hub) {
	g := e.Group("/api/v1/tasks/actions")
	g.POST("/createBoard", createBoard(store, auth))
	g.POST("/createCollection", createCollection(store, auth, hub))
	g.POST("/createTask", createTask(store, auth, hub))
	g.POST("/editTaskBoard", editBoard(store, auth, hub))
	g.POST("/editCollection", editCollection(store, auth, hub))
	g.POST("/editTask", editTask(store, auth, hub))
	g.POST("/moveCollection", moveCollection(store, auth, hub))
	g.POST("/moveTask", moveTask(store, auth, hub))
	g.POST("/updateCollaborators", updateCollaborators(store, auth))
	g.DELETE("/deleteCollection", deleteCollection(store, auth, hub))
	g.DELETE("/deleteTask", deleteTask(store, auth, hub))
	g.DELETE("/deleteBoard", deleteBoard(store, auth, hub))
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, actionBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// actingUser authenticates the request and extracts the publisher session
// fingerprint. A missing fingerprint is a client error: without it the
// mutation's broadcast could not be suppressed as a self-echo.
func actingUser(c echo.Context, auth Authenticator, needPublisher bool) (userID, publisher string, err error) {
	userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if authErr != nil {
		return "", "", c.String(http.StatusUnauthorized, authErr.Error())
	}
	publisher = c.QueryParam("uniqueFingerprint")
	if needPublisher && publisher == "" {
		return "", "", c.String(http.StatusBadRequest, "missing uniqueFingerprint")
	}
	return userID, publisher, nil
}

// mutateAndPublish runs the shared apply transition against the stored board,
// broadcasts the exact persisted change, then responds.
func mutateAndPublish(c echo.Context, store Storage, hub *live.Hub, userID, publisher, boardID string, action domain.Action, payload any, respond func() error) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	_, err = store.UpdateBoard(c.Request().Context(), boardID, func(b *domain.Board) error {
		if !b.HasAccess(userID) {
			return ErrForbidden
		}
		return domain.Apply(b, action, raw)
	})
	if err != nil {
		return mutationError(c, err)
	}
	hub.Publish(boardID, userID, publisher, action, payload)
	return respond()
}

func mutationError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrForbidden):
		return c.NoContent(http.StatusForbidden)
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, domain.ErrCollectionNotFound),
		errors.Is(err, domain.ErrTaskNotFound):
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrIndexOutOfRange):
		return c.String(http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrConflict):
		return c.String(http.StatusConflict, err.Error())
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
}

type createBoardRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Color       string   `json:"color"`
	Tags        []string `json:"tags"`
}

func createBoard(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, _, err := actingUser(c, auth, false)
		if userID == "" {
			return err
		}
		var req createBoardRequest
		if err := decodeBody(c, &req); err != nil || req.Title == "" || req.Description == "" || req.Color == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Tags == nil {
			req.Tags = []string{}
		}
		board := &domain.Board{
			ID:            uuid.NewString(),
			Title:         req.Title,
			Description:   req.Description,
			Color:         req.Color,
			Tags:          req.Tags,
			Collection:    []domain.Collection{},
			Author:        userID,
			Collaborators: []string{},
			CreatedAt:     time.Now().UTC(),
		}
		if err := store.InsertBoard(c.Request().Context(), board); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, board)
	}
}

type createCollectionRequest struct {
	BoardID     string `json:"boardId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

func createCollection(store Storage, auth Authenticator, hub *live.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, publisher, err := actingUser(c, auth, true)
		if userID == "" {
			return err
		}
		var req createCollectionRequest
		if err := decodeBody(c, &req); err != nil || req.BoardID == "" || req.Title == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		col := domain.Collection{
			ID:          uuid.NewString(),
			Title:       req.Title,
			Description: req.Description,
			Color:       req.Color,
			Tasks:       []domain.Task{},
		}
		return mutateAndPublish(c, store, hub, userID, publisher, req.BoardID, domain.ActionCreateCollection, col, func() error {
			return c.JSON(http.StatusOK, col)
		})
	}
}

type createTaskRequest struct {
	BoardID      string `json:"boardId"`
	CollectionID string `json:"collectionId"`
	Title        string `json:"title"`
	Description  string `json:"description"`
}

func createTask(store Storage, auth Authenticator, hub *live.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, publisher, err := actingUser(c, auth, true)
		if userID == "" {
			return err
		}
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil || req.BoardID == "" || req.CollectionID == "" || req.Title == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		task := domain.Task{
			ID:          uuid.NewString(),
			Title:       req.Title,
			Description: req.Description,
			Status:      "todo",
			Tags:        []string{},
			Comments:    []string{},
			Attachments: []string{},
		}
		payload := domain.CreateTaskPayload{CollectionID: req.CollectionID, Task: task}
		return mutateAndPublish(c, store, hub, userID, publisher, req.BoardID, domain.ActionCreateTask, payload, func() error {
			return c.JSON(http.StatusOK, task)
		})
	}
}

type editBoardRequest struct {
	BoardID string `json:"boardId"`
	domain.EditBoardPayload
}

func editBoard(store Storage, auth Authenticator, hub *live.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, publisher, err := actingUser(c, auth, true)
		if userID == "" {
			return err
		}
		var req editBoardRequest
		if err := decodeBody(c, &req); err != nil || req.BoardID == "" || req.Title == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Tags == nil {
			req.Tags = []string{}
		}
		return mutateAndPublish(c, store, hub, userID, publisher, req.BoardID, domain.ActionEditBoard, req.EditBoardPayload, func() error {
			return c.NoContent(http.StatusNoContent)
		})
	}
}

type editCollectionRequest struct {
	BoardID string `json:"boardId"`
	domain.EditCollectionPayload
}

func editCollection(store Storage, auth Authenticator, hub *live.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, publisher, err := actingUser(c, auth, true)
		if userID == "" {
			return err
		}
		var req editCollectionRequest
		if err := decodeBody(c, &req); err != nil || req.BoardID == "" || req.CollectionID == "" || req.Title == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		return mutateAndPublish(c, store, hub, userID, publisher, req.BoardID, domain.ActionEditCollection, req.EditCollectionPayload, func() error {
			return c.NoContent(http.StatusNoContent)
		})
	}
}

type editTaskRequest struct {
	BoardID      string      `json:"boardId"`
	CollectionID string      `json:"collectionId"`
	Task         domain.Task `json:"task"`
}

func editTask(store Storage, auth Authenticator, hub *live.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, publisher, err := actingUser(c, auth, true)
		if userID == "" {
			return err
		}
		var req editTaskRequest
		if err := decodeBody(c, &req); err != nil || req.BoardID == "" || req.CollectionID == "" || req.Task.ID == "" || req.Task.Title == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		payload := domain.EditTaskPayload{CollectionID: req.CollectionID, Task: req.Task}
		return mutateAndPublish(c, store, hub, userID, publisher, req.BoardID, domain.ActionEditTask, payload, func() error {
			return c.NoContent(http.StatusNoContent)
		})
	}
}

type moveCollectionRequest struct {
	BoardID string `json:"boardId"`
	domain.MoveCollectionPayload
}

func moveCollection(store Storage, auth Authenticator, hub *live.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, publisher, err := actingUser(c, auth, true)
		if userID == "" {
			return err
		}
		var req moveCollectionRequest
		if err := decodeBody(c, &req); err != nil || req.BoardID == "" || req.CollectionID == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		return mutateAndPublish(c, store, hub, userID, publisher, req.BoardID, domain.ActionMoveCollection, req.MoveCollectionPayload, func() error {
			return c.NoContent(http.StatusNoContent)
		})
	}
}

type moveTaskRequest struct {
	BoardID         string `json:"boardId"`
	TaskID          string `json:"taskId"`
	CollectionID    string `json:"collectionId"`
	NewCollectionID string `json:"newCollectionId"`
	OldIndex        int    `json:"oldIndex"`
	NewIndex        int    `json:"newIndex"`
}

func moveTask(store Storage, auth Authenticator, hub *live.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, publisher, err := actingUser(c, auth, true)
		if userID == "" {
			return err
		}
		var req moveTaskRequest
		if err := decodeBody(c, &req); err != nil || req.BoardID == "" || req.TaskID == "" || req.CollectionID == "" || req.NewCollectionID == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		payload := domain.MoveTaskPayload{
			TaskID:         req.TaskID,
			FromCollection: req.CollectionID,
			ToCollection:   req.NewCollectionID,
			OldIndex:       req.OldIndex,
			NewIndex:       req.NewIndex,
		}
		return mutateAndPublish(c, store, hub, userID, publisher, req.BoardID, domain.ActionMoveTask, payload, func() error {
			return c.NoContent(http.StatusNoContent)
		})
	}
}

type deleteCollectionRequest struct {
	BoardID      string `json:"boardId"`
	CollectionID string `json:"collectionId"`
}

func deleteCollection(store Storage, auth Authenticator, hub *live.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, publisher, err := actingUser(c, auth, true)
		if userID == "" {
			return err
		}
		var req deleteCollectionRequest
		if err := decodeBody(c, &req); err != nil || req.BoardID == "" || req.CollectionID == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		payload := domain.DeleteCollectionPayload{CollectionID: req.CollectionID}
		return mutateAndPublish(c, store, hub, userID, publisher, req.BoardID, domain.ActionDeleteCollection, payload, func() error {
			return c.NoContent(http.StatusNoContent)
		})
	}
}

type deleteTaskRequest struct {
	BoardID      string `json:"boardId"`
	CollectionID string `json:"collectionId"`
	TaskID       string `json:"taskId"`
}

func deleteTask(store Storage, auth Authenticator, hub *live.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, publisher, err := actingUser(c, auth, true)
		if userID == "" {
			return err
		}
		var req deleteTaskRequest
		if err := decodeBody(c, &req); err != nil || req.BoardID == "" || req.CollectionID == "" || req.TaskID == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		payload := domain.DeleteTaskPayload{CollectionID: req.CollectionID, TaskID: req.TaskID}
		return mutateAndPublish(c, store, hub, userID, publisher, req.BoardID, domain.ActionDeleteTask, payload, func() error {
			return c.NoContent(http.StatusNoContent)
		})
	}
}

type updateCollaboratorsRequest struct {
	BoardID       string   `json:"boardId"`
	Collaborators []string `json:"collaborators"`
}

// updateCollaborators edits the collaborator list. There is no broadcast for
// this: viewers pick the new list up with their next full fetch.
func updateCollaborators(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, _, err := actingUser(c, auth, false)
		if userID == "" {
			return err
		}
		var req updateCollaboratorsRequest
		if err := decodeBody(c, &req); err != nil || req.BoardID == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Collaborators == nil {
			req.Collaborators = []string{}
		}
		_, err = store.UpdateBoard(c.Request().Context(), req.BoardID, func(b *domain.Board) error {
			if !b.HasAccess(userID) {
				return ErrForbidden
			}
			b.Collaborators = req.Collaborators
			return nil
		})
		if err != nil {
			return mutationError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type deleteBoardRequest struct {
	BoardID string `json:"boardId"`
}

func deleteBoard(store Storage, auth Authenticator, hub *live.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, _, err := actingUser(c, auth, false)
		if userID == "" {
			return err
		}
		var req deleteBoardRequest
		if err := decodeBody(c, &req); err != nil || req.BoardID == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		ctx := c.Request().Context()
		board, err := store.GetBoard(ctx, req.BoardID)
		if err != nil {
			return mutationError(c, err)
		}
		if board.Author != userID {
			return c.NoContent(http.StatusForbidden)
		}
		if err := store.DeleteBoard(ctx, req.BoardID); err != nil {
			return mutationError(c, err)
		}
		// system-originated: every viewer, including the actor, must honor it
		hub.Publish(req.BoardID, "", domain.SystemPublisher, domain.ActionDeleteBoard, domain.DeleteBoardPayload{BoardID: req.BoardID})
		hub.Forget(req.BoardID)
		return c.NoContent(http.StatusNoContent)
	}
}
