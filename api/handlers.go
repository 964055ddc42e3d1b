package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/GoldenGamerLP/keeplist/domain"
	"github.com/GoldenGamerLP/keeplist/live"
	"github.com/GoldenGamerLP/keeplist/storage"
)

const defaultPingInterval = 15 * time.Second

// Config tunes the sync endpoints.
type Config struct {
	// PingInterval is the keep-alive comment interval on SSE streams.
	PingInterval time.Duration
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, hub *live.Hub, cfg Config) {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}

	e.GET("/api/v1/tasks/:id", getBoard(store, auth))
	e.GET("/api/v1/tasks/sync/:boardId", syncBoard(store, auth, hub, cfg.PingInterval))
	e.GET("/api/v1/tasks/finduser", findUser(store, auth))
	e.GET("/healthz", healthz())

	registerActions(e, store, auth, hub)
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getBoard(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		boardID := c.Param("id")
		if boardID == "" {
			return c.String(http.StatusBadRequest, "missing board id")
		}
		board, err := store.GetBoard(ctx, boardID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.NoContent(http.StatusNotFound)
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if !board.HasAccess(userID) {
			return c.NoContent(http.StatusForbidden)
		}

		ids := append([]string{board.Author}, board.Collaborators...)
		users, err := store.GetUsers(ctx, ids)
		if err != nil {
			c.Logger().Error(err)
		} else {
			board.Userlookup = make(map[string]domain.User, len(users))
			for _, u := range users {
				board.Userlookup[u.ID] = u
			}
		}
		return c.JSON(http.StatusOK, board)
	}
}

func findUser(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		mail := c.QueryParam("email")
		if mail == "" {
			return c.String(http.StatusBadRequest, "missing email")
		}
		user, err := store.FindUserByMail(ctx, mail)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.NoContent(http.StatusNotFound)
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, user)
	}
}

// syncBoard subscribes the caller to a board's event stream over SSE.
// Authentication is optional: anonymous viewers count towards the connection
// total but not towards verified users.
func syncBoard(store Storage, auth Authenticator, hub *live.Hub, pingInterval time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		boardID := c.Param("boardId")
		fingerprint := c.QueryParam("uniqueFingerprint")
		if boardID == "" || fingerprint == "" {
			return c.String(http.StatusBadRequest, "missing board id or fingerprint")
		}

		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if token := c.QueryParam("token"); authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		var user *domain.User
		if userID, err := auth.UserIDFromAuthHeader(authHeader); err == nil {
			user = lookupUser(c, store, userID)
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		sub := hub.Subscribe(boardID, fingerprint, user)
		defer hub.Unsubscribe(boardID, fingerprint)

		c.Response().WriteHeader(http.StatusOK)
		flusher.Flush()

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := c.Response().Write([]byte(": ping\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			case msg, ok := <-sub.C:
				if !ok {
					// dropped by the hub, the client will resync on reconnect
					return nil
				}
				if _, err := c.Response().Write([]byte("data: ")); err != nil {
					return nil
				}
				if _, err := c.Response().Write(msg); err != nil {
					return nil
				}
				if _, err := c.Response().Write([]byte("\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}

func lookupUser(c echo.Context, store Storage, userID string) *domain.User {
	users, err := store.GetUsers(c.Request().Context(), []string{userID})
	if err != nil {
		c.Logger().Errorf("lookup user %s: %v", userID, err)
		return &domain.User{ID: userID}
	}
	if len(users) == 0 {
		return &domain.User{ID: userID}
	}
	return &users[0]
}
