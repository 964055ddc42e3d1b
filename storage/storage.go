package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/GoldenGamerLP/keeplist/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the optimistic concurrency check kept failing;
	// the mutation was not applied.
	ErrConflict = errors.New("concurrency conflict")
)

const updateAttempts = 3

// Storage persists boards and users in Azure Table Storage. A board is one
// entity (pk = rk = board id) holding the whole document as JSON, so ETag
// checks on update make each mutation an atomic read-modify-write.
type Storage struct {
	boardTable *aztables.Client
	userTable  *aztables.Client
}

// New creates a Storage instance from the given connection string.
func New(connStr, boardsTable, usersTable string) (*Storage, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Storage{
		boardTable: svc.NewClient(boardsTable),
		userTable:  svc.NewClient(usersTable),
	}, nil
}

type boardEntity struct {
	aztables.Entity
	Data string `json:"Data"`
}

type userEntity struct {
	aztables.Entity
	Mail        string `json:"Mail"`
	Displayname string `json:"Displayname"`
	LastLogin   int64  `json:"LastLogin,string"`
}

func encodeBoardEntity(b *domain.Board) ([]byte, error) {
	doc, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return json.Marshal(boardEntity{
		Entity: aztables.Entity{PartitionKey: b.ID, RowKey: b.ID},
		Data:   string(doc),
	})
}

func decodeBoardEntity(data []byte) (*domain.Board, error) {
	var ent boardEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return nil, err
	}
	var b domain.Board
	if err := json.Unmarshal([]byte(ent.Data), &b); err != nil {
		return nil, fmt.Errorf("board %s: %w", ent.RowKey, err)
	}
	return &b, nil
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

// GetBoard retrieves a board by id.
func (s *Storage) GetBoard(ctx context.Context, boardID string) (*domain.Board, error) {
	ent, err := s.boardTable.GetEntity(ctx, boardID, boardID, nil)
	if err != nil {
		if isStatus(err, 404) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeBoardEntity(ent.Value)
}

// InsertBoard stores a new board. The id must not exist yet.
func (s *Storage) InsertBoard(ctx context.Context, b *domain.Board) error {
	payload, err := encodeBoardEntity(b)
	if err != nil {
		return err
	}
	_, err = s.boardTable.AddEntity(ctx, payload, nil)
	return err
}

// UpdateBoard applies mutate to the stored board under optimistic
// concurrency and refreshes the last-updated timestamp. An error returned by
// mutate aborts the update and is passed through unchanged. Lost races
// against concurrent writers are retried with a fresh read.
func (s *Storage) UpdateBoard(ctx context.Context, boardID string, mutate func(*domain.Board) error) (*domain.Board, error) {
	for attempt := 0; attempt < updateAttempts; attempt++ {
		ent, err := s.boardTable.GetEntity(ctx, boardID, boardID, nil)
		if err != nil {
			if isStatus(err, 404) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		b, err := decodeBoardEntity(ent.Value)
		if err != nil {
			return nil, err
		}
		if err := mutate(b); err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		b.LastUpdated = &now

		payload, err := encodeBoardEntity(b)
		if err != nil {
			return nil, err
		}
		etag := ent.ETag
		_, err = s.boardTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
			IfMatch:    &etag,
			UpdateMode: aztables.UpdateModeReplace,
		})
		if err == nil {
			return b, nil
		}
		if !isStatus(err, 412) {
			return nil, err
		}
	}
	return nil, ErrConflict
}

// DeleteBoard removes a board. Deleting an unknown board returns ErrNotFound.
func (s *Storage) DeleteBoard(ctx context.Context, boardID string) error {
	_, err := s.boardTable.DeleteEntity(ctx, boardID, boardID, nil)
	if isStatus(err, 404) {
		return ErrNotFound
	}
	return err
}

// GetUsers resolves user snapshots by id. Unknown ids are skipped.
func (s *Storage) GetUsers(ctx context.Context, ids []string) ([]domain.User, error) {
	users := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		ent, err := s.userTable.GetEntity(ctx, id, id, nil)
		if err != nil {
			if isStatus(err, 404) {
				continue
			}
			return nil, err
		}
		var u userEntity
		if err := json.Unmarshal(ent.Value, &u); err != nil {
			return nil, err
		}
		users = append(users, userFromEntity(u))
	}
	return users, nil
}

// odataString quotes a literal for use in an OData filter. Single quotes are
// doubled per the spec so the value cannot terminate the string early.
func odataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// FindUserByMail looks a user up by mail address for the collaborator picker.
func (s *Storage) FindUserByMail(ctx context.Context, mail string) (*domain.User, error) {
	filter := "Mail eq " + odataString(mail)
	pager := s.userTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var u userEntity
			if err := json.Unmarshal(e, &u); err != nil {
				return nil, err
			}
			user := userFromEntity(u)
			return &user, nil
		}
	}
	return nil, ErrNotFound
}

// UpsertUser creates or replaces a user snapshot.
func (s *Storage) UpsertUser(ctx context.Context, u domain.User) error {
	payload, err := json.Marshal(userEntity{
		Entity:      aztables.Entity{PartitionKey: u.ID, RowKey: u.ID},
		Mail:        u.Mail,
		Displayname: u.Displayname,
		LastLogin:   u.LastLogin.Unix(),
	})
	if err == nil {
		_, err = s.userTable.UpsertEntity(ctx, payload, nil)
	}
	return err
}

func userFromEntity(u userEntity) domain.User {
	return domain.User{
		ID:          u.RowKey,
		Mail:        u.Mail,
		Displayname: u.Displayname,
		LastLogin:   time.Unix(u.LastLogin, 0).UTC(),
	}
}
