package api

import (
	"context"
	"errors"

	"github.com/GoldenGamerLP/keeplist/domain"
)

// ErrForbidden is returned from mutation closures when the acting user has
// no access to the board.
var ErrForbidden = errors.New("forbidden")

// Storage abstracts persistence for handlers.
type Storage interface {
	GetBoard(ctx context.Context, boardID string) (*domain.Board, error)
	InsertBoard(ctx context.Context, b *domain.Board) error
	UpdateBoard(ctx context.Context, boardID string, mutate func(*domain.Board) error) (*domain.Board, error)
	DeleteBoard(ctx context.Context, boardID string) error
	GetUsers(ctx context.Context, ids []string) ([]domain.User, error)
	FindUserByMail(ctx context.Context, mail string) (*domain.User, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}
