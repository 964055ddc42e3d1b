package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/GoldenGamerLP/keeplist/domain"
)

// BoardsKeyPrefix prefixes the cache key for a board snapshot.
const BoardsKeyPrefix = "board:"

type backend interface {
	GetBoard(ctx context.Context, boardID string) (*domain.Board, error)
	InsertBoard(ctx context.Context, b *domain.Board) error
	UpdateBoard(ctx context.Context, boardID string, mutate func(*domain.Board) error) (*domain.Board, error)
	DeleteBoard(ctx context.Context, boardID string) error
}

// Cache wraps a Storage instance with Redis-backed caching of board
// snapshots. Cache failures degrade to the base storage; they are logged and
// never surfaced to callers.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	c := &Cache{base: base, redis: client, ttl: ttl}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) GetBoard(ctx context.Context, boardID string) (*domain.Board, error) {
	if data, err := c.redis.Get(ctx, BoardsKeyPrefix+boardID).Bytes(); err == nil {
		var b domain.Board
		if err := json.Unmarshal(data, &b); err == nil {
			return &b, nil
		}
	} else if err != redis.Nil {
		log.Debugf("board cache read %s: %v", boardID, err)
	}

	b, err := c.base.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, b)
	return b, nil
}

func (c *Cache) UpdateBoard(ctx context.Context, boardID string, mutate func(*domain.Board) error) (*domain.Board, error) {
	b, err := c.base.UpdateBoard(ctx, boardID, mutate)
	if err != nil {
		return nil, err
	}
	c.store(ctx, b)
	return b, nil
}

func (c *Cache) DeleteBoard(ctx context.Context, boardID string) error {
	if err := c.base.DeleteBoard(ctx, boardID); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

func (c *Cache) store(ctx context.Context, b *domain.Board) {
	data, err := json.Marshal(b)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, BoardsKeyPrefix+b.ID, data, c.ttl).Err(); err != nil {
		log.Debugf("board cache write %s: %v", b.ID, err)
	}
}

func (c *Cache) evict(ctx context.Context, boardID string) {
	if err := c.redis.Del(ctx, BoardsKeyPrefix+boardID).Err(); err != nil {
		log.Debugf("board cache evict %s: %v", boardID, err)
	}
}
