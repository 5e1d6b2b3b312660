package draft

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/errors"
)

// Store persists drafts keyed by user id. Get returns a NotFound error when
// the user has no draft. Implementations hand out copies; callers mutate
// freely and Put the result back.
type Store interface {
	Get(ctx context.Context, userID int64) (*Draft, error)
	Put(ctx context.Context, d *Draft) error
	Delete(ctx context.Context, userID int64) error
}

func notFound(userID int64) error {
	return errors.NewNotFound("draft", strconv.FormatInt(userID, 10))
}

// MemoryStore keeps drafts in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	drafts map[int64][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[int64][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, userID int64) (*Draft, error) {
	m.mu.Lock()
	data, ok := m.drafts[userID]
	m.mu.Unlock()
	if !ok {
		return nil, notFound(userID)
	}
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errors.NewInternal(err)
	}
	return &d, nil
}

func (m *MemoryStore) Put(_ context.Context, d *Draft) error {
	data, err := json.Marshal(d)
	if err != nil {
		return errors.NewInternal(err)
	}
	m.mu.Lock()
	m.drafts[d.UserID] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	delete(m.drafts, userID)
	m.mu.Unlock()
	return nil
}

// SQLiteStore keeps drafts in the drafts table so they survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an initialized database.
func NewSQLiteStore(database *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: database}
}

func (s *SQLiteStore) Get(ctx context.Context, userID int64) (*Draft, error) {
	row, err := db.GetDraft(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	var d Draft
	if err := json.Unmarshal(row.Data, &d); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("decode draft %d: %w", userID, err))
	}
	return &d, nil
}

func (s *SQLiteStore) Put(ctx context.Context, d *Draft) error {
	data, err := json.Marshal(d)
	if err != nil {
		return errors.NewInternal(err)
	}
	return db.PutDraft(ctx, s.db, &db.DraftRow{
		UserID:    d.UserID,
		State:     string(d.State),
		Data:      data,
		UpdatedAt: d.UpdatedAt,
	})
}

func (s *SQLiteStore) Delete(ctx context.Context, userID int64) error {
	return db.DeleteDraft(ctx, s.db, userID)
}

// RedisStore keeps drafts in Redis with an idle TTL, for deployments that run
// several bot processes against one conversation stream.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store on client. A zero ttl keeps drafts until deleted.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: "storebot:draft:", ttl: ttl}
}

func (r *RedisStore) key(userID int64) string {
	return r.prefix + strconv.FormatInt(userID, 10)
}

func (r *RedisStore) Get(ctx context.Context, userID int64) (*Draft, error) {
	data, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if err == redis.Nil {
		return nil, notFound(userID)
	}
	if err != nil {
		return nil, errors.NewStorageUnavailable(err)
	}
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("decode draft %d: %w", userID, err))
	}
	return &d, nil
}

func (r *RedisStore) Put(ctx context.Context, d *Draft) error {
	data, err := json.Marshal(d)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := r.client.Set(ctx, r.key(d.UserID), data, r.ttl).Err(); err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return nil
}
