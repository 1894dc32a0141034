package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// inboxCap bounds how many notifications are kept per user.
const inboxCap = 200

type Repository interface {
	Push(ctx context.Context, n Notification) error
	List(ctx context.Context, userID string, limit int64) ([]Notification, error)
	MarkRead(ctx context.Context, userID, notifID string) error
}

type redisRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisRepository(rdb *redis.Client) Repository {
	return &redisRepo{rdb: rdb, ttl: 30 * 24 * time.Hour}
}

func key(userID string) string { return fmt.Sprintf("notif:%s", userID) }

func (r *redisRepo) Push(ctx context.Context, n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.LPush(ctx, key(n.UserID), b)
	pipe.LTrim(ctx, key(n.UserID), 0, inboxCap-1)
	pipe.Expire(ctx, key(n.UserID), r.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisRepo) List(ctx context.Context, userID string, limit int64) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	vals, err := r.rdb.LRange(ctx, key(userID), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Notification, 0, len(vals))
	for _, v := range vals {
		var n Notification
		if json.Unmarshal([]byte(v), &n) == nil {
			out = append(out, n)
		}
	}
	return out, nil
}

// MarkRead rewrites the matching list element in place.
func (r *redisRepo) MarkRead(ctx context.Context, userID, notifID string) error {
	vals, err := r.rdb.LRange(ctx, key(userID), 0, inboxCap-1).Result()
	if err != nil {
		return err
	}
	for i, v := range vals {
		var n Notification
		if json.Unmarshal([]byte(v), &n) != nil || n.ID != notifID {
			continue
		}
		n.Read = true
		b, _ := json.Marshal(n)
		return r.rdb.LSet(ctx, key(userID), int64(i), b).Err()
	}
	return ErrNotificationNotFound
}

type memoryRepo struct {
	mu    sync.Mutex
	items map[string][]Notification // newest first
}

func NewMemoryRepository() Repository {
	return &memoryRepo{items: map[string][]Notification{}}
}

func (m *memoryRepo) Push(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append([]Notification{n}, m.items[n.UserID]...)
	if len(list) > inboxCap {
		list = list[:inboxCap]
	}
	m.items[n.UserID] = list
	return nil
}

func (m *memoryRepo) List(_ context.Context, userID string, limit int64) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	list := m.items[userID]
	if int64(len(list)) > limit {
		list = list[:limit]
	}
	return append([]Notification(nil), list...), nil
}

func (m *memoryRepo) MarkRead(_ context.Context, userID, notifID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items[userID] {
		if m.items[userID][i].ID == notifID {
			m.items[userID][i].Read = true
			return nil
		}
	}
	return ErrNotificationNotFound
}
