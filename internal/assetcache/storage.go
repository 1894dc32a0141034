package assetcache

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Entry is a cached response.
type Entry struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Storage holds named cache generations of entries keyed by request path.
type Storage interface {
	Put(ctx context.Context, cache, key string, e Entry) error
	Match(ctx context.Context, cache, key string) (Entry, bool, error)
	Names(ctx context.Context) ([]string, error)
	Drop(ctx context.Context, cache string) error
}

type memoryStorage struct {
	mu     sync.RWMutex
	caches map[string]map[string]Entry
}

func NewMemoryStorage() Storage {
	return &memoryStorage{caches: map[string]map[string]Entry{}}
}

func (m *memoryStorage) Put(_ context.Context, cache, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.caches[cache]
	if !ok {
		c = map[string]Entry{}
		m.caches[cache] = c
	}
	e.Body = append([]byte(nil), e.Body...)
	c[key] = e
	return nil
}

func (m *memoryStorage) Match(_ context.Context, cache, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.caches[cache][key]
	return e, ok, nil
}

func (m *memoryStorage) Names(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.caches))
	for n := range m.caches {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryStorage) Drop(_ context.Context, cache string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.caches, cache)
	return nil
}

const namesKey = "assetcache:names"

func genKey(cache string) string { return "assetcache:" + cache }

// redisStorage keeps one hash per generation plus a set of generation names.
type redisStorage struct {
	rdb *redis.Client
}

func NewRedisStorage(rdb *redis.Client) Storage { return &redisStorage{rdb: rdb} }

func (r *redisStorage) Put(ctx context.Context, cache, key string, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, namesKey, cache)
		p.HSet(ctx, genKey(cache), key, b)
		return nil
	})
	return err
}

func (r *redisStorage) Match(ctx context.Context, cache, key string) (Entry, bool, error) {
	b, err := r.rdb.HGet(ctx, genKey(cache), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (r *redisStorage) Names(ctx context.Context) ([]string, error) {
	names, err := r.rdb.SMembers(ctx, namesKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (r *redisStorage) Drop(ctx context.Context, cache string) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, genKey(cache))
		p.SRem(ctx, namesKey, cache)
		return nil
	})
	return err
}
