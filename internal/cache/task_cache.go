package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	dom "tasktracker/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	keyListPrefix = "task:list:"
	// Kept outside keyListPrefix so InvalidateAll never scans it away.
	keyGeneration = "task:gen:list"
)

// TaskCache caches task list results in Redis.
type TaskCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTaskCache returns a new TaskCache.
func NewTaskCache(rdb *redis.Client, ttl time.Duration) *TaskCache {
	return &TaskCache{rdb: rdb, ttl: ttl}
}

// ListKey builds the cache key for one listing in generation gen. An
// empty ownerID is the unrestricted (manager/admin) view.
func ListKey(gen int64, f dom.TaskFilter) string {
	scope := "all"
	if f.OwnerID != "" {
		scope = "user:" + f.OwnerID
	}
	return keyListPrefix + strconv.FormatInt(gen, 10) + ":" + scope + ":" + string(f.Status) + ":" + normalizeQuery(f.Query)
}

// Generation returns the current listing generation. Readers must take it
// before loading from the store and pass it to GetList/SetList: a write
// bumps it, so a load that overlapped the write is stored under a key
// nobody reads any more.
func (c *TaskCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, keyGeneration).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// GetList returns the cached listing for f, or nil on a miss.
func (c *TaskCache) GetList(ctx context.Context, gen int64, f dom.TaskFilter) ([]dom.Task, error) {
	b, err := c.rdb.Get(ctx, ListKey(gen, f)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	list := []dom.Task{}
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// SetList stores the listing for f.
func (c *TaskCache) SetList(ctx context.Context, gen int64, f dom.TaskFilter, list []dom.Task) error {
	if list == nil {
		list = []dom.Task{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, ListKey(gen, f), b, c.ttl).Err()
}

// InvalidateAll starts a new generation and removes the listings cached so
// far. Any write can change both the owner's view and the unrestricted
// view, so all keys go.
func (c *TaskCache) InvalidateAll(ctx context.Context) error {
	if err := c.rdb.Incr(ctx, keyGeneration).Err(); err != nil {
		return err
	}
	iter := c.rdb.Scan(ctx, 0, keyListPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func normalizeQuery(q string) string {
	return strings.TrimSpace(strings.ToLower(q))
}
