package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"instructapi/internal/config"
	"instructapi/internal/model"
)

var _ DocumentCache[model.InstructionContent] = (*RedisDocumentCache[model.InstructionContent])(nil)

// RedisDocumentCache stores JSON encoded documents under "<prefix>:<id>".
type RedisDocumentCache[C model.Content] struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisClient opens a client for the configured server.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		Protocol: 2,
	})
}

// NewRedisDocumentCache creates a cache for one document kind. prefix is
// usually the table name so both kinds can share one database.
func NewRedisDocumentCache[C model.Content](client redis.UniversalClient, prefix string, ttl time.Duration) *RedisDocumentCache[C] {
	return &RedisDocumentCache[C]{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisDocumentCache[C]) Get(ctx context.Context, id int64) (*model.Record[C], error) {
	buf, err := r.client.Get(ctx, documentKey(r.prefix, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	rec := &model.Record[C]{}
	if err := json.Unmarshal(buf, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Set stores rec unless the cached copy already carries a newer revision.
// A read-through fill that loaded before a write therefore cannot replace
// the written document. The check and the write run in one WATCH
// transaction; losing it to a concurrent writer returns redis.TxFailedErr.
func (r *RedisDocumentCache[C]) Set(ctx context.Context, rec *model.Record[C]) error {
	marshal, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := documentKey(r.prefix, rec.ID)
	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && cachedRevision(cur) > rec.Revision {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, marshal, r.ttl)
			return nil
		})
		return err
	}, key)
}

// cachedRevision reads the revision of a cached document. An unreadable
// entry reports 0 so it is always replaced.
func cachedRevision(buf []byte) int64 {
	var held struct {
		Revision int64 `json:"revision"`
	}
	if err := json.Unmarshal(buf, &held); err != nil {
		return 0
	}
	return held.Revision
}

func (r *RedisDocumentCache[C]) Delete(ctx context.Context, id int64) error {
	return r.client.Del(ctx, documentKey(r.prefix, id)).Err()
}
