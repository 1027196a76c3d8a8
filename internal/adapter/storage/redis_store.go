package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/santiago-gil/tools-tracker/internal/core/domain"
	"github.com/santiago-gil/tools-tracker/internal/port"
)

const (
	docKeyPrefix = "doc:"
	idsKeyPrefix = "ids:"

	// WATCH-based transactions are retried this many times before giving up
	maxTxnRetries = 5
)

// RedisStore keeps each document as a JSON string at doc:<collection>:<id>
// and tracks collection membership in a set at ids:<collection>.
// Transactions use WATCH plus a queued MULTI/EXEC pipeline; a concurrent
// write to a watched key aborts the EXEC and the transaction is retried.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func docKey(collection, id string) string {
	return docKeyPrefix + collection + ":" + id
}

func idsKey(collection string) string {
	return idsKeyPrefix + collection
}

func (r *RedisStore) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	raw, err := r.client.Get(ctx, docKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return decodeDoc(raw)
}

func (r *RedisStore) List(ctx context.Context, collection string) ([]port.Document, error) {
	ids, err := r.client.SMembers(ctx, idsKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("list document ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(collection, id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	var results []port.Document
	for i, v := range values {
		// id still in the set but key already gone; skip
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected value type %T for %s", v, keys[i])
		}
		doc, err := decodeDoc([]byte(s))
		if err != nil {
			return nil, err
		}
		results = append(results, port.Document{ID: ids[i], Data: doc})
	}
	return results, nil
}

func (r *RedisStore) Query(ctx context.Context, collection, field string, op port.Op, value any) ([]port.Document, error) {
	all, err := r.List(ctx, collection)
	if err != nil {
		return nil, err
	}

	var results []port.Document
	for _, d := range all {
		docVal, ok := d.Data[field]
		if !ok {
			continue
		}
		match, err := matchValue(docVal, op, value)
		if err != nil {
			return nil, err
		}
		if match {
			results = append(results, d)
		}
	}
	return results, nil
}

func (r *RedisStore) Add(ctx context.Context, collection string, doc map[string]any) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	id := uuid.New().String()
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, docKey(collection, id), raw, 0)
	pipe.SAdd(ctx, idsKey(collection), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

func (r *RedisStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return r.RunTransaction(ctx, func(ctx context.Context, tx port.Txn) error {
		return tx.Update(ctx, collection, id, fields)
	})
}

func (r *RedisStore) Delete(ctx context.Context, collection, id string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, docKey(collection, id))
	pipe.SRem(ctx, idsKey(collection), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (r *RedisStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx port.Txn) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err := r.client.Watch(ctx, func(rtx *redis.Tx) error {
			txn := &redisTxn{tx: rtx}
			if err := fn(ctx, txn); err != nil {
				return err
			}
			if len(txn.writes) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for key, raw := range txn.writes {
					pipe.Set(ctx, key, raw, 0)
				}
				return nil
			})
			return err
		})

		if errors.Is(err, redis.TxFailedErr) {
			lastErr = err
			continue
		}
		return err
	}
	return fmt.Errorf("transaction retries exhausted: %w", lastErr)
}

// redisTxn watches every key it reads and buffers writes until EXEC. Reads
// do not observe writes buffered in the same transaction.
type redisTxn struct {
	tx     *redis.Tx
	writes map[string][]byte
}

func (t *redisTxn) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	key := docKey(collection, id)
	if err := t.tx.Watch(ctx, key).Err(); err != nil {
		return nil, fmt.Errorf("watch %s: %w", key, err)
	}

	raw, err := t.tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return decodeDoc(raw)
}

func (t *redisTxn) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	key := docKey(collection, id)
	if err := t.tx.Watch(ctx, key).Err(); err != nil {
		return fmt.Errorf("watch %s: %w", key, err)
	}

	raw, err := t.tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("update %s/%s: %w", collection, id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}

	merged, err := mergeDoc(raw, fields)
	if err != nil {
		return err
	}

	if t.writes == nil {
		t.writes = make(map[string][]byte)
	}
	t.writes[key] = merged
	return nil
}
