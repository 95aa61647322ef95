package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"
)

const (
	redisKeyPrefix     = "docstore:"
	redisChangeChannel = "docstore:changes"
	redisMaxTxRetries  = 10
	redisScanCount     = 100
)

// RedisStore хранит каждый документ второго уровня (rooms/{id},
// users/{uid}) отдельным JSON-ключом. Записи выполняются оптимистичной
// транзакцией WATCH/MULTI, изменения публикуются в канал, на который
// подписан каждый экземпляр сервера.
type RedisStore struct {
	rdb  *redis.Client
	opts storeOptions
	subs *notifier

	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore подписывается на канал изменений и начинает рассылать
// снимки локальным подписчикам.
func NewRedisStore(ctx context.Context, rdb *redis.Client, opts ...Option) (*RedisStore, error) {
	pubsub := rdb.Subscribe(ctx, redisChangeChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", redisChangeChannel, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &RedisStore{
		rdb:    rdb,
		opts:   buildOptions(opts),
		subs:   newNotifier(),
		pubsub: pubsub,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.listen(loopCtx)
	return s, nil
}

func shardKey(collection, id string) string {
	return redisKeyPrefix + collection + "/" + id
}

func (s *RedisStore) listen(ctx context.Context) {
	defer close(s.done)
	for msg := range s.pubsub.Channel() {
		var paths []string
		if err := json.Unmarshal([]byte(msg.Payload), &paths); err != nil {
			log.Printf("docstore: bad change notification: %v", err)
			continue
		}
		s.subs.notify(ctx, paths, s.Get)
	}
}

func (s *RedisStore) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	if len(segs) == 1 {
		value, err := s.getCollection(ctx, segs[0])
		if err != nil {
			return Snapshot{}, err
		}
		return NewSnapshot(path, value), nil
	}

	doc, err := readShard(ctx, s.rdb, shardKey(segs[0], segs[1]))
	if err != nil {
		return Snapshot{}, err
	}
	value, _ := getAt(doc, segs[2:])
	return NewSnapshot(path, value), nil
}

func (s *RedisStore) getCollection(ctx context.Context, collection string) (any, error) {
	prefix := shardKey(collection, "")
	var keys []string
	iter := s.rdb.Scan(ctx, 0, prefix+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget %s: %w", collection, err)
	}
	out := make(map[string]any, len(keys))
	for i, val := range vals {
		raw, ok := val.(string)
		if !ok {
			continue
		}
		var doc any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		if doc != nil {
			out[strings.TrimPrefix(keys[i], prefix)] = doc
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readShard(ctx context.Context, r redisGetter, key string) (any, error) {
	raw, err := r.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return doc, nil
}

func (s *RedisStore) Set(ctx context.Context, path string, value any) error {
	return s.Update(ctx, map[string]any{path: value})
}

func (s *RedisStore) Update(ctx context.Context, updates map[string]any) error {
	writes, err := prepareUpdates(updates, s.opts.now().UnixMilli())
	if err != nil {
		return err
	}

	byShard := make(map[string][]preparedWrite)
	for _, w := range writes {
		key := shardKey(w.segs[0], w.segs[1])
		byShard[key] = append(byShard[key], w)
	}
	keys := make([]string, 0, len(byShard))
	for key := range byShard {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	txf := func(tx *redis.Tx) error {
		docs := make(map[string]any, len(keys))
		for _, key := range keys {
			doc, err := readShard(ctx, tx, key)
			if err != nil {
				return err
			}
			for _, w := range byShard[key] {
				doc = setAt(doc, w.segs[2:], w.value)
			}
			docs[key] = doc
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, key := range keys {
				doc := docs[key]
				if doc == nil {
					pipe.Del(ctx, key)
					continue
				}
				b, err := json.Marshal(doc)
				if err != nil {
					return err
				}
				pipe.Set(ctx, key, b, 0)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < redisMaxTxRetries; attempt++ {
		err = s.rdb.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return err
		}
		return s.publish(ctx, changedPaths(writes))
	}
	return ErrTxConflict
}

// UpdateIfExists проверяет parent внутри той же транзакции WATCH, что
// и запись, поэтому параллельное удаление узла не приводит к его
// частичному воссозданию.
func (s *RedisStore) UpdateIfExists(ctx context.Context, parent string, updates map[string]any) error {
	parentSegs, writes, err := prepareScopedUpdates(parent, updates, s.opts.now().UnixMilli())
	if err != nil {
		return err
	}
	key := shardKey(parentSegs[0], parentSegs[1])

	var applied bool
	txf := func(tx *redis.Tx) error {
		applied = false
		doc, err := readShard(ctx, tx, key)
		if err != nil {
			return err
		}
		if _, ok := getAt(doc, parentSegs[2:]); !ok {
			return nil
		}
		for _, w := range writes {
			doc = setAt(doc, w.segs[2:], w.value)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if doc == nil {
				pipe.Del(ctx, key)
				return nil
			}
			b, err := json.Marshal(doc)
			if err != nil {
				return err
			}
			pipe.Set(ctx, key, b, 0)
			return nil
		})
		applied = err == nil
		return err
	}

	for attempt := 0; attempt < redisMaxTxRetries; attempt++ {
		err = s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		return s.publish(ctx, changedPaths(writes))
	}
	return ErrTxConflict
}

func (s *RedisStore) publish(ctx context.Context, paths []string) error {
	b, err := json.Marshal(paths)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, redisChangeChannel, b).Err()
}

func (s *RedisStore) Push(ctx context.Context, parent string, value any) (string, error) {
	segs, err := splitPath(parent)
	if err != nil {
		return "", err
	}
	key := s.opts.keys()
	if err := s.Set(ctx, joinPath(append(segs, key)), value); err != nil {
		return "", err
	}
	return key, nil
}

func (s *RedisStore) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Unsubscribe, error) {
	return s.subs.subscribe(ctx, path, fn, s.Get)
}

// Close останавливает рассылку. Клиент Redis закрывает вызывающий.
func (s *RedisStore) Close() error {
	s.cancel()
	err := s.pubsub.Close()
	<-s.done
	s.subs.clear()
	return err
}
