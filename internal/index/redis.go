package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/franz/bibcluster/internal/model"
	"github.com/franz/bibcluster/internal/util"
)

// RedisOptions configures the Redis connection and key prefix.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisProjector stores one JSON document per work under prefix+"work:"+uuid
// and tracks indexed uuids in the prefix+"works" set.
type RedisProjector struct {
	client *redis.Client
	prefix string
	retry  *util.RetryConfig
}

// NewRedisProjector creates a projector. The connection is opened lazily.
func NewRedisProjector(opts RedisOptions) *RedisProjector {
	return &RedisProjector{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		prefix: opts.Prefix,
		retry:  util.IndexRetryConfig(),
	}
}

// Close closes the Redis client.
func (p *RedisProjector) Close() error {
	return p.client.Close()
}

// Ping checks that the Redis server answers.
func (p *RedisProjector) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisProjector) key(uuid string) string { return p.prefix + "work:" + uuid }

func (p *RedisProjector) membersKey() string { return p.prefix + "works" }

// Upsert writes the documents of works. Fields of an existing document that
// the projection does not produce are kept.
func (p *RedisProjector) Upsert(ctx context.Context, works []*model.Work) error {
	if len(works) == 0 {
		return nil
	}
	err := util.Retry(ctx, p.retry, func() error {
		return p.upsert(ctx, works)
	}, "index upsert")
	if err != nil {
		return fmt.Errorf("%w: upsert %d works: %w", util.ErrIndexUnavailable, len(works), err)
	}
	return nil
}

func (p *RedisProjector) upsert(ctx context.Context, works []*model.Work) error {
	keys := make([]string, len(works))
	for i, w := range works {
		keys[i] = p.key(w.UUID)
	}

	existing, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return err
	}

	payloads := make([][]byte, len(works))
	for i, w := range works {
		payloads[i], err = mergeDocument(existing[i], BuildDocument(w))
		if err != nil {
			return err
		}
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, w := range works {
			pipe.Set(ctx, keys[i], payloads[i], 0)
			pipe.SAdd(ctx, p.membersKey(), w.UUID)
		}
		return nil
	})
	return err
}

// mergeDocument overlays doc on a previously stored document.
func mergeDocument(prev any, doc Document) ([]byte, error) {
	fresh, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document %s: %w", doc.UUID, err)
	}

	stored, ok := prev.(string)
	if !ok || stored == "" {
		return fresh, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stored), &fields); err != nil {
		util.WarnLog("Replacing unreadable index document %s: %v", doc.UUID, err)
		return fresh, nil
	}

	var update map[string]json.RawMessage
	if err := json.Unmarshal(fresh, &update); err != nil {
		return nil, err
	}
	for k, v := range update {
		fields[k] = v
	}
	return json.Marshal(fields)
}

// Delete removes documents. Unknown uuids are ignored.
func (p *RedisProjector) Delete(ctx context.Context, uuids []string) error {
	if len(uuids) == 0 {
		return nil
	}

	keys := make([]string, len(uuids))
	members := make([]any, len(uuids))
	for i, id := range uuids {
		keys[i] = p.key(id)
		members[i] = id
	}

	err := util.Retry(ctx, p.retry, func() error {
		_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			pipe.SRem(ctx, p.membersKey(), members...)
			return nil
		})
		return err
	}, "index delete")
	if err != nil {
		return fmt.Errorf("%w: delete %d works: %w", util.ErrIndexUnavailable, len(uuids), err)
	}
	return nil
}

// Get reads the document of one work.
func (p *RedisProjector) Get(ctx context.Context, uuid string) (Document, bool, error) {
	val, err := p.client.Get(ctx, p.key(uuid)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Document{}, false, nil
		}
		return Document{}, false, err
	}

	var doc Document
	if err := json.Unmarshal([]byte(val), &doc); err != nil {
		return Document{}, false, err
	}
	return doc, true, nil
}

// Count returns the number of indexed works.
func (p *RedisProjector) Count(ctx context.Context) (int64, error) {
	return p.client.SCard(ctx, p.membersKey()).Result()
}
