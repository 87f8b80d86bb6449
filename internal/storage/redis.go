package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "numwatch/pkg/logx"
)

// redisStore keeps one JSON-encoded record per site in a single hash.
type redisStore struct {
	client *redis.Client
	key    string
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("storage.addr is required for redis driver")
	}
	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = "numwatch"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisStore{client: client, key: prefix + ":sites", log: log}, nil
}

func (s *redisStore) Close() error { return s.client.Close() }

func (s *redisStore) Load(ctx context.Context) (map[string]Record, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]Record, len(all))
	for id, v := range all {
		var jr jsonRecord
		if err := json.Unmarshal([]byte(v), &jr); err != nil {
			s.log.Warn("skipping unreadable site record", logx.Site(id), logx.Err(err))
			continue
		}
		r, err := decodeRecord(jr)
		if err != nil {
			s.log.Warn("skipping unreadable site record", logx.Site(id), logx.Err(err))
			continue
		}
		out[id] = r
	}
	return out, nil
}

func (s *redisStore) Save(ctx context.Context, id string, r Record) error {
	b, err := json.Marshal(encodeRecord(r))
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.key, id, string(b)).Err()
}
