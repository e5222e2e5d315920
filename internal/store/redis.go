package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Fantasim/paysync/internal/config"
	"github.com/Fantasim/paysync/internal/models"
)

// RedisStore is an InvoiceStore backed by Redis string keys with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore connects lazily; call Ping to check the server.
func NewRedisStore(addr, password string, db int, ttl time.Duration) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	slog.Info("redis invoice store created", "addr", addr, "db", db, "ttl", ttl)

	return &RedisStore{
		client: client,
		ttl:    ttl,
		prefix: config.DemoRedisKeyPrefix,
	}
}

func (s *RedisStore) key(invoiceID string) string {
	return s.prefix + invoiceID
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, invoiceID string) (*models.Seed, bool, error) {
	val, err := s.client.Get(ctx, s.key(invoiceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", invoiceID, err)
	}

	var seed models.Seed
	if err := json.Unmarshal(val, &seed); err != nil {
		return nil, false, fmt.Errorf("decode seed %s: %w", invoiceID, err)
	}
	return &seed, true, nil
}

func (s *RedisStore) Put(ctx context.Context, seed models.Seed) error {
	payload, err := json.Marshal(seed)
	if err != nil {
		return fmt.Errorf("encode seed %s: %w", seed.InvoiceID, err)
	}
	if err := s.client.Set(ctx, s.key(seed.InvoiceID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", seed.InvoiceID, err)
	}
	return nil
}
