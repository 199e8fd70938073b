package redis_tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/bulkcart/internal/session/models"
	"github.com/redis/go-redis/v9"
)

// Store keeps the token as one JSON value under a fixed key so several
// hosts running the batch can share a login.
type Store struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// Conn opens a client and checks the server answers PING.
func Conn(ctx context.Context, addr, pass string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: timeout,
		Password:    pass,
		DB:          db,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if pong != "PONG" {
		_ = client.Close()
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	return client, nil
}

// NewRedisTokenStore wraps client. A ttl of zero keeps the token until deleted.
func NewRedisTokenStore(client *redis.Client, key string, ttl time.Duration) *Store {
	return &Store{client: client, key: key, ttl: ttl}
}

func (s *Store) Load(ctx context.Context) (models.Token, bool, error) {
	val, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Token{}, false, nil
	}
	if err != nil {
		return models.Token{}, false, err
	}
	var tok models.Token
	if err := json.Unmarshal(val, &tok); err != nil {
		return models.Token{}, false, fmt.Errorf("decode %s: %w", s.key, err)
	}
	return tok, true, nil
}

func (s *Store) Save(ctx context.Context, tok models.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, data, s.ttl).Err()
}

func (s *Store) Delete(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

func (s *Store) Close() error { return s.client.Close() }
