// Package tokenstore persists the session token between runs.
package tokenstore

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/bulkcart/config"
	"github.com/mohammad-safakhou/bulkcart/internal/session/models"
	"github.com/mohammad-safakhou/bulkcart/internal/session/tokenstore/file"
	"github.com/mohammad-safakhou/bulkcart/internal/session/tokenstore/inmemory"
	redis_tokenstore "github.com/mohammad-safakhou/bulkcart/internal/session/tokenstore/redis"
)

// Store holds at most one token. Load reports ok=false when nothing is stored.
type Store interface {
	Load(ctx context.Context) (tok models.Token, ok bool, err error)
	Save(ctx context.Context, tok models.Token) error
	Delete(ctx context.Context) error
}

type StoreType string

const (
	FileStore     StoreType = config.SessionStoreFile
	RedisStore    StoreType = config.SessionStoreRedis
	InMemoryStore StoreType = config.SessionStoreMemory
)

// New builds the store selected by cfg.Session.Store. The returned close
// function releases backend connections and is never nil.
func New(ctx context.Context, cfg *config.Config) (Store, func() error, error) {
	noop := func() error { return nil }
	switch StoreType(cfg.Session.Store) {
	case FileStore, "":
		return file.NewFileTokenStore(cfg.Session.FilePath), noop, nil
	case InMemoryStore:
		return inmemory.NewInMemoryTokenStore(), noop, nil
	case RedisStore:
		rc := cfg.Storage.Redis
		client, err := redis_tokenstore.Conn(ctx, rc.Addr(), rc.Password, rc.DB, rc.Timeout)
		if err != nil {
			return nil, noop, fmt.Errorf("connect redis %s: %w", rc.Addr(), err)
		}
		s := redis_tokenstore.NewRedisTokenStore(client, cfg.Session.RedisKey, cfg.Session.TTL)
		return s, s.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported token store %q", cfg.Session.Store)
	}
}

var (
	_ Store = (*file.Store)(nil)
	_ Store = (*inmemory.Store)(nil)
	_ Store = (*redis_tokenstore.Store)(nil)
)
