package services

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/huddlehq/huddle/backend/internal/config"
	"github.com/huddlehq/huddle/backend/pkg/logger"
)

// RevocationStore tracks tokens invalidated before their natural expiry.
// Entries live until the token would have expired anyway.
type RevocationStore interface {
	// Revoke blacklists a token for ttl.
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	// IsRevoked reports whether a token has been blacklisted.
	IsRevoked(ctx context.Context, token string) (bool, error)
	// Close releases store resources.
	Close() error
}

// NewRevocationStore picks the backing store from config: Redis when
// enabled, otherwise an in-process store. Mirrors process lifetime semantics:
// with the memory store a restart forgets revocations, but it also cuts all
// live connections, so re-authentication happens either way.
func NewRevocationStore(cfg *config.RedisConfig) RevocationStore {
	if cfg.Enabled {
		store, err := NewRedisRevocationStore(cfg)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, falling back to in-memory revocation store")
			return NewMemoryRevocationStore()
		}
		logger.Info().Str("addr", cfg.Addr).Msg("redis revocation store initialized")
		return store
	}
	logger.Info().Msg("in-memory revocation store initialized (redis disabled)")
	return NewMemoryRevocationStore()
}

// RedisRevocationStore keeps blacklist entries in Redis with native TTLs.
type RedisRevocationStore struct {
	client *redis.Client
}

func NewRedisRevocationStore(cfg *config.RedisConfig) (*RedisRevocationStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisRevocationStore{client: client}, nil
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, revocationKey(token), "revoked", ttl).Err()
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	err := s.client.Get(ctx, revocationKey(token)).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisRevocationStore) Close() error {
	return s.client.Close()
}

func revocationKey(token string) string {
	return "revoked:" + token
}

// MemoryRevocationStore is the single-process fallback. A cron sweep purges
// expired entries so the map does not grow without bound.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time // token -> expiry
	janitor *cron.Cron
}

func NewMemoryRevocationStore() *MemoryRevocationStore {
	s := &MemoryRevocationStore{
		entries: make(map[string]time.Time),
	}
	s.janitor = cron.New()
	s.janitor.AddFunc("@every 5m", s.sweep)
	s.janitor.Start()
	return s
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = time.Now().Add(ttl)
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiry, ok := s.entries[token]
	if !ok {
		return false, nil
	}
	return time.Now().Before(expiry), nil
}

func (s *MemoryRevocationStore) Close() error {
	if s.janitor != nil {
		s.janitor.Stop()
	}
	return nil
}

func (s *MemoryRevocationStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, expiry := range s.entries {
		if now.After(expiry) {
			delete(s.entries, token)
		}
	}
}
