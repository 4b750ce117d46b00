package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/stayhub/checkout-gateway/internal/checkout"
)

// ErrSessionNotFound is returned for unknown or expired checkout sessions
var ErrSessionNotFound = errors.New("checkout session not found")

// SessionStore keeps checkout sessions between requests
type SessionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*checkout.State, error)
	Save(ctx context.Context, state *checkout.State) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RedisSessionStore stores sessions as JSON with a sliding TTL
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSessionStore creates a redis backed session store
func NewRedisSessionStore(client *redis.Client, prefix string, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSessionStore) key(id uuid.UUID) string {
	return s.prefix + id.String()
}

// Get loads a session
func (s *RedisSessionStore) Get(ctx context.Context, id uuid.UUID) (*checkout.State, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkout session: %w", err)
	}

	var state checkout.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	return &state, nil
}

// Save writes a session and resets its TTL
func (s *RedisSessionStore) Save(ctx context.Context, state *checkout.State) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode checkout session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(state.SessionID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save checkout session: %w", err)
	}
	return nil
}

// Delete removes a session
func (s *RedisSessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemorySessionStore is a single-process session store. Entries are stored
// encoded so callers never share a *checkout.State.
type MemorySessionStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemorySessionStore creates an in-memory session store
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		entries: make(map[uuid.UUID]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get loads a session
func (s *MemorySessionStore) Get(_ context.Context, id uuid.UUID) (*checkout.State, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok || s.now().After(entry.expiresAt) {
		return nil, ErrSessionNotFound
	}

	var state checkout.State
	if err := json.Unmarshal(entry.data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	return &state, nil
}

// Save writes a session and resets its TTL
func (s *MemorySessionStore) Save(_ context.Context, state *checkout.State) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode checkout session: %w", err)
	}

	s.mu.Lock()
	s.entries[state.SessionID] = memoryEntry{data: b, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return nil
}

// Delete removes a session
func (s *MemorySessionStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

// Cleanup drops expired sessions and returns how many were removed
func (s *MemorySessionStore) Cleanup() int {
	now := s.now()
	removed := 0

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
