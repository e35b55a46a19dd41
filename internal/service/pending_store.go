package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PendingRejection tracks a host who replied REJECT and still owes a
// rejection reason for a specific visit.
type PendingRejection struct {
	VisitorID int64     `json:"visitor_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MarshalBinary implements encoding.BinaryMarshaler for Redis storage.
func (p PendingRejection) MarshalBinary() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *PendingRejection) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, p)
}

// PendingStore holds pending rejections keyed by the host's phone
// number. Entries expire so an abandoned rejection does not swallow the
// host's next reply.
type PendingStore interface {
	Get(ctx context.Context, phone string) (*PendingRejection, error)
	Set(ctx context.Context, phone string, p PendingRejection) error
	Delete(ctx context.Context, phone string) error
}

type memoryPendingEntry struct {
	pending   PendingRejection
	expiresAt time.Time
}

// MemoryPendingStore is the in-process fallback used when Redis is not
// configured. Safe for concurrent use.
type MemoryPendingStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryPendingEntry
}

// NewMemoryPendingStore builds an in-memory store with the given TTL.
func NewMemoryPendingStore(ttl time.Duration) *MemoryPendingStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MemoryPendingStore{ttl: ttl, entries: make(map[string]memoryPendingEntry)}
}

// Get returns the pending rejection for the phone, or nil.
func (s *MemoryPendingStore) Get(ctx context.Context, phone string) (*PendingRejection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[phone]
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.entries, phone)
		return nil, nil
	}
	pending := entry.pending
	return &pending, nil
}

// Set records a pending rejection for the phone.
func (s *MemoryPendingStore) Set(ctx context.Context, phone string, p PendingRejection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[phone] = memoryPendingEntry{pending: p, expiresAt: time.Now().Add(s.ttl)}
	return nil
}

// Delete clears any pending rejection for the phone.
func (s *MemoryPendingStore) Delete(ctx context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, phone)
	return nil
}

// RedisPendingStore keeps pending rejections in Redis so the two-step
// rejection survives restarts and works across replicas.
type RedisPendingStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPendingStore builds a Redis-backed store with the given TTL.
func NewRedisPendingStore(client *redis.Client, ttl time.Duration) *RedisPendingStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisPendingStore{client: client, ttl: ttl}
}

func pendingKey(phone string) string {
	return "pending_rejection:" + phone
}

// Get returns the pending rejection for the phone, or nil.
func (s *RedisPendingStore) Get(ctx context.Context, phone string) (*PendingRejection, error) {
	var p PendingRejection
	if err := s.client.Get(ctx, pendingKey(phone)).Scan(&p); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pending rejection: %w", err)
	}
	return &p, nil
}

// Set records a pending rejection for the phone.
func (s *RedisPendingStore) Set(ctx context.Context, phone string, p PendingRejection) error {
	if err := s.client.Set(ctx, pendingKey(phone), &p, s.ttl).Err(); err != nil {
		return fmt.Errorf("set pending rejection: %w", err)
	}
	return nil
}

// Delete clears any pending rejection for the phone.
func (s *RedisPendingStore) Delete(ctx context.Context, phone string) error {
	if err := s.client.Del(ctx, pendingKey(phone)).Err(); err != nil {
		return fmt.Errorf("delete pending rejection: %w", err)
	}
	return nil
}
