// Package alias provides dictionary stores backing the normalizer's
// alias resolution and fuzzy matching. Dictionaries are updatable
// externally (curated chain-name lists, per-user history) without code
// changes to the normalizer.
package alias

import (
	"context"
	"sync"

	"github.com/nimbly/receipts/internal/domain"
)

// Store extends the read-side resolver with the write operations the
// pipeline uses to remember newly minted canonical keys.
type Store interface {
	ResolveAlias(ctx context.Context, raw string, kind domain.EntityKind) (domain.Key, bool, error)
	KnownKeys(ctx context.Context, kind domain.EntityKind, userID string) ([]domain.Key, error)
	PutAlias(ctx context.Context, raw string, kind domain.EntityKind, canonical domain.Key) error
	PutKnownKey(ctx context.Context, kind domain.EntityKind, userID string, key domain.Key) error
}

// MemoryStore is an in-memory Store, safe for concurrent use. Data is
// lost on restart; use the bolt store for persistence.
type MemoryStore struct {
	mu      sync.RWMutex
	aliases map[aliasKey]domain.Key
	known   map[scopeKey]map[domain.Key]struct{}
}

type aliasKey struct {
	kind domain.EntityKind
	raw  string
}

type scopeKey struct {
	kind   domain.EntityKind
	userID string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		aliases: make(map[aliasKey]domain.Key),
		known:   make(map[scopeKey]map[domain.Key]struct{}),
	}
}

func (s *MemoryStore) ResolveAlias(_ context.Context, raw string, kind domain.EntityKind) (domain.Key, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.aliases[aliasKey{kind: kind, raw: raw}]
	return key, ok, nil
}

func (s *MemoryStore) KnownKeys(_ context.Context, kind domain.EntityKind, userID string) ([]domain.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.known[scopeKey{kind: kind, userID: userID}]
	keys := make([]domain.Key, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	return keys, nil
}

// PutAlias maps a raw variant to its canonical key. The canonical key
// is also self-mapped so that re-normalizing a canonical key stays a
// fixed point.
func (s *MemoryStore) PutAlias(_ context.Context, raw string, kind domain.EntityKind, canonical domain.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[aliasKey{kind: kind, raw: raw}] = canonical
	s.aliases[aliasKey{kind: kind, raw: string(canonical)}] = canonical
	return nil
}

func (s *MemoryStore) PutKnownKey(_ context.Context, kind domain.EntityKind, userID string, key domain.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scope := scopeKey{kind: kind, userID: userID}
	if s.known[scope] == nil {
		s.known[scope] = make(map[domain.Key]struct{})
	}
	s.known[scope][key] = struct{}{}
	return nil
}
