package alias

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/nimbly/receipts/internal/domain"
)

const (
	aliasBucketName = "aliases"
	keysBucketName  = "known_keys"
)

// BoltStore is a bbolt-backed Store for single-instance deployments
// that need dictionaries to survive restarts.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("NewBoltStore: opening bbolt: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(aliasBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(keysBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("NewBoltStore: creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func aliasEntryKey(kind domain.EntityKind, raw string) []byte {
	return []byte(string(kind) + "\x00" + raw)
}

func knownEntryPrefix(kind domain.EntityKind, userID string) []byte {
	return []byte(string(kind) + "\x00" + userID + "\x00")
}

func (s *BoltStore) ResolveAlias(_ context.Context, raw string, kind domain.EntityKind) (domain.Key, bool, error) {
	var key domain.Key
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(aliasBucketName)).Get(aliasEntryKey(kind, raw))
		if v != nil {
			key, found = domain.Key(v), true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("ResolveAlias: %w", err)
	}
	return key, found, nil
}

func (s *BoltStore) KnownKeys(_ context.Context, kind domain.EntityKind, userID string) ([]domain.Key, error) {
	prefix := knownEntryPrefix(kind, userID)
	var keys []domain.Key
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(keysBucketName)).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, domain.Key(k[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("KnownKeys: %w", err)
	}
	return keys, nil
}

func (s *BoltStore) PutAlias(_ context.Context, raw string, kind domain.EntityKind, canonical domain.Key) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(aliasBucketName))
		if err := b.Put(aliasEntryKey(kind, raw), []byte(canonical)); err != nil {
			return err
		}
		return b.Put(aliasEntryKey(kind, string(canonical)), []byte(canonical))
	})
	if err != nil {
		return fmt.Errorf("PutAlias: %w", err)
	}
	return nil
}

func (s *BoltStore) PutKnownKey(_ context.Context, kind domain.EntityKind, userID string, key domain.Key) error {
	entry := append(knownEntryPrefix(kind, userID), []byte(key)...)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(keysBucketName)).Put(entry, []byte{})
	})
	if err != nil {
		return fmt.Errorf("PutKnownKey: %w", err)
	}
	return nil
}
