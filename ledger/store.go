package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"musicseed-go/storage"

	bolt "go.etcd.io/bbolt"
)

// Store persists lifetime usage counts keyed by identity. Increment must be
// one indivisible operation: concurrent increments of the same identity
// never lose an update.
type Store interface {
	Count(ctx context.Context, identity string) (int, error)
	Increment(ctx context.Context, identity string) (int, error)
}

// MemoryStore keeps counts in process memory
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]int)}
}

func (m *MemoryStore) Count(ctx context.Context, identity string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[identity], nil
}

func (m *MemoryStore) Increment(ctx context.Context, identity string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[identity]++
	return m.counts[identity], nil
}

// BucketName is the bucket BoltStore keeps counts in
const BucketName = "usage"

// BoltStore keeps counts in a bbolt bucket as big-endian uint64 values.
// bbolt serializes writers, so the read-modify-write inside one Update
// transaction is atomic.
type BoltStore struct {
	db *storage.DB
}

// NewBoltStore binds a store to the usage bucket of db
func NewBoltStore(db *storage.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create usage bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Count(ctx context.Context, identity string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count uint64
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketName))
		if bucket == nil {
			return fmt.Errorf("usage bucket not found")
		}
		count = decodeCount(bucket.Get([]byte(identity)))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read usage for %s: %w", identity, err)
	}
	return int(count), nil
}

func (b *BoltStore) Increment(ctx context.Context, identity string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count uint64
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketName))
		if bucket == nil {
			return fmt.Errorf("usage bucket not found")
		}
		count = decodeCount(bucket.Get([]byte(identity))) + 1

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, count)
		return bucket.Put([]byte(identity), buf)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage for %s: %w", identity, err)
	}
	return int(count), nil
}

func decodeCount(v []byte) uint64 {
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}
