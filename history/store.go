package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"musicseed-go/logcolors"
	"musicseed-go/models"
	"musicseed-go/storage"
	"musicseed-go/utils"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

// BucketName is the bbolt bucket holding history records
const BucketName = "history"

// MaxEntries is how many results are kept; older ones are evicted
const MaxEntries = 20

// ErrNotFound is returned by Delete for an unknown id
var ErrNotFound = errors.New("history entry not found")

// record is the stored form of an entry. Value holds the entry JSON,
// gzip+base64 encoded when Compressed is set.
type record struct {
	Value      string `json:"value"`
	Compressed bool   `json:"compressed,omitempty"`
}

// Store keeps the most recent generations on the local machine. Records are
// keyed by the bucket sequence so cursor order is insertion order.
type Store struct {
	db         *storage.DB
	compressed bool
	now        func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithCompression stores entries gzip-compressed
func WithCompression(enabled bool) Option {
	return func(s *Store) {
		s.compressed = enabled
	}
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates the history bucket in db
func NewStore(db *storage.DB, opts ...Option) (*Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create history bucket: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Append saves a result for song and evicts the oldest entries beyond
// MaxEntries
func (s *Store) Append(song models.SongCandidate, result models.GenerationResult) (models.HistoryEntry, error) {
	entry := models.HistoryEntry{
		ID:        uuid.NewString(),
		Song:      song,
		Result:    result,
		CreatedAt: s.now().UTC(),
	}

	value, err := s.encode(entry)
	if err != nil {
		return models.HistoryEntry{}, err
	}

	evicted := 0
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketName))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(sequenceKey(seq), value); err != nil {
			return err
		}

		c := b.Cursor()
		excess := -MaxEntries
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			excess++
		}
		for k, _ := c.First(); k != nil && excess > 0; k, _ = c.First() {
			if err := b.Delete(k); err != nil {
				return err
			}
			excess--
			evicted++
		}
		return nil
	})
	if err != nil {
		return models.HistoryEntry{}, fmt.Errorf("failed to save history: %w", err)
	}

	log.Debugf("%s Saved %q (evicted %d)", logcolors.LogHistory, song.Title, evicted)
	return entry, nil
}

// List returns every stored entry, most recent first
func (s *Store) List() ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(BucketName)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			entry, err := decode(v)
			if err != nil {
				log.Warnf("%s Skipping unreadable entry %x: %v", logcolors.LogHistory, k, err)
				continue
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return entries, nil
}

// Delete removes the entry with id
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketName))
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			entry, err := decode(v)
			if err != nil || entry.ID != id {
				continue
			}
			return b.Delete(k)
		}
		return ErrNotFound
	})
}

// Clear removes every entry
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(BucketName)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket([]byte(BucketName))
		return err
	})
}

func (s *Store) encode(entry models.HistoryEntry) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode history entry: %w", err)
	}

	rec := record{Value: string(data)}
	if s.compressed {
		compressed, err := utils.Compress(data)
		if err != nil {
			return nil, fmt.Errorf("failed to compress history entry: %w", err)
		}
		rec = record{Value: compressed, Compressed: true}
	}
	return json.Marshal(rec)
}

func decode(v []byte) (models.HistoryEntry, error) {
	var rec record
	if err := json.Unmarshal(v, &rec); err != nil {
		return models.HistoryEntry{}, err
	}

	value := []byte(rec.Value)
	if rec.Compressed {
		var err error
		if value, err = utils.Decompress(rec.Value); err != nil {
			return models.HistoryEntry{}, err
		}
	}

	var entry models.HistoryEntry
	err := json.Unmarshal(value, &entry)
	return entry, err
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
