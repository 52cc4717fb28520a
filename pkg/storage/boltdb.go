package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/commontoolsinc/loom/pkg/metrics"
	"github.com/commontoolsinc/loom/pkg/types"
)

var (
	// Bucket names
	bucketFacts    = []byte("facts")
	bucketHistory  = []byte("history")
	bucketSequence = []byte("sequence")
)

// BoltStore implements Store using BoltDB. All spaces share one
// database file; keys are prefixed by space.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "loom.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketFacts, bucketHistory, bucketSequence}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func factKey(space types.Space, key types.FactKey) []byte {
	return []byte(string(space) + "|" + key.String())
}

func historyKey(space types.Space, key types.FactKey, hash types.Reference) []byte {
	return []byte(string(space) + "|" + key.String() + "|" + string(hash))
}

// PutFacts upserts the current fact of every entity in the batch
// inside one transaction.
func (s *BoltStore) PutFacts(space types.Space, facts []types.Fact) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.StorageWriteDuration)

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFacts)
		for _, fact := range facts {
			data, err := json.Marshal(fact)
			if err != nil {
				return err
			}
			if err := b.Put(factKey(space, fact.Key()), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) GetFact(space types.Space, key types.FactKey) (*types.Fact, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.StorageReadDuration)

	var fact types.Fact
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFacts)
		data := b.Get(factKey(space, key))
		if data == nil {
			return fmt.Errorf("fact not found: %s", key)
		}
		return json.Unmarshal(data, &fact)
	})
	if err != nil {
		return nil, err
	}
	return &fact, nil
}

func (s *BoltStore) ListFacts(space types.Space) ([]types.Fact, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.StorageReadDuration)

	prefix := []byte(string(space) + "|")
	var facts []types.Fact
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketFacts).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var fact types.Fact
			if err := json.Unmarshal(v, &fact); err != nil {
				return err
			}
			facts = append(facts, fact)
		}
		return nil
	})
	return facts, err
}

func (s *BoltStore) AppendHistory(space types.Space, fact types.Fact, hash types.Reference) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		data, err := json.Marshal(fact)
		if err != nil {
			return err
		}
		return b.Put(historyKey(space, fact.Key(), hash), data)
	})
}

func (s *BoltStore) GetHistory(space types.Space, key types.FactKey, hash types.Reference) (*types.Fact, error) {
	var fact types.Fact
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		data := b.Get(historyKey(space, key, hash))
		if data == nil {
			return fmt.Errorf("history entry not found: %s@%s", key, hash)
		}
		return json.Unmarshal(data, &fact)
	})
	if err != nil {
		return nil, err
	}
	return &fact, nil
}

func (s *BoltStore) PutSequence(space types.Space, since uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], since)
		return tx.Bucket(bucketSequence).Put([]byte(space), buf[:])
	})
}

func (s *BoltStore) GetSequence(space types.Space) (uint64, error) {
	var since uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSequence).Get([]byte(space))
		if data != nil {
			since = binary.BigEndian.Uint64(data)
		}
		return nil
	})
	return since, err
}

func hasPrefix(key, prefix []byte) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i, b := range prefix {
		if key[i] != b {
			return false
		}
	}
	return true
}
