package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/aiperf-project/aiperf-core/pkg/types"
)

var bucketRecords = []byte("records")

// BoltRecordStore is a RecordStore backed by a local BoltDB file.
type BoltRecordStore struct {
	db *bolt.DB
}

// NewBoltRecordStore opens (creating if necessary) a BoltDB file named
// records.db under dataDir as the durable spill target for a RECORDS-mode
// export.
func NewBoltRecordStore(dataDir string) (*BoltRecordStore, error) {
	path := filepath.Join(dataDir, "records.db")
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open record store at %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: failed to create records bucket: %w", err)
	}

	return &BoltRecordStore{db: db}, nil
}

// Append persists rec under a monotonically increasing, lexically sortable
// key so ForEach replays records in the order they were appended.
func (s *BoltRecordStore) Append(rec types.MetricRecordInfo) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
}

// ForEach replays every stored record in append order.
func (s *BoltRecordStore) ForEach(fn func(rec types.MetricRecordInfo) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		return b.ForEach(func(_, v []byte) error {
			var rec types.MetricRecordInfo
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			return fn(rec)
		})
	})
}

// Close closes the underlying database file.
func (s *BoltRecordStore) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%020d", seq))
}
