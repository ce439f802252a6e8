package storage

import (
	"time"

	"go.etcd.io/bbolt"
)

// bucketScans holds one JSON-encoded models.Scan per key; the key is the scan id.
const bucketScans = "scans"

// Store is the scan status store. Every status write for a scan goes through
// UpdateScan, which refuses to move a record backwards.
type Store struct {
	db *bbolt.DB
}

// NewStore opens the status database at path, creating the scans bucket.
// It waits up to a second for another process holding the file lock.
func NewStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketScans))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the bbolt database
func (s *Store) Close() error {
	return s.db.Close()
}
