package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hakim/threatiac/internal/models"
	"go.etcd.io/bbolt"
)

// ErrScanExists is returned by CreateScan when the id is already taken.
var ErrScanExists = errors.New("scan already exists")

// CreateScan writes the initial record for a new scan.
func (s *Store) CreateScan(id, artifactKey string, status models.ScanStatus, createdAt time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		scans := tx.Bucket([]byte(bucketScans))
		if scans.Get([]byte(id)) != nil {
			return fmt.Errorf("%w: %s", ErrScanExists, id)
		}

		scan := &models.Scan{
			ID:          id,
			Status:      status,
			ArtifactKey: artifactKey,
			CreatedAt:   createdAt.UTC(),
			UpdatedAt:   createdAt.UTC(),
			Results:     []models.ScanResult{},
		}
		return putScan(scans, scan)
	})
}

// UpdateScan applies a partial update, creating the record when it does not
// exist yet. Fields are last-write-wins. A status that would move the record
// backwards (a redelivered WORKING over a finished scan) is ignored together
// with the rest of that update, so the stored status never regresses.
func (s *Store) UpdateScan(id string, upd models.ScanUpdate) error {
	if !upd.Status.IsValid() {
		return fmt.Errorf("updating scan %s: invalid status %q", id, upd.Status)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		scans := tx.Bucket([]byte(bucketScans))
		now := time.Now().UTC()

		scan := &models.Scan{ID: id, CreatedAt: now, Results: []models.ScanResult{}}
		if data := scans.Get([]byte(id)); data != nil {
			scan = &models.Scan{}
			if err := json.Unmarshal(data, scan); err != nil {
				return fmt.Errorf("decoding scan %s: %w", id, err)
			}
		}

		if scan.Status.IsValid() && upd.Status.Stage() < scan.Status.Stage() {
			return nil
		}

		scan.Status = upd.Status
		scan.UpdatedAt = now
		if upd.Results != nil {
			scan.Results = upd.Results
		}
		if upd.Error != nil {
			scan.Error = *upd.Error
		}
		if upd.Status.IsTerminal() {
			scan.CompletedAt = &now
		}

		return putScan(scans, scan)
	})
}

// GetScan retrieves a scan record by ID. It returns nil, nil when absent.
func (s *Store) GetScan(id string) (*models.Scan, error) {
	var scan *models.Scan

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketScans)).Get([]byte(id))
		if data == nil {
			return nil
		}
		scan = &models.Scan{}
		return json.Unmarshal(data, scan)
	})

	return scan, err
}

// ListScans returns up to limit scans, newest first. A non-positive limit
// returns all of them.
func (s *Store) ListScans(limit int) ([]*models.Scan, error) {
	var scans []*models.Scan

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketScans)).ForEach(func(_, v []byte) error {
			var scan models.Scan
			if err := json.Unmarshal(v, &scan); err != nil {
				return err
			}
			scans = append(scans, &scan)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(scans, func(i, j int) bool {
		return scans[i].CreatedAt.After(scans[j].CreatedAt)
	})

	if limit > 0 && len(scans) > limit {
		scans = scans[:limit]
	}
	return scans, nil
}

func putScan(b *bbolt.Bucket, scan *models.Scan) error {
	if scan.Results == nil {
		scan.Results = []models.ScanResult{}
	}
	data, err := json.Marshal(scan)
	if err != nil {
		return err
	}
	return b.Put([]byte(scan.ID), data)
}
