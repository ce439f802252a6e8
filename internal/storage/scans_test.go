package storage

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/hakim/threatiac/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func TestCreateAndGetScan(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	require.NoError(t, s.CreateScan("scan-1", "iac-scans/scan-1.json", models.StatusPending, now))

	scan, err := s.GetScan("scan-1")
	require.NoError(t, err)
	require.NotNil(t, scan)
	assert.Equal(t, models.StatusPending, scan.Status)
	assert.Equal(t, "iac-scans/scan-1.json", scan.ArtifactKey)
	assert.NotNil(t, scan.Results)
	assert.Empty(t, scan.Results)

	err = s.CreateScan("scan-1", "x", models.StatusPending, now)
	assert.ErrorIs(t, err, ErrScanExists)
}

func TestScanRecordLayout(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateScan("scan-1", "iac-scans/scan-1.json", models.StatusPending, time.Now()))

	var stored models.Scan
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketScans)).Get([]byte("scan-1"))
		require.NotNil(t, data)
		return json.Unmarshal(data, &stored)
	})
	require.NoError(t, err)
	assert.Equal(t, "scan-1", stored.ID)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestGetScanMissing(t *testing.T) {
	s := newTestStore(t)
	scan, err := s.GetScan("nope")
	require.NoError(t, err)
	assert.Nil(t, scan)
}

func TestUpdateScanUpserts(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpdateScan("scan-new", models.ScanUpdate{Status: models.StatusWorking}))

	scan, err := s.GetScan("scan-new")
	require.NoError(t, err)
	require.NotNil(t, scan)
	assert.Equal(t, models.StatusWorking, scan.Status)
	assert.Nil(t, scan.CompletedAt)
}

func TestUpdateScanLifecycle(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateScan("scan-1", "k", models.StatusPending, time.Now()))
	require.NoError(t, s.UpdateScan("scan-1", models.ScanUpdate{Status: models.StatusWorking}))

	results := []models.ScanResult{{ResourceID: "aws_instance.web", RiskScore: models.SeverityHigh}}
	require.NoError(t, s.UpdateScan("scan-1", models.ScanUpdate{
		Status:  models.StatusCompleted,
		Results: results,
		Error:   strPtr(""),
	}))

	scan, err := s.GetScan("scan-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, scan.Status)
	require.Len(t, scan.Results, 1)
	assert.Equal(t, models.SeverityHigh, scan.Results[0].RiskScore)
	assert.NotNil(t, scan.CompletedAt)
	assert.Equal(t, "k", scan.ArtifactKey)
}

func TestUpdateScanNeverRegresses(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpdateScan("scan-1", models.ScanUpdate{
		Status:  models.StatusCompleted,
		Results: []models.ScanResult{{ResourceID: "r1", RiskScore: models.SeverityLow}},
	}))

	// A redelivered job starts again with WORKING.
	require.NoError(t, s.UpdateScan("scan-1", models.ScanUpdate{Status: models.StatusWorking}))

	scan, err := s.GetScan("scan-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, scan.Status)
	assert.Len(t, scan.Results, 1)

	// Terminal over terminal is last-write-wins.
	require.NoError(t, s.UpdateScan("scan-1", models.ScanUpdate{
		Status:  models.StatusFailed,
		Results: []models.ScanResult{},
		Error:   strPtr("boom"),
	}))
	scan, err = s.GetScan("scan-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, scan.Status)
	assert.Equal(t, "boom", scan.Error)
	assert.Empty(t, scan.Results)
}

func TestUpdateScanRejectsInvalidStatus(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.UpdateScan("scan-1", models.ScanUpdate{Status: "DONE"}))
}

func TestListScansNewestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateScan(id, "k", models.StatusPending, base.Add(time.Duration(i)*time.Hour)))
	}

	scans, err := s.ListScans(0)
	require.NoError(t, err)
	require.Len(t, scans, 3)
	assert.Equal(t, "c", scans[0].ID)
	assert.Equal(t, "a", scans[2].ID)

	scans, err = s.ListScans(2)
	require.NoError(t, err)
	assert.Len(t, scans, 2)
}
