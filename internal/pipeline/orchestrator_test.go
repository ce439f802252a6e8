package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hakim/threatiac/internal/aggregator"
	"github.com/hakim/threatiac/internal/feeds"
	"github.com/hakim/threatiac/internal/models"
	"github.com/hakim/threatiac/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memArtifacts map[string][]byte

func (m memArtifacts) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := m[key]
	if !ok {
		return nil, errors.New("no such artifact")
	}
	return data, nil
}

// memStore records every update and keeps the merged record, mirroring the
// bbolt store's no-regression rule.
type memStore struct {
	mu      sync.Mutex
	updates []models.ScanUpdate
	scans   map[string]*models.Scan
	failOn  models.ScanStatus
}

func newMemStore() *memStore {
	return &memStore{scans: map[string]*models.Scan{}}
}

func (m *memStore) UpdateScan(id string, upd models.ScanUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if upd.Status == m.failOn {
		return errors.New("store unavailable")
	}
	m.updates = append(m.updates, upd)

	scan, ok := m.scans[id]
	if !ok {
		scan = &models.Scan{ID: id}
		m.scans[id] = scan
	}
	if scan.Status.IsValid() && upd.Status.Stage() < scan.Status.Stage() {
		return nil
	}
	scan.Status = upd.Status
	if upd.Results != nil {
		scan.Results = upd.Results
	}
	if upd.Error != nil {
		scan.Error = *upd.Error
	}
	return nil
}

type stubAnalyzer struct {
	panicOn string
	failOn  string
}

func (s stubAnalyzer) Analyze(_ context.Context, res models.ResourceDescriptor) (models.ScanResult, error) {
	if res.ResourceID == s.panicOn {
		panic("boom")
	}
	if res.ResourceID == s.failOn {
		return models.ScanResult{}, errors.New("analysis failed")
	}
	return models.ScanResult{
		ResourceID:   res.ResourceID,
		ResourceType: res.Type,
		RiskScore:    models.SeverityLow,
		Findings:     []models.CorrelatedFinding{},
	}, nil
}

const threeResourcePlan = `{"resource_changes":[
  {"address":"aws_instance.a","type":"aws_instance","name":"a","change":{"after":{}}},
  {"address":"aws_instance.b","type":"aws_instance","name":"b","change":{"after":{}}},
  {"address":"aws_s3_bucket.c","type":"aws_s3_bucket","name":"c","change":{"after":{}}}
]}`

func job(id string) models.ScanJob {
	return models.ScanJob{ScanID: id, ArtifactKey: "iac-scans/" + id + ".json"}
}

func TestProcessScanEmptyPlan(t *testing.T) {
	store := newMemStore()
	o := NewOrchestrator(memArtifacts{"iac-scans/scan-1.json": []byte(`{}`)}, store, stubAnalyzer{}, Options{})

	status, err := o.ProcessScan(context.Background(), job("scan-1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)

	require.Len(t, store.updates, 2)
	assert.Equal(t, models.StatusWorking, store.updates[0].Status)
	assert.Equal(t, models.StatusCompleted, store.updates[1].Status)
	assert.NotNil(t, store.updates[1].Results)
	assert.Empty(t, store.updates[1].Results)
	require.NotNil(t, store.updates[1].Error)
	assert.Empty(t, *store.updates[1].Error)
}

func TestProcessScanIsolatesResourceFailures(t *testing.T) {
	store := newMemStore()
	artifacts := memArtifacts{"iac-scans/scan-1.json": []byte(threeResourcePlan)}
	o := NewOrchestrator(artifacts, store, stubAnalyzer{panicOn: "aws_instance.b", failOn: "aws_s3_bucket.c"}, Options{})

	status, err := o.ProcessScan(context.Background(), job("scan-1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)

	results := store.scans["scan-1"].Results
	require.Len(t, results, 1)
	assert.Equal(t, "aws_instance.a", results[0].ResourceID)
}

func TestProcessScanFailsOnBadInput(t *testing.T) {
	tests := []struct {
		name      string
		artifacts memArtifacts
		wantErr   string
	}{
		{"missing artifact", memArtifacts{}, "fetching artifact"},
		{"unparsable plan", memArtifacts{"iac-scans/scan-1.json": []byte("{not json")}, "parsing plan"},
		{"non-object plan", memArtifacts{"iac-scans/scan-1.json": []byte(`[1,2]`)}, "parsing plan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			o := NewOrchestrator(tt.artifacts, store, stubAnalyzer{}, Options{})

			status, err := o.ProcessScan(context.Background(), job("scan-1"))
			require.NoError(t, err)
			assert.Equal(t, models.StatusFailed, status)

			require.Len(t, store.updates, 2)
			final := store.scans["scan-1"]
			assert.Equal(t, models.StatusFailed, final.Status)
			assert.Contains(t, final.Error, tt.wantErr)
			assert.NotNil(t, final.Results)
			assert.Empty(t, final.Results)
		})
	}
}

func TestProcessScanReturnsStoreFailure(t *testing.T) {
	artifacts := memArtifacts{"iac-scans/scan-1.json": []byte(`{}`)}

	store := newMemStore()
	store.failOn = models.StatusWorking
	_, err := NewOrchestrator(artifacts, store, stubAnalyzer{}, Options{}).ProcessScan(context.Background(), job("scan-1"))
	assert.Error(t, err)
	assert.Empty(t, store.updates)

	store = newMemStore()
	store.failOn = models.StatusCompleted
	_, err = NewOrchestrator(artifacts, store, stubAnalyzer{}, Options{}).ProcessScan(context.Background(), job("scan-1"))
	assert.Error(t, err)
	assert.Len(t, store.updates, 1)
}

func TestProcessScanIsIdempotent(t *testing.T) {
	store := newMemStore()
	artifacts := memArtifacts{"iac-scans/scan-1.json": []byte(threeResourcePlan)}
	o := NewOrchestrator(artifacts, store, stubAnalyzer{}, Options{})

	_, err := o.ProcessScan(context.Background(), job("scan-1"))
	require.NoError(t, err)
	first := store.scans["scan-1"].Results

	_, err = o.ProcessScan(context.Background(), job("scan-1"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, store.scans["scan-1"].Status)
	assert.Equal(t, first, store.scans["scan-1"].Results)
	assert.Len(t, store.scans["scan-1"].Results, 3)
}

func TestProcessScanIgnoresCancellation(t *testing.T) {
	store := newMemStore()
	o := NewOrchestrator(memArtifacts{"iac-scans/scan-1.json": []byte(threeResourcePlan)}, store, stubAnalyzer{}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	status, err := o.ProcessScan(ctx, job("scan-1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)
	assert.Len(t, store.scans["scan-1"].Results, 3)
}

func TestProcessScanDefaultsArtifactKey(t *testing.T) {
	store := newMemStore()
	o := NewOrchestrator(memArtifacts{"iac-scans/scan-1.json": []byte(`{}`)}, store, stubAnalyzer{}, Options{})

	status, err := o.ProcessScan(context.Background(), models.ScanJob{ScanID: "scan-1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)

	_, err = o.ProcessScan(context.Background(), models.ScanJob{})
	assert.Error(t, err)
}

func TestProcessScanAppliesScope(t *testing.T) {
	store := newMemStore()
	o := NewOrchestrator(memArtifacts{"iac-scans/scan-1.json": []byte(threeResourcePlan)}, store, stubAnalyzer{},
		Options{Scope: ResourceScope{Include: []string{"aws_s3_*"}}})

	_, err := o.ProcessScan(context.Background(), job("scan-1"))
	require.NoError(t, err)

	results := store.scans["scan-1"].Results
	require.Len(t, results, 1)
	assert.Equal(t, "aws_s3_bucket.c", results[0].ResourceID)
}

func TestProcessScanPublicInstanceWithShodanVulns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/203.0.113.10"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"vulns":["CVE-2021-1","CVE-2021-2","CVE-2021-3"],"data":[]}`))
	}))
	defer srv.Close()

	plan := `{"resource_changes":[{
	  "address":"aws_instance.web","type":"aws_instance","name":"web",
	  "change":{"after":{"associate_public_ip_address":true,"public_ip":"203.0.113.10"}}
	}]}`

	lookups, inspectors := feeds.Build(map[string]feeds.Options{
		feeds.FeedShodan: {APIKey: "k", BaseURL: srv.URL},
	})
	analyzer := NewResourceAnalyzer(aggregator.New(lookups, inspectors, 4, nil), scoring.NewScorer(nil))

	store := newMemStore()
	o := NewOrchestrator(memArtifacts{"iac-scans/scan-1.json": []byte(plan)}, store, analyzer, Options{})

	status, err := o.ProcessScan(context.Background(), job("scan-1"))
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, status)

	results := store.scans["scan-1"].Results
	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, "aws_instance.web", res.ResourceID)
	assert.Equal(t, models.SeverityHigh, res.RiskScore)
	require.Len(t, res.Findings, 1)

	f := res.Findings[0]
	assert.Equal(t, feeds.FeedShodan, f.Feed)
	assert.Equal(t, models.SeverityMedium, f.Risk)
	assert.Equal(t, models.SeverityHigh, f.RiskLevel)
	assert.Contains(t, f.ContextFlags, models.FlagPublic)
	assert.Contains(t, f.Details, "MEDIUM->HIGH")

	// Severities persist as uppercase strings.
	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"risk_score":"HIGH"`)
}

func TestProcessScanSendsCompletionWebhook(t *testing.T) {
	got := make(chan CompletionPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p CompletionPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		got <- p
	}))
	defer srv.Close()

	store := newMemStore()
	o := NewOrchestrator(memArtifacts{"iac-scans/scan-1.json": []byte(threeResourcePlan)}, store, stubAnalyzer{},
		Options{Notify: &NotifyConfig{WebhookURL: srv.URL}})

	_, err := o.ProcessScan(context.Background(), job("scan-1"))
	require.NoError(t, err)

	p := <-got
	assert.Equal(t, "scan-1", p.ScanID)
	assert.Equal(t, "COMPLETED", p.Status)
	assert.Equal(t, 3, p.ResourceCount)
	assert.Equal(t, models.SeverityLow, p.WorstSeverity)
}

func TestProcessScanIgnoresWebhookFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := NewOrchestrator(memArtifacts{"iac-scans/scan-1.json": []byte(`{}`)}, newMemStore(), stubAnalyzer{},
		Options{Notify: &NotifyConfig{WebhookURL: srv.URL}})

	status, err := o.ProcessScan(context.Background(), job("scan-1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)
}
