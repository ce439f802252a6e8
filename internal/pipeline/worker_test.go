package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hakim/threatiac/internal/models"
	"github.com/hakim/threatiac/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	deliveries []*queue.Delivery
	dequeueErr error
	acked      []string
	nacked     []string
}

func (f *fakeQueue) Dequeue(_ context.Context, _ time.Duration) (*queue.Delivery, error) {
	if f.dequeueErr != nil {
		return nil, f.dequeueErr
	}
	if len(f.deliveries) == 0 {
		return nil, nil
	}
	d := f.deliveries[0]
	f.deliveries = f.deliveries[1:]
	return d, nil
}

func (f *fakeQueue) Ack(_ context.Context, d *queue.Delivery) error {
	f.acked = append(f.acked, d.Job.ScanID)
	return nil
}

func (f *fakeQueue) Nack(_ context.Context, d *queue.Delivery) (bool, error) {
	f.nacked = append(f.nacked, d.Job.ScanID)
	return false, nil
}

func TestWorkerAcksProcessedJobs(t *testing.T) {
	q := &fakeQueue{deliveries: []*queue.Delivery{
		{Job: job("scan-1")},
		{Job: job("scan-2")},
	}}
	artifacts := memArtifacts{
		"iac-scans/scan-1.json": []byte(`{}`),
		"iac-scans/scan-2.json": []byte(`not a plan`),
	}
	store := newMemStore()
	w := NewWorker(q, NewOrchestrator(artifacts, store, stubAnalyzer{}, Options{}), time.Second, nil)

	for i := 0; i < 2; i++ {
		handled, err := w.RunOnce(context.Background())
		require.NoError(t, err)
		assert.True(t, handled)
	}

	handled, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, handled)

	// A FAILED scan is still a processed job.
	assert.Equal(t, []string{"scan-1", "scan-2"}, q.acked)
	assert.Empty(t, q.nacked)
	assert.Equal(t, models.StatusCompleted, store.scans["scan-1"].Status)
	assert.Equal(t, models.StatusFailed, store.scans["scan-2"].Status)
}

func TestWorkerNacksWhenStatusWriteFails(t *testing.T) {
	q := &fakeQueue{deliveries: []*queue.Delivery{{Job: job("scan-1")}}}
	store := newMemStore()
	store.failOn = models.StatusWorking
	w := NewWorker(q, NewOrchestrator(memArtifacts{}, store, stubAnalyzer{}, Options{}), time.Second, nil)

	handled, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"scan-1"}, q.nacked)
	assert.Empty(t, q.acked)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	q := &fakeQueue{dequeueErr: errors.New("redis down")}
	w := NewWorker(q, NewOrchestrator(memArtifacts{}, newMemStore(), stubAnalyzer{}, Options{}), time.Second, nil)
	w.retryDelay = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
