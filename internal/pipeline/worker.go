package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/hakim/threatiac/internal/logging"
	"github.com/hakim/threatiac/internal/queue"
	"github.com/sirupsen/logrus"
)

// JobQueue is the consumer side of the job queue.
type JobQueue interface {
	Dequeue(ctx context.Context, wait time.Duration) (*queue.Delivery, error)
	Ack(ctx context.Context, d *queue.Delivery) error
	Nack(ctx context.Context, d *queue.Delivery) (bool, error)
}

// Worker pulls scan jobs off a queue and hands them to an Orchestrator.
type Worker struct {
	queue        JobQueue
	orchestrator *Orchestrator
	pollTimeout  time.Duration
	retryDelay   time.Duration
	log          *logrus.Entry
}

// NewWorker builds a Worker. pollTimeout bounds each blocking dequeue.
func NewWorker(q JobQueue, o *Orchestrator, pollTimeout time.Duration, log *logrus.Entry) *Worker {
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logging.Discard())
	}
	return &Worker{
		queue:        q,
		orchestrator: o,
		pollTimeout:  pollTimeout,
		retryDelay:   time.Second,
		log:          logging.Component(log, "worker"),
	}
}

// Run processes jobs until ctx is cancelled. A scan already in progress is
// finished before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started")
	for {
		if ctx.Err() != nil {
			w.log.Info("worker stopping")
			return nil
		}

		if _, err := w.RunOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			w.log.WithError(err).Warn("dequeue failed")
			select {
			case <-ctx.Done():
			case <-time.After(w.retryDelay):
			}
		}
	}
}

// RunOnce waits for a single job and processes it. It reports whether a job
// was handled. The returned error covers dequeue failures only; a scan whose
// status write failed is nacked for redelivery.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	d, err := w.queue.Dequeue(ctx, w.pollTimeout)
	if err != nil {
		return false, err
	}
	if d == nil {
		return false, nil
	}

	log := w.log.WithFields(logrus.Fields{
		logging.FieldScanID: d.Job.ScanID,
		"attempts":          d.Job.Attempts,
	})

	// Settle the delivery even when the caller is shutting down.
	settleCtx := context.WithoutCancel(ctx)

	status, err := w.orchestrator.ProcessScan(ctx, d.Job)
	if err != nil {
		log.WithError(err).Error("scan not recorded, returning job to queue")
		dead, nerr := w.queue.Nack(settleCtx, d)
		if nerr != nil {
			log.WithError(nerr).Error("nack failed")
		} else if dead {
			log.Error("job dead-lettered after repeated failures")
		}
		return true, nil
	}

	if err := w.queue.Ack(settleCtx, d); err != nil {
		log.WithError(err).Error("ack failed")
	}
	log.WithField("status", status).Info("job done")
	return true, nil
}
