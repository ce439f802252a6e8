package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hakim/threatiac/internal/logging"
	"github.com/hakim/threatiac/internal/models"
	"github.com/hakim/threatiac/internal/parser"
	"github.com/hakim/threatiac/internal/storage"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/hakim/threatiac/internal/pipeline"

// ArtifactSource is the read side of the artifact store.
type ArtifactSource interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// StatusStore is the part of the status store the orchestrator writes to.
type StatusStore interface {
	UpdateScan(id string, upd models.ScanUpdate) error
}

// Options holds the optional collaborators of an Orchestrator.
type Options struct {
	// Scope limits which resource types are analyzed. The zero value
	// analyzes everything.
	Scope ResourceScope

	// Notify receives a completion webhook after the terminal write.
	Notify *NotifyConfig

	Log *logrus.Entry

	// TracerProvider and MeterProvider default to the otel globals.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// scanMetrics are the instruments recorded per scan and per resource.
type scanMetrics struct {
	scans            metric.Int64Counter
	resourceDuration metric.Float64Histogram
}

func newScanMetrics(mp metric.MeterProvider) (*scanMetrics, error) {
	meter := mp.Meter(instrumentationName)

	scans, err := meter.Int64Counter(
		"threatiac.scans",
		metric.WithDescription("Scans reaching a terminal status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create scans counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"threatiac.resource.duration",
		metric.WithDescription("Per-resource analysis duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource duration histogram: %w", err)
	}

	return &scanMetrics{scans: scans, resourceDuration: duration}, nil
}

// Orchestrator runs one scan job end to end: WORKING, fetch, parse,
// per-resource analysis, then COMPLETED or FAILED.
type Orchestrator struct {
	artifacts ArtifactSource
	store     StatusStore
	analyzer  Analyzer
	scope     ResourceScope
	notify    *NotifyConfig
	log       *logrus.Entry
	tracer    trace.Tracer
	metrics   *scanMetrics
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(artifacts ArtifactSource, store StatusStore, analyzer Analyzer, opts Options) *Orchestrator {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logging.Discard())
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := opts.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	o := &Orchestrator{
		artifacts: artifacts,
		store:     store,
		analyzer:  analyzer,
		scope:     opts.Scope,
		notify:    opts.Notify,
		log:       logging.Component(log, "orchestrator"),
		tracer:    tp.Tracer(instrumentationName),
	}

	// Instruments are optional; a broken meter only loses metrics.
	metrics, err := newScanMetrics(mp)
	if err != nil {
		o.log.WithError(err).Warn("metrics disabled")
	} else {
		o.metrics = metrics
	}
	return o
}

// ProcessScan runs a job and returns the terminal status it recorded.
//
// Exactly two status writes happen per call. Anything that goes wrong inside
// the scan (unreadable artifact, unparsable plan, a panic) ends as FAILED with
// a diagnostic and a nil error. The returned error is non-nil only when a
// status write itself fails; the caller should then redeliver the job.
//
// The scan body does not observe cancellation of ctx.
func (o *Orchestrator) ProcessScan(ctx context.Context, job models.ScanJob) (models.ScanStatus, error) {
	if job.ScanID == "" {
		return "", errors.New("pipeline: job has no scan id")
	}
	if job.ArtifactKey == "" {
		job.ArtifactKey = storage.ArtifactKey(job.ScanID)
	}

	ctx = context.WithoutCancel(ctx)
	ctx, span := o.tracer.Start(ctx, "scan",
		trace.WithAttributes(
			attribute.String("scan.id", job.ScanID),
			attribute.Int("scan.attempts", job.Attempts),
		))
	defer span.End()

	log := o.log.WithField(logging.FieldScanID, job.ScanID)
	started := time.Now()

	if err := o.store.UpdateScan(job.ScanID, models.ScanUpdate{Status: models.StatusWorking}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "status write failed")
		return "", fmt.Errorf("pipeline: marking scan %s working: %w", job.ScanID, err)
	}
	log.Info("scan started")

	results, scanErr := o.runIsolated(ctx, log, job)

	status := models.StatusCompleted
	upd := models.ScanUpdate{Status: status, Results: results}
	if scanErr != nil {
		status = models.StatusFailed
		msg := scanErr.Error()
		upd = models.ScanUpdate{Status: status, Results: []models.ScanResult{}, Error: &msg}
		span.RecordError(scanErr)
		span.SetStatus(codes.Error, msg)
		log.WithError(scanErr).Warn("scan failed")
	} else {
		cleared := ""
		upd.Error = &cleared
	}

	if err := o.store.UpdateScan(job.ScanID, upd); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "status write failed")
		return "", fmt.Errorf("pipeline: recording scan %s as %s: %w", job.ScanID, status, err)
	}

	elapsed := time.Since(started)
	if o.metrics != nil {
		o.metrics.scans.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	}
	span.SetAttributes(
		attribute.String("scan.status", string(status)),
		attribute.Int("scan.results", len(upd.Results)),
	)
	log.WithFields(logrus.Fields{
		"status":  status,
		"results": len(upd.Results),
		"elapsed": elapsed.Round(time.Millisecond).String(),
	}).Info("scan finished")

	if err := o.notify.SendCompletion(ctx, completionFor(job.ScanID, status, upd.Results, scanErr, elapsed)); err != nil {
		log.WithError(err).Warn("completion webhook failed")
	}

	return status, nil
}

// runIsolated executes the scan body inside a deferred recover so that a
// panic outside the per-resource guard still ends in FAILED rather than
// crashing the worker.
func (o *Orchestrator) runIsolated(ctx context.Context, log *logrus.Entry, job models.ScanJob) (results []models.ScanResult, retErr error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			retErr = fmt.Errorf("scan panicked: %v", r)
		}
	}()
	return o.run(ctx, log, job)
}

func (o *Orchestrator) run(ctx context.Context, log *logrus.Entry, job models.ScanJob) ([]models.ScanResult, error) {
	data, err := o.artifacts.Get(ctx, job.ArtifactKey)
	if err != nil {
		return nil, fmt.Errorf("fetching artifact %s: %w", job.ArtifactKey, err)
	}

	resources, err := parser.ParsePlan(data)
	if err != nil {
		return nil, fmt.Errorf("parsing plan %s: %w", job.ArtifactKey, err)
	}
	log.WithField("resources", len(resources)).Debug("plan parsed")

	results := make([]models.ScanResult, 0, len(resources))
	for _, res := range resources {
		rlog := log.WithField(logging.FieldResourceID, res.ResourceID)
		if !o.scope.Allows(res) {
			rlog.Debug("resource out of scope")
			continue
		}

		result, err := o.analyzeIsolated(ctx, res)
		if err != nil {
			rlog.WithError(err).Warn("resource analysis failed, omitting")
			continue
		}
		rlog.WithField("risk_score", result.RiskScore).Debug("resource analyzed")
		results = append(results, result)
	}

	return results, nil
}

// analyzeIsolated contains a single resource's failure so the rest of the
// scan carries on.
func (o *Orchestrator) analyzeIsolated(ctx context.Context, res models.ResourceDescriptor) (result models.ScanResult, retErr error) {
	ctx, span := o.tracer.Start(ctx, "resource",
		trace.WithAttributes(
			attribute.String("resource.id", res.ResourceID),
			attribute.String("resource.type", res.Type),
		))
	defer span.End()

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("resource %q panicked: %v", res.ResourceID, r)
		}
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		if o.metrics != nil {
			o.metrics.resourceDuration.Record(ctx, float64(time.Since(started).Microseconds())/1000,
				metric.WithAttributes(
					attribute.String("resource.type", res.Type),
					attribute.Bool("failed", retErr != nil),
				))
		}
	}()

	return o.analyzer.Analyze(ctx, res)
}
