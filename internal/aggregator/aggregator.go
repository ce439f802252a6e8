// Package aggregator fans a resource out to every configured threat feed and
// merges what they return.
package aggregator

import (
	"context"
	"fmt"

	"github.com/hakim/threatiac/internal/feeds"
	"github.com/hakim/threatiac/internal/logging"
	"github.com/hakim/threatiac/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/iter"
)

// DefaultConcurrency caps in-flight feed calls for one resource.
const DefaultConcurrency = 8

// Aggregator holds a fixed set of adapters. Either list may be shorter than
// the set of known feeds, or empty.
type Aggregator struct {
	lookups     []feeds.IndicatorLookup
	inspectors  []feeds.ResourceInspector
	concurrency int
	log         *logrus.Entry
}

// New creates an Aggregator. A non-positive concurrency uses the default.
func New(lookups []feeds.IndicatorLookup, inspectors []feeds.ResourceInspector, concurrency int, log *logrus.Entry) *Aggregator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Aggregator{
		lookups:     lookups,
		inspectors:  inspectors,
		concurrency: concurrency,
		log:         logging.Component(log, "aggregator"),
	}
}

// call is one adapter invocation.
type call struct {
	feed      string
	indicator string
	run       func(context.Context) []models.Finding
}

// CheckResource queries every indicator lookup for every candidate indicator
// and every inspector once for the resource. Calls run concurrently; the
// merged slice follows submission order so repeated runs are stable.
func (a *Aggregator) CheckResource(ctx context.Context, res models.ResourceDescriptor) []models.Finding {
	var calls []call
	for _, indicator := range Candidates(res.Attributes) {
		indicator := indicator
		for _, l := range a.lookups {
			l := l
			calls = append(calls, call{
				feed:      l.Name(),
				indicator: indicator,
				run:       func(ctx context.Context) []models.Finding { return l.Lookup(ctx, indicator) },
			})
		}
	}
	for _, in := range a.inspectors {
		in := in
		calls = append(calls, call{
			feed:      in.Name(),
			indicator: res.ResourceID,
			run:       func(ctx context.Context) []models.Finding { return in.Inspect(ctx, res) },
		})
	}

	if len(calls) == 0 {
		return []models.Finding{}
	}

	mapper := iter.Mapper[call, []models.Finding]{MaxGoroutines: a.concurrency}
	batches := mapper.Map(calls, func(c *call) []models.Finding {
		return a.safeCall(ctx, *c)
	})

	findings := []models.Finding{}
	for _, b := range batches {
		findings = append(findings, b...)
	}

	a.log.WithFields(logrus.Fields{
		logging.FieldResourceID: res.ResourceID,
		"calls":                 len(calls),
		"findings":              len(findings),
	}).Debug("feed lookups complete")

	return findings
}

// safeCall isolates a misbehaving adapter so the remaining calls still run.
func (a *Aggregator) safeCall(ctx context.Context, c call) (out []models.Finding) {
	defer func() {
		if r := recover(); r != nil {
			a.log.WithFields(logrus.Fields{
				logging.FieldFeed: c.feed,
				"indicator":       c.indicator,
			}).WithError(fmt.Errorf("panic: %v", r)).Warn("feed adapter panicked")
			out = nil
		}
	}()
	return c.run(ctx)
}

// Candidates derives the deduplicated indicators worth looking up for a
// resource: its public IP (only when one is associated), CIDR block and
// endpoint, in that order.
func Candidates(attrs map[string]any) []string {
	var raw []string
	if assoc, _ := attrs["associate_public_ip_address"].(bool); assoc {
		if ip, _ := attrs["public_ip"].(string); ip != "" {
			raw = append(raw, ip)
		}
	}
	if cidr, _ := attrs["cidr_block"].(string); cidr != "" {
		raw = append(raw, cidr)
	}
	if ep, _ := attrs["endpoint"].(string); ep != "" {
		raw = append(raw, ep)
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
