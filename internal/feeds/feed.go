// Package feeds holds the threat-intelligence adapters. Every adapter is
// fail-soft: network errors, timeouts, non-2xx responses and undecodable
// bodies are logged at debug level and produce no findings.
package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hakim/threatiac/internal/models"
	"github.com/sirupsen/logrus"
)

// Feed identifiers, also used as confidence keys by the scorer.
const (
	FeedAbuseIPDB = "abuseipdb"
	FeedGreyNoise = "greynoise"
	FeedShodan    = "shodan"
	FeedOTX       = "otx"
)

// NoCredentialEvidence marks the placeholder finding emitted in degraded mode.
const NoCredentialEvidence = "no credential configured"

// DefaultTimeout bounds every outbound feed request.
const DefaultTimeout = 5 * time.Second

// Source is the common part of every adapter.
type Source interface {
	Name() string
}

// IndicatorLookup queries a feed for a single IP, CIDR or hostname.
type IndicatorLookup interface {
	Source
	Lookup(ctx context.Context, indicator string) []models.Finding
}

// ResourceInspector looks at a whole resource and queries a feed for every
// host or address embedded in it.
type ResourceInspector interface {
	Source
	Inspect(ctx context.Context, res models.ResourceDescriptor) []models.Finding
}

// Options configures a single adapter.
type Options struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Log        *logrus.Entry
}

// client is the shared HTTP plumbing behind every adapter.
type client struct {
	name    string
	apiKey  string
	baseURL string
	timeout time.Duration
	http    *http.Client
	log     *logrus.Entry
}

func newClient(name, defaultBase string, opts Options) client {
	c := client{
		name:    name,
		apiKey:  opts.APIKey,
		baseURL: opts.BaseURL,
		timeout: opts.Timeout,
		http:    opts.HTTPClient,
		log:     opts.Log,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBase
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	if c.log == nil {
		c.log = logrus.NewEntry(logrus.StandardLogger())
	}
	c.log = c.log.WithField("feed", name)
	return c
}

// Name returns the feed identifier.
func (c client) Name() string {
	return c.name
}

// configured reports whether a credential is available.
func (c client) configured() bool {
	return c.apiKey != ""
}

// placeholder is the single LOW finding returned when no credential is set.
func (c client) placeholder(indicator string) []models.Finding {
	return []models.Finding{{
		Feed:      c.name,
		Indicator: indicator,
		Risk:      models.SeverityLow,
		Evidence:  NoCredentialEvidence,
	}}
}

// maxResponseBytes caps how much of a feed response body is decoded.
var maxResponseBytes int64 = 1 << 20

// errNotFound signals a 404, which feeds use for "no data on this indicator".
var errNotFound = errors.New("indicator not found")

// getJSON performs a bounded GET and decodes the JSON body into out.
func (c client) getJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned status %d", c.name, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", c.name, err)
	}
	return nil
}

// absorb logs a swallowed lookup failure.
func (c client) absorb(indicator string, err error) {
	if errors.Is(err, errNotFound) {
		c.log.WithField("indicator", indicator).Debug("no feed data for indicator")
		return
	}
	c.log.WithError(err).WithField("indicator", indicator).Debug("feed lookup failed")
}
