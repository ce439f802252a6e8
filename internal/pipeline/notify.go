package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hakim/threatiac/internal/models"
)

// NotifyConfig configures where to send completion notifications.
type NotifyConfig struct {
	WebhookURL string // if empty, no notifications
	Client     *http.Client
}

// CompletionPayload is the JSON body posted to the webhook endpoint.
type CompletionPayload struct {
	ScanID         string          `json:"scan_id"`
	Status         string          `json:"status"`
	ResourceCount  int             `json:"resource_count"`
	WorstSeverity  models.Severity `json:"worst_severity"`
	ElapsedSeconds float64         `json:"elapsed_seconds"`
	Error          string          `json:"error_message,omitempty"`
}

func completionFor(scanID string, status models.ScanStatus, results []models.ScanResult, scanErr error, elapsed time.Duration) CompletionPayload {
	scan := models.Scan{Results: results}
	p := CompletionPayload{
		ScanID:         scanID,
		Status:         string(status),
		ResourceCount:  len(results),
		WorstSeverity:  scan.WorstSeverity(),
		ElapsedSeconds: elapsed.Seconds(),
	}
	if scanErr != nil {
		p.Error = scanErr.Error()
	}
	return p
}

// SendCompletion posts a JSON payload to the webhook URL with scan results.
// Returns nil if WebhookURL is empty (no-op). Non-fatal: errors are returned
// but callers should treat them as warnings.
func (n *NotifyConfig) SendCompletion(ctx context.Context, payload CompletionPayload) error {
	if n == nil || n.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshaling payload: %w", err)
	}

	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: posting to %s: %w", n.WebhookURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned non-2xx status %d", resp.StatusCode)
	}

	return nil
}
