package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Delivery limits for one audit event.
const (
	deliveryTimeout = 5 * time.Second
	maxAttempts     = 3
)

// AuditIDHeader carries the audit entry id so receivers can drop duplicate
// deliveries of a retried event.
const AuditIDHeader = "X-Accessgate-Audit-ID"

var (
	httpClient = &http.Client{Timeout: deliveryTimeout}
	// retryDelay is the backoff unit: attempt n waits n*retryDelay.
	retryDelay = time.Second
)

// DeliveryError reports a webhook that did not accept an audit event.
// Status is 0 when no HTTP response was received.
type DeliveryError struct {
	URL      string
	AuditID  string
	Status   int
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	target := "audit event"
	if e.AuditID != "" {
		target = "audit entry " + e.AuditID
	}
	if e.Status != 0 {
		return fmt.Sprintf("alert: %s to %s: HTTP %d after %d attempt(s)", target, e.URL, e.Status, e.Attempts)
	}
	return fmt.Sprintf("alert: %s to %s: %v after %d attempt(s)", target, e.URL, e.Err, e.Attempts)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Retryable reports whether a later attempt could succeed. The receiver
// rejecting the payload (4xx) is final.
func (e *DeliveryError) Retryable() bool {
	return e.Status == 0 || e.Status >= 500
}

// Send posts ev to the webhook in cfg's format. Network errors and 5xx
// responses are retried with linear backoff until maxAttempts or ctx ends.
func Send(ctx context.Context, cfg Config, ev Event) error {
	body, err := FormatPayload(cfg.Format, ev)
	if err != nil {
		return fmt.Errorf("alert: format %s payload for audit entry %s: %w", cfg.Format, ev.AuditID, err)
	}

	var last *DeliveryError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				last.Err = errors.Join(last.Err, ctx.Err())
				return last
			case <-time.After(time.Duration(attempt-1) * retryDelay):
			}
		}
		last = post(ctx, cfg, ev.AuditID, body)
		if last == nil {
			return nil
		}
		last.Attempts = attempt
		if !last.Retryable() {
			return last
		}
	}
	return last
}

func post(ctx context.Context, cfg Config, auditID string, body []byte) *DeliveryError {
	fail := &DeliveryError{URL: cfg.URL, AuditID: auditID}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		fail.Err = err
		return fail
	}
	req.Header.Set("Content-Type", "application/json")
	if auditID != "" {
		req.Header.Set(AuditIDHeader, auditID)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		fail.Err = err
		return fail
	}
	resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	fail.Status = resp.StatusCode
	fail.Err = errors.New(http.StatusText(resp.StatusCode))
	return fail
}
