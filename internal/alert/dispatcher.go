package alert

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/ppiankov/accessgate/internal/audit"
)

// Dispatcher fans out alert events to matching webhook configurations.
type Dispatcher struct {
	configs []Config
	logger  *zap.Logger
	wg      sync.WaitGroup
}

var _ audit.Sink = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []Config, logger *zap.Logger) (*Dispatcher, error) {
	if len(configs) == 0 {
		return nil, nil
	}
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{configs: slices.Clone(configs), logger: logger}, nil
}

// Dispatch sends the event to all webhooks whose Events list matches
// event.Decision. It does not block the caller.
func (d *Dispatcher) Dispatch(event Event) {
	for _, cfg := range d.configs {
		if !slices.Contains(cfg.Events, event.Decision) {
			continue
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := Send(context.Background(), cfg, event); err != nil {
				d.logger.Warn("alert delivery failed",
					zap.String("url", cfg.URL),
					zap.String("audit_id", event.AuditID),
					zap.Error(err))
			}
		}()
	}
}

// Write dispatches the entry. Delivery failures are logged, never returned,
// so a webhook outage cannot block the audit chain.
func (d *Dispatcher) Write(e audit.Entry) error {
	d.Dispatch(EventFromEntry(e))
	return nil
}

// Close waits for in-flight deliveries.
func (d *Dispatcher) Close() error {
	d.wg.Wait()
	return nil
}
