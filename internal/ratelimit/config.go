// Package ratelimit bounds how many decisions one subject may request in a
// fixed window.
package ratelimit

import "time"

// Limit is a fixed-window request budget. Zero values mean no limit.
type Limit struct {
	MaxRequests int           `mapstructure:"max_requests" yaml:"max_requests"`
	Window      time.Duration `mapstructure:"window" yaml:"window"`
}

// Enabled returns true if the limit is configured.
func (l Limit) Enabled() bool {
	return l.MaxRequests > 0 && l.Window > 0
}
