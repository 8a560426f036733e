package audit

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/accessgate/internal/model"
)

// DefaultMaxEntries bounds in-memory retention when no limit is configured.
const DefaultMaxEntries = 100_000

// ErrBrokenChain is returned when restored entries do not link up.
var ErrBrokenChain = errors.New("audit: broken hash chain")

// Sink persists entries outside the process. Write must be durable before it
// returns nil.
type Sink interface {
	Write(e Entry) error
	Close() error
}

// Chain is the in-memory audit ledger. Appends are serialized so each entry
// links to exactly one predecessor.
//
// When retention evicts old entries the chain keeps the hash of the last
// evicted entry as its anchor; verification of the retained window starts
// from the anchor instead of genesis.
type Chain struct {
	mu         sync.RWMutex
	entries    []Entry
	anchor     string
	lastHash   string
	maxEntries int
	sink       Sink
	now        func() time.Time
	// diverged is set when a failed append could not be undone in every
	// sink; all later appends fail with it.
	diverged error
}

// Option configures a Chain.
type Option func(*Chain)

// WithMaxEntries sets the retention bound. n <= 0 keeps the default.
func WithMaxEntries(n int) Option {
	return func(c *Chain) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithSink forwards every append to s before it is committed in memory.
func WithSink(s Sink) Option {
	return func(c *Chain) { c.sink = s }
}

// WithClock overrides time.Now for entries appended without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Chain) { c.now = now }
}

// NewChain creates an empty chain.
func NewChain(opts ...Option) *Chain {
	c := &Chain{maxEntries: DefaultMaxEntries, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Append assigns an id and timestamp when missing, links the entry to the
// current tail and returns the stored copy. If the sink rejects the entry it
// is not committed and the chain tail does not move. Once the sinks have
// diverged every append fails with ErrSinkDiverged.
func (c *Chain) Append(e Entry) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.diverged != nil {
		return Entry{}, c.diverged
	}

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = c.now()
	}
	e.Timestamp = e.Timestamp.UTC()
	e.ChainHash = ComputeHash(&e, c.lastHash)

	if c.sink != nil {
		if err := c.sink.Write(e); err != nil {
			err = fmt.Errorf("audit: sink write: %w", err)
			if errors.Is(err, ErrSinkDiverged) {
				c.diverged = err
			}
			return Entry{}, err
		}
	}

	c.entries = append(c.entries, e)
	c.lastHash = e.ChainHash
	c.evictLocked()
	return e, nil
}

func (c *Chain) evictLocked() {
	over := len(c.entries) - c.maxEntries
	if over <= 0 {
		return
	}
	c.anchor = c.entries[over-1].ChainHash
	clear(c.entries[:over])
	c.entries = c.entries[over:]
}

// Restore loads previously persisted entries, oldest first, into an empty
// chain without writing them to the sink. The entries must form a valid
// chain from genesis; only the newest maxEntries are retained.
func (c *Chain) Restore(entries []Entry) error {
	if res := verifyEntries(entries, ""); !res.Valid {
		return fmt.Errorf("%w: entry %d: %s", ErrBrokenChain, res.ErrorIndex, res.Error)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) > 0 || c.lastHash != "" {
		return errors.New("audit: restore into non-empty chain")
	}
	c.entries = slices.Clone(entries)
	if n := len(entries); n > 0 {
		c.lastHash = entries[n-1].ChainHash
	}
	c.evictLocked()
	return nil
}

// Verify reports whether the retained entries form an intact chain.
func (c *Chain) Verify() bool {
	return c.VerifyDetailed().Valid
}

// VerifyDetailed walks the retained entries from the anchor and reports the
// first broken link.
func (c *Chain) VerifyDetailed() VerifyResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return verifyEntries(c.entries, c.anchor)
}

// Filter selects entries in Query. Zero fields match everything.
type Filter struct {
	TenantID string
	UserID   string
	Action   string
	Decision model.Decision
	Since    time.Time
	// Limit keeps only the most recent matches; 0 means all.
	Limit int
}

func (f *Filter) match(e *Entry) bool {
	if f.TenantID != "" && e.TenantID != f.TenantID {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Decision != "" && e.Decision != f.Decision {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Query returns matching entries oldest first, newest last.
func (c *Chain) Query(f Filter) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Entry
	for i := len(c.entries) - 1; i >= 0; i-- {
		if !f.match(&c.entries[i]) {
			continue
		}
		out = append(out, c.entries[i])
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	slices.Reverse(out)
	return out
}

// Len returns the number of retained entries.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// LastHash returns the hash of the newest entry, "" for an empty chain.
func (c *Chain) LastHash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHash
}

// Anchor returns the hash preceding the oldest retained entry.
func (c *Chain) Anchor() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.anchor
}

// Close closes the sink, if any.
func (c *Chain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sink == nil {
		return nil
	}
	err := c.sink.Close()
	c.sink = nil
	return err
}
