// Package block implements the live block registry: temporary access
// suspensions for session participants, keyed the same way as the message
// bus but stored independently. Entries expire by deadline comparison on
// read; nothing is persisted.
package block

import (
	"sort"
	"sync"
	"time"
)

// DefaultMinutes is the suspension length applied when the caller does not
// choose one.
const DefaultMinutes = 10

// Record is one active suspension.
type Record struct {
	Key          string    `json:"key"`
	BlockedUntil time.Time `json:"blocked_until"`
}

// Status is the result of querying one key.
type Status struct {
	Blocked   bool
	Remaining time.Duration
}

// Registry maps keys to suspension deadlines. All operations are total:
// unknown keys behave exactly like never-blocked keys.
type Registry struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Block suspends a key for the given number of minutes, clamped to a minimum
// of 1 so a zero or negative duration cannot produce a no-op block. A second
// call replaces the previous deadline; it never extends or stacks.
func (r *Registry) Block(key string, minutes int) Record {
	if minutes < 1 {
		minutes = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	until := r.now().Add(time.Duration(minutes) * time.Minute)
	r.entries[key] = until
	return Record{Key: key, BlockedUntil: until}
}

// Unblock lifts a suspension before its natural expiry and reports whether
// one existed.
func (r *Registry) Unblock(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[key]
	delete(r.entries, key)
	return ok
}

// Status reports whether a key is currently suspended and for how much
// longer. A lapsed entry is deleted as a side effect of the read, so the
// registry is self-cleaning for any key that keeps being queried.
func (r *Registry) Status(key string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	until, ok := r.entries[key]
	if !ok {
		return Status{}
	}
	now := r.now()
	if !until.After(now) {
		delete(r.entries, key)
		return Status{}
	}
	return Status{Blocked: true, Remaining: until.Sub(now)}
}

// All enumerates the still-valid suspensions sorted by key and purges every
// expired entry found during the scan. Calling it periodically serves the
// same housekeeping role as the bus sweep.
func (r *Registry) All() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	records := make([]Record, 0, len(r.entries))
	for key, until := range r.entries {
		if !until.After(now) {
			delete(r.entries, key)
			continue
		}
		records = append(records, Record{Key: key, BlockedUntil: until})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records
}
