// Package bus implements the live message bus: short-lived teacher notices
// addressed to one session participant, retrieved by the student's polling
// loop. Messages live in per-key in-memory buckets and disappear on expiry
// or process restart; there is no persistence and no cross-instance view.
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scope tags carried on a message. The bus stores the tag verbatim and never
// interprets it; broadcast fan-out, if any, is caller business.
const (
	ScopeAll        = "all"
	ScopeIndividual = "individual"
)

// DefaultTTL tolerates client polling and countdown drift.
const DefaultTTL = 90 * time.Second

// Message is one published notice. IDs are UUIDv7 so they sort by creation
// time while staying collision-negligible.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Scope     string    `json:"scope"`
}

// Expired reports whether the message is past its deadline at the given time.
func (m Message) Expired(now time.Time) bool {
	return !m.ExpiresAt.After(now)
}

// Bus holds per-key ordered buckets of messages. All operations are total:
// unknown keys behave as empty buckets and nothing returns an error.
type Bus struct {
	mu      sync.Mutex
	buckets map[string][]Message
	now     func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithClock replaces the time source. Tests use it to drive expiry without
// sleeping.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		buckets: make(map[string][]Message),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish appends a message to the key's bucket, creating the bucket if
// absent. A non-positive ttl falls back to DefaultTTL and an empty scope to
// ScopeIndividual. Insertion order within a bucket is preserved.
func (b *Bus) Publish(key, content string, ttl time.Duration, scope string) Message {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if scope == "" {
		scope = ScopeIndividual
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	msg := Message{
		ID:        newMessageID(),
		Content:   content,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Scope:     scope,
	}
	b.buckets[key] = append(b.buckets[key], msg)
	return msg
}

// Consume returns every unexpired message for the key in insertion order and
// clears the bucket. Two concurrent consumers of the same key split whatever
// is present between them; normal operation has a single polling consumer
// per key.
func (b *Bus) Consume(key string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	live := b.liveLocked(key)
	delete(b.buckets, key)
	return live
}

// Peek returns the unexpired messages for the key without mutating the
// bucket. Safe for repeated tick checks.
func (b *Bus) Peek(key string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.liveLocked(key)
}

// Ack removes one message by id, leaving the rest of the bucket in place,
// and reports whether a removal happened.
func (b *Bus) Ack(key, id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	bucket := b.buckets[key]
	for i, msg := range bucket {
		if msg.ID == id {
			b.buckets[key] = append(bucket[:i:i], bucket[i+1:]...)
			if len(b.buckets[key]) == 0 {
				delete(b.buckets, key)
			}
			return true
		}
	}
	return false
}

// CleanExpired sweeps every bucket and drops expired entries. Publish never
// sweeps and Peek never mutates, so a periodic caller is what bounds memory
// growth for keys nobody consumes anymore.
func (b *Bus) CleanExpired() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for key, bucket := range b.buckets {
		kept := bucket[:0]
		for _, msg := range bucket {
			if !msg.Expired(now) {
				kept = append(kept, msg)
			}
		}
		if len(kept) == 0 {
			delete(b.buckets, key)
		} else {
			b.buckets[key] = kept
		}
	}
}

// Stats returns the number of non-empty buckets and stored messages,
// expired entries included. Used by the health endpoint.
func (b *Bus) Stats() (buckets, messages int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, bucket := range b.buckets {
		buckets++
		messages += len(bucket)
	}
	return buckets, messages
}

// liveLocked copies the unexpired messages for a key. Callers hold b.mu.
func (b *Bus) liveLocked(key string) []Message {
	bucket := b.buckets[key]
	live := make([]Message, 0, len(bucket))
	now := b.now()
	for _, msg := range bucket {
		if !msg.Expired(now) {
			live = append(live, msg)
		}
	}
	return live
}

func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// crypto/rand failure; fall back to the purely random variant
		id = uuid.New()
	}
	return id.String()
}
