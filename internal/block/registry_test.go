package block

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestRegistry_BlockThenQuery(t *testing.T) {
	r := New()

	rec := r.Block("code1|alice@example.com", 5)
	if rec.Key != "code1|alice@example.com" {
		t.Errorf("Key = %q, want the blocked key", rec.Key)
	}

	st := r.Status("code1|alice@example.com")
	if !st.Blocked {
		t.Fatal("Status should report blocked")
	}
	if st.Remaining <= 0 || st.Remaining > 5*time.Minute {
		t.Errorf("Remaining = %v, want in (0, 5m]", st.Remaining)
	}
}

func TestRegistry_BlockOverwriteReplacesDeadline(t *testing.T) {
	r := New()
	key := "code1|alice@example.com"

	r.Block(key, 5)
	r.Block(key, 1)

	st := r.Status(key)
	if !st.Blocked {
		t.Fatal("Status should report blocked")
	}
	if st.Remaining > time.Minute {
		t.Errorf("Remaining = %v, want <= 1m (second block replaces, not extends)", st.Remaining)
	}
}

func TestRegistry_MinutesClampedToOne(t *testing.T) {
	r := New()

	for _, minutes := range []int{0, -3} {
		rec := r.Block("k", minutes)
		if remaining := time.Until(rec.BlockedUntil); remaining <= 30*time.Second {
			t.Errorf("Block(k, %d) deadline only %v away, want ~1m (clamped)", minutes, remaining)
		}
		r.Unblock("k")
	}
}

func TestRegistry_UnblockClearsState(t *testing.T) {
	r := New()
	key := "code1|alice@example.com"
	r.Block(key, 5)

	if !r.Unblock(key) {
		t.Error("first Unblock should report true")
	}

	st := r.Status(key)
	if st.Blocked || st.Remaining != 0 {
		t.Errorf("Status after Unblock = %+v, want zero value", st)
	}

	if r.Unblock(key) {
		t.Error("second Unblock should report false")
	}
}

func TestRegistry_LazySelfExpiry(t *testing.T) {
	clock := newFakeClock()
	r := New(WithClock(clock.Now))
	key := "code1|alice@example.com"

	r.Block(key, 1)
	clock.Advance(61 * time.Second)

	st := r.Status(key)
	if st.Blocked || st.Remaining != 0 {
		t.Errorf("Status after deadline = %+v, want not blocked", st)
	}

	// the expired read above deleted the entry
	if records := r.All(); len(records) != 0 {
		t.Errorf("All after lazy expiry = %v, want empty", records)
	}
}

func TestRegistry_AllPurgesExpiredDuringScan(t *testing.T) {
	clock := newFakeClock()
	r := New(WithClock(clock.Now))

	r.Block("expired1", 1)
	r.Block("expired2", 2)
	r.Block("alive", 30)
	clock.Advance(5 * time.Minute)

	records := r.All()
	if len(records) != 1 || records[0].Key != "alive" {
		t.Fatalf("All = %v, want only %q", records, "alive")
	}

	// a second scan reflects the purge
	if records := r.All(); len(records) != 1 {
		t.Errorf("second All = %v, want 1 record", records)
	}
}

func TestRegistry_AllSortedByKey(t *testing.T) {
	r := New()
	r.Block("charlie", 5)
	r.Block("alice", 5)
	r.Block("bob", 5)

	records := r.All()
	if len(records) != 3 {
		t.Fatalf("All returned %d records, want 3", len(records))
	}
	for i, want := range []string{"alice", "bob", "charlie"} {
		if records[i].Key != want {
			t.Errorf("records[%d].Key = %q, want %q", i, records[i].Key, want)
		}
	}
}

func TestRegistry_UnknownKeyIsSafe(t *testing.T) {
	r := New()

	st := r.Status("never-seen")
	if st.Blocked || st.Remaining != 0 {
		t.Errorf("Status(never-seen) = %+v, want zero value", st)
	}
	if r.Unblock("never-seen") {
		t.Error("Unblock(never-seen) should report false")
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Block("k", 5)
				r.Status("k")
				r.All()
				r.Unblock("k")
			}
		}()
	}
	wg.Wait()
}
