// Package registry holds the process-wide, in-memory client recency and
// acknowledgement state that the Policy Engine decides against. It never
// persists anything to disk: a restart resets every client to "new
// session," which is the intended behavior (see SPEC_FULL.md §5).
package registry

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// State is a snapshot of one client's recency and acknowledgement state.
// A zero-value State (LastSeenAt.IsZero()) is equivalent to an absent
// registry entry — both mean "never seen," per SPEC_FULL.md §3's
// invariant that a missing key behaves like last_seen_at = 0.
type State struct {
	LastSeenAt            time.Time
	AndroidOKAcknowledged bool
}

// entry is the map-stored value: a State plus the mutex that makes each of
// the four registry operations atomic for that one client. Per-key
// locking is explicitly permitted by SPEC_FULL.md §5 in place of a single
// global mutex, so unrelated clients' probes never block on each other.
type entry struct {
	mu    sync.Mutex
	state State
}

// Registry is the Client Registry component. The zero value is not usable;
// construct with New.
type Registry struct {
	clients *xsync.MapOf[string, *entry]
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{clients: xsync.NewMapOf[string, *entry]()}
}

// Get returns a snapshot of id's state, or the zero State if id has never
// been touched. Get never inserts an entry.
func (r *Registry) Get(id string) State {
	e, ok := r.clients.Load(id)
	if !ok {
		return State{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Touch records that id was just seen at now.
func (r *Registry) Touch(id string, now time.Time) {
	e, _ := r.clients.LoadOrStore(id, &entry{})
	e.mu.Lock()
	e.state.LastSeenAt = now
	e.mu.Unlock()
}

// SetAcknowledged records whether id has pressed OK on the landing page.
func (r *Registry) SetAcknowledged(id string, acknowledged bool) {
	e, _ := r.clients.LoadOrStore(id, &entry{})
	e.mu.Lock()
	e.state.AndroidOKAcknowledged = acknowledged
	e.mu.Unlock()
}

// Forget removes id's entry entirely. Idempotent: forgetting an already
// absent client is a no-op, not an error.
func (r *Registry) Forget(id string) {
	r.clients.Delete(id)
}

// Len reports the number of tracked client entries, for admin/metrics use.
func (r *Registry) Len() int {
	return r.clients.Size()
}

// Snapshot returns a point-in-time copy of every tracked client's state,
// keyed by client id. Used by the admin dashboard; never by the Policy
// Engine itself.
func (r *Registry) Snapshot() map[string]State {
	out := make(map[string]State, r.clients.Size())
	r.clients.Range(func(id string, e *entry) bool {
		e.mu.Lock()
		out[id] = e.state
		e.mu.Unlock()
		return true
	})
	return out
}

// Sweep opportunistically evicts entries that haven't been seen in more
// than maxAge. This is purely a memory-bound optimization: an un-evicted
// stale entry is already indistinguishable from "new session" to the
// Policy Engine, so eviction changes no externally observable behavior.
// Returns the number of entries removed.
//
// The staleness check and the eviction decision happen together inside a
// single Compute call per key, rather than as a separate Range-read
// followed by a later Delete: otherwise a Touch landing in the gap between
// reading "stale" and calling Delete would have its refreshed LastSeenAt
// silently discarded by a Delete decision made before the Touch happened.
func (r *Registry) Sweep(now time.Time, maxAge time.Duration) int {
	var ids []string
	r.clients.Range(func(id string, _ *entry) bool {
		ids = append(ids, id)
		return true
	})

	var removed int
	for _, id := range ids {
		var evicted bool
		r.clients.Compute(id, func(e *entry, loaded bool) (*entry, bool) {
			if !loaded {
				return nil, true
			}
			e.mu.Lock()
			stale := now.Sub(e.state.LastSeenAt) > maxAge
			e.mu.Unlock()
			evicted = stale
			return e, stale
		})
		if evicted {
			removed++
		}
	}
	return removed
}

// RunSweeper blocks, calling Sweep every interval, until stop is closed.
// Intended to be run in its own goroutine from cmd/captiveportal.
func (r *Registry) RunSweeper(interval, maxAge time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			r.Sweep(now, maxAge)
		}
	}
}
