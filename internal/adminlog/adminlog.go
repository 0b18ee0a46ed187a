// Package adminlog fans recent captive-portal probes out to the admin
// dashboard: a bounded ring buffer for the initial page load, plus live
// SSE subscriptions for the log-stream view. The pattern (ring buffer +
// per-subscriber channel, dropping on a full channel rather than
// blocking) is the same one the rest of this module's ancestry uses for
// broadcasting log lines; here it carries structured probe events
// instead of raw text.
package adminlog

import (
	"sync"
	"time"
)

const bufSize = 500

// Event is one handled probe, as shown on the admin dashboard's live
// stream.
type Event struct {
	Time     time.Time `json:"time"`
	ClientID string    `json:"client_id"`
	Endpoint string    `json:"endpoint"`
	Family   string    `json:"family"`
	Decision string    `json:"decision"`
}

// Broadcaster keeps a bounded history of recent probe Events and fans
// new ones out to live subscribers.
type Broadcaster struct {
	mu   sync.Mutex
	buf  []Event
	subs []chan Event
}

// New returns an empty Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{buf: make([]Event, 0, bufSize)}
}

// Publish records ev and delivers it to every current subscriber. A
// subscriber whose channel is full is skipped rather than blocked, so a
// stalled dashboard tab never slows down probe handling.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, ev)
	if len(b.buf) > bufSize {
		b.buf = b.buf[len(b.buf)-bufSize:]
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Recent returns a snapshot of the current ring buffer.
func (b *Broadcaster) Recent() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.buf))
	copy(out, b.buf)
	return out
}

// Subscribe returns recent history plus a channel of future events, and
// a cancel func the caller must invoke when done (typically when an SSE
// client disconnects).
func (b *Broadcaster) Subscribe() (history []Event, ch <-chan Event, cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	history = make([]Event, len(b.buf))
	copy(history, b.buf)

	c := make(chan Event, 128)
	b.subs = append(b.subs, c)

	cancel = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s == c {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		close(c)
	}
	return history, c, cancel
}
