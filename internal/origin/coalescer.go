package origin

import (
	"sync"

	"github.com/Sonified/seisstream/internal/sse"
	"github.com/Sonified/seisstream/internal/station"
)

type dayKey struct {
	sid string
	day string
}

func keyOf(sid station.SID, d station.Day) dayKey {
	return dayKey{sid: sid.String(), day: d.String()}
}

// broadcaster fans one pipeline's events out to every attached subscriber.
// A second caller for the same (SID, D) attaches here instead of starting a
// duplicate origin task and gets the same event stream.
type broadcaster struct {
	mu   sync.Mutex
	subs []chan sse.Event
	done bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{}
}

func (b *broadcaster) subscribe() <-chan sse.Event {
	ch := make(chan sse.Event, 32)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

func (b *broadcaster) publish(ev sse.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// A slow subscriber must never stall the pipeline; it only
			// misses events on its own channel, the pipeline keeps running.
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// Coalescer deduplicates concurrent origin pipelines for the same (SID, D):
// a map from key to an in-flight broadcaster guarded by a mutex. New callers
// either join an existing broadcaster or create-and-insert one.
type Coalescer struct {
	mu    sync.Mutex
	tasks map[dayKey]*broadcaster
}

// NewCoalescer builds an empty Coalescer.
func NewCoalescer() *Coalescer {
	return &Coalescer{tasks: make(map[dayKey]*broadcaster)}
}

// join returns the broadcaster for (sid, d), creating it if absent. The
// bool reports whether the caller is the leader (must run the pipeline) or
// a follower attaching to one already running.
func (c *Coalescer) join(sid station.SID, d station.Day) (*broadcaster, bool) {
	k := keyOf(sid, d)
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.tasks[k]; ok {
		return b, false
	}
	b := newBroadcaster()
	c.tasks[k] = b
	return b, true
}

// release removes (sid, d)'s entry once its pipeline has finished, so the
// next request starts a fresh one instead of joining a closed broadcaster.
func (c *Coalescer) release(sid station.SID, d station.Day) {
	k := keyOf(sid, d)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tasks, k)
}
