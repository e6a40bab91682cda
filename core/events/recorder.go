package events

import "sync"

// DefaultRecorderCapacity bounds the in-memory event buffer. Older entries are
// dropped once the cap is reached; durable history lives in the resolver's
// event store.
const DefaultRecorderCapacity = 4096

// Recorder is a bounded, sequence-stamped in-memory event buffer. It is safe
// for concurrent use and implements Emitter.
type Recorder struct {
	mu       sync.RWMutex
	seq      int64
	capacity int
	buffer   []Event
}

// NewRecorder constructs a Recorder. A non-positive capacity falls back to
// DefaultRecorderCapacity.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultRecorderCapacity
	}
	return &Recorder{capacity: capacity}
}

// Emit stamps the event with the next sequence number and appends it.
func (r *Recorder) Emit(evt Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	evt.Sequence = r.seq
	r.buffer = append(r.buffer, evt)
	if len(r.buffer) > r.capacity {
		r.buffer = r.buffer[len(r.buffer)-r.capacity:]
	}
}

// After returns up to limit events with a sequence strictly greater than the
// supplied cursor, oldest first.
func (r *Recorder) After(cursor int64, limit int) []Event {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 {
		limit = len(r.buffer)
	}
	out := make([]Event, 0, limit)
	for _, evt := range r.buffer {
		if evt.Sequence <= cursor {
			continue
		}
		out = append(out, evt)
		if len(out) == limit {
			break
		}
	}
	return out
}

// LastSequence returns the most recently assigned sequence number.
func (r *Recorder) LastSequence() int64 {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq
}
