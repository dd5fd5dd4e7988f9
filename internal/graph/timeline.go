package graph

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

// EventKind classifies timeline events.
type EventKind int

const (
	// EventEnded fires when the current source plays to natural exhaustion
	// while it still owns the output. Detached sources never emit it, and a
	// source replaced by a scheduled switch at its final sample is reported
	// through EventSwitched alone.
	EventEnded EventKind = iota
	// EventSwitched fires when a scheduled source takes over at its start sample.
	EventSwitched
)

// Event reports a source lifecycle change, tagged with the generation of the
// source it refers to so consumers can ignore events from stale sources.
type Event struct {
	Kind EventKind
	Gen  uint64
	At   int64 // clock sample at which the event occurred
}

type source struct {
	s   beep.Streamer
	gen uint64
}

// Timeline is the root of the audio graph: a perpetual streamer that owns the
// monotonic sample clock. It plays at most one current source, fills silence
// when idle, and can hold one queued source scheduled to start at an exact
// clock sample. The switch to the queued source happens mid-Stream at that
// exact sample, so transitions are sample-accurate no matter how late the
// wall-clock timer that armed them fired.
type Timeline struct {
	mu      sync.Mutex
	clock   int64
	cur     *source
	queued  *source
	startAt int64
	lastGen uint64
	events  chan Event
}

var _ beep.Streamer = (*Timeline)(nil)

func newTimeline() *Timeline {
	return &Timeline{events: make(chan Event, 16)}
}

// Events returns the timeline's event channel. Delivery is best-effort: the
// audio callback never blocks on a slow consumer.
func (t *Timeline) Events() <-chan Event {
	return t.events
}

// Now returns the current clock position in samples. The clock only advances
// as samples are rendered, so it is immune to event-loop or timer throttling.
func (t *Timeline) Now() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clock
}

// Set replaces the current source immediately and returns its generation.
// The replaced source is discarded without an ended event.
func (t *Timeline) Set(s beep.Streamer) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastGen++
	t.cur = &source{s: s, gen: t.lastGen}
	return t.lastGen
}

// Detach removes the current source without emitting an ended event.
// Used by pause, seek and track replacement, which must never masquerade as
// natural end-of-track.
func (t *Timeline) Detach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur = nil
}

// ScheduleAt queues a source to start at exactly startAt on the clock and
// returns its generation. Any previously queued source is replaced. If
// startAt is already in the past the source starts on the next render.
func (t *Timeline) ScheduleAt(s beep.Streamer, startAt int64) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastGen++
	t.queued = &source{s: s, gen: t.lastGen}
	t.startAt = startAt
	return t.lastGen
}

// ScheduledAt reports the queued source's generation and start sample.
func (t *Timeline) ScheduledAt() (gen uint64, startAt int64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.queued == nil {
		return 0, 0, false
	}
	return t.queued.gen, t.startAt, true
}

// ClearScheduled drops the queued source, if any, without any event.
func (t *Timeline) ClearScheduled() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queued = nil
}

// Stream renders into samples, advancing the clock by exactly len(samples).
// It always reports ok so the graph keeps running for the engine's lifetime.
func (t *Timeline) Stream(samples [][2]float64) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	filled := 0
	for filled < len(samples) {
		limit := len(samples)
		if t.queued != nil {
			until := t.startAt - t.clock
			if until <= 0 {
				t.promote()
				continue
			}
			if int64(limit-filled) > until {
				limit = filled + int(until)
			}
		}

		if t.cur == nil {
			for i := filled; i < limit; i++ {
				samples[i] = [2]float64{}
			}
			t.clock += int64(limit - filled)
			filled = limit
			continue
		}

		n, ok := t.cur.s.Stream(samples[filled:limit])
		t.clock += int64(n)
		filled += n
		if !ok {
			t.emit(Event{Kind: EventEnded, Gen: t.cur.gen, At: t.clock})
			t.cur = nil
		} else if n == 0 {
			// A streamer returning (0, true) would spin this loop forever.
			t.cur = nil
		}
	}
	return len(samples), true
}

// Err implements beep.Streamer.
func (t *Timeline) Err() error { return nil }

// promote makes the queued source current. Caller holds t.mu.
func (t *Timeline) promote() {
	t.cur = t.queued
	t.queued = nil
	t.emit(Event{Kind: EventSwitched, Gen: t.cur.gen, At: t.clock})
}

func (t *Timeline) emit(ev Event) {
	select {
	case t.events <- ev:
	default:
		// Consumer fell behind; dropping is preferable to stalling audio.
	}
}
