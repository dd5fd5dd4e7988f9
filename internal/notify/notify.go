// Package notify is the engine's single outbound channel: transport state
// deltas and preload lifecycle events pushed synchronously to one registered
// subscriber. A careless subscriber must never be able to break the engine,
// so every callback runs behind a panic guard.
package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Change is a partial transport-state patch. Nil fields carry no update.
type Change struct {
	IsPlaying *bool
	Position  *time.Duration
	Duration  *time.Duration
	Volume    *float64
	Err       error
}

// PreloadStatus is the lifecycle of a background preload.
type PreloadStatus string

const (
	// PreloadIdle means no preload is active; also reported when an in-flight
	// preload is cancelled, which is an expected outcome, not an error.
	PreloadIdle PreloadStatus = "idle"
	// PreloadLoading means the fetch/decode is in flight.
	PreloadLoading PreloadStatus = "loading"
	// PreloadReady means the next buffer is decoded and adoptable.
	PreloadReady PreloadStatus = "ready"
	// PreloadError means the preload failed; playback of the current track
	// is unaffected.
	PreloadError PreloadStatus = "error"
)

// PreloadEvent reports a preload lifecycle transition.
type PreloadEvent struct {
	TrackID string
	Status  PreloadStatus
	Message string
	IsCloud bool
}

// Callbacks is the subscriber registration for all engine events.
type Callbacks struct {
	OnStateChange        func(Change)
	OnTrackEnd           func()
	OnTrackChange        func(trackID string)
	OnPreloadStateChange func(PreloadEvent)
}

// Notifier fans engine events out to the registered callbacks.
type Notifier struct {
	mu sync.RWMutex
	cb Callbacks
}

func New() *Notifier { return &Notifier{} }

// SetCallbacks replaces the registered subscriber.
func (n *Notifier) SetCallbacks(cb Callbacks) {
	n.mu.Lock()
	n.cb = cb
	n.mu.Unlock()
}

// State delivers a partial state patch.
func (n *Notifier) State(c Change) {
	n.mu.RLock()
	fn := n.cb.OnStateChange
	n.mu.RUnlock()
	if fn != nil {
		guard(func() { fn(c) })
	}
}

// TrackEnd reports a genuine end-of-track with nothing queued after it.
func (n *Notifier) TrackEnd() {
	n.mu.RLock()
	fn := n.cb.OnTrackEnd
	n.mu.RUnlock()
	if fn != nil {
		guard(fn)
	}
}

// TrackChange reports that playback moved to a different track.
func (n *Notifier) TrackChange(trackID string) {
	n.mu.RLock()
	fn := n.cb.OnTrackChange
	n.mu.RUnlock()
	if fn != nil {
		guard(func() { fn(trackID) })
	}
}

// Preload reports a preload lifecycle transition.
func (n *Notifier) Preload(ev PreloadEvent) {
	n.mu.RLock()
	fn := n.cb.OnPreloadStateChange
	n.mu.RUnlock()
	if fn != nil {
		guard(func() { fn(ev) })
	}
}

func guard(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Msg("subscriber callback panicked")
		}
	}()
	fn()
}

// Patch field helpers.

func Bool(v bool) *bool { return &v }

func Dur(v time.Duration) *time.Duration { return &v }

func Float(v float64) *float64 { return &v }
