// Package buffers owns the two decoded-audio slots of the gapless pipeline:
// the track being played and the track preloaded behind it. Ownership of a
// decoded buffer always transfers between slots, never copies, and at most
// two buffers exist at any time.
package buffers

import (
	"context"
	"errors"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog/log"

	"github.com/brickaudio/brick/internal/notify"
)

// Track identifies an audio track to fetch. Identity is the ID; the engine
// does not interpret the URL beyond fetching it.
type Track struct {
	URL     string
	ID      string
	IsCloud bool
}

// Loader fetches and decodes a track into an in-memory buffer.
type Loader interface {
	LoadTrack(ctx context.Context, t Track) (*beep.Buffer, error)
}

// slot pairs a decoded buffer with the track it belongs to. A nil *slot is
// the empty state; a non-nil slot always holds a decoded buffer.
type slot struct {
	track Track
	buf   *beep.Buffer
}

// Manager holds the current and next slots and serializes all mutations.
// Asynchronous loads are guarded by generation counters: a completion only
// commits its result if no newer request for the same slot superseded it.
type Manager struct {
	mu       sync.Mutex
	loader   Loader
	notifier *notify.Notifier

	current *slot
	next    *slot

	loadGen       uint64
	preloadGen    uint64
	preloadTrack  Track
	preloadCancel context.CancelFunc
}

// New creates a Manager using loader for fetch+decode and notifier for
// preload lifecycle reporting.
func New(loader Loader, notifier *notify.Notifier) *Manager {
	return &Manager{loader: loader, notifier: notifier}
}

// Load replaces the current slot unconditionally: any in-flight preload is
// cancelled, the next slot is discarded, and the track is fetched and decoded
// synchronously. On failure the current slot is left empty, never stale.
func (m *Manager) Load(ctx context.Context, t Track) (*beep.Buffer, error) {
	m.mu.Lock()
	m.loadGen++
	gen := m.loadGen
	m.cancelPreloadLocked()
	m.current = nil
	m.next = nil
	m.mu.Unlock()

	buf, err := m.loader.LoadTrack(ctx, t)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.loadGen {
		// A newer Load superseded this one while it was decoding.
		return nil, context.Canceled
	}
	if err != nil {
		return nil, err
	}
	m.current = &slot{track: t, buf: buf}
	return buf, nil
}

// PreloadNext fetches and decodes t into the next slot. A newer preload (or a
// Load) supersedes and cancels it; a superseded result is discarded when it
// arrives. Lifecycle transitions go to the notifier: loading, then
// ready, error, or idle on cancellation.
func (m *Manager) PreloadNext(ctx context.Context, t Track) error {
	m.mu.Lock()
	m.cancelPreloadLocked()
	m.preloadGen++
	gen := m.preloadGen
	m.preloadTrack = t
	pctx, cancel := context.WithCancel(ctx)
	m.preloadCancel = cancel
	m.next = nil
	m.mu.Unlock()
	defer cancel()

	m.notifier.Preload(notify.PreloadEvent{TrackID: t.ID, Status: notify.PreloadLoading, IsCloud: t.IsCloud})

	buf, err := m.loader.LoadTrack(pctx, t)

	m.mu.Lock()
	superseded := gen != m.preloadGen
	if !superseded {
		m.preloadCancel = nil
		if err == nil {
			m.next = &slot{track: t, buf: buf}
		}
	}
	m.mu.Unlock()

	switch {
	case superseded:
		log.Debug().Str("track", t.ID).Msg("preload superseded, result discarded")
		m.notifier.Preload(notify.PreloadEvent{
			TrackID: t.ID, Status: notify.PreloadIdle, Message: "preload superseded", IsCloud: t.IsCloud,
		})
		return nil
	case errors.Is(err, context.Canceled):
		m.notifier.Preload(notify.PreloadEvent{
			TrackID: t.ID, Status: notify.PreloadIdle, Message: "preload cancelled", IsCloud: t.IsCloud,
		})
		return err
	case err != nil:
		log.Error().Err(err).Str("track", t.ID).Msg("preload failed")
		m.notifier.Preload(notify.PreloadEvent{
			TrackID: t.ID, Status: notify.PreloadError, Message: err.Error(), IsCloud: t.IsCloud,
		})
		return err
	default:
		m.notifier.Preload(notify.PreloadEvent{TrackID: t.ID, Status: notify.PreloadReady, IsCloud: t.IsCloud})
		return nil
	}
}

// AdoptNext promotes the next slot to current iff its track id matches
// expectedID and a decoded buffer is present. On failure nothing changes.
// Serves both the natural end-of-track handoff and manual skip-ahead.
func (m *Manager) AdoptNext(expectedID string) (Track, *beep.Buffer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.next == nil || m.next.track.ID != expectedID {
		return Track{}, nil, false
	}
	m.current = m.next
	m.next = nil
	return m.current.track, m.current.buf, true
}

// Current returns the current slot's track and buffer, if filled.
func (m *Manager) Current() (Track, *beep.Buffer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Track{}, nil, false
	}
	return m.current.track, m.current.buf, true
}

// PeekNext returns the next slot's track and buffer without transferring
// ownership. The transition scheduler uses it to build the scheduled source;
// adoption still happens through AdoptNext.
func (m *Manager) PeekNext() (Track, *beep.Buffer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.next == nil {
		return Track{}, nil, false
	}
	return m.next.track, m.next.buf, true
}

// NextReady reports whether a decoded next buffer for id is adoptable.
func (m *Manager) NextReady(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next != nil && m.next.track.ID == id
}

// PendingNext returns the track of the most recent preload request, whether
// or not it has completed yet.
func (m *Manager) PendingNext() (Track, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.next != nil {
		return m.next.track, true
	}
	if m.preloadCancel != nil {
		return m.preloadTrack, true
	}
	return Track{}, false
}

// CancelPreload aborts any in-flight preload and keeps an already-decoded
// next buffer (pausing must not throw away a finished preload).
func (m *Manager) CancelPreload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelPreloadLocked()
}

// Clear empties both slots and aborts any in-flight preload.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelPreloadLocked()
	m.current = nil
	m.next = nil
}

// cancelPreloadLocked supersedes the in-flight preload, if any.
// Caller holds m.mu.
func (m *Manager) cancelPreloadLocked() {
	if m.preloadCancel != nil {
		m.preloadCancel()
		m.preloadCancel = nil
	}
	m.preloadGen++
}
