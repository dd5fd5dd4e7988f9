package engine

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brickaudio/brick/internal/notify"
)

// Play starts or resumes the current track. Playing while already playing is
// a no-op; playing with no buffer loaded returns ErrNoTrackLoaded.
func (e *Engine) Play() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.state == StatePlaying {
		e.mu.Unlock()
		return nil
	}
	fresh := e.state == StateLoaded && e.pausedAt == 0
	pos := e.pausedAt
	if err := e.startAtLocked(pos); err != nil {
		e.mu.Unlock()
		return err
	}
	track := e.track
	e.mu.Unlock()

	log.Debug().Str("track", track.ID).Dur("from", pos).Msg("playing")
	e.notifier.State(notify.Change{
		IsPlaying: notify.Bool(true),
		Position:  notify.Dur(pos),
	})
	if fresh {
		e.record(track)
	}
	return nil
}

// startAtLocked attaches a fresh source for the current buffer at offset and
// moves to StatePlaying. Sources are single-use; every resume builds a new
// one over the shared buffer. Caller holds e.mu.
func (e *Engine) startAtLocked(offset time.Duration) error {
	_, buf, ok := e.buffers.Current()
	if !ok {
		return ErrNoTrackLoaded
	}
	from := e.cfg.SampleRate.N(offset)
	if from > buf.Len() {
		from = buf.Len()
	}
	src := buf.Streamer(from, buf.Len())
	e.currentGen = e.graph.Timeline().Set(src)
	e.playbackStart = e.graph.Timeline().Now() - int64(from)
	e.state = StatePlaying
	e.armTransitionLocked()
	return nil
}

// Pause freezes playback at the current position. The decoded buffer and any
// finished preload are kept; a preload still in flight keeps running too,
// since the user is likely to resume.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.state != StatePlaying {
		e.mu.Unlock()
		return
	}
	pos := e.positionLocked()
	e.pausedAt = pos
	e.graph.Timeline().Detach()
	e.cancelTransitionLocked()
	e.state = StatePaused
	e.mu.Unlock()

	e.notifier.State(notify.Change{
		IsPlaying: notify.Bool(false),
		Position:  notify.Dur(pos),
	})
}

// TogglePlayPause flips between playing and paused. With a loaded but
// never-started track it starts playback from the beginning.
func (e *Engine) TogglePlayPause() error {
	e.mu.Lock()
	playing := e.state == StatePlaying
	e.mu.Unlock()
	if playing {
		e.Pause()
		return nil
	}
	return e.Play()
}

// Seek moves the playhead to pos, clamped to the track bounds. While playing
// it swaps in a fresh source at the target offset without leaving
// StatePlaying; while paused or loaded it just stores the offset for the
// next Play.
func (e *Engine) Seek(pos time.Duration) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if _, _, ok := e.buffers.Current(); !ok {
		e.mu.Unlock()
		return ErrNoTrackLoaded
	}
	if pos < 0 {
		pos = 0
	}
	if pos > e.duration {
		pos = e.duration
	}

	e.pausedAt = pos
	if e.state == StatePlaying {
		e.graph.Timeline().Detach()
		e.cancelTransitionLocked()
		if err := e.startAtLocked(pos); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	e.mu.Unlock()

	e.notifier.State(notify.Change{Position: notify.Dur(pos)})
	return nil
}

// SkipToNext abandons the current track and starts the preloaded next track
// from its beginning, reusing the already-decoded buffer. It reports false
// when no decoded next track is available; the caller falls back to a full
// LoadTrack in that case.
func (e *Engine) SkipToNext() bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	next, _, ok := e.buffers.PeekNext()
	if !ok {
		e.mu.Unlock()
		return false
	}
	track, buf, ok := e.buffers.AdoptNext(next.ID)
	if !ok {
		e.mu.Unlock()
		return false
	}

	wasPlaying := e.state == StatePlaying
	e.graph.Timeline().Detach()
	e.cancelTransitionLocked()
	e.track = track
	e.duration = e.cfg.SampleRate.D(buf.Len())
	e.pausedAt = 0
	if wasPlaying {
		if err := e.startAtLocked(0); err != nil {
			e.state = StateLoaded
		}
	} else {
		e.state = StateLoaded
	}
	dur := e.duration
	playing := e.state == StatePlaying
	e.mu.Unlock()

	log.Debug().Str("track", track.ID).Msg("skipped to preloaded track")
	e.notifier.TrackChange(track.ID)
	e.notifier.State(notify.Change{
		IsPlaying: notify.Bool(playing),
		Position:  notify.Dur(0),
		Duration:  notify.Dur(dur),
	})
	if playing {
		e.record(track)
	}
	return true
}

// Position returns the playhead position derived from the audio clock while
// playing, or the stored offset otherwise.
func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked()
}

// positionLocked derives the position from the sample clock. Caller holds e.mu.
func (e *Engine) positionLocked() time.Duration {
	if e.state != StatePlaying {
		return e.pausedAt
	}
	elapsed := e.graph.Timeline().Now() - e.playbackStart
	if elapsed < 0 {
		elapsed = 0
	}
	pos := e.cfg.SampleRate.D(int(elapsed))
	if pos > e.duration {
		pos = e.duration
	}
	return pos
}

// Duration returns the current track's decoded duration.
func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

// State returns the transport state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CurrentTrack returns the track occupying the current slot.
func (e *Engine) CurrentTrack() (Track, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateStopped {
		return Track{}, false
	}
	return e.track, true
}

// Status returns a consistent transport snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		State:    e.state,
		Position: e.positionLocked(),
		Duration: e.duration,
		Volume:   e.volume,
		Muted:    e.muted,
	}
}
