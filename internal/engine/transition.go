package engine

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brickaudio/brick/internal/notify"
)

// transition is the state of one scheduled track-to-track handoff. Wall-clock
// timers only arm it and run its bookkeeping; the audible switch itself is
// owned by the timeline at an exact clock sample.
type transition struct {
	armTimer  *time.Timer
	swapTimer *time.Timer
	scheduled bool
	queuedGen uint64
	nextID    string
	startAt   int64 // clock sample of the track boundary
}

// armTransitionLocked starts (or restarts) the arm timer so the next source
// gets scheduled LeadTime before the current track's boundary. Caller holds
// e.mu with state == StatePlaying.
func (e *Engine) armTransitionLocked() {
	e.cancelTransitionLocked()
	remaining := e.duration - e.positionLocked()
	delay := remaining - e.cfg.LeadTime
	if delay < 0 {
		delay = 0
	}
	e.trans = &transition{}
	e.trans.armTimer = time.AfterFunc(delay, e.armFire)
}

// cancelTransitionLocked tears down the pending transition: timers stopped,
// scheduled source dropped. The next-slot buffer is untouched. Caller holds
// e.mu.
func (e *Engine) cancelTransitionLocked() {
	if e.trans == nil {
		return
	}
	if e.trans.armTimer != nil {
		e.trans.armTimer.Stop()
	}
	if e.trans.swapTimer != nil {
		e.trans.swapTimer.Stop()
	}
	if e.trans.scheduled {
		e.graph.Timeline().ClearScheduled()
	}
	e.trans = nil
}

// armFire runs LeadTime before the boundary: it schedules the next source at
// the exact boundary sample and sets the swap timer for the logical handoff.
// Arming happens at most once per track: if the next buffer has not finished
// decoding by the lead trigger, no transition is armed and the current track
// plays to its natural end.
func (e *Engine) armFire() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.state != StatePlaying || e.trans == nil || e.trans.scheduled {
		return
	}

	next, buf, ok := e.buffers.PeekNext()
	if !ok {
		log.Debug().Str("track", e.track.ID).Msg("next track not ready at lead trigger, no transition armed")
		return
	}

	boundary := e.playbackStart + int64(e.cfg.SampleRate.N(e.duration))
	src := buf.Streamer(0, buf.Len())
	e.trans.queuedGen = e.graph.Timeline().ScheduleAt(src, boundary)
	e.trans.nextID = next.ID
	e.trans.startAt = boundary
	e.trans.scheduled = true

	untilBoundary := e.duration - e.positionLocked()
	swapDelay := untilBoundary - e.cfg.HandoffLead
	if swapDelay < 0 {
		swapDelay = 0
	}
	e.trans.swapTimer = time.AfterFunc(swapDelay, e.swapFire)

	log.Debug().
		Str("next", next.ID).
		Int64("boundary_sample", boundary).
		Dur("in", untilBoundary).
		Msg("transition scheduled")
}

// swapFire runs the logical handoff just ahead of the audible switch. The
// switched event from the timeline is the backstop if this timer is late.
func (e *Engine) swapFire() {
	e.mu.Lock()
	if e.closed || e.trans == nil || !e.trans.scheduled {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.performHandoff()
}

// performHandoff moves the engine's bookkeeping onto the scheduled next
// track: the next slot is adopted as current, the clock origin moves to the
// boundary sample, and a new transition is armed for the track after. Safe to
// call from both the swap timer and the switched-event backstop; only the
// first caller acts.
func (e *Engine) performHandoff() {
	e.mu.Lock()
	if e.closed || e.trans == nil || !e.trans.scheduled {
		e.mu.Unlock()
		return
	}
	nextID := e.trans.nextID
	queuedGen := e.trans.queuedGen
	boundary := e.trans.startAt

	track, buf, ok := e.buffers.AdoptNext(nextID)
	if !ok {
		// The next slot changed under the scheduled transition (a late
		// preload supersede). If the stale source is still only queued,
		// dropping it lets the current track play to its natural end. If it
		// already took over at the boundary it is audible with no track
		// backing it, so silence it and stop as a natural end.
		log.Warn().Str("next", nextID).Msg("scheduled track vanished before handoff")
		gen, _, queued := e.graph.Timeline().ScheduledAt()
		promoted := !queued || gen != queuedGen
		e.cancelTransitionLocked()
		if !promoted {
			e.mu.Unlock()
			return
		}
		e.graph.Timeline().Detach()
		e.state = StateLoaded
		e.pausedAt = 0
		dur := e.duration
		e.mu.Unlock()

		e.notifier.State(notify.Change{
			IsPlaying: notify.Bool(false),
			Position:  notify.Dur(dur),
		})
		e.notifier.TrackEnd()
		return
	}

	if e.trans.armTimer != nil {
		e.trans.armTimer.Stop()
	}
	if e.trans.swapTimer != nil {
		e.trans.swapTimer.Stop()
	}
	e.trans = nil

	e.track = track
	e.currentGen = queuedGen
	e.duration = e.cfg.SampleRate.D(buf.Len())
	e.playbackStart = boundary
	e.pausedAt = 0
	e.armTransitionLocked()
	dur := e.duration
	e.mu.Unlock()

	log.Debug().Str("track", track.ID).Msg("gapless handoff complete")
	e.notifier.TrackChange(track.ID)
	e.notifier.State(notify.Change{
		IsPlaying: notify.Bool(true),
		Position:  notify.Dur(0),
		Duration:  notify.Dur(dur),
	})
	e.record(track)
}
