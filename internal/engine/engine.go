// Package engine is the gapless playback engine: it decodes whole tracks
// into memory, schedules sample-accurate transitions between consecutive
// tracks on the audio clock, and exposes the play/pause/seek/volume/EQ
// transport surface to the application's orchestration layer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog/log"

	"github.com/brickaudio/brick/internal/buffers"
	"github.com/brickaudio/brick/internal/decode"
	"github.com/brickaudio/brick/internal/fetch"
	"github.com/brickaudio/brick/internal/graph"
	"github.com/brickaudio/brick/internal/notify"
)

// Track identifies an audio track; identity is the ID.
type Track = buffers.Track

// ErrTrackTooLarge re-exports the oversize sentinel so callers can catch it
// and fall back to streaming playback for files that do not fit the gapless
// in-memory pipeline.
var ErrTrackTooLarge = fetch.ErrTrackTooLarge

// ErrNoTrackLoaded is returned by Play when no current buffer exists.
var ErrNoTrackLoaded = errors.New("no track loaded")

// ErrClosed is returned by operations on a destroyed engine.
var ErrClosed = errors.New("engine is closed")

// State is the transport state machine.
type State int

const (
	// StateStopped means no buffer is loaded.
	StateStopped State = iota
	// StateLoaded means a buffer is present but not playing.
	StateLoaded
	// StatePlaying means the current source is attached and sounding.
	StatePlaying
	// StatePaused means a buffer is present and an offset is stored.
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateLoaded:
		return "loaded"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Status is a point-in-time transport snapshot.
type Status struct {
	State    State
	Position time.Duration
	Duration time.Duration
	Volume   float64
	Muted    bool
}

// StreamURLResolver resolves a playable URL for a track that carries none.
// Implemented by the application's catalog layer.
type StreamURLResolver interface {
	ResolveStreamURL(ctx context.Context, trackID string) (string, error)
}

// PlayRecord describes one playback start for the recently-played recorder.
type PlayRecord struct {
	TrackID  string
	Title    string
	Artist   string
	CoverURL string
	URL      string
	PlayedAt time.Time
}

// PlayRecorder is invoked, best-effort, whenever a track begins playing.
type PlayRecorder interface {
	RecordPlay(ctx context.Context, rec PlayRecord) error
}

// Config tunes the engine. Zero values take the documented defaults.
type Config struct {
	SampleRate       beep.SampleRate // render rate, default 44100
	LeadTime         time.Duration   // arm transitions this early, default 2s
	HandoffLead      time.Duration   // run logical handoff this early, default 100ms
	TickInterval     time.Duration   // position re-publish interval, default 200ms
	MaxTrackBytes    int64           // encoded size ceiling, default 800 MB
	MaxTrackDuration time.Duration   // decoded duration ceiling, default 4h
	Volume           float64         // initial level, default 1.0
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 44100
	}
	if c.LeadTime <= 0 {
		c.LeadTime = 2 * time.Second
	}
	if c.HandoffLead <= 0 {
		c.HandoffLead = 100 * time.Millisecond
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 200 * time.Millisecond
	}
	if c.MaxTrackBytes <= 0 {
		c.MaxTrackBytes = fetch.DefaultMaxBytes
	}
	if c.MaxTrackDuration <= 0 {
		c.MaxTrackDuration = decode.DefaultMaxDuration
	}
	if c.Volume <= 0 || c.Volume > 1 {
		c.Volume = 1.0
	}
	return c
}

// Option customizes engine construction.
type Option func(*Engine)

// WithResolver installs a stream-URL resolver for tracks without a URL.
func WithResolver(r StreamURLResolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithRecorder installs a recently-played recorder.
func WithRecorder(r PlayRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// withLoader swaps the fetch+decode pipeline; tests feed PCM directly.
func withLoader(l buffers.Loader) Option {
	return func(e *Engine) { e.loader = l }
}

// withoutOutput skips binding the graph to the audio device; tests pump the
// graph output themselves.
func withoutOutput() Option {
	return func(e *Engine) { e.output = false }
}

// Engine is the gapless playback engine. All transport methods are safe for
// concurrent use; long-running work (fetch, decode) only ever happens in
// LoadTrack and PreloadNextTrack.
type Engine struct {
	cfg      Config
	graph    *graph.Graph
	buffers  *buffers.Manager
	notifier *notify.Notifier
	loader   buffers.Loader
	resolver StreamURLResolver
	recorder PlayRecorder
	output   bool

	mu            sync.Mutex
	state         State
	track         Track
	currentGen    uint64 // timeline generation of the authoritative source
	playbackStart int64  // clock sample corresponding to track position 0
	pausedAt      time.Duration
	duration      time.Duration
	volume        float64
	muted         bool
	trans         *transition
	closed        bool

	done chan struct{}
}

// New builds the audio graph, binds it to the audio device and starts the
// engine's event and tick loops. It fails when the host has no usable audio
// output; callers must then not offer gapless playback at all.
func New(cfg Config, opts ...Option) (*Engine, error) {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:      cfg,
		graph:    graph.New(cfg.SampleRate),
		notifier: notify.New(),
		output:   true,
		state:    StateStopped,
		volume:   cfg.Volume,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.loader == nil {
		e.loader = &trackLoader{
			fetcher:  fetch.New(cfg.MaxTrackBytes),
			decoder:  decode.New(cfg.SampleRate, cfg.MaxTrackDuration),
			resolver: e.resolver,
		}
	}
	e.buffers = buffers.New(e.loader, e.notifier)

	if e.output {
		if err := e.graph.Start(); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}
	e.graph.SetLevel(e.volume)

	go e.drainEvents()
	go e.tickLoop()
	return e, nil
}

// SetCallbacks registers the single subscriber for state, track and preload
// events. Delivery is synchronous and panic-guarded.
func (e *Engine) SetCallbacks(cb notify.Callbacks) {
	e.notifier.SetCallbacks(cb)
}

// Analyser returns the post-EQ analysis tap shared with visualizers.
// Callers must not mutate the graph through it.
func (e *Engine) Analyser() *graph.Tap {
	return e.graph.Tap()
}

// LoadTrack replaces the current track: it stops playback, discards the next
// slot, cancels any in-flight preload and synchronously fetches and decodes
// t. On failure the engine is left in a defined no-current-buffer state and
// the error is both returned and pushed through the notifier.
func (e *Engine) LoadTrack(ctx context.Context, t Track) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.cancelTransitionLocked()
	e.graph.Timeline().ClearScheduled()
	e.graph.Timeline().Detach()
	e.state = StateStopped
	e.track = Track{}
	e.duration = 0
	e.pausedAt = 0
	// Empty the slots before releasing the lock so a concurrent Play cannot
	// catch and restart the buffer of the track being replaced.
	e.buffers.Clear()
	e.mu.Unlock()

	buf, err := e.buffers.Load(ctx, t)
	if err != nil {
		log.Error().Err(err).Str("track", t.ID).Msg("load failed")
		e.notifier.State(notify.Change{
			IsPlaying: notify.Bool(false),
			Duration:  notify.Dur(0),
			Err:       err,
		})
		return err
	}

	e.mu.Lock()
	e.track = t
	e.duration = e.cfg.SampleRate.D(buf.Len())
	e.pausedAt = 0
	e.state = StateLoaded
	dur := e.duration
	e.mu.Unlock()

	log.Debug().Str("track", t.ID).Dur("duration", dur).Msg("track loaded")
	e.notifier.State(notify.Change{
		IsPlaying: notify.Bool(false),
		Position:  notify.Dur(0),
		Duration:  notify.Dur(dur),
	})
	return nil
}

// PreloadNextTrack fetches and decodes t into the next slot so the upcoming
// transition can be gapless. It blocks until done; run it concurrently with
// playback. Failures are reported via the preload callback and never
// interrupt the current track.
func (e *Engine) PreloadNextTrack(ctx context.Context, t Track) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	// A transition already scheduled for a different track is now stale:
	// unschedule it before its source can sound, and restart the lead timer
	// so the replacement can still be armed in time.
	if e.state == StatePlaying && e.trans != nil && e.trans.scheduled && e.trans.nextID != t.ID {
		e.armTransitionLocked()
	}
	e.mu.Unlock()
	return e.buffers.PreloadNext(ctx, t)
}

// Close stops all sources, cancels timers and in-flight fetches and releases
// the audio graph. The engine is unusable afterward.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.cancelTransitionLocked()
	e.state = StateStopped
	e.mu.Unlock()

	close(e.done)
	e.buffers.Clear()
	e.graph.Close()
	return nil
}

// drainEvents consumes timeline events. The audio callback never blocks on
// this goroutine; events carry generations so stale sources are ignored
// structurally instead of via suppression flags.
func (e *Engine) drainEvents() {
	events := e.graph.Timeline().Events()
	for {
		select {
		case <-e.done:
			return
		case ev := <-events:
			e.handleEvent(ev)
		}
	}
}

// tickLoop re-publishes the derived position while playing so observers can
// render a smoothly advancing progress indicator without polling.
func (e *Engine) tickLoop() {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.mu.Lock()
			playing := e.state == StatePlaying
			pos := e.positionLocked()
			e.mu.Unlock()
			if playing {
				e.notifier.State(notify.Change{Position: notify.Dur(pos)})
			}
		}
	}
}

func (e *Engine) handleEvent(ev graph.Event) {
	switch ev.Kind {
	case graph.EventSwitched:
		e.handleSwitched(ev)
	case graph.EventEnded:
		e.handleEnded(ev)
	}
}

// handleSwitched is the backstop for the logical handoff: if the wall-clock
// swap timer has not run by the time the audible switch happens, the
// bookkeeping is performed here so it never lags the sound.
func (e *Engine) handleSwitched(ev graph.Event) {
	e.mu.Lock()
	if e.trans == nil || !e.trans.scheduled || ev.Gen != e.trans.queuedGen {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.performHandoff()
}

// handleEnded reacts to a source playing to natural exhaustion. Events from
// stale generations (manual stops, replaced tracks) are ignored; a current
// source ending while a transition is armed is owned by the scheduled switch.
func (e *Engine) handleEnded(ev graph.Event) {
	e.mu.Lock()
	if ev.Gen != e.currentGen || e.state != StatePlaying {
		e.mu.Unlock()
		return
	}
	if e.trans != nil && e.trans.scheduled {
		e.mu.Unlock()
		return
	}
	// Genuine end-of-track with nothing queued: stop, keep the buffer so the
	// caller may replay, and let the orchestration layer decide what's next.
	e.cancelTransitionLocked()
	e.state = StateLoaded
	e.pausedAt = 0
	dur := e.duration
	trackID := e.track.ID
	e.mu.Unlock()

	log.Debug().Str("track", trackID).Msg("track ended")
	e.notifier.State(notify.Change{
		IsPlaying: notify.Bool(false),
		Position:  notify.Dur(dur),
	})
	e.notifier.TrackEnd()
}

// record reports a playback start to the recorder without blocking transport.
func (e *Engine) record(t Track) {
	if e.recorder == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.recorder.RecordPlay(ctx, PlayRecord{
			TrackID:  t.ID,
			URL:      t.URL,
			PlayedAt: time.Now(),
		}); err != nil {
			log.Error().Err(err).Str("track", t.ID).Msg("recording play failed")
		}
	}()
}
