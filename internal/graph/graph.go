// Package graph owns the fixed audio processing chain and the sample clock.
//
// The chain is built once per engine and reused for every track:
//
//	[Timeline] -> [Volume] -> [Bass shelf] -> [Mid peak] -> [Treble shelf] -> [Tap] -> [Speaker]
//
// The timeline is the clock and switchboard; everything downstream is
// stateless per-sample processing mutated in place by volume/EQ calls.
package graph

import (
	"fmt"
	"math"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

const tapSize = 4096

// Graph is the engine's singleton signal chain.
type Graph struct {
	sampleRate beep.SampleRate
	timeline   *Timeline
	volume     *effects.Volume
	bass       *biquad
	mid        *biquad
	treble     *biquad
	tap        *Tap
	started    bool
}

// New builds the chain without touching the audio device. Call Start to bind
// it to the speaker.
func New(sampleRate beep.SampleRate) *Graph {
	t := newTimeline()
	vol := &effects.Volume{Streamer: t, Base: 2, Volume: 0}
	bass := newBiquad(vol, shapeLowShelf, DefaultBassFreq, shelfQ, sampleRate)
	mid := newBiquad(bass, shapePeaking, DefaultMidFreq, DefaultMidQ, sampleRate)
	treble := newBiquad(mid, shapeHighShelf, DefaultTrebleFreq, shelfQ, sampleRate)
	tap := newTap(treble, tapSize)

	return &Graph{
		sampleRate: sampleRate,
		timeline:   t,
		volume:     vol,
		bass:       bass,
		mid:        mid,
		treble:     treble,
		tap:        tap,
	}
}

// Start initializes the audio device and begins rendering the chain. Failure
// means the host has no usable audio output, which is fatal to the engine.
func (g *Graph) Start() error {
	if g.started {
		return nil
	}
	if err := speaker.Init(g.sampleRate, g.sampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("init audio output: %w", err)
	}
	speaker.Play(g.tap)
	g.started = true
	log.Debug().Int("sample_rate", int(g.sampleRate)).Msg("audio graph started")
	return nil
}

// Close detaches the chain from the speaker. The graph is unusable afterward.
func (g *Graph) Close() {
	if g.started {
		speaker.Clear()
		g.started = false
	}
	g.timeline.Detach()
	g.timeline.ClearScheduled()
}

// SampleRate returns the graph's render rate.
func (g *Graph) SampleRate() beep.SampleRate { return g.sampleRate }

// Timeline returns the clock/switchboard at the root of the chain.
func (g *Graph) Timeline() *Timeline { return g.timeline }

// Tap returns the post-EQ analysis tap for external visualization.
func (g *Graph) Tap() *Tap { return g.tap }

// Output returns the outermost streamer of the chain. Tests pump it directly
// instead of going through the audio device.
func (g *Graph) Output() beep.Streamer { return g.tap }

// SetLevel applies a linear volume level in [0, 1] to the gain stage.
func (g *Graph) SetLevel(level float64) {
	speaker.Lock()
	g.volume.Volume = levelToVolume(level)
	speaker.Unlock()
}

// SetSilent mutes or unmutes the gain stage without touching the level.
func (g *Graph) SetSilent(silent bool) {
	speaker.Lock()
	g.volume.Silent = silent
	speaker.Unlock()
}

// SetEQGains sets the three band gains in dB.
func (g *Graph) SetEQGains(bassDB, midDB, trebleDB float64) {
	speaker.Lock()
	g.bass.setGain(bassDB)
	g.mid.setGain(midDB)
	g.treble.setGain(trebleDB)
	speaker.Unlock()
}

// SetEQParams retunes the band frequencies and the mid bell's Q. Gains are
// preserved. Non-positive values leave the corresponding parameter unchanged.
func (g *Graph) SetEQParams(bassFreq, midFreq, midQ, trebleFreq float64) {
	speaker.Lock()
	if bassFreq > 0 {
		g.bass.setParams(bassFreq, shelfQ)
	}
	if midFreq > 0 || midQ > 0 {
		f, q := g.mid.freq, g.mid.q
		if midFreq > 0 {
			f = midFreq
		}
		if midQ > 0 {
			q = midQ
		}
		g.mid.setParams(f, q)
	}
	if trebleFreq > 0 {
		g.treble.setParams(trebleFreq, shelfQ)
	}
	speaker.Unlock()
}

// levelToVolume converts a linear 0..1 level to beep's base-2 volume scale:
// 1.0 -> 0 (unity), 0.5 -> -1 (half), 0 -> -10 (inaudible).
func levelToVolume(level float64) float64 {
	if level <= 0 {
		return -10
	}
	if level >= 1 {
		return 0
	}
	return math.Log2(level)
}
