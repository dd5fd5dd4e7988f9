package engine

import "github.com/brickaudio/brick/internal/notify"

// SetVolume sets the output level, clamped to [0, 1]. Volume is a property of
// the shared gain stage, so it survives track changes and transitions.
func (e *Engine) SetVolume(level float64) {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	e.mu.Lock()
	e.volume = level
	e.mu.Unlock()
	e.graph.SetLevel(level)
	e.notifier.State(notify.Change{Volume: notify.Float(level)})
}

// Volume returns the current output level.
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// SetMuted silences or restores the output without losing the level.
func (e *Engine) SetMuted(muted bool) {
	e.mu.Lock()
	e.muted = muted
	e.mu.Unlock()
	e.graph.SetSilent(muted)
}

// Muted reports whether the output is muted.
func (e *Engine) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

// SetEQ sets the three band gains in dB. The bands sit after the gain stage
// and before the analysis tap, so visualizers see the equalized signal.
func (e *Engine) SetEQ(bassDB, midDB, trebleDB float64) {
	e.graph.SetEQGains(bassDB, midDB, trebleDB)
}

// SetAdvancedEQ retunes the band frequencies and the mid bell's width.
// Non-positive values leave the corresponding parameter unchanged.
func (e *Engine) SetAdvancedEQ(bassFreq, midFreq, midQ, trebleFreq float64) {
	e.graph.SetEQParams(bassFreq, midFreq, midQ, trebleFreq)
}
