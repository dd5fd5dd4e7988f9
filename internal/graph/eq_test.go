package graph

import (
	"math"
	"testing"

	"github.com/gopxl/beep/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sineStreamer generates an endless sine at the given frequency.
type sineStreamer struct {
	freq float64
	sr   float64
	n    int
}

func (s *sineStreamer) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		v := math.Sin(2 * math.Pi * s.freq * float64(s.n) / s.sr)
		samples[i] = [2]float64{v, v}
		s.n++
	}
	return len(samples), true
}

func (s *sineStreamer) Err() error { return nil }

func rms(buf [][2]float64) float64 {
	var sum float64
	for _, s := range buf {
		sum += s[0] * s[0]
	}
	return math.Sqrt(sum / float64(len(buf)))
}

func pumpRMS(s beep.Streamer, samples int) float64 {
	buf := make([][2]float64, samples)
	// Warm up past the filter transient, then measure.
	s.Stream(buf)
	s.Stream(buf)
	return rms(buf)
}

func TestBiquad_FlatGainPassesThrough(t *testing.T) {
	src := &fixedStreamer{samples: 512, value: 0.25}
	f := newBiquad(src, shapePeaking, 1000, 1.0, 44100)

	buf := make([][2]float64, 256)
	n, ok := f.Stream(buf)
	require.True(t, ok)
	require.Equal(t, 256, n)
	for i := range n {
		assert.Equal(t, 0.25, buf[i][0], "flat EQ must be bit-exact passthrough")
	}
}

func TestBiquad_PeakingBoostRaisesBandLevel(t *testing.T) {
	const sr = 44100
	flat := pumpRMS(newBiquad(&sineStreamer{freq: 1000, sr: sr}, shapePeaking, 1000, 1.0, sr), 8192)

	boosted := newBiquad(&sineStreamer{freq: 1000, sr: sr}, shapePeaking, 1000, 1.0, sr)
	boosted.setGain(6)
	got := pumpRMS(boosted, 8192)

	// +6 dB at the bell's center is close to a 2x amplitude gain.
	assert.InDelta(t, 2.0, got/flat, 0.15)
}

func TestBiquad_PeakingCutLowersBandLevel(t *testing.T) {
	const sr = 44100
	flat := pumpRMS(newBiquad(&sineStreamer{freq: 1000, sr: sr}, shapePeaking, 1000, 1.0, sr), 8192)

	cut := newBiquad(&sineStreamer{freq: 1000, sr: sr}, shapePeaking, 1000, 1.0, sr)
	cut.setGain(-6)
	got := pumpRMS(cut, 8192)

	assert.InDelta(t, 0.5, got/flat, 0.1)
}

func TestBiquad_LowShelfBoostsBassLeavesTreble(t *testing.T) {
	const sr = 44100

	bass := newBiquad(&sineStreamer{freq: 50, sr: sr}, shapeLowShelf, 200, shelfQ, sr)
	bass.setGain(6)
	bassFlat := pumpRMS(newBiquad(&sineStreamer{freq: 50, sr: sr}, shapeLowShelf, 200, shelfQ, sr), 16384)
	assert.Greater(t, pumpRMS(bass, 16384)/bassFlat, 1.7)

	treble := newBiquad(&sineStreamer{freq: 10000, sr: sr}, shapeLowShelf, 200, shelfQ, sr)
	treble.setGain(6)
	trebleFlat := pumpRMS(newBiquad(&sineStreamer{freq: 10000, sr: sr}, shapeLowShelf, 200, shelfQ, sr), 8192)
	assert.InDelta(t, 1.0, pumpRMS(treble, 8192)/trebleFlat, 0.1)
}

func TestBiquad_HighShelfBoostsTrebleLeavesBass(t *testing.T) {
	const sr = 44100

	treble := newBiquad(&sineStreamer{freq: 10000, sr: sr}, shapeHighShelf, 3200, shelfQ, sr)
	treble.setGain(6)
	trebleFlat := pumpRMS(newBiquad(&sineStreamer{freq: 10000, sr: sr}, shapeHighShelf, 3200, shelfQ, sr), 8192)
	assert.Greater(t, pumpRMS(treble, 8192)/trebleFlat, 1.7)

	bass := newBiquad(&sineStreamer{freq: 100, sr: sr}, shapeHighShelf, 3200, shelfQ, sr)
	bass.setGain(6)
	bassFlat := pumpRMS(newBiquad(&sineStreamer{freq: 100, sr: sr}, shapeHighShelf, 3200, shelfQ, sr), 16384)
	assert.InDelta(t, 1.0, pumpRMS(bass, 16384)/bassFlat, 0.1)
}

func TestBiquad_SetParamsClearsState(t *testing.T) {
	f := newBiquad(&sineStreamer{freq: 1000, sr: 44100}, shapePeaking, 1000, 1.0, 44100)
	f.setGain(6)
	pumpRMS(f, 1024)

	f.setParams(500, 2.0)
	assert.Equal(t, [2]float64{}, f.y1)
	assert.Equal(t, [2]float64{}, f.y2)
	assert.Equal(t, 500.0, f.freq)
	assert.Equal(t, 2.0, f.q)
}
