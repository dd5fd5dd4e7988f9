package graph

import (
	"math"

	"github.com/gopxl/beep/v2"
)

// Default EQ band parameters: a bass shelf, a mid bell and a treble shelf,
// all flat (0 dB) until the user touches them.
const (
	DefaultBassFreq   = 200.0
	DefaultMidFreq    = 1000.0
	DefaultMidQ       = 1.0
	DefaultTrebleFreq = 3200.0

	shelfQ = 0.707
)

type filterShape int

const (
	shapeLowShelf filterShape = iota
	shapePeaking
	shapeHighShelf
)

// biquad is a second-order IIR filter with coefficients from the Audio EQ
// Cookbook. Gain and frequency changes take effect on the next Stream call;
// the pipeline is never rebuilt.
//
// Mutation happens under the speaker lock (engine setters) while Stream runs
// under the same lock, so the fields need no extra synchronization.
type biquad struct {
	s     beep.Streamer
	shape filterShape
	sr    float64

	freq   float64
	q      float64
	gainDB float64

	// per-channel filter state
	x1, x2 [2]float64
	y1, y2 [2]float64

	coeffsValid        bool
	b0, b1, b2, a1, a2 float64
}

func newBiquad(s beep.Streamer, shape filterShape, freq, q float64, sr beep.SampleRate) *biquad {
	return &biquad{s: s, shape: shape, freq: freq, q: q, sr: float64(sr)}
}

func (b *biquad) setGain(dB float64) {
	if dB == b.gainDB {
		return
	}
	b.gainDB = dB
	b.coeffsValid = false
}

func (b *biquad) setParams(freq, q float64) {
	if freq == b.freq && q == b.q {
		return
	}
	b.freq = freq
	b.q = q
	b.coeffsValid = false
	// Parameter jumps invalidate the recursive state; clearing it avoids a
	// transient from coefficients the old state never saw.
	b.x1, b.x2 = [2]float64{}, [2]float64{}
	b.y1, b.y2 = [2]float64{}, [2]float64{}
}

func (b *biquad) calcCoeffs() {
	if b.coeffsValid {
		return
	}
	b.coeffsValid = true

	a := math.Pow(10, b.gainDB/40)
	w0 := 2 * math.Pi * b.freq / b.sr
	sinW0, cosW0 := math.Sin(w0), math.Cos(w0)
	alpha := sinW0 / (2 * b.q)

	var b0, b1, b2, a0, a1, a2 float64
	switch b.shape {
	case shapePeaking:
		b0 = 1 + alpha*a
		b1 = -2 * cosW0
		b2 = 1 - alpha*a
		a0 = 1 + alpha/a
		a1 = -2 * cosW0
		a2 = 1 - alpha/a
	case shapeLowShelf:
		sqA := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) - (a-1)*cosW0 + sqA)
		b1 = 2 * a * ((a - 1) - (a+1)*cosW0)
		b2 = a * ((a + 1) - (a-1)*cosW0 - sqA)
		a0 = (a + 1) + (a-1)*cosW0 + sqA
		a1 = -2 * ((a - 1) + (a+1)*cosW0)
		a2 = (a + 1) + (a-1)*cosW0 - sqA
	case shapeHighShelf:
		sqA := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) + (a-1)*cosW0 + sqA)
		b1 = -2 * a * ((a - 1) + (a+1)*cosW0)
		b2 = a * ((a + 1) + (a-1)*cosW0 - sqA)
		a0 = (a + 1) - (a-1)*cosW0 + sqA
		a1 = 2 * ((a - 1) - (a+1)*cosW0)
		a2 = (a + 1) - (a-1)*cosW0 - sqA
	}

	b.b0 = b0 / a0
	b.b1 = b1 / a0
	b.b2 = b2 / a0
	b.a1 = a1 / a0
	b.a2 = a2 / a0
}

func (b *biquad) Stream(samples [][2]float64) (int, bool) {
	n, ok := b.s.Stream(samples)

	// Flat bands pass through untouched.
	if b.gainDB > -0.1 && b.gainDB < 0.1 {
		return n, ok
	}

	b.calcCoeffs()
	for i := range n {
		for ch := range 2 {
			x := samples[i][ch]
			y := b.b0*x + b.b1*b.x1[ch] + b.b2*b.x2[ch] - b.a1*b.y1[ch] - b.a2*b.y2[ch]
			b.x2[ch] = b.x1[ch]
			b.x1[ch] = x
			b.y2[ch] = b.y1[ch]
			b.y1[ch] = y
			samples[i][ch] = y
		}
	}
	return n, ok
}

func (b *biquad) Err() error { return b.s.Err() }
