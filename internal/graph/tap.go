package graph

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

// Tap sits at the end of the processing chain, after the EQ, and copies a
// mono mix of everything that passes through into a ring buffer. Visualizers
// read from it and therefore see the actually-audible signal. Consumers must
// not mutate the graph through it.
type Tap struct {
	s    beep.Streamer
	mu   sync.Mutex
	buf  []float64
	pos  int
	size int
}

var _ beep.Streamer = (*Tap)(nil)

func newTap(s beep.Streamer, size int) *Tap {
	return &Tap{s: s, buf: make([]float64, size), size: size}
}

// Stream passes audio through while capturing it.
func (t *Tap) Stream(samples [][2]float64) (int, bool) {
	n, ok := t.s.Stream(samples)
	t.mu.Lock()
	for i := range n {
		t.buf[t.pos] = (samples[i][0] + samples[i][1]) / 2
		t.pos = (t.pos + 1) % t.size
	}
	t.mu.Unlock()
	return n, ok
}

// Err implements beep.Streamer.
func (t *Tap) Err() error { return t.s.Err() }

// Samples returns the most recent n captured samples in chronological order.
func (t *Tap) Samples(n int) []float64 {
	if n > t.size {
		n = t.size
	}
	out := make([]float64, n)
	t.mu.Lock()
	start := (t.pos - n + t.size) % t.size
	for i := range n {
		out[i] = t.buf[(start+i)%t.size]
	}
	t.mu.Unlock()
	return out
}
