// Package decode turns a track's encoded bytes into an in-memory PCM buffer
// at the engine's sample rate, enforcing a hard ceiling on decoded duration.
package decode

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog/log"

	"github.com/brickaudio/brick/internal/fetch"
)

// DefaultMaxDuration is the default ceiling on a decoded track's duration.
const DefaultMaxDuration = 4 * time.Hour

// Decoder decodes encoded audio bytes into beep buffers.
type Decoder struct {
	sampleRate  beep.SampleRate
	maxDuration time.Duration
}

// New creates a Decoder producing buffers at the given sample rate.
// A maxDuration <= 0 falls back to DefaultMaxDuration.
func New(sampleRate beep.SampleRate, maxDuration time.Duration) *Decoder {
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}
	return &Decoder{sampleRate: sampleRate, maxDuration: maxDuration}
}

// SampleRate returns the rate all decoded buffers are produced at.
func (d *Decoder) SampleRate() beep.SampleRate { return d.sampleRate }

// Decode sniffs the container format, decodes the full track into memory and
// resamples it to the decoder's rate. Tracks longer than the duration ceiling
// fail with fetch.ErrTrackTooLarge and are never stored.
func (d *Decoder) Decode(data []byte) (*beep.Buffer, error) {
	streamer, format, err := openStreamer(data)
	if err != nil {
		return nil, err
	}
	defer streamer.Close()

	// Seekable decoders report their length up front; reject before decoding
	// a single sample.
	srcMax := format.SampleRate.N(d.maxDuration)
	if streamer.Len() > srcMax {
		return nil, fmt.Errorf("decode: %s at %d Hz: %w",
			format.SampleRate.D(streamer.Len()), format.SampleRate, fetch.ErrTrackTooLarge)
	}

	var src beep.Streamer = streamer
	if format.SampleRate != d.sampleRate {
		src = beep.Resample(4, format.SampleRate, d.sampleRate, streamer)
	}

	// Take one sample past the ceiling so a decoder that underreports Len
	// still cannot grow the buffer unbounded.
	maxSamples := d.sampleRate.N(d.maxDuration)
	buf := beep.NewBuffer(beep.Format{
		SampleRate:  d.sampleRate,
		NumChannels: 2,
		Precision:   format.Precision,
	})
	buf.Append(beep.Take(maxSamples+1, src))
	if buf.Len() > maxSamples {
		return nil, fmt.Errorf("decode: exceeds %s: %w", d.maxDuration, fetch.ErrTrackTooLarge)
	}

	log.Debug().
		Int("samples", buf.Len()).
		Dur("duration", d.sampleRate.D(buf.Len())).
		Msg("track decoded")
	return buf, nil
}

// openStreamer picks a decoder from the leading magic bytes. URL extensions
// are not trusted; remote tracks frequently carry none.
func openStreamer(data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	if len(data) < 4 {
		return nil, beep.Format{}, fmt.Errorf("decode: %d bytes is not an audio file", len(data))
	}
	r := newByteReadCloser(data)
	switch {
	case bytes.HasPrefix(data, []byte("fLaC")):
		return flac.Decode(r)
	case bytes.HasPrefix(data, []byte("OggS")):
		return vorbis.Decode(r)
	case bytes.HasPrefix(data, []byte("RIFF")):
		return wav.Decode(r)
	case bytes.HasPrefix(data, []byte("ID3")) || (data[0] == 0xFF && data[1]&0xE0 == 0xE0):
		return mp3.Decode(r)
	default:
		return nil, beep.Format{}, fmt.Errorf("decode: unrecognized audio format (magic %x)", data[:4])
	}
}

type byteReadCloser struct {
	*bytes.Reader
}

func newByteReadCloser(data []byte) *byteReadCloser {
	return &byteReadCloser{Reader: bytes.NewReader(data)}
}

func (*byteReadCloser) Close() error { return nil }

var _ io.ReadSeekCloser = (*byteReadCloser)(nil)
