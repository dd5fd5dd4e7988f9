// Package fetch retrieves a track's encoded bytes over HTTP with a hard
// byte-count ceiling, so arbitrarily large files can never be pulled into
// memory for gapless decoding.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// DefaultMaxBytes is the default ceiling on a track's encoded size (800 MB).
const DefaultMaxBytes int64 = 800 * 1024 * 1024

const readChunkSize = 64 * 1024

// ErrTrackTooLarge is returned when a track's encoded size or decoded
// duration exceeds the gapless buffer ceilings. Callers should catch it with
// errors.Is and fall back to a streaming playback path instead of gapless mode.
var ErrTrackTooLarge = errors.New("track too large for gapless buffer; stream instead")

// Fetcher downloads encoded audio bytes with a size ceiling.
type Fetcher struct {
	client   *resty.Client
	maxBytes int64
}

// New creates a Fetcher with the given byte ceiling.
// A ceiling <= 0 falls back to DefaultMaxBytes.
func New(maxBytes int64) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	client := resty.New().
		SetDoNotParseResponse(true).
		SetTimeout(0) // track downloads can be long; cancellation is via ctx
	return &Fetcher{client: client, maxBytes: maxBytes}
}

// MaxBytes returns the configured byte ceiling.
func (f *Fetcher) MaxBytes() int64 { return f.maxBytes }

// Fetch downloads url and returns the encoded bytes as a single contiguous
// buffer. It fails with ErrTrackTooLarge as soon as either the advertised
// Content-Length or the observed byte count exceeds the ceiling; the in-flight
// request is aborted, never drained. Cancelling ctx aborts the request.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()

	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status())
	}

	// Advertised size check: reject before reading a single body byte.
	if cl := resp.RawResponse.ContentLength; cl > f.maxBytes {
		log.Debug().Str("url", url).Int64("content_length", cl).
			Int64("ceiling", f.maxBytes).Msg("rejecting oversize track by Content-Length")
		return nil, fmt.Errorf("fetch %s: advertised %d bytes: %w", url, cl, ErrTrackTooLarge)
	}

	// Stream the body counting bytes, so a missing or lying Content-Length
	// cannot smuggle an oversize file past the ceiling.
	var buf bytes.Buffer
	if cl := resp.RawResponse.ContentLength; cl > 0 {
		buf.Grow(int(cl))
	}
	chunk := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := body.Read(chunk)
		if n > 0 {
			if int64(buf.Len())+int64(n) > f.maxBytes {
				log.Debug().Str("url", url).Int64("ceiling", f.maxBytes).
					Msg("aborting oversize track mid-stream")
				return nil, fmt.Errorf("fetch %s: body exceeds %d bytes: %w", url, f.maxBytes, ErrTrackTooLarge)
			}
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetch %s: read body: %w", url, err)
		}
	}

	log.Debug().Str("url", url).Int("bytes", buf.Len()).
		Dur("elapsed", time.Since(start)).Msg("track fetched")
	return buf.Bytes(), nil
}
