package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog/log"

	"github.com/brickaudio/brick/internal/buffers"
	"github.com/brickaudio/brick/internal/decode"
	"github.com/brickaudio/brick/internal/fetch"
)

// trackLoader is the production fetch+decode pipeline behind the buffer
// manager. Tracks without a URL go through the resolver first, so cloud
// catalog entries and direct file URLs take the same path afterwards.
type trackLoader struct {
	fetcher  *fetch.Fetcher
	decoder  *decode.Decoder
	resolver StreamURLResolver
}

var _ buffers.Loader = (*trackLoader)(nil)

func (l *trackLoader) LoadTrack(ctx context.Context, t buffers.Track) (*beep.Buffer, error) {
	url := t.URL
	if url == "" {
		if l.resolver == nil {
			return nil, errors.New("track has no URL and no resolver is configured")
		}
		resolved, err := l.resolver.ResolveStreamURL(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve stream url for %s: %w", t.ID, err)
		}
		url = resolved
	}

	data, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	buf, err := l.decoder.Decode(data)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("track", t.ID).
		Int("bytes", len(data)).
		Int("samples", buf.Len()).
		Msg("track decoded")
	return buf, nil
}
