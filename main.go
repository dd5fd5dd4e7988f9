// Command brick plays a list of track URLs back to back with gapless
// transitions. It is the reference front end for the playback engine: each
// upcoming track is preloaded while the current one plays, and the handoff
// between them is scheduled on the audio clock.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/brickaudio/brick/internal/config"
	"github.com/brickaudio/brick/internal/engine"
	"github.com/brickaudio/brick/internal/history"
	"github.com/brickaudio/brick/internal/notify"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <url> [url ...]\n", os.Args[0])
		os.Exit(2)
	}

	if err := run(os.Args[1:]); err != nil {
		log.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

func run(urls []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.LogLevel)

	engCfg := cfg.GetEngineConfig()
	opts := []engine.Option{}

	if cfg.HistoryEnabled() {
		histCfg := cfg.GetHistoryConfig()
		store, err := history.Open(histCfg.Path, histCfg.MaxEntries)
		if err != nil {
			// History is an extra, not a requirement.
			log.Warn().Err(err).Msg("history disabled")
		} else {
			defer store.Close()
			opts = append(opts, engine.WithRecorder(store))
		}
	}

	eng, err := engine.New(engine.Config{
		SampleRate:       beep.SampleRate(engCfg.SampleRate),
		LeadTime:         engCfg.LeadTime(),
		HandoffLead:      engCfg.HandoffLead(),
		TickInterval:     engCfg.PositionTick(),
		MaxTrackBytes:    int64(engCfg.MaxTrackMB) * 1024 * 1024,
		MaxTrackDuration: time.Duration(engCfg.MaxTrackHours) * time.Hour,
		Volume:           engCfg.Volume,
	}, opts...)
	if err != nil {
		return err
	}
	defer eng.Close()

	eqCfg := cfg.GetEQConfig()
	eng.SetAdvancedEQ(eqCfg.BassFreq, eqCfg.MidFreq, eqCfg.MidQ, eqCfg.TrebleFreq)
	eng.SetEQ(eqCfg.BassDB, eqCfg.MidDB, eqCfg.TrebleDB)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return playAll(ctx, eng, urls)
}

// playAll plays the urls in order. The track after the current one is always
// preloading; transitions between consecutive tracks are handled inside the
// engine, so this loop only reacts to track changes and the final end.
func playAll(ctx context.Context, eng *engine.Engine, urls []string) error {
	tracks := make([]engine.Track, len(urls))
	for i, u := range urls {
		tracks[i] = engine.Track{ID: trackID(u, i), URL: u}
	}
	index := indexByID(tracks)

	changed := make(chan string, 4)
	finished := make(chan struct{}, 1)
	eng.SetCallbacks(notify.Callbacks{
		OnTrackChange: func(id string) { changed <- id },
		OnTrackEnd: func() {
			select {
			case finished <- struct{}{}:
			default:
			}
		},
		OnPreloadStateChange: func(ev notify.PreloadEvent) {
			log.Debug().Str("track", ev.TrackID).Str("status", string(ev.Status)).Str("msg", ev.Message).Msg("preload")
		},
	})

	if err := eng.LoadTrack(ctx, tracks[0]); err != nil {
		return err
	}
	if err := eng.Play(); err != nil {
		return err
	}
	log.Info().Str("track", tracks[0].ID).Msg("playing")
	preloadAfter(ctx, eng, tracks, 0)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("interrupted")
			return nil

		case id := <-changed:
			i, ok := index[id]
			if !ok {
				continue
			}
			log.Info().Str("track", id).Msg("playing")
			preloadAfter(ctx, eng, tracks, i)

		case <-finished:
			// End of the last track, or a gap the engine could not bridge
			// (e.g. the preload failed). Resume the list if anything is left.
			cur, ok := eng.CurrentTrack()
			if !ok {
				return nil
			}
			i := index[cur.ID]
			if i+1 >= len(tracks) {
				log.Info().Msg("playlist finished")
				return nil
			}
			if err := eng.LoadTrack(ctx, tracks[i+1]); err != nil {
				log.Error().Err(err).Str("track", tracks[i+1].ID).Msg("skipping unplayable track")
				continue
			}
			if err := eng.Play(); err != nil {
				return err
			}
			log.Info().Str("track", tracks[i+1].ID).Msg("playing")
			preloadAfter(ctx, eng, tracks, i+1)
		}
	}
}

// preloadAfter kicks off the preload of the track following position i, if any.
func preloadAfter(ctx context.Context, eng *engine.Engine, tracks []engine.Track, i int) {
	if i+1 >= len(tracks) {
		return
	}
	next := tracks[i+1]
	go func() {
		if err := eng.PreloadNextTrack(ctx, next); err != nil {
			log.Warn().Err(err).Str("track", next.ID).Msg("preload failed")
		}
	}()
}

func indexByID(tracks []engine.Track) map[string]int {
	m := make(map[string]int, len(tracks))
	for i, t := range tracks {
		m[t.ID] = i
	}
	return m
}

// trackID derives a stable id from the URL's file name, prefixed with the
// playlist position so repeated URLs stay distinct.
func trackID(url string, i int) string {
	name := url
	if idx := strings.LastIndex(name, "/"); idx >= 0 && idx < len(name)-1 {
		name = name[idx+1:]
	}
	if name == "" {
		return fmt.Sprintf("track-%d", i+1)
	}
	return fmt.Sprintf("%d-%s", i+1, name)
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(lvl)
}
