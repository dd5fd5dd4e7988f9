package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickaudio/brick/internal/engine"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordPlay(ctx, engine.PlayRecord{
		TrackID: "t1", Title: "First", Artist: "A", PlayedAt: base,
	}))
	require.NoError(t, s.RecordPlay(ctx, engine.PlayRecord{
		TrackID: "t2", Title: "Second", Artist: "B", PlayedAt: base.Add(time.Minute),
	}))

	plays, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, plays, 2)

	// Newest first.
	assert.Equal(t, "t2", plays[0].TrackID)
	assert.Equal(t, "Second", plays[0].Title)
	assert.Equal(t, "t1", plays[1].TrackID)
}

func TestRecordPlay_ZeroTimeDefaultsToNow(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordPlay(ctx, engine.PlayRecord{TrackID: "t1"}))

	plays, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, plays, 1)
	assert.WithinDuration(t, time.Now(), plays[0].PlayedAt, time.Minute)
}

func TestRecordPlay_PrunesOldestPastCap(t *testing.T) {
	s := newStore(t)
	s.maxEntries = 3
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordPlay(ctx, engine.PlayRecord{
			TrackID:  fmt.Sprintf("t%d", i),
			PlayedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	plays, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, plays, 3)
	assert.Equal(t, "t4", plays[0].TrackID)
	assert.Equal(t, "t2", plays[2].TrackID, "oldest two rows pruned")
}

func TestPlayCount(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordPlay(ctx, engine.PlayRecord{TrackID: "fav"}))
	}
	require.NoError(t, s.RecordPlay(ctx, engine.PlayRecord{TrackID: "other"}))

	n, err := s.PlayCount(ctx, "fav")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.PlayCount(ctx, "never-played")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOpen_CreatesFileAndDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	s, err := Open(path, 0)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, defaultMaxEntries, s.maxEntries)
	require.NoError(t, s.RecordPlay(context.Background(), engine.PlayRecord{TrackID: "t1"}))

	plays, err := s.Recent(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, plays, 1)
}
