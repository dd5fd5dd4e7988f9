package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_Success(t *testing.T) {
	payload := strings.Repeat("x", 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, payload)
	}))
	defer srv.Close()

	f := New(1 << 20)
	got, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte(payload), got)
}

func TestFetch_OversizeContentLength_NoBodyRead(t *testing.T) {
	var bodyReads atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Declare 900 MB against an 800 MB ceiling. The client must bail on
		// the header alone; count how much body it actually pulls.
		w.Header().Set("Content-Length", fmt.Sprint(int64(900*1024*1024)))
		w.WriteHeader(http.StatusOK)
		chunk := make([]byte, 64*1024)
		for {
			n, err := w.Write(chunk)
			bodyReads.Add(int64(n))
			if err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	f := New(800 * 1024 * 1024)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTrackTooLarge), "want ErrTrackTooLarge, got %v", err)
	// Transport-level buffering may accept a little, but nowhere near the body.
	assert.Less(t, bodyReads.Load(), int64(10*1024*1024))
}

func TestFetch_OversizeMidStream_NoContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Chunked response with no Content-Length: the running byte counter
		// is the only guard.
		flusher := w.(http.Flusher)
		chunk := make([]byte, 64*1024)
		for range 64 {
			if _, err := w.Write(chunk); err != nil {
				return
			}
			flusher.Flush()
		}
	}))
	defer srv.Close()

	f := New(1 << 20) // 1 MB ceiling, server sends 4 MB
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTrackTooLarge))
}

func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(0)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTrackTooLarge))
	assert.Contains(t, err.Error(), "500")
}

func TestFetch_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(0)
	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTrackTooLarge))
}

func TestNew_DefaultCeiling(t *testing.T) {
	assert.Equal(t, DefaultMaxBytes, New(0).MaxBytes())
	assert.Equal(t, int64(42), New(42).MaxBytes())
}
