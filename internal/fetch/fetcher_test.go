package fetch_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtsgrab/internal/fetch"
	"mtsgrab/internal/models"
)

// fetchMockLogger is a no-op logger for testing purposes.
type fetchMockLogger struct{}

func (m *fetchMockLogger) Debugf(format string, v ...interface{}) {}
func (m *fetchMockLogger) Infof(format string, v ...interface{})  {}
func (m *fetchMockLogger) Warnf(format string, v ...interface{})  {}
func (m *fetchMockLogger) Errorf(format string, v ...interface{}) {}

// fakeProber reports a fixed kind and duration, or a per-filename error.
type fakeProber struct {
	kind    models.Kind
	dur     float64
	failFor map[string]bool
}

func (p *fakeProber) Probe(ctx context.Context, path string) (models.Kind, float64, error) {
	for name := range p.failFor {
		if strings.HasSuffix(path, name) {
			return models.KindUnknown, 0, fmt.Errorf("unreadable media")
		}
	}
	return p.kind, p.dur, nil
}

func newTestFetcher(prober fetch.Prober, workers int) *fetch.Fetcher {
	f := fetch.NewFetcher(http.DefaultClient, &fetchMockLogger{}, "test-agent", workers, prober)
	f.RetryAttempts = 1
	f.RetryDelay = time.Millisecond
	return f
}

func newStore(t *testing.T) *fetch.Store {
	t.Helper()
	store, err := fetch.NewStore(t.TempDir(), &fetchMockLogger{})
	require.NoError(t, err)
	return store
}

func refFor(url, name string, index int) models.SegmentRef {
	return models.SegmentRef{URL: url, Filename: name, Index: index, StartOffset: float64(index) * 10}
}

func TestFetchAll_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "segment data for ", r.URL.Path)
	}))
	defer server.Close()

	store := newStore(t)
	fetcher := newTestFetcher(&fakeProber{kind: models.KindVideo, dur: 12.5}, 2)

	refs := []models.SegmentRef{
		refFor(server.URL+"/a", "a.mp4", 0),
		refFor(server.URL+"/b", "b.mp4", 1),
	}

	segments, losses, err := fetcher.FetchAll(context.Background(), refs, store, nil)
	require.NoError(t, err)
	assert.Empty(t, losses)
	require.Len(t, segments, 2)

	// Manifest order regardless of download completion order.
	assert.Equal(t, "a.mp4", segments[0].Ref.Filename)
	assert.Equal(t, "b.mp4", segments[1].Ref.Filename)
	assert.Equal(t, models.KindVideo, segments[0].Kind)
	assert.InDelta(t, 12.5, segments[0].Duration, 1e-9)

	assert.True(t, store.Has("a.mp4"))
	assert.True(t, store.Has("b.mp4"))
}

func TestFetchAll_SecondRunSkipsNetwork(t *testing.T) {
	var requestCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		fmt.Fprint(w, "segment data")
	}))
	defer server.Close()

	store := newStore(t)
	fetcher := newTestFetcher(&fakeProber{kind: models.KindAudio, dur: 5}, 1)
	refs := []models.SegmentRef{refFor(server.URL+"/a", "a.mp4", 0)}

	_, _, err := fetcher.FetchAll(context.Background(), refs, store, nil)
	require.NoError(t, err)

	segments, losses, err := fetcher.FetchAll(context.Background(), refs, store, nil)
	require.NoError(t, err)
	assert.Empty(t, losses)
	assert.Len(t, segments, 1)

	assert.Equal(t, int32(1), atomic.LoadInt32(&requestCount), "cached file must skip network I/O")
}

func TestFetchAll_DuplicateURLFetchedOnce(t *testing.T) {
	var requestCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		fmt.Fprint(w, "segment data")
	}))
	defer server.Close()

	store := newStore(t)
	fetcher := newTestFetcher(&fakeProber{kind: models.KindVideo, dur: 5}, 4)
	refs := []models.SegmentRef{
		refFor(server.URL+"/a", "a.mp4", 0),
		refFor(server.URL+"/a", "a.mp4", 1),
	}

	segments, losses, err := fetcher.FetchAll(context.Background(), refs, store, nil)
	require.NoError(t, err)
	assert.Empty(t, losses)
	assert.Len(t, segments, 2, "both manifest entries get a fetched segment")
	assert.Equal(t, int32(1), atomic.LoadInt32(&requestCount))
}

func TestFetchAll_MidStreamFailureLeavesNoFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Promise more bytes than are sent, then cut the connection.
		w.Header().Set("Content-Length", "4096")
		w.Write([]byte("only a few bytes"))
	}))
	defer server.Close()

	store := newStore(t)
	fetcher := newTestFetcher(&fakeProber{kind: models.KindVideo, dur: 5}, 1)
	refs := []models.SegmentRef{refFor(server.URL+"/broken", "broken.mp4", 0)}

	segments, losses, err := fetcher.FetchAll(context.Background(), refs, store, nil)
	require.NoError(t, err, "per-segment failures must not abort the fetch")
	assert.Empty(t, segments)
	require.Len(t, losses, 1)

	var fetchErr *fetch.FetchError
	assert.ErrorAs(t, losses[0].Err, &fetchErr)

	_, statErr := os.Stat(store.Path("broken.mp4"))
	assert.True(t, os.IsNotExist(statErr), "a failed download must not leave a partial cache file")
}

func TestFetchAll_HTTPErrorStatusIsLoss(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	store := newStore(t)
	fetcher := newTestFetcher(&fakeProber{kind: models.KindVideo, dur: 5}, 1)
	refs := []models.SegmentRef{refFor(server.URL+"/denied", "denied.mp4", 0)}

	segments, losses, err := fetcher.FetchAll(context.Background(), refs, store, nil)
	require.NoError(t, err)
	assert.Empty(t, segments)
	require.Len(t, losses, 1)
	assert.False(t, store.Has("denied.mp4"))
}

func TestFetchAll_ProbeFailureIsLossNotFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "segment data")
	}))
	defer server.Close()

	store := newStore(t)
	prober := &fakeProber{kind: models.KindVideo, dur: 8, failFor: map[string]bool{"bad.mp4": true}}
	fetcher := newTestFetcher(prober, 2)

	refs := []models.SegmentRef{
		refFor(server.URL+"/good", "good.mp4", 0),
		refFor(server.URL+"/bad", "bad.mp4", 1),
	}

	segments, losses, err := fetcher.FetchAll(context.Background(), refs, store, nil)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "good.mp4", segments[0].Ref.Filename)

	require.Len(t, losses, 1)
	var probeErr *fetch.ProbeError
	assert.ErrorAs(t, losses[0].Err, &probeErr)
	assert.True(t, store.Has("bad.mp4"), "the unprobeable file stays cached")
}

func TestFetchAll_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "segment data")
	}))
	defer server.Close()

	store := newStore(t)
	fetcher := newTestFetcher(&fakeProber{kind: models.KindVideo, dur: 5}, 1)
	refs := []models.SegmentRef{refFor(server.URL+"/a", "a.mp4", 0)}

	_, _, err := fetcher.FetchAll(ctx, refs, store, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchAll_ProgressWithUnknownTotal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("chunked body"))
		flusher.Flush()
	}))
	defer server.Close()

	store := newStore(t)
	fetcher := newTestFetcher(&fakeProber{kind: models.KindAudio, dur: 3}, 1)
	refs := []models.SegmentRef{refFor(server.URL+"/a", "a.mp4", 0)}

	var sawUnknownTotal atomic.Bool
	progress := func(name string, transferred, total int64) {
		if total < 0 {
			sawUnknownTotal.Store(true)
		}
	}

	_, _, err := fetcher.FetchAll(context.Background(), refs, store, progress)
	require.NoError(t, err)
	assert.True(t, sawUnknownTotal.Load(), "missing Content-Length degrades progress to indeterminate")
}

func TestFetchAll_SlowTransferOutlivesHeaderTimeout(t *testing.T) {
	// The body keeps flowing well past the client's header timeout; only a
	// total request timeout would abort it, and the download client must not
	// carry one.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		for i := 0; i < 6; i++ {
			time.Sleep(30 * time.Millisecond)
			w.Write(make([]byte, 1024))
			flusher.Flush()
		}
	}))
	defer server.Close()

	store := newStore(t)
	fetcher := fetch.NewFetcher(fetch.NewHTTPClient(50*time.Millisecond), &fetchMockLogger{}, "test-agent", 1, &fakeProber{kind: models.KindVideo, dur: 9})
	fetcher.RetryAttempts = 1
	refs := []models.SegmentRef{refFor(server.URL+"/slow", "slow.mp4", 0)}

	segments, losses, err := fetcher.FetchAll(context.Background(), refs, store, nil)
	require.NoError(t, err)
	assert.Empty(t, losses)
	require.Len(t, segments, 1)

	info, err := os.Stat(segments[0].LocalPath)
	require.NoError(t, err)
	assert.EqualValues(t, 6*1024, info.Size())
}
