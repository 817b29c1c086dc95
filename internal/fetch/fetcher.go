// Package fetch retrieves manifest segments into the local cache and probes
// them for kind and duration.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"mtsgrab/internal/logger"
	"mtsgrab/internal/models"
)

// FetchError is a per-segment network or I/O failure. The session recovers
// by excluding the segment.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ProbeError marks a cached file that could not be opened as either video or
// audio. The segment is dropped with a warning, never fatal.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("could not probe %s as video or audio: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Loss records a segment excluded from reconstruction and why.
type Loss struct {
	Ref models.SegmentRef
	Err error
}

// Prober determines the media kind and duration of a cached file. Probing is
// authoritative over the manifest's kind hint.
type Prober interface {
	Probe(ctx context.Context, path string) (models.Kind, float64, error)
}

// ProgressFunc receives transfer progress for one segment. total is -1 when
// the server sends no Content-Length.
type ProgressFunc func(name string, transferred, total int64)

// probeOutcome is the shared fetch+probe result for one cache file.
type probeOutcome struct {
	kind models.Kind
	dur  float64
	err  error
}

// Fetcher downloads segments with a bounded worker pool.
type Fetcher struct {
	httpClient *http.Client
	log        logger.Logger
	userAgent  string
	workers    int
	prober     Prober

	// RetryAttempts and RetryDelay govern the per-download retry loop.
	RetryAttempts int
	RetryDelay    time.Duration
}

// NewFetcher creates a Fetcher running at most workers downloads in parallel.
func NewFetcher(client *http.Client, log logger.Logger, userAgent string, workers int, prober Prober) *Fetcher {
	if workers < 1 {
		workers = 1
	}
	return &Fetcher{
		httpClient:    client,
		log:           log,
		userAgent:     userAgent,
		workers:       workers,
		prober:        prober,
		RetryAttempts: 3,
		RetryDelay:    250 * time.Millisecond,
	}
}

// FetchAll retrieves every referenced segment exactly once and probes it.
// Per-segment failures become Losses; only cancellation aborts the whole
// call. Results are returned in manifest order regardless of download
// completion order.
func (f *Fetcher) FetchAll(ctx context.Context, refs []models.SegmentRef, store *Store, progress ProgressFunc) ([]models.FetchedSegment, []Loss, error) {
	// Several manifest entries may reference the same URL; fetch and probe
	// each distinct cache file once.
	order := make([]string, 0, len(refs))
	byFile := make(map[string]models.SegmentRef)
	for _, ref := range refs {
		if _, seen := byFile[ref.Filename]; !seen {
			byFile[ref.Filename] = ref
			order = append(order, ref.Filename)
		}
	}

	outcomes := make([]probeOutcome, len(order))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)

	for i, name := range order {
		i, ref := i, byFile[name]
		g.Go(func() error {
			kind, dur, err := f.fetchOne(gctx, ref, store, progress)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				outcomes[i] = probeOutcome{err: err}
				return nil
			}
			outcomes[i] = probeOutcome{kind: kind, dur: dur}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("fetch aborted: %w", err)
	}

	outcomeByFile := make(map[string]probeOutcome, len(order))
	for i, name := range order {
		outcomeByFile[name] = outcomes[i]
	}

	var segments []models.FetchedSegment
	var losses []Loss
	for _, ref := range refs {
		out := outcomeByFile[ref.Filename]
		if out.err != nil {
			f.log.Warnf("Excluding segment %s: %v", ref.Filename, out.err)
			losses = append(losses, Loss{Ref: ref, Err: out.err})
			continue
		}
		segments = append(segments, models.FetchedSegment{
			Ref:       ref,
			LocalPath: store.Path(ref.Filename),
			Duration:  out.dur,
			Kind:      out.kind,
		})
	}

	return segments, losses, nil
}

// fetchOne downloads a single segment unless already cached, then probes it.
func (f *Fetcher) fetchOne(ctx context.Context, ref models.SegmentRef, store *Store, progress ProgressFunc) (models.Kind, float64, error) {
	path := store.Path(ref.Filename)

	if store.Has(ref.Filename) {
		f.log.Infof("File already exists: %s", ref.Filename)
	} else if err := f.download(ctx, ref.URL, path, ref.Filename, progress); err != nil {
		return models.KindUnknown, 0, err
	}

	kind, dur, err := f.prober.Probe(ctx, path)
	if err != nil {
		return models.KindUnknown, 0, &ProbeError{Path: path, Err: err}
	}
	return kind, dur, nil
}

// download streams the resource to the cache path with retries. A failed or
// cancelled attempt never leaves a partial file behind.
func (f *Fetcher) download(ctx context.Context, url, path, name string, progress ProgressFunc) error {
	var lastErr error

	for attempt := 1; attempt <= f.RetryAttempts; attempt++ {
		f.log.Debugf("Downloading %s (attempt %d/%d)", name, attempt, f.RetryAttempts)

		err := f.downloadOnce(ctx, url, path, name, progress)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return &FetchError{URL: url, Err: ctx.Err()}
		}

		lastErr = err
		f.log.Warnf("Download attempt %d failed for %s: %v", attempt, name, err)

		select {
		case <-time.After(f.RetryDelay):
		case <-ctx.Done():
			return &FetchError{URL: url, Err: ctx.Err()}
		}
	}

	return &FetchError{URL: url, Err: fmt.Errorf("after %d attempts: %w", f.RetryAttempts, lastErr)}
}

func (f *Fetcher) downloadOnce(ctx context.Context, url, path, name string, progress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "video/mp4,video/webm,video/ogg,application/octet-stream,*/*;q=0.8")
	req.Header.Set("Range", "bytes=0-")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	total := resp.ContentLength // -1 when unknown
	var transferred int64
	buf := make([]byte, 32*1024)

	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				os.Remove(path)
				return fmt.Errorf("write failed: %w", werr)
			}
			transferred += int64(n)
			if progress != nil {
				progress(name, transferred, total)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			os.Remove(path)
			return fmt.Errorf("read failed: %w", rerr)
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close failed: %w", err)
	}
	if total >= 0 && transferred < total {
		os.Remove(path)
		return fmt.Errorf("short body: got %d of %d bytes", transferred, total)
	}

	f.log.Debugf("Downloaded %s (%d bytes)", name, transferred)
	return nil
}
