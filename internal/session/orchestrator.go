// Package session drives the fetch → normalize → reconstruct → compile →
// cleanup pipeline for one recording manifest.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"mtsgrab/internal/fetch"
	"mtsgrab/internal/logger"
	"mtsgrab/internal/manifest"
	"mtsgrab/internal/media"
	"mtsgrab/internal/models"
	"mtsgrab/internal/timeline"
)

// Options configures a single session run.
type Options struct {
	// URL is the recording page URL.
	URL string
	// SessionID is the optional sessionId cookie for private recordings.
	SessionID string
	// OutputDir is the root directory; the session writes into a
	// per-recording subdirectory under it.
	OutputDir string
	// MaxDuration truncates the compiled output, in seconds. 0 means no limit.
	MaxDuration float64
	// KeepFiles skips the segment cleanup after a successful compile.
	KeepFiles bool
	// Debug dumps the raw manifest to debug_data.json when no content is found.
	Debug bool
}

// Result reports what a session run produced, including partial-success
// counts when segments were lost to fetch or probe errors.
type Result struct {
	Name       string
	OutputPath string
	// Phase is the phase reached: PhaseDone on success, otherwise the phase
	// that failed.
	Phase Phase

	TotalSegments   int
	FetchedSegments int
	LostSegments    int
	VideoClips      int
	AudioClips      int
}

// Orchestrator owns the lifetime of one session's downloaded segments: they
// are released (swept from the cache) only after the compiled output exists,
// and never while fetches are still in flight.
type Orchestrator struct {
	log      logger.Logger
	client   *manifest.Client
	fetcher  *fetch.Fetcher
	compiler media.Compiler

	// Progress, when set, receives per-segment transfer progress.
	Progress fetch.ProgressFunc
}

// New creates an Orchestrator from its collaborators.
func New(log logger.Logger, client *manifest.Client, fetcher *fetch.Fetcher, compiler media.Compiler) *Orchestrator {
	return &Orchestrator{
		log:      log,
		client:   client,
		fetcher:  fetcher,
		compiler: compiler,
	}
}

// Run executes the full pipeline for one recording. Per-segment failures are
// tolerated and reported in the Result; session-level failures abort with a
// PhaseError carrying the originating cause.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	res := &Result{}

	eventSession, recordFile, err := manifest.ExtractIDs(opts.URL)
	if err != nil {
		return res, o.fail(res, PhaseFetching, err)
	}
	o.log.Infof("Event session: %s, record file: %s", eventSession, recordFile)

	m, err := o.client.FetchManifest(ctx, eventSession, recordFile, opts.SessionID)
	if err != nil {
		return res, o.fail(res, PhaseFetching, err)
	}

	// Normalization validates the total duration; an unusable manifest
	// aborts before any segment fetch.
	refs, totalDuration, err := m.Normalize(o.log)
	if err != nil {
		return res, o.fail(res, PhaseFetching, err)
	}

	name := m.Name
	if name == "" {
		name = "Unnamed_Webinar"
	}
	res.Name = name
	res.TotalSegments = len(refs)

	safeName := SanitizeName(name)
	store, err := fetch.NewStore(filepath.Join(opts.OutputDir, safeName), o.log)
	if err != nil {
		return res, o.fail(res, PhaseFetching, err)
	}
	o.log.Infof("Recording %q: %d segments, %.2fs total, saving to %s", name, len(refs), totalDuration, store.Dir())

	segments, losses, err := o.fetcher.FetchAll(ctx, refs, store, o.Progress)
	if err != nil {
		return res, o.fail(res, PhaseFetching, err)
	}
	res.FetchedSegments = len(segments)
	res.LostSegments = len(losses)
	if len(losses) > 0 {
		o.log.Warnf("Lost %d of %d segments to fetch/probe errors", len(losses), len(refs))
	}

	if len(segments) == 0 {
		if opts.Debug {
			o.dumpManifest(store, m.Raw)
		}
		return res, o.fail(res, PhaseFetching, ErrNoContent)
	}

	videoSlots, audioSlots, err := o.reconstruct(segments, totalDuration, res)
	if err != nil {
		return res, o.fail(res, PhaseReconstructing, err)
	}

	outName := safeName + ".mp4"
	outPath := store.Path(outName)
	o.log.Infof("Compiling %s (%d video slots, %d audio slots)", outName, len(videoSlots), len(audioSlots))

	if err := o.compiler.Compile(ctx, videoSlots, audioSlots, outPath, opts.MaxDuration); err != nil {
		// Downloaded segments stay cached so a retry can skip the fetches.
		return res, o.fail(res, PhaseCompiling, err)
	}
	res.OutputPath = outPath

	res.Phase = PhaseCleaningUp
	if !opts.KeepFiles {
		store.Sweep(map[string]struct{}{outName: {}})
	}

	res.Phase = PhaseDone
	o.log.Infof("Session complete: %s", outPath)
	return res, nil
}

// reconstruct runs the timeline algorithm independently for the video and
// audio subsets, in manifest order so the stable tie-break holds.
func (o *Orchestrator) reconstruct(segments []models.FetchedSegment, totalDuration float64, res *Result) ([]timeline.Slot, []timeline.Slot, error) {
	var videoClips, audioClips []timeline.Clip
	for _, seg := range segments {
		clip := timeline.Clip{
			Path:     seg.LocalPath,
			Start:    seg.Ref.StartOffset,
			Duration: seg.Duration,
			Order:    seg.Ref.Index,
		}
		switch seg.Kind {
		case models.KindVideo:
			videoClips = append(videoClips, clip)
		case models.KindAudio:
			audioClips = append(audioClips, clip)
		}
	}
	res.VideoClips = len(videoClips)
	res.AudioClips = len(audioClips)
	o.log.Infof("Found %d video clips and %d audio clips", len(videoClips), len(audioClips))

	rec := timeline.New(o.log)
	videoSlots, err := rec.Reconstruct(videoClips, totalDuration)
	if err != nil {
		return nil, nil, fmt.Errorf("video timeline: %w", err)
	}
	audioSlots, err := rec.Reconstruct(audioClips, totalDuration)
	if err != nil {
		return nil, nil, fmt.Errorf("audio timeline: %w", err)
	}
	return videoSlots, audioSlots, nil
}

func (o *Orchestrator) fail(res *Result, phase Phase, err error) error {
	res.Phase = phase
	if IsCancelled(err) {
		o.log.Warnf("Session cancelled during %s", phase)
	}
	return &PhaseError{Phase: phase, Err: err}
}

// dumpManifest saves the raw manifest for troubleshooting empty sessions.
func (o *Orchestrator) dumpManifest(store *fetch.Store, raw []byte) {
	path := store.Path("debug_data.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		o.log.Warnf("Could not write debug dump: %v", err)
		return
	}
	o.log.Infof("Debug data saved to %s", path)
}
