// Package timeline reconstructs a single continuous channel timeline from
// independently recorded segments with gaps, overlaps and irregular start
// offsets.
package timeline

import (
	"fmt"
	"sort"

	"mtsgrab/internal/logger"
)

// Epsilon guards float comparisons so that fractional start offsets do not
// produce zero-length filler or content slots.
const Epsilon = 1e-6

// Clip is one probed media segment placed on the session timeline.
type Clip struct {
	// Path is the local file holding the clip's media.
	Path string
	// Start is the clip's start offset on the session timeline, in seconds.
	Start float64
	// Duration is the probed duration of the clip, in seconds.
	Duration float64
	// Order is the clip's manifest position, the stable tie-break for clips
	// sharing a start offset.
	Order int
}

// Slot is one contiguous interval of a reconstructed channel. A reconstructed
// channel is a sorted, gap-free sequence of slots covering [0, totalDuration].
type Slot struct {
	Start float64
	End   float64
	// Clip is the content backing this slot, nil for filler (blank frame or
	// silence, rendered by the compiler).
	Clip *Clip
	// ClipOffset is how many seconds of the clip's head were truncated by
	// the overlap policy; playback of this slot begins that far into the
	// source file.
	ClipOffset float64
}

// IsFiller reports whether the slot carries no segment content.
func (s Slot) IsFiller() bool { return s.Clip == nil }

// Duration returns the slot length in seconds.
func (s Slot) Duration() float64 { return s.End - s.Start }

// Reconstructor computes gap-and-overlap-resolved slot sequences. It is run
// once per channel (video and audio independently).
type Reconstructor struct {
	log logger.Logger
}

// New creates a Reconstructor.
func New(log logger.Logger) *Reconstructor {
	return &Reconstructor{log: log}
}

// Reconstruct orders the given clips on a timeline of exactly totalDuration
// seconds. Gaps between clips become filler slots; when two clips overlap the
// earlier-placed one wins and the later clip's overlapping prefix is
// truncated. Clips starting at or beyond totalDuration are discarded with a
// warning. An empty clip list yields a single filler slot.
//
// Note: the first-wins overlap policy mirrors the original recorder behavior.
// For near-simultaneous multi-speaker segments the later clip may carry the
// content a viewer would expect, but changing the policy would silently alter
// existing recordings, so it stays.
func (r *Reconstructor) Reconstruct(clips []Clip, totalDuration float64) ([]Slot, error) {
	if totalDuration <= 0 {
		return nil, fmt.Errorf("total duration must be positive, got %f", totalDuration)
	}

	sorted := make([]Clip, len(clips))
	copy(sorted, clips)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	var slots []Slot
	cursor := 0.0

	for i := range sorted {
		clip := &sorted[i]

		if clip.Start >= totalDuration-Epsilon {
			r.log.Warnf("Discarding clip %s: starts at %.3fs, beyond the %.3fs timeline", clip.Path, clip.Start, totalDuration)
			continue
		}
		if clip.Duration <= Epsilon {
			r.log.Warnf("Discarding clip %s: zero duration", clip.Path)
			continue
		}

		start := clip.Start
		offset := 0.0

		if start > cursor+Epsilon {
			slots = append(slots, Slot{Start: cursor, End: start})
			cursor = start
		} else if start < cursor-Epsilon {
			// Overlap: earlier-placed content wins, truncate this clip's head.
			offset = cursor - start
			if offset >= clip.Duration-Epsilon {
				r.log.Warnf("Discarding clip %s: fully shadowed by earlier content", clip.Path)
				continue
			}
			start = cursor
		} else {
			start = cursor
		}

		end := start + (clip.Duration - offset)
		if end > totalDuration {
			end = totalDuration
		}
		if end-start <= Epsilon {
			continue
		}

		slots = append(slots, Slot{Start: start, End: end, Clip: clip, ClipOffset: offset})
		cursor = end
	}

	if cursor < totalDuration-Epsilon {
		slots = append(slots, Slot{Start: cursor, End: totalDuration})
	} else if len(slots) > 0 {
		// Pin the last slot to the exact target duration.
		slots[len(slots)-1].End = totalDuration
	}

	if len(slots) == 0 {
		slots = append(slots, Slot{Start: 0, End: totalDuration})
	}

	return slots, nil
}
