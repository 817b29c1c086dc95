// Package media adapts the external ffmpeg/ffprobe tools behind narrow
// interfaces so the reconstruction pipeline never touches pixels or samples
// itself.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"mtsgrab/internal/logger"
	"mtsgrab/internal/models"
)

// probeResult is the subset of ffprobe JSON output we consume.
type probeResult struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

type probeStream struct {
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
	Disposition struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

// FFprobe probes cached files with the ffprobe binary.
type FFprobe struct {
	bin     string
	log     logger.Logger
	timeout time.Duration
}

// NewFFprobe creates a prober using the given ffprobe binary path.
func NewFFprobe(bin string, log logger.Logger) *FFprobe {
	return &FFprobe{bin: bin, log: log, timeout: 30 * time.Second}
}

// Probe determines whether the file is usable as video or audio and its
// duration in seconds. A file with a real video stream is video even when it
// also carries audio; a file with only audio streams is audio; anything else
// is an error.
func (p *FFprobe) Probe(ctx context.Context, path string) (models.Kind, float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	out, err := exec.CommandContext(ctx, p.bin, args...).Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return models.KindUnknown, 0, fmt.Errorf("probe timeout after %v", p.timeout)
		}
		return models.KindUnknown, 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var result probeResult
	if err := json.Unmarshal(out, &result); err != nil {
		return models.KindUnknown, 0, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	kind := models.KindUnknown
	var streamDur float64
	for _, stream := range result.Streams {
		switch stream.CodecType {
		case "video":
			// Cover art in audio files shows up as a video stream.
			if stream.Disposition.AttachedPic == 1 {
				continue
			}
			kind = models.KindVideo
		case "audio":
			if kind == models.KindUnknown {
				kind = models.KindAudio
			}
		}
		if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil && d > streamDur {
			streamDur = d
		}
	}

	if kind == models.KindUnknown {
		return models.KindUnknown, 0, fmt.Errorf("no video or audio stream in %s", path)
	}

	dur := streamDur
	if d, err := strconv.ParseFloat(result.Format.Duration, 64); err == nil && d > 0 {
		dur = d
	}
	if dur <= 0 {
		return models.KindUnknown, 0, fmt.Errorf("no usable duration in %s", path)
	}

	p.log.Debugf("Probed %s: kind=%s duration=%.3fs", path, kind, dur)
	return kind, dur, nil
}
