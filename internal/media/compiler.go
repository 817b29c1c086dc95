package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"mtsgrab/internal/logger"
	"mtsgrab/internal/timeline"
)

// Compiler turns reconstructed slot sequences into one muxed output file with
// the audio track attached to the video track. Implementations only see
// durations and ordering, never media content.
type Compiler interface {
	// Compile writes the continuous recording to outPath. maxDuration > 0
	// truncates the output to that many seconds from the start.
	Compile(ctx context.Context, video, audio []timeline.Slot, outPath string, maxDuration float64) error
}

// FFmpegCompiler renders filler and concatenates content slots with a single
// ffmpeg invocation.
type FFmpegCompiler struct {
	bin string
	log logger.Logger

	// Filler parameters: blank frames at Width x Height / FPS, silence at
	// SampleRate. Content slots are normalized to the same raster so the
	// concat filter accepts them.
	Width      int
	Height     int
	FPS        int
	SampleRate int
}

// NewFFmpegCompiler creates a compiler using the given ffmpeg binary path.
func NewFFmpegCompiler(bin string, log logger.Logger, width, height, fps, sampleRate int) *FFmpegCompiler {
	return &FFmpegCompiler{
		bin:        bin,
		log:        log,
		Width:      width,
		Height:     height,
		FPS:        fps,
		SampleRate: sampleRate,
	}
}

// Compile builds the output atomically: ffmpeg writes to a uniquely named
// temp file next to outPath, which is renamed into place only on success.
// No exit path leaves a half-written file at outPath.
func (c *FFmpegCompiler) Compile(ctx context.Context, video, audio []timeline.Slot, outPath string, maxDuration float64) error {
	if len(video) == 0 && len(audio) == 0 {
		return fmt.Errorf("nothing to compile: no video or audio slots")
	}

	tmpPath := filepath.Join(filepath.Dir(outPath), fmt.Sprintf(".compile-%s.mp4", uuid.NewString()))
	args := c.buildArgs(video, audio, tmpPath, maxDuration)

	c.log.Debugf("Running %s %s", c.bin, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, c.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(tmpPath)
		if ctx.Err() != nil {
			return fmt.Errorf("compile aborted: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, tail(stderr.String(), 512))
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move output into place: %w", err)
	}

	c.log.Infof("Compiled output written to %s", outPath)
	return nil
}

// buildArgs assembles the full ffmpeg argument list: one input per slot
// (lavfi generators for filler), per-input normalization filters, and two
// concat chains muxed together.
func (c *FFmpegCompiler) buildArgs(video, audio []timeline.Slot, outPath string, maxDuration float64) []string {
	var args []string
	var filters []string
	inputIdx := 0

	var videoLabels []string
	for _, slot := range video {
		dur := formatSeconds(slot.Duration())
		if slot.IsFiller() {
			args = append(args,
				"-f", "lavfi", "-t", dur,
				"-i", fmt.Sprintf("color=c=black:s=%dx%d:r=%d", c.Width, c.Height, c.FPS),
			)
		} else {
			if slot.ClipOffset > 0 {
				args = append(args, "-ss", formatSeconds(slot.ClipOffset))
			}
			args = append(args, "-t", dur, "-i", slot.Clip.Path)
		}

		label := fmt.Sprintf("v%d", inputIdx)
		filters = append(filters, fmt.Sprintf(
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d,format=yuv420p[%s]",
			inputIdx, c.Width, c.Height, c.Width, c.Height, c.FPS, label,
		))
		videoLabels = append(videoLabels, "["+label+"]")
		inputIdx++
	}

	var audioLabels []string
	for _, slot := range audio {
		dur := formatSeconds(slot.Duration())
		if slot.IsFiller() {
			args = append(args,
				"-f", "lavfi", "-t", dur,
				"-i", fmt.Sprintf("anullsrc=r=%d:cl=stereo", c.SampleRate),
			)
		} else {
			if slot.ClipOffset > 0 {
				args = append(args, "-ss", formatSeconds(slot.ClipOffset))
			}
			args = append(args, "-t", dur, "-i", slot.Clip.Path)
		}

		label := fmt.Sprintf("a%d", inputIdx)
		filters = append(filters, fmt.Sprintf(
			"[%d:a]aresample=%d,aformat=sample_fmts=fltp:channel_layouts=stereo[%s]",
			inputIdx, c.SampleRate, label,
		))
		audioLabels = append(audioLabels, "["+label+"]")
		inputIdx++
	}

	var maps []string
	if len(videoLabels) > 0 {
		filters = append(filters, fmt.Sprintf("%sconcat=n=%d:v=1:a=0[vout]", strings.Join(videoLabels, ""), len(videoLabels)))
		maps = append(maps, "-map", "[vout]")
	}
	if len(audioLabels) > 0 {
		filters = append(filters, fmt.Sprintf("%sconcat=n=%d:v=0:a=1[aout]", strings.Join(audioLabels, ""), len(audioLabels)))
		maps = append(maps, "-map", "[aout]")
	}

	args = append(args, "-filter_complex", strings.Join(filters, ";"))
	args = append(args, maps...)
	args = append(args, "-c:v", "libx264", "-preset", "medium", "-c:a", "aac")
	if maxDuration > 0 {
		args = append(args, "-t", formatSeconds(maxDuration))
	}
	args = append(args, "-y", outPath)

	return args
}

func formatSeconds(s float64) string {
	return fmt.Sprintf("%.6f", s)
}

// tail returns at most the last n bytes of s.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
