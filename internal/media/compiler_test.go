// In-package so the tests can inspect the assembled ffmpeg argument list
// without spawning ffmpeg.
package media

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtsgrab/internal/timeline"
)

// mediaMockLogger is a no-op logger for testing purposes.
type mediaMockLogger struct{}

func (m *mediaMockLogger) Debugf(format string, v ...interface{}) {}
func (m *mediaMockLogger) Infof(format string, v ...interface{})  {}
func (m *mediaMockLogger) Warnf(format string, v ...interface{})  {}
func (m *mediaMockLogger) Errorf(format string, v ...interface{}) {}

func testCompiler() *FFmpegCompiler {
	return NewFFmpegCompiler("ffmpeg", &mediaMockLogger{}, 1920, 1080, 24, 44100)
}

func TestBuildArgs_FillerAndContent(t *testing.T) {
	clip := &timeline.Clip{Path: "/cache/cam1.mp4", Start: 5, Duration: 10}
	video := []timeline.Slot{
		{Start: 0, End: 5},              // filler
		{Start: 5, End: 15, Clip: clip}, // content
	}
	audio := []timeline.Slot{
		{Start: 0, End: 15}, // silence
	}

	args := testCompiler().buildArgs(video, audio, "/out/final.mp4", 0)
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "color=c=black:s=1920x1080:r=24")
	assert.Contains(t, joined, "anullsrc=r=44100:cl=stereo")
	assert.Contains(t, joined, "/cache/cam1.mp4")
	assert.Contains(t, joined, "concat=n=2:v=1:a=0[vout]")
	assert.Contains(t, joined, "concat=n=1:v=0:a=1[aout]")
	assert.Contains(t, joined, "-map [vout]")
	assert.Contains(t, joined, "-map [aout]")
	assert.Equal(t, "/out/final.mp4", args[len(args)-1])
	assert.NotContains(t, joined, "-ss", "no head trim when the clip is not clamped")
}

func TestBuildArgs_ClampedClipSeeksIntoSource(t *testing.T) {
	clip := &timeline.Clip{Path: "/cache/late.mp4", Start: 5, Duration: 10}
	video := []timeline.Slot{
		{Start: 10, End: 15, Clip: clip, ClipOffset: 5},
	}

	args := testCompiler().buildArgs(video, nil, "/out/final.mp4", 0)

	// -ss with the clamp offset must precede the clip input.
	var sawSeek bool
	for i, a := range args {
		if a == "-ss" {
			require.Greater(t, len(args), i+1)
			assert.Equal(t, "5.000000", args[i+1])
			sawSeek = true
		}
	}
	assert.True(t, sawSeek)
}

func TestBuildArgs_MaxDurationTruncates(t *testing.T) {
	video := []timeline.Slot{{Start: 0, End: 100}}

	args := testCompiler().buildArgs(video, nil, "/out/final.mp4", 30)
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-t 30.000000 -y /out/final.mp4")
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short", tail("short", 10))
	long := strings.Repeat("x", 100)
	assert.Len(t, tail(long, 20), 23) // "..." + 20 bytes
}
