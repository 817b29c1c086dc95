// Package config holds the application settings and their viper defaults.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Settings holds the fully processed application configuration.
type Settings struct {
	// Fetch settings.
	OutputDir   string        `mapstructure:"output_dir"`
	Workers     int           `mapstructure:"workers"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	UserAgent   string        `mapstructure:"user_agent"`

	// Media tool settings.
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`

	// Filler rendering settings for gap slots.
	FillerWidth      int `mapstructure:"filler_width"`
	FillerHeight     int `mapstructure:"filler_height"`
	FillerFPS        int `mapstructure:"filler_fps"`
	FillerSampleRate int `mapstructure:"filler_sample_rate"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// SetDefaults registers the default configuration values on the given viper
// instance. Called before any config file or environment lookup.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("output_dir", "downloads")
	v.SetDefault("workers", 4)
	v.SetDefault("http_timeout", time.Minute)
	v.SetDefault("user_agent", defaultUserAgent)
	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("ffprobe_path", "ffprobe")
	v.SetDefault("filler_width", 1920)
	v.SetDefault("filler_height", 1080)
	v.SetDefault("filler_fps", 24)
	v.SetDefault("filler_sample_rate", 44100)
}

// Load unmarshals the settings from viper and validates them.
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	if s.Workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", s.Workers)
	}
	if s.FillerWidth <= 0 || s.FillerHeight <= 0 {
		return nil, fmt.Errorf("invalid filler resolution %dx%d", s.FillerWidth, s.FillerHeight)
	}
	if s.FillerFPS <= 0 {
		return nil, fmt.Errorf("filler fps must be positive, got %d", s.FillerFPS)
	}
	if s.FillerSampleRate <= 0 {
		return nil, fmt.Errorf("filler sample rate must be positive, got %d", s.FillerSampleRate)
	}

	return &s, nil
}
