// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/depthcap/pkg/adapters/imageencoder"
	"github.com/user/depthcap/pkg/controller"
	"github.com/user/depthcap/pkg/pipeline"
)

// Config represents the full configuration for depthcap.
type Config struct {
	// Output
	OutputDir   string `yaml:"output_dir"`
	ImageFormat string `yaml:"image_format"`
	PadWidth    int    `yaml:"pad_width"`
	Metadata    bool   `yaml:"metadata"`
	Montage     bool   `yaml:"montage"`
	DryRun      bool   `yaml:"dry_run"`

	// Capture
	Interval               string `yaml:"interval"`
	PopTimeout             string `yaml:"pop_timeout"`
	SourceTimeout          string `yaml:"source_timeout"`
	MaxConsecutiveFailures int    `yaml:"max_consecutive_failures"`
	QueueCapacity          int    `yaml:"queue_capacity"`
	FlushTimeout           string `yaml:"flush_timeout"`

	// Streams
	Streams []StreamConfig `yaml:"streams"`

	// Simulated device
	Device DeviceConfig `yaml:"device"`

	// Status server, empty disables it
	StatusAddr string `yaml:"status_addr"`
}

// StreamConfig describes one stream.
type StreamConfig struct {
	ID      string `yaml:"id"`
	Cadence string `yaml:"cadence"`
	MaxSkew string `yaml:"max_skew"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	Format  string `yaml:"format"`
}

// DeviceConfig tunes the simulated device.
type DeviceConfig struct {
	Jitter          string   `yaml:"jitter"`
	Seed            int64    `yaml:"seed"`
	Stalled         []string `yaml:"stalled"`
	DisconnectAfter uint64   `yaml:"disconnect_after"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		OutputDir:   "./images",
		ImageFormat: "png",
		PadWidth:    3,

		Interval:               "1s",
		PopTimeout:             "100ms",
		SourceTimeout:          "200ms",
		MaxConsecutiveFailures: 5,
		QueueCapacity:          2,
		FlushTimeout:           "5s",

		Streams: []StreamConfig{
			{ID: string(pipeline.StreamDisparity), Cadence: "33ms", MaxSkew: "10ms", Width: 1280, Height: 800, Format: "gray8"},
			{ID: string(pipeline.StreamConfidence), Cadence: "33ms", MaxSkew: "10ms", Width: 1280, Height: 800, Format: "gray8"},
			{ID: string(pipeline.StreamRectLeft), Cadence: "33ms", MaxSkew: "10ms", Width: 1280, Height: 800, Format: "gray8"},
			{ID: string(pipeline.StreamRectRight), Cadence: "33ms", MaxSkew: "10ms", Width: 1280, Height: 800, Format: "gray8"},
			{ID: string(pipeline.StreamColor), Cadence: "33ms", MaxSkew: "10ms", Width: 1920, Height: 1080, Format: "bgr24"},
		},

		Device: DeviceConfig{
			Jitter: "2ms",
		},
	}
}

// LoadFromFile loads configuration from a YAML file.
// Keys missing from the file keep their default values.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Marshal returns the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks the configuration for values the capture cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir must not be empty"))
	}
	if _, err := imageencoder.ParseFormat(c.ImageFormat); err != nil {
		errs = append(errs, err)
	}
	if c.PadWidth < 0 {
		errs = append(errs, fmt.Errorf("pad_width must not be negative, got %d", c.PadWidth))
	}
	if c.MaxConsecutiveFailures < 1 {
		errs = append(errs, fmt.Errorf("max_consecutive_failures must be at least 1, got %d", c.MaxConsecutiveFailures))
	}
	if c.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("queue_capacity must be at least 1, got %d", c.QueueCapacity))
	}

	durations := []struct {
		name  string
		value string
	}{
		{"interval", c.Interval},
		{"pop_timeout", c.PopTimeout},
		{"source_timeout", c.SourceTimeout},
		{"flush_timeout", c.FlushTimeout},
		{"device.jitter", c.Device.Jitter},
	}
	for _, d := range durations {
		if _, err := parseDuration(d.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.name, err))
		}
	}

	if len(c.Streams) == 0 {
		errs = append(errs, errors.New("at least one stream is required"))
	}
	seen := make(map[string]bool, len(c.Streams))
	for i, s := range c.Streams {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("streams[%d]: id must not be empty", i))
			continue
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("streams[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
		if _, err := s.toPipeline(); err != nil {
			errs = append(errs, fmt.Errorf("streams[%d]: %w", i, err))
		}
	}
	for _, id := range c.Device.Stalled {
		if !seen[id] {
			errs = append(errs, fmt.Errorf("device.stalled: unknown stream %q", id))
		}
	}

	return errors.Join(errs...)
}

// PipelineStreams converts the stream list for the pipeline packages.
func (c Config) PipelineStreams() ([]pipeline.StreamConfig, error) {
	out := make([]pipeline.StreamConfig, 0, len(c.Streams))
	for _, s := range c.Streams {
		ps, err := s.toPipeline()
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", s.ID, err)
		}
		out = append(out, ps)
	}
	return out, nil
}

// ToControllerConfig converts Config to controller.Config.
func (c Config) ToControllerConfig() (controller.Config, error) {
	streams, err := c.PipelineStreams()
	if err != nil {
		return controller.Config{}, err
	}
	interval, err := parseDuration(c.Interval)
	if err != nil {
		return controller.Config{}, fmt.Errorf("interval: %w", err)
	}
	popTimeout, err := parseDuration(c.PopTimeout)
	if err != nil {
		return controller.Config{}, fmt.Errorf("pop_timeout: %w", err)
	}
	flushTimeout, err := parseDuration(c.FlushTimeout)
	if err != nil {
		return controller.Config{}, fmt.Errorf("flush_timeout: %w", err)
	}

	return controller.Config{
		Streams:                streams,
		Interval:               interval,
		PopTimeout:             popTimeout,
		MaxConsecutiveFailures: c.MaxConsecutiveFailures,
		QueueCapacity:          c.QueueCapacity,
		FlushTimeout:           flushTimeout,
	}, nil
}

// SourceTimeoutDuration returns the parsed source timeout.
func (c Config) SourceTimeoutDuration() (time.Duration, error) {
	return parseDuration(c.SourceTimeout)
}

// JitterDuration returns the parsed simulated device jitter.
func (c Config) JitterDuration() (time.Duration, error) {
	return parseDuration(c.Device.Jitter)
}

// StalledStreams returns the stream IDs that start stalled.
func (c Config) StalledStreams() []pipeline.StreamID {
	out := make([]pipeline.StreamID, len(c.Device.Stalled))
	for i, id := range c.Device.Stalled {
		out[i] = pipeline.StreamID(id)
	}
	return out
}

func (s StreamConfig) toPipeline() (pipeline.StreamConfig, error) {
	cadence, err := parseDuration(s.Cadence)
	if err != nil {
		return pipeline.StreamConfig{}, fmt.Errorf("cadence: %w", err)
	}
	skew, err := parseDuration(s.MaxSkew)
	if err != nil {
		return pipeline.StreamConfig{}, fmt.Errorf("max_skew: %w", err)
	}
	format, err := pipeline.ParsePixelFormat(s.Format)
	if err != nil {
		return pipeline.StreamConfig{}, err
	}
	if s.Width < 0 || s.Height < 0 {
		return pipeline.StreamConfig{}, fmt.Errorf("invalid size %dx%d", s.Width, s.Height)
	}
	return pipeline.StreamConfig{
		ID:      pipeline.StreamID(s.ID),
		Cadence: cadence,
		MaxSkew: skew,
		Width:   s.Width,
		Height:  s.Height,
		Format:  format,
	}, nil
}

// parseDuration accepts Go duration strings. Empty means zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative, got %s", s)
	}
	return d, nil
}
