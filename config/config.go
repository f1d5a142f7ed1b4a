// Package config - YAML configuration for the hdrnet renderer.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-hdrnet/capture"
	"github.com/nvr-ai/go-hdrnet/images"
	"github.com/nvr-ai/go-hdrnet/inference"
	"github.com/nvr-ai/go-hdrnet/pipeline"
	"github.com/nvr-ai/go-hdrnet/profile"
	"github.com/nvr-ai/go-hdrnet/profiler"
)

// CaptureConfig selects the frame source. FramesDir takes precedence over the webcam.
type CaptureConfig struct {
	capture.WebcamConfig `yaml:",inline"`
	// FramesDir plays back frame-N images instead of a camera.
	FramesDir string `json:"framesDir" yaml:"framesDir"`
	// Loop restarts FramesDir playback after the last frame.
	Loop bool `json:"loop" yaml:"loop"`
	// DownscaleFilter resamples FramesDir frames to the 256x256 companion: nearest, bilinear,
	// bicubic, lanczos or mitchell. The webcam always uses area interpolation.
	DownscaleFilter string `json:"downscaleFilter" yaml:"downscaleFilter"`
}

// Filter returns the parsed DownscaleFilter.
func (c CaptureConfig) Filter() (images.ResampleFilter, error) {
	return images.ParseResampleFilter(c.DownscaleFilter)
}

// WindowConfig configures the preview window.
type WindowConfig struct {
	Show   bool   `json:"show"   yaml:"show"`
	Title  string `json:"title"  yaml:"title"`
	Width  int    `json:"width"  yaml:"width"`
	Height int    `json:"height" yaml:"height"`
}

// Config is the complete renderer configuration.
type Config struct {
	Capture      CaptureConfig     `json:"capture"      yaml:"capture"`
	Profiles     []profile.Entry   `json:"profiles"     yaml:"profiles"`
	StartProfile int               `json:"startProfile" yaml:"startProfile"`
	Inference    inference.Options `json:"inference"    yaml:"inference"`
	Pipeline     pipeline.Config   `json:"pipeline"     yaml:"pipeline"`
	Profiler     profiler.Options  `json:"profiler"     yaml:"profiler"`
	Window       WindowConfig      `json:"window"       yaml:"window"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `json:"logLevel" yaml:"logLevel"`
}

// Default returns the configuration used when no file is given. It has no profiles.
func Default() Config {
	return Config{
		Capture: CaptureConfig{
			WebcamConfig:    capture.DefaultWebcamConfig(),
			DownscaleFilter: images.BilinearFilter.String(),
		},
		Inference: inference.DefaultOptions(),
		Pipeline:  pipeline.DefaultConfig(),
		Profiler:  profiler.Options{},
		Window: WindowConfig{
			Show:   true,
			Title:  "hdrnet",
			Width:  1280,
			Height: 960,
		},
		LogLevel: "info",
	}
}

// Load reads a YAML file over Default and validates the result. Relative profile paths are
// resolved against the file's directory.
//
// Arguments:
//   - path: The YAML file.
//
// Returns:
//   - Config: The configuration.
//   - error: An error if the file cannot be read, parsed or validated.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "reading config")
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing %s", path)
	}

	base := filepath.Dir(path)
	for i, p := range cfg.Profiles {
		if p.Path != "" && !filepath.IsAbs(p.Path) {
			cfg.Profiles[i].Path = filepath.Join(base, p.Path)
		}
	}
	if cfg.Capture.FramesDir != "" && !filepath.IsAbs(cfg.Capture.FramesDir) {
		cfg.Capture.FramesDir = filepath.Join(base, cfg.Capture.FramesDir)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// Validate checks the configuration for values the renderer cannot use.
func (c Config) Validate() error {
	if len(c.Profiles) == 0 {
		return errors.New("at least one profile is required")
	}
	for i, p := range c.Profiles {
		if p.Path == "" {
			return errors.Errorf("profile %d has no path", i)
		}
	}
	if c.StartProfile < 0 || c.StartProfile >= len(c.Profiles) {
		return errors.Wrapf(profile.ErrIndexOutOfRange, "startProfile %d with %d profiles", c.StartProfile, len(c.Profiles))
	}
	if _, err := inference.ParseBackend(string(c.Inference.Backend)); err != nil {
		return err
	}
	if _, err := pipeline.ParseMode(c.Pipeline.Mode); err != nil {
		return err
	}
	if _, err := images.ParseResampleFilter(c.Pipeline.DownscaleFilter); err != nil {
		return errors.Wrap(err, "pipeline")
	}
	if _, err := c.Capture.Filter(); err != nil {
		return errors.Wrap(err, "capture")
	}
	if c.Pipeline.Workers < 0 {
		return errors.Errorf("pipeline workers must not be negative, got %d", c.Pipeline.Workers)
	}
	if c.Capture.Width < 0 || c.Capture.Height < 0 {
		return errors.Errorf("capture size must not be negative, got %dx%d", c.Capture.Width, c.Capture.Height)
	}
	if _, _, err := c.Capture.FrameSize(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, errors.Errorf("unknown log level %q", s)
	}
	return level, nil
}
