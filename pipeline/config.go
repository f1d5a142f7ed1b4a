package pipeline

import (
	"time"

	"github.com/nvr-ai/go-hdrnet/images"
)

// Config configures a Pipeline.
type Config struct {
	// Workers is the number of goroutines for the per-pixel stage; 0 uses every CPU.
	Workers int `json:"workers" yaml:"workers"`
	// WarnAfter is the number of consecutive refresh failures that triggers a warning.
	WarnAfter int `json:"warnAfter" yaml:"warnAfter"`
	// Mode is the initial render mode.
	Mode string `json:"mode" yaml:"mode"`
	// IdleInterval is how long Run waits after a read that produced no frame.
	IdleInterval time.Duration `json:"idleInterval" yaml:"idleInterval"`
	// DownscaleFilter resamples the companion image for frames that arrive without one.
	DownscaleFilter string `json:"downscaleFilter" yaml:"downscaleFilter"`
}

// DefaultConfig returns the default pipeline configuration.
//
// Returns:
//   - Config: Workers on every CPU, a warning after 3 consecutive refresh failures, filtered mode,
//     bilinear fallback downscaling.
func DefaultConfig() Config {
	return Config{
		Workers:         0,
		WarnAfter:       3,
		Mode:            Filtered.String(),
		IdleInterval:    5 * time.Millisecond,
		DownscaleFilter: images.BilinearFilter.String(),
	}
}
