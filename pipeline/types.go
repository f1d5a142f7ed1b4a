// Package pipeline - Per-frame orchestration of bilateral guided upsampling.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-hdrnet/images"
)

// Mode selects how frames are rendered.
type Mode int

const (
	// Filtered renders every pixel through the active profile's grid.
	Filtered Mode = iota
	// PassThrough presents the captured frame unmodified.
	PassThrough
)

func (m Mode) String() string {
	switch m {
	case Filtered:
		return "filtered"
	case PassThrough:
		return "passthrough"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses "filtered" or "passthrough".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "filtered":
		return Filtered, nil
	case "passthrough", "pass-through":
		return PassThrough, nil
	}
	return Filtered, errors.Errorf("unknown render mode %q", s)
}

// Frame is one captured frame with its 256x256 companion.
type Frame struct {
	Full       *images.Image
	Downscaled *images.Image
}

// FrameSource produces frames.
type FrameSource interface {
	// Open prepares the source. Failure is reported as a *capture.CaptureError.
	Open() error
	// ReadFrame returns the next frame, or false when no new frame is available.
	ReadFrame() (Frame, bool)
	// Close releases the source.
	Close() error
}

// Sink receives every presented frame. The image is only valid during the call.
type Sink interface {
	Present(img *images.Image) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(img *images.Image) error

// Present calls f.
func (f SinkFunc) Present(img *images.Image) error {
	return f(img)
}
