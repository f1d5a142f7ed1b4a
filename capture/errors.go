// Package capture - Frame sources for the render pipeline.
package capture

import "fmt"

// CaptureError reports that a frame device or directory could not be opened.
type CaptureError struct {
	// Device names the camera, video file or directory.
	Device string
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture: cannot open %s: %v", e.Device, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}
