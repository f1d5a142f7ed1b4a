package capture

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-hdrnet/images"
	"github.com/nvr-ai/go-hdrnet/pipeline"
)

// WebcamConfig selects and sizes a gocv capture.
type WebcamConfig struct {
	// DeviceID is the camera index used when VideoPath is empty.
	DeviceID int `json:"deviceID" yaml:"deviceID"`
	// VideoPath reads frames from a video file instead of a camera.
	VideoPath string `json:"videoPath" yaml:"videoPath"`
	// Width is the requested capture width.
	Width int `json:"width" yaml:"width"`
	// Height is the requested capture height.
	Height int `json:"height" yaml:"height"`
	// Resolution names a preset such as "vga" or "720p" and overrides Width and Height.
	Resolution string `json:"resolution" yaml:"resolution"`
}

// FrameSize returns the requested capture size.
func (c WebcamConfig) FrameSize() (int, int, error) {
	if c.Resolution == "" {
		return c.Width, c.Height, nil
	}
	r, ok := images.LookupResolution(c.Resolution)
	if !ok {
		return 0, 0, errors.Errorf("unknown capture resolution %q", c.Resolution)
	}
	return r.Width, r.Height, nil
}

// DefaultWebcamConfig returns camera 0 at 640x480.
func DefaultWebcamConfig() WebcamConfig {
	return WebcamConfig{
		DeviceID: 0,
		Width:    640,
		Height:   480,
	}
}

// Device describes the configured input for logs and errors.
func (c WebcamConfig) Device() string {
	if c.VideoPath != "" {
		return c.VideoPath
	}
	return fmt.Sprintf("camera %d", c.DeviceID)
}

// Webcam reads frames from a camera or video file through OpenCV. Frames are converted from BGR to
// RGBA and the 256x256 companion is produced with area interpolation.
type Webcam struct {
	cfg     WebcamConfig
	logger  *slog.Logger
	capture *gocv.VideoCapture

	bgr   gocv.Mat
	rgba  gocv.Mat
	small gocv.Mat
}

var _ pipeline.FrameSource = (*Webcam)(nil)

// NewWebcam creates an unopened webcam source.
func NewWebcam(cfg WebcamConfig, logger *slog.Logger) *Webcam {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webcam{cfg: cfg, logger: logger}
}

// Open starts the capture.
//
// Returns:
//   - error: A *CaptureError if the device or file cannot be opened.
func (w *Webcam) Open() error {
	width, height, err := w.cfg.FrameSize()
	if err != nil {
		return &CaptureError{Device: w.cfg.Device(), Err: err}
	}

	var capture *gocv.VideoCapture
	if w.cfg.VideoPath != "" {
		capture, err = gocv.OpenVideoCapture(w.cfg.VideoPath)
	} else {
		capture, err = gocv.OpenVideoCapture(w.cfg.DeviceID)
	}
	if err != nil {
		if capture != nil {
			capture.Close()
		}
		return &CaptureError{Device: w.cfg.Device(), Err: err}
	}
	if !capture.IsOpened() {
		capture.Close()
		return &CaptureError{Device: w.cfg.Device(), Err: errors.New("device not opened")}
	}

	if w.cfg.VideoPath == "" {
		if width > 0 {
			capture.Set(gocv.VideoCaptureFrameWidth, float64(width))
		}
		if height > 0 {
			capture.Set(gocv.VideoCaptureFrameHeight, float64(height))
		}
	}

	w.capture = capture
	w.bgr = gocv.NewMat()
	w.rgba = gocv.NewMat()
	w.small = gocv.NewMat()

	w.logger.Info("capture opened",
		"device", w.cfg.Device(),
		"width", capture.Get(gocv.VideoCaptureFrameWidth),
		"height", capture.Get(gocv.VideoCaptureFrameHeight),
	)
	return nil
}

// ReadFrame grabs the next frame. It returns false when the device has no frame, including
// after the end of a video file.
func (w *Webcam) ReadFrame() (pipeline.Frame, bool) {
	if w.capture == nil {
		return pipeline.Frame{}, false
	}
	if ok := w.capture.Read(&w.bgr); !ok || w.bgr.Empty() {
		return pipeline.Frame{}, false
	}

	gocv.CvtColor(w.bgr, &w.rgba, gocv.ColorBGRToRGBA)
	gocv.Resize(w.rgba, &w.small, image.Pt(images.DownscaledSize, images.DownscaledSize), 0, 0, gocv.InterpolationArea)
	if w.rgba.Empty() || w.small.Empty() {
		w.logger.Debug("frame conversion failed", "device", w.cfg.Device())
		return pipeline.Frame{}, false
	}

	return pipeline.Frame{
		Full:       matToImage(w.rgba),
		Downscaled: matToImage(w.small),
	}, true
}

// Close stops the capture.
func (w *Webcam) Close() error {
	if w.capture == nil {
		return nil
	}
	w.bgr.Close()
	w.rgba.Close()
	w.small.Close()
	err := w.capture.Close()
	w.capture = nil
	return errors.Wrapf(err, "closing %s", w.cfg.Device())
}

// matToImage copies a continuous 8-bit RGBA Mat into an Image.
func matToImage(m gocv.Mat) *images.Image {
	return &images.Image{
		Format: images.FormatRGBA8,
		Data:   m.ToBytes(),
		Width:  m.Cols(),
		Height: m.Rows(),
	}
}

// ImageToMat wraps an Image as an RGBA Mat for display. The caller closes the Mat.
func ImageToMat(img *images.Image) (gocv.Mat, error) {
	return gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC4, img.Data)
}
