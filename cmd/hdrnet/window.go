package main

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-hdrnet/capture"
	"github.com/nvr-ai/go-hdrnet/images"
)

// Key codes returned by gocv.Window.WaitKey.
const (
	keyEscape = 27
	keySpace  = 32
	keyUp     = 82
	keyDown   = 84
)

// windowSink letterboxes every presented frame into a gocv window.
type windowSink struct {
	window *gocv.Window
	canvas gocv.Mat
	bgr    gocv.Mat
	width  int
	height int
}

func newWindowSink(title string, width, height int) *windowSink {
	window := gocv.NewWindow(title)
	window.ResizeWindow(width, height)
	return &windowSink{
		window: window,
		canvas: gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3),
		bgr:    gocv.NewMat(),
		width:  width,
		height: height,
	}
}

// Present implements pipeline.Sink.
func (s *windowSink) Present(img *images.Image) error {
	rgba, err := capture.ImageToMat(img)
	if err != nil {
		return err
	}
	defer rgba.Close()

	gocv.CvtColor(rgba, &s.bgr, gocv.ColorRGBAToBGR)

	rect := images.RenderRect(img.Width, img.Height, s.width, s.height)
	s.canvas.SetTo(gocv.NewScalar(0, 0, 0, 0))
	region := s.canvas.Region(rect)
	defer region.Close()
	gocv.Resize(s.bgr, &region, image.Pt(rect.Dx(), rect.Dy()), 0, 0, gocv.InterpolationLinear)

	s.window.IMShow(s.canvas)
	return nil
}

// WaitKey pumps the window events for up to delay milliseconds.
func (s *windowSink) WaitKey(delay int) int {
	return s.window.WaitKey(delay)
}

// Open reports whether the user has not closed the window.
func (s *windowSink) Open() bool {
	return s.window.IsOpen()
}

func (s *windowSink) Close() error {
	s.canvas.Close()
	s.bgr.Close()
	return s.window.Close()
}
