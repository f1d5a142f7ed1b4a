// Package images - Frame buffers and pixel-parallel helpers for the render pipeline.
package images

import (
	"fmt"
	"image"
	"image/draw"
)

// DownscaledSize is the fixed width and height of the companion image fed to coefficient
// prediction.
const DownscaledSize = 256

// BytesPerPixel is the size of one RGBA8 pixel.
const BytesPerPixel = 4

// PixelFormat names the memory layout of an Image.
type PixelFormat string

const (
	// FormatRGBA8 is 4 interleaved 8-bit channels per pixel (R, G, B, A).
	FormatRGBA8 PixelFormat = "rgba8"
)

// Image represents one captured or rendered frame buffer.
type Image struct {
	// The pixel format of the image.
	Format PixelFormat `json:"format" yaml:"format"`
	// The raw pixel data, row-major without padding.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// NewImage allocates a zeroed RGBA8 image.
//
// Arguments:
//   - width: The width in pixels.
//   - height: The height in pixels.
//
// Returns:
//   - *Image: The allocated image.
func NewImage(width, height int) *Image {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Image{
		Format: FormatRGBA8,
		Data:   make([]byte, width*height*BytesPerPixel),
		Width:  width,
		Height: height,
	}
}

// Validate checks that the buffer length matches the declared dimensions.
//
// Returns:
//   - error: An error if the image is nil, empty, or inconsistent.
func (img *Image) Validate() error {
	if img == nil {
		return fmt.Errorf("image is nil")
	}
	if img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("invalid dimensions: width=%d, height=%d", img.Width, img.Height)
	}
	if img.Format != "" && img.Format != FormatRGBA8 {
		return fmt.Errorf("unsupported pixel format: %s", img.Format)
	}
	if want := img.Width * img.Height * BytesPerPixel; len(img.Data) != want {
		return fmt.Errorf("pixel data holds %d bytes, needs %d for %dx%d", len(img.Data), want, img.Width, img.Height)
	}
	return nil
}

// Offset returns the index of the first byte of pixel (x, y).
func (img *Image) Offset(x, y int) int {
	return (y*img.Width + x) * BytesPerPixel
}

// Clone returns a deep copy of the image.
func (img *Image) Clone() *Image {
	if img == nil {
		return nil
	}
	data := make([]byte, len(img.Data))
	copy(data, img.Data)
	return &Image{
		Format: img.Format,
		Data:   data,
		Width:  img.Width,
		Height: img.Height,
	}
}

// SameSize reports whether two images share width and height.
func (img *Image) SameSize(other *Image) bool {
	return img != nil && other != nil && img.Width == other.Width && img.Height == other.Height
}

// FromImage copies any image.Image into an RGBA8 Image.
//
// Arguments:
//   - src: The source image.
//
// Returns:
//   - *Image: The converted image with its origin moved to (0, 0).
func FromImage(src image.Image) *Image {
	bounds := src.Bounds()
	rgba, ok := src.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*BytesPerPixel || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)
	}
	data := make([]byte, len(rgba.Pix))
	copy(data, rgba.Pix)
	return &Image{
		Format: FormatRGBA8,
		Data:   data,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}
}

// RGBA exposes the image as an *image.RGBA sharing the same pixel memory.
func (img *Image) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    img.Data,
		Stride: img.Width * BytesPerPixel,
		Rect:   image.Rect(0, 0, img.Width, img.Height),
	}
}
