package inference

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-hdrnet/images"
)

// InputLayout is the memory order of the model's image input.
type InputLayout int

const (
	// NHWC is [1, 256, 256, 3], interleaved channels.
	NHWC InputLayout = iota
	// NCHW is [1, 3, 256, 256], planar channels.
	NCHW
)

// inputLayout recognizes the model input shape. Dynamic (non-positive) dimensions are accepted.
func inputLayout(shape []int64) (InputLayout, error) {
	fits := func(d int64, want int64) bool {
		return d <= 0 || d == want
	}
	size := int64(images.DownscaledSize)
	if len(shape) == 4 && fits(shape[0], 1) {
		switch {
		case fits(shape[1], size) && fits(shape[2], size) && shape[3] == 3:
			return NHWC, nil
		case shape[1] == 3 && fits(shape[2], size) && fits(shape[3], size):
			return NCHW, nil
		}
	}
	return NHWC, errors.Errorf("unsupported model input shape %v", shape)
}

// PrepareInput writes the RGB channels of a 256x256 frame, scaled to [0, 1], into dst. Alpha is
// dropped.
//
// Arguments:
//   - frame: The downscaled frame.
//   - layout: The order of dst.
//   - dst: The input tensor data; it must hold 256*256*3 values.
//
// Returns:
//   - error: An error if the frame is not 256x256 or dst is too small.
func PrepareInput(frame *images.Image, layout InputLayout, dst []float32) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	if frame.Width != images.DownscaledSize || frame.Height != images.DownscaledSize {
		return errors.Errorf("input frame is %dx%d, want %dx%d",
			frame.Width, frame.Height, images.DownscaledSize, images.DownscaledSize)
	}
	channelSize := images.DownscaledSize * images.DownscaledSize
	if len(dst) < channelSize*3 {
		return errors.Errorf("input tensor holds %d floats, needs %d", len(dst), channelSize*3)
	}

	src := frame.Data
	switch layout {
	case NCHW:
		red := dst[0:channelSize]
		green := dst[channelSize : channelSize*2]
		blue := dst[channelSize*2 : channelSize*3]
		for i := 0; i < channelSize; i++ {
			p := i * images.BytesPerPixel
			red[i] = float32(src[p]) / 255
			green[i] = float32(src[p+1]) / 255
			blue[i] = float32(src[p+2]) / 255
		}
	default:
		for i := 0; i < channelSize; i++ {
			p := i * images.BytesPerPixel
			dst[i*3] = float32(src[p]) / 255
			dst[i*3+1] = float32(src[p+1]) / 255
			dst[i*3+2] = float32(src[p+2]) / 255
		}
	}
	return nil
}
