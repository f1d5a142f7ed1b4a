package images

import "image"

// RenderRect fits an image into a window while preserving its aspect ratio, centering it and
// leaving letterbox bars on the remaining axis.
//
// Arguments:
//   - imgW, imgH: The image dimensions.
//   - winW, winH: The window dimensions.
//
// Returns:
//   - image.Rectangle: The destination rectangle in window pixels.
func RenderRect(imgW, imgH, winW, winH int) image.Rectangle {
	if imgW <= 0 || imgH <= 0 || winW <= 0 || winH <= 0 {
		return image.Rectangle{}
	}

	windowRatio := float64(winW) / float64(winH)
	imageRatio := float64(imgW) / float64(imgH)

	w, h := winW, winH
	if windowRatio >= imageRatio {
		w = int(float64(winH)*imageRatio + 0.5)
	} else {
		h = int(float64(winW)/imageRatio + 0.5)
	}

	x0 := (winW - w) / 2
	y0 := (winH - h) / 2
	return image.Rect(x0, y0, x0+w, y0+h)
}
