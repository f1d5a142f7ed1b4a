// Package images - provides the pixel-parallel primitives and resampling helpers used by the
// render pipeline.
package images

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// ResampleFilter defines the resampling algorithm used when building the downscaled companion.
type ResampleFilter int

const (
	// NearestNeighborFilter uses nearest-neighbor interpolation (fastest, lowest quality).
	NearestNeighborFilter ResampleFilter = iota
	// BilinearFilter uses bilinear interpolation (fast, good quality).
	BilinearFilter
	// BicubicFilter uses bicubic interpolation (slower, better quality).
	BicubicFilter
	// LanczosFilter uses Lanczos3 resampling (slowest, best quality).
	LanczosFilter
	// MitchellNetravaliFilter uses the Mitchell-Netravali cubic filter (balanced).
	MitchellNetravaliFilter
)

// interpolation maps each filter to its nfnt/resize implementation.
var interpolation = map[ResampleFilter]resize.InterpolationFunction{
	NearestNeighborFilter:   resize.NearestNeighbor,
	BilinearFilter:          resize.Bilinear,
	BicubicFilter:           resize.Bicubic,
	LanczosFilter:           resize.Lanczos3,
	MitchellNetravaliFilter: resize.MitchellNetravali,
}

// filterNames maps configuration names to filters.
var filterNames = map[string]ResampleFilter{
	"nearest":  NearestNeighborFilter,
	"bilinear": BilinearFilter,
	"bicubic":  BicubicFilter,
	"lanczos":  LanczosFilter,
	"mitchell": MitchellNetravaliFilter,
}

// String returns the configuration name of the filter.
func (f ResampleFilter) String() string {
	for name, filter := range filterNames {
		if filter == f {
			return name
		}
	}
	return fmt.Sprintf("ResampleFilter(%d)", int(f))
}

// ParseResampleFilter parses a filter name: nearest, bilinear, bicubic, lanczos or mitchell.
// The empty string selects BilinearFilter.
//
// Arguments:
//   - s: The filter name, case-insensitive.
//
// Returns:
//   - ResampleFilter: The filter.
//   - error: An error if the name is unknown.
func ParseResampleFilter(s string) (ResampleFilter, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return BilinearFilter, nil
	}
	filter, ok := filterNames[name]
	if !ok {
		return BilinearFilter, errors.Errorf("unknown resample filter %q", s)
	}
	return filter, nil
}

// Downscale produces the fixed-size companion image consumed by coefficient prediction.
//
// Arguments:
//   - img: The full-resolution frame.
//   - filter: The resampling filter to use.
//
// Returns:
//   - *Image: A DownscaledSize x DownscaledSize RGBA8 image.
//
// @example
// lowres := Downscale(frame, BilinearFilter)
func Downscale(img *Image, filter ResampleFilter) *Image {
	fn, ok := interpolation[filter]
	if !ok {
		fn = resize.Bilinear
	}
	out := resize.Resize(DownscaledSize, DownscaledSize, img.RGBA(), fn)
	return FromImage(out)
}

// Parallel executes fn over [0, dataSize) split into contiguous partitions, one goroutine per
// partition.
//
// Arguments:
// - workers: Number of partitions; values <= 0 use runtime.NumCPU().
// - dataSize: The size of the data to process (typically image rows).
// - fn: Function to execute for each partition (receives start and end indices).
//
// @example
//
//	Parallel(0, height, func(start, end int) {
//	    for y := start; y < end; y++ {
//	        // Process row y
//	    }
//	})
func Parallel(workers, dataSize int, fn func(partStart, partEnd int)) {
	if dataSize <= 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	// Small inputs are not worth the goroutine overhead.
	if workers == 1 || dataSize < workers*2 {
		fn(0, dataSize)
		return
	}

	partSize := dataSize / workers

	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		partStart := i * partSize
		partEnd := partStart + partSize

		// Last partition gets the remainder.
		if i == workers-1 {
			partEnd = dataSize
		}

		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(partStart, partEnd)
	}

	wg.Wait()
}
