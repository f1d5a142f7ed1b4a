// Package profile - Filter profiles and the lifecycle of their coefficient grids.
package profile

import (
	"context"

	"github.com/nvr-ai/go-hdrnet/bgu"
	"github.com/nvr-ai/go-hdrnet/images"
)

// CoefficientSource produces bilateral grid coefficients from a downscaled frame.
type CoefficientSource interface {
	// LoadProfile prepares the source for the profile stored at path.
	//
	// Arguments:
	//   - ctx: Bounds the load.
	//   - path: The profile directory.
	//
	// Returns:
	//   - bgu.GridDimensions: The dimensions every later Predict result will have.
	//   - error: An error if the profile could not be loaded.
	LoadProfile(ctx context.Context, path string) (bgu.GridDimensions, error)

	// Predict computes the coefficients for one 256x256 frame. The returned values are laid out
	// as [channel][z][y][x][coefficient].
	Predict(ctx context.Context, frame *images.Image) (bgu.GridData, error)

	// Close releases the resources held by the source.
	Close() error
}

// SourceFactory returns a fresh, unloaded CoefficientSource. A profile activation always
// loads into a new source so that a failed activation leaves the active one untouched.
type SourceFactory func() CoefficientSource
