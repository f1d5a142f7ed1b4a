// Package profiletest - Test doubles for coefficient sources and profile fixtures.
package profiletest

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-hdrnet/bgu"
	"github.com/nvr-ai/go-hdrnet/images"
	"github.com/nvr-ai/go-hdrnet/profile"
)

// Source is a scripted CoefficientSource that counts its calls.
type Source struct {
	mu sync.Mutex

	// Dims is returned by LoadProfile.
	Dims bgu.GridDimensions
	// LoadErr fails LoadProfile when set.
	LoadErr error
	// PredictErr fails Predict when set.
	PredictErr error
	// Data overrides the Predict result. When nil Predict returns identity coefficients at Dims.
	Data *bgu.GridData
	// CloseErr is returned by Close when set.
	CloseErr error

	loads    int
	predicts int
	closes   int
	path     string
	input    *images.Image
}

// NewSource returns a source declaring dims.
func NewSource(dims bgu.GridDimensions) *Source {
	return &Source{Dims: dims}
}

// LoadProfile records the call and returns Dims or LoadErr.
func (s *Source) LoadProfile(_ context.Context, path string) (bgu.GridDimensions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	s.path = path
	if s.LoadErr != nil {
		return bgu.GridDimensions{}, s.LoadErr
	}
	return s.Dims, nil
}

// Predict records the call and returns Data, identity coefficients or PredictErr.
func (s *Source) Predict(_ context.Context, downscaled *images.Image) (bgu.GridData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predicts++
	s.input = downscaled
	if s.PredictErr != nil {
		return bgu.GridData{}, s.PredictErr
	}
	if s.Data != nil {
		return *s.Data, nil
	}
	return IdentityData(s.Dims), nil
}

// Close records the call and returns CloseErr.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return s.CloseErr
}

// SetPredictErr changes the Predict failure between frames.
func (s *Source) SetPredictErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PredictErr = err
}

// Loads returns the number of LoadProfile calls.
func (s *Source) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// Predicts returns the number of Predict calls.
func (s *Source) Predicts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.predicts
}

// Closes returns the number of Close calls.
func (s *Source) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// LastInput returns the image given to the last Predict.
func (s *Source) LastInput() *images.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// Path returns the path given to the last LoadProfile.
func (s *Source) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Factory hands out sources in order, one per activation. It fails the test when asked for
// more sources than it was given.
func Factory(t testing.TB, sources ...*Source) profile.SourceFactory {
	var (
		mu   sync.Mutex
		next int
	)
	return func() profile.CoefficientSource {
		mu.Lock()
		defer mu.Unlock()
		require.Less(t, next, len(sources), "unexpected coefficient source request")
		s := sources[next]
		next++
		return s
	}
}

// IdentityData returns grid data holding the identity matrix in every cell.
func IdentityData(dims bgu.GridDimensions) bgu.GridData {
	return MatrixData(dims, bgu.Identity())
}

// MatrixData returns grid data holding m in every cell.
func MatrixData(dims bgu.GridDimensions, m bgu.AffineMatrix) bgu.GridData {
	values := make([]float32, 0, dims.Len())
	for c := 0; c < bgu.Channels; c++ {
		for i := 0; i < dims.Cells(); i++ {
			values = append(values, m[c][:]...)
		}
	}
	return bgu.GridData{Dims: dims, Values: values}
}

// WriteProfile saves params into a new directory under t.TempDir and returns its path.
func WriteProfile(t testing.TB, params *bgu.GuideParameters) string {
	t.Helper()
	dir, err := os.MkdirTemp(t.TempDir(), "profile-")
	require.NoError(t, err)
	require.NoError(t, params.Save(dir))
	return dir
}
