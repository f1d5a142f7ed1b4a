package bgu

import "fmt"

// ParameterLoadError reports a missing, truncated, or size-mismatched guide parameter file.
type ParameterLoadError struct {
	// Path is the file that failed to load.
	Path string
	// Want is the exact byte count the file must have.
	Want int
	// Got is the byte count found, or -1 when the file could not be read.
	Got int
	// Err is the underlying I/O error, if any.
	Err error
}

func (e *ParameterLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("guide parameters: load %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("guide parameters: %s holds %d bytes, want %d", e.Path, e.Got, e.Want)
}

func (e *ParameterLoadError) Unwrap() error {
	return e.Err
}

// DimensionMismatchError reports coefficient data whose dimensions disagree with the allocated
// grid.
type DimensionMismatchError struct {
	Want GridDimensions
	Got  GridDimensions
	// Values is the number of floats supplied.
	Values int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("coefficient grid: got %v (%d values), allocated %v (%d values)",
		e.Got, e.Values, e.Want, e.Want.Len())
}
