package bgu

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// Channels is the number of output color channels per grid cell.
	Channels = 3
	// Coefficients is the number of inputs per output channel: three weights and a bias.
	Coefficients = 4
)

// GridDimensions is the size of a coefficient grid in cells.
type GridDimensions struct {
	Width  int `json:"width"  yaml:"width"`
	Height int `json:"height" yaml:"height"`
	Depth  int `json:"depth"  yaml:"depth"`
}

func (d GridDimensions) String() string {
	return fmt.Sprintf("%dx%dx%d", d.Width, d.Height, d.Depth)
}

// Validate rejects non-positive dimensions.
func (d GridDimensions) Validate() error {
	if d.Width <= 0 || d.Height <= 0 || d.Depth <= 0 {
		return errors.Errorf("grid dimensions must be positive, got %v", d)
	}
	return nil
}

// Cells is the number of grid cells.
func (d GridDimensions) Cells() int {
	return d.Width * d.Height * d.Depth
}

// Len is the number of floats in the flat coefficient layout.
func (d GridDimensions) Len() int {
	return Channels * d.Cells() * Coefficients
}

// GridData is a flat block of coefficients laid out as [channel][z][y][x][coefficient].
type GridData struct {
	Dims   GridDimensions
	Values []float32
}

// CoefficientGrid is the 3-D lookup structure of per-cell affine matrices.
//
// Storage matches GridData's layout so a prediction can be copied in without reordering.
type CoefficientGrid struct {
	dims GridDimensions
	data []float32
}

// NewCoefficientGrid allocates a grid with every cell set to the identity transform.
func NewCoefficientGrid(dims GridDimensions) (*CoefficientGrid, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	g := &CoefficientGrid{
		dims: dims,
		data: make([]float32, dims.Len()),
	}
	g.Fill(Identity())
	return g, nil
}

// Dimensions returns the grid size fixed at allocation.
func (g *CoefficientGrid) Dimensions() GridDimensions {
	return g.dims
}

// Data returns the backing coefficients. Callers must not modify them.
func (g *CoefficientGrid) Data() []float32 {
	return g.data
}

// offset returns the index of coefficient 0 of channel c in cell (x, y, z).
func (g *CoefficientGrid) offset(c, x, y, z int) int {
	d := g.dims
	return (((c*d.Depth+z)*d.Height+y)*d.Width + x) * Coefficients
}

// Cell returns the stored matrix of one cell.
func (g *CoefficientGrid) Cell(x, y, z int) AffineMatrix {
	var m AffineMatrix
	for c := 0; c < Channels; c++ {
		copy(m[c][:], g.data[g.offset(c, x, y, z):])
	}
	return m
}

// SetCell overwrites one cell.
func (g *CoefficientGrid) SetCell(x, y, z int, m AffineMatrix) {
	for c := 0; c < Channels; c++ {
		copy(g.data[g.offset(c, x, y, z):], m[c][:])
	}
}

// Fill sets every cell to m.
func (g *CoefficientGrid) Fill(m AffineMatrix) {
	for z := 0; z < g.dims.Depth; z++ {
		for y := 0; y < g.dims.Height; y++ {
			for x := 0; x < g.dims.Width; x++ {
				g.SetCell(x, y, z, m)
			}
		}
	}
}

// Overwrite replaces the grid contents in place. Data whose dimensions or length disagree with
// the allocation is rejected with a *DimensionMismatchError and the previous contents are kept.
func (g *CoefficientGrid) Overwrite(src GridData) error {
	if src.Dims != g.dims || len(src.Values) != g.dims.Len() {
		return &DimensionMismatchError{Want: g.dims, Got: src.Dims, Values: len(src.Values)}
	}
	copy(g.data, src.Values)
	return nil
}

// Clone returns an independent copy of the grid.
func (g *CoefficientGrid) Clone() *CoefficientGrid {
	data := make([]float32, len(g.data))
	copy(data, g.data)
	return &CoefficientGrid{dims: g.dims, data: data}
}
