package inference

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-hdrnet/bgu"
)

// normalizeLayout converts a raw model output into grid data laid out as
// [channel][z][y][x][coefficient].
//
// Accepted shapes:
//   - [3, D, H, W, 4]: already canonical.
//   - [1, H, W, D, 3, 4]: grid-major output of the HDRNet graph.
//   - [1, H, W, D, 12]: the same with the 3x4 matrix flattened.
//
// Arguments:
//   - shape: The output tensor shape.
//   - data: The output values in row-major order. They are not modified.
//
// Returns:
//   - bgu.GridData: The canonical grid data.
//   - error: An error for any other shape or a value count that disagrees with it.
func normalizeLayout(shape []int64, data []float32) (bgu.GridData, error) {
	dims := make([]int, len(shape))
	total := 1
	for i, d := range shape {
		if d <= 0 {
			return bgu.GridData{}, errors.Errorf("coefficient output shape %v has a non-positive dimension", shape)
		}
		dims[i] = int(d)
		total *= int(d)
	}
	if total != len(data) {
		return bgu.GridData{}, errors.Errorf("coefficient output shape %v needs %d values, got %d", shape, total, len(data))
	}

	switch {
	case len(dims) == 5 && dims[0] == bgu.Channels && dims[4] == bgu.Coefficients:
		values := make([]float32, len(data))
		copy(values, data)
		return bgu.GridData{
			Dims:   bgu.GridDimensions{Width: dims[3], Height: dims[2], Depth: dims[1]},
			Values: values,
		}, nil

	case len(dims) == 6 && dims[0] == 1 && dims[4] == bgu.Channels && dims[5] == bgu.Coefficients:
		return transposeGridMajor(dims[1], dims[2], dims[3], data)

	case len(dims) == 5 && dims[0] == 1 && dims[4] == bgu.Channels*bgu.Coefficients:
		return transposeGridMajor(dims[1], dims[2], dims[3], data)
	}
	return bgu.GridData{}, errors.Errorf("unsupported coefficient output shape %v", shape)
}

// transposeGridMajor reorders [H][W][D][3][4] values into [3][D][H][W][4].
func transposeGridMajor(h, w, d int, data []float32) (bgu.GridData, error) {
	backing := make([]float32, len(data))
	copy(backing, data)

	t := tensor.New(
		tensor.WithShape(h, w, d, bgu.Channels, bgu.Coefficients),
		tensor.Of(tensor.Float32),
		tensor.WithBacking(backing),
	)
	if err := t.T(3, 2, 0, 1, 4); err != nil {
		return bgu.GridData{}, errors.Wrap(err, "transposing coefficient output")
	}
	if err := t.Transpose(); err != nil {
		return bgu.GridData{}, errors.Wrap(err, "transposing coefficient output")
	}

	values, ok := t.Data().([]float32)
	if !ok {
		return bgu.GridData{}, errors.Errorf("unexpected tensor backing %T", t.Data())
	}
	return bgu.GridData{
		Dims:   bgu.GridDimensions{Width: w, Height: h, Depth: d},
		Values: values,
	}, nil
}
