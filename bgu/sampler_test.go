package bgu

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomGrid(t *testing.T, rng *rand.Rand, dims GridDimensions) *CoefficientGrid {
	t.Helper()
	g, err := NewCoefficientGrid(dims)
	require.NoError(t, err)
	values := make([]float32, dims.Len())
	for i := range values {
		values[i] = rng.Float32()*4 - 2
	}
	require.NoError(t, g.Overwrite(GridData{Dims: dims, Values: values}))
	return g
}

func matrixDistance(a, b AffineMatrix) float64 {
	var sum float64
	for c := 0; c < Channels; c++ {
		for k := 0; k < Coefficients; k++ {
			d := float64(a[c][k] - b[c][k])
			sum += d * d
		}
	}
	return math.Sqrt(sum)
}

func TestSampleAtIntegerCoordinatesIsExact(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	dims := GridDimensions{Width: 5, Height: 4, Depth: 3}
	g := randomGrid(t, rng, dims)

	for z := 0; z < dims.Depth; z++ {
		for y := 0; y < dims.Height; y++ {
			for x := 0; x < dims.Width; x++ {
				got := g.SampleAt(float32(x), float32(y), float32(z))
				require.Equal(t, g.Cell(x, y, z), got, "cell (%d,%d,%d)", x, y, z)
			}
		}
	}
}

func TestSampleNormalizedCorners(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	dims := GridDimensions{Width: 6, Height: 3, Depth: 8}
	g := randomGrid(t, rng, dims)

	assert.Equal(t, g.Cell(0, 0, 0), Sample(0, 0, 0, g))
	assert.Equal(t, g.Cell(5, 2, 7), Sample(1, 1, 1, g))
	assert.Equal(t, g.Cell(5, 0, 7), Sample(1, 0, 1, g))
}

func TestSampleClampsOutOfRange(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	g := randomGrid(t, rng, GridDimensions{Width: 4, Height: 4, Depth: 4})

	assert.Equal(t, Sample(0, 1, 0.5, g), Sample(-3, 7, 0.5, g))
	assert.Equal(t, g.SampleAt(0, 3, 1.5), g.SampleAt(-1, 100, 1.5))
	assert.Equal(t, g.Cell(0, 0, 0), g.SampleAt(float32(math.NaN()), 0, 0))
}

func TestSampleMidpointAveragesNeighbours(t *testing.T) {
	g, err := NewCoefficientGrid(GridDimensions{Width: 2, Height: 2, Depth: 2})
	require.NoError(t, err)

	var lo, hi AffineMatrix
	lo[0][3] = 0
	hi[0][3] = 1
	for z := 0; z < 2; z++ {
		for y := 0; y < 2; y++ {
			g.SetCell(0, y, z, lo)
			g.SetCell(1, y, z, hi)
		}
	}

	assert.InDelta(t, 0.5, g.SampleAt(0.5, 0.3, 0.9)[0][3], 1e-6)
	assert.InDelta(t, 0.25, g.SampleAt(0.25, 1, 0)[0][3], 1e-6)
}

func TestSampleIsLipschitzContinuous(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	dims := GridDimensions{Width: 8, Height: 16, Depth: 4}
	g := randomGrid(t, rng, dims)

	// Values lie in [-2, 2]; inside one cell each coefficient is multilinear with slope at most 4
	// per grid unit along each axis.
	bound := math.Sqrt(float64(Channels*Coefficients)) * 4 * math.Sqrt(3)

	for i := 0; i < 2000; i++ {
		x := float32(rng.Intn(dims.Width - 1))
		y := float32(rng.Intn(dims.Height - 1))
		z := float32(rng.Intn(dims.Depth - 1))
		p := [3]float32{x + rng.Float32(), y + rng.Float32(), z + rng.Float32()}
		q := [3]float32{x + rng.Float32(), y + rng.Float32(), z + rng.Float32()}

		dist := math.Sqrt(float64((p[0]-q[0])*(p[0]-q[0]) + (p[1]-q[1])*(p[1]-q[1]) + (p[2]-q[2])*(p[2]-q[2])))
		got := matrixDistance(g.SampleAt(p[0], p[1], p[2]), g.SampleAt(q[0], q[1], q[2]))
		require.LessOrEqual(t, got, bound*dist+1e-5, "p=%v q=%v", p, q)
	}
}

func TestSampleIsContinuousAcrossCellBoundaries(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	g := randomGrid(t, rng, GridDimensions{Width: 8, Height: 16, Depth: 4})

	const eps = 1e-3
	for x := 1; x < 7; x++ {
		below := g.SampleAt(float32(x)-eps, 5.5, 1.25)
		at := g.SampleAt(float32(x), 5.5, 1.25)
		above := g.SampleAt(float32(x)+eps, 5.5, 1.25)
		assert.Less(t, matrixDistance(below, at), 0.1)
		assert.Less(t, matrixDistance(above, at), 0.1)
	}
}

func TestCenterCellBiasScenario(t *testing.T) {
	dims := GridDimensions{Width: 8, Height: 16, Depth: 4}
	g, err := NewCoefficientGrid(dims)
	require.NoError(t, err)

	center := Identity()
	center[0][3] = -0.5
	g.SetCell(4, 8, 2, center)

	c := Color{0.8, 0.4, 0.2}

	out := Apply(c, g.SampleAt(4, 8, 2))
	assert.InDelta(t, c[0]-0.5, out[0], 1e-6)
	assert.Equal(t, c[1], out[1])
	assert.Equal(t, c[2], out[2])

	normalized := Apply(c, Sample(4.0/7, 8.0/15, 2.0/3, g))
	assert.InDelta(t, c[0]-0.5, normalized[0], 1e-5)

	// Every other node is unaffected.
	for z := 0; z < dims.Depth; z++ {
		for y := 0; y < dims.Height; y++ {
			for x := 0; x < dims.Width; x++ {
				if x == 4 && y == 8 && z == 2 {
					continue
				}
				require.Equal(t, c, Apply(c, g.SampleAt(float32(x), float32(y), float32(z))))
			}
		}
	}
}
