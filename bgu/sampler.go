package bgu

import "github.com/chewxy/math32"

// AffineMatrix maps (r, g, b, 1) to three output channels: three weights and a bias per row.
type AffineMatrix [Channels][Coefficients]float32

// Identity returns the matrix that leaves colors unchanged.
func Identity() AffineMatrix {
	return AffineMatrix{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}
}

// Sample trilinearly interpolates the grid at normalized coordinates. u, v and guide are
// clamped to [0, 1] and mapped to (u*(W-1), v*(H-1), guide*(D-1)).
func Sample(u, v, guide float32, g *CoefficientGrid) AffineMatrix {
	d := g.dims
	return g.SampleAt(
		clampUnit(u)*float32(d.Width-1),
		clampUnit(v)*float32(d.Height-1),
		clampUnit(guide)*float32(d.Depth-1),
	)
}

// SampleAt trilinearly interpolates the grid at continuous grid coordinates. Coordinates are
// clamped to [0, dim-1]; there is no wraparound. Integer coordinates return the stored cell
// exactly.
func (g *CoefficientGrid) SampleAt(gx, gy, gz float32) AffineMatrix {
	d := g.dims
	x0, x1, fx := axis(gx, d.Width)
	y0, y1, fy := axis(gy, d.Height)
	z0, z1, fz := axis(gz, d.Depth)

	var m AffineMatrix
	for c := 0; c < Channels; c++ {
		c000 := g.data[g.offset(c, x0, y0, z0):]
		c100 := g.data[g.offset(c, x1, y0, z0):]
		c010 := g.data[g.offset(c, x0, y1, z0):]
		c110 := g.data[g.offset(c, x1, y1, z0):]
		c001 := g.data[g.offset(c, x0, y0, z1):]
		c101 := g.data[g.offset(c, x1, y0, z1):]
		c011 := g.data[g.offset(c, x0, y1, z1):]
		c111 := g.data[g.offset(c, x1, y1, z1):]

		for k := 0; k < Coefficients; k++ {
			x00 := lerp(c000[k], c100[k], fx)
			x10 := lerp(c010[k], c110[k], fx)
			x01 := lerp(c001[k], c101[k], fx)
			x11 := lerp(c011[k], c111[k], fx)

			m[c][k] = lerp(lerp(x00, x10, fy), lerp(x01, x11, fy), fz)
		}
	}
	return m
}

// axis splits a continuous coordinate on an axis of n cells into the two neighbouring cell
// indices and the fractional weight of the upper one.
func axis(p float32, n int) (int, int, float32) {
	hi := n - 1
	switch {
	case math32.IsNaN(p) || p <= 0:
		return 0, 0, 0
	case p >= float32(hi):
		return hi, hi, 0
	}
	fl := math32.Floor(p)
	i := int(fl)
	return i, i + 1, p - fl
}

// lerp is written as a + (b-a)*t so that t == 0 yields a exactly and equal endpoints are
// reproduced without rounding.
func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}
