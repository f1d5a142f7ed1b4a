// Package bgu implements bilateral-guided upsampling: a per-pixel affine color transform selected
// from a small 3-D grid of coefficients by a learned scalar guide value.
//
// The per-pixel stages are pure functions and safe to call concurrently:
//
//	guide := bgu.Guide(color, params)
//	m := bgu.Sample(u, v, guide, grid)
//	out := bgu.Apply(color, m).Clamp()
//
// A CoefficientGrid is written only between frames (see Overwrite) and read concurrently during
// a frame's render pass.
package bgu
