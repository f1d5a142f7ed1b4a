package bgu

// Color is a linear RGB triple; displayable values lie in [0, 1].
type Color [3]float32

// ColorFromRGBA8 converts 8-bit channels to a Color.
func ColorFromRGBA8(r, g, b uint8) Color {
	return Color{float32(r) / 255, float32(g) / 255, float32(b) / 255}
}

// RGBA8 quantizes a color to 8 bits per channel, clamping first and rounding half up.
func (c Color) RGBA8() (r, g, b uint8) {
	c = c.Clamp()
	return uint8(c[0]*255 + 0.5), uint8(c[1]*255 + 0.5), uint8(c[2]*255 + 0.5)
}

// Clamp restricts every channel to the displayable range.
func (c Color) Clamp() Color {
	return Color{clampUnit(c[0]), clampUnit(c[1]), clampUnit(c[2])}
}

// Apply transforms a color by an affine matrix:
//
//	out[c] = m[c][0]*r + m[c][1]*g + m[c][2]*b + m[c][3]
//
// The result is not clamped, so Apply is exactly linear in the color for a fixed matrix (up to
// float rounding). Use ApplyClamped for display output.
func Apply(c Color, m AffineMatrix) Color {
	var out Color
	for row := 0; row < 3; row++ {
		out[row] = m[row][0]*c[0] + m[row][1]*c[1] + m[row][2]*c[2] + m[row][3]
	}
	return out
}

// ApplyClamped is Apply followed by Clamp.
func ApplyClamped(c Color, m AffineMatrix) Color {
	return Apply(c, m).Clamp()
}
