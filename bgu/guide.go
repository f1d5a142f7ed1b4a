package bgu

import "github.com/chewxy/math32"

// Guide maps a pixel color to its guide value in [0, 1].
//
// The color passes through the color-correction matrix, each resulting channel through its
// piecewise-linear curve (segment i contributes slope_i * clamp(v - shift_i, 0, 1/16)), and the
// three curves are mixed into one scalar. No monotonicity is assumed; only the final clamp bounds
// the result. Non-finite results map to 0.
func Guide(c Color, p *GuideParameters) float32 {
	sum := p.Mix[3]
	for ch := 0; ch < 3; ch++ {
		row := &p.CCM[ch]
		v := row[0]*c[0] + row[1]*c[1] + row[2]*c[2] + row[3]
		sum += p.Mix[ch] * curve(v, p, ch)
	}
	return clampUnit(sum)
}

func curve(v float32, p *GuideParameters, ch int) float32 {
	var out float32
	for i := 0; i < NumSegments; i++ {
		d := v - p.Shifts[i][ch]
		if d <= 0 {
			continue
		}
		if d > SegmentWidth {
			d = SegmentWidth
		}
		out += p.Slopes[i][ch] * d
	}
	return out
}

// clampUnit clamps to [0, 1], sending NaN to 0.
func clampUnit(v float32) float32 {
	switch {
	case math32.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
