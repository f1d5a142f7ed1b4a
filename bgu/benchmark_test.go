package bgu

import (
	"math/rand"
	"testing"
)

func BenchmarkGuide(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	p := randomParameters(rng, 1)
	c := Color{0.3, 0.6, 0.9}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Guide(c, p)
	}
}

func BenchmarkSampleAt_16x16x8(b *testing.B) {
	g, err := NewCoefficientGrid(GridDimensions{Width: 16, Height: 16, Depth: 8})
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = g.SampleAt(7.3, 4.9, 3.5)
	}
}
