package bgu

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// NumSegments is the number of piecewise-linear segments in each guide curve.
const NumSegments = 16

// SegmentWidth is the input range covered by one curve segment.
const SegmentWidth = float32(1) / NumSegments

// Guide parameter file names inside a profile directory.
const (
	CCMFile    = "guide_ccm_f32_3x4.bin"
	MixFile    = "guide_mix_matrix_f32_1x4.bin"
	ShiftsFile = "guide_shifts_f32_16x3.bin"
	SlopesFile = "guide_slopes_f32_16x3.bin"
)

// GuideParameters are the learned constants mapping a pixel color to a guide value. They are
// loaded once per profile activation and never mutated afterwards.
type GuideParameters struct {
	// CCM is the color-correction matrix; row c produces intermediate channel c and column 3 is
	// the bias.
	CCM [3][4]float32
	// Mix holds the three channel weights followed by a bias.
	Mix [4]float32
	// Shifts[i][c] is the start of segment i for channel c.
	Shifts [NumSegments][3]float32
	// Slopes[i][c] is the slope of segment i for channel c.
	Slopes [NumSegments][3]float32
}

// parameterFile couples a file name with the floats it decodes into or encodes from.
type parameterFile struct {
	name string
	data []float32
}

// flat lays the parameters out in file order.
func (p *GuideParameters) flat() []parameterFile {
	ccm := make([]float32, 0, 12)
	for _, row := range p.CCM {
		ccm = append(ccm, row[:]...)
	}
	shifts := make([]float32, 0, NumSegments*3)
	slopes := make([]float32, 0, NumSegments*3)
	for i := 0; i < NumSegments; i++ {
		shifts = append(shifts, p.Shifts[i][:]...)
		slopes = append(slopes, p.Slopes[i][:]...)
	}
	return []parameterFile{
		{CCMFile, ccm},
		{MixFile, append([]float32(nil), p.Mix[:]...)},
		{ShiftsFile, shifts},
		{SlopesFile, slopes},
	}
}

// LoadGuideParameters reads the four guide parameter blobs from a profile directory. Every file
// must hold exactly the expected number of little-endian float32 values.
//
// Nothing is returned unless all four files load; callers never observe partial parameters.
func LoadGuideParameters(dir string) (*GuideParameters, error) {
	var (
		ccm    [12]float32
		mix    [4]float32
		shifts [NumSegments * 3]float32
		slopes [NumSegments * 3]float32
	)
	for _, f := range []parameterFile{
		{CCMFile, ccm[:]},
		{MixFile, mix[:]},
		{ShiftsFile, shifts[:]},
		{SlopesFile, slopes[:]},
	} {
		if err := readFloats(filepath.Join(dir, f.name), f.data); err != nil {
			return nil, err
		}
	}

	p := &GuideParameters{Mix: mix}
	for r := 0; r < 3; r++ {
		copy(p.CCM[r][:], ccm[r*4:r*4+4])
	}
	for i := 0; i < NumSegments; i++ {
		copy(p.Shifts[i][:], shifts[i*3:i*3+3])
		copy(p.Slopes[i][:], slopes[i*3:i*3+3])
	}
	return p, nil
}

func readFloats(path string, dst []float32) error {
	want := len(dst) * 4
	raw, err := os.ReadFile(path)
	if err != nil {
		return &ParameterLoadError{Path: path, Want: want, Got: -1, Err: err}
	}
	if len(raw) != want {
		return &ParameterLoadError{Path: path, Want: want, Got: len(raw)}
	}
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return nil
}

// Save writes the parameters in the on-disk layout read by LoadGuideParameters.
func (p *GuideParameters) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create profile directory %s", dir)
	}
	for _, f := range p.flat() {
		var buf bytes.Buffer
		if err := binary.Write(&buf, binary.LittleEndian, f.data); err != nil {
			return errors.Wrapf(err, "encode %s", f.name)
		}
		if err := os.WriteFile(filepath.Join(dir, f.name), buf.Bytes(), 0o644); err != nil {
			return errors.Wrapf(err, "write %s", f.name)
		}
	}
	return nil
}

// LinearGuideParameters returns parameters whose guide is the clamped average of the three
// color channels: identity color matrix, unit slopes on consecutive segments, equal mix weights.
func LinearGuideParameters() *GuideParameters {
	p := &GuideParameters{
		CCM: [3][4]float32{
			{1, 0, 0, 0},
			{0, 1, 0, 0},
			{0, 0, 1, 0},
		},
		Mix: [4]float32{1.0 / 3, 1.0 / 3, 1.0 / 3, 0},
	}
	for i := 0; i < NumSegments; i++ {
		shift := float32(i) * SegmentWidth
		p.Shifts[i] = [3]float32{shift, shift, shift}
		p.Slopes[i] = [3]float32{1, 1, 1}
	}
	return p
}
