package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-hdrnet/bgu"
	"github.com/nvr-ai/go-hdrnet/images"
	"github.com/nvr-ai/go-hdrnet/profile"
	"github.com/nvr-ai/go-hdrnet/profile/profiletest"
	"github.com/nvr-ai/go-hdrnet/profiler"
)

var testDims = bgu.GridDimensions{Width: 8, Height: 16, Depth: 4}

// countingStages wraps the real per-pixel stages and counts their calls.
type countingStages struct {
	guide, sample, apply atomic.Int64
}

func (c *countingStages) install(p *Pipeline) {
	p.stages = stages{
		guide: func(col bgu.Color, params *bgu.GuideParameters) float32 {
			c.guide.Add(1)
			return bgu.Guide(col, params)
		},
		sample: func(g *bgu.CoefficientGrid, gx, gy, gz float32) bgu.AffineMatrix {
			c.sample.Add(1)
			return g.SampleAt(gx, gy, gz)
		},
		apply: func(col bgu.Color, m bgu.AffineMatrix) bgu.Color {
			c.apply.Add(1)
			return bgu.ApplyClamped(col, m)
		},
	}
}

func (c *countingStages) total() int64 {
	return c.guide.Load() + c.sample.Load() + c.apply.Load()
}

// scriptedSource returns its frames in order, then reports no frame.
type scriptedSource struct {
	mu      sync.Mutex
	frames  []Frame
	opened  bool
	closed  bool
	openErr error
}

func (s *scriptedSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	return s.openErr
}

func (s *scriptedSource) ReadFrame() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return Frame{}, false
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, true
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// recordingSink keeps a checksum of every presented image.
type recordingSink struct {
	mu        sync.Mutex
	checksums []string
	onPresent func(n int)
}

func (s *recordingSink) Present(img *images.Image) error {
	s.mu.Lock()
	s.checksums = append(s.checksums, images.Checksum(img))
	n := len(s.checksums)
	s.mu.Unlock()
	if s.onPresent != nil {
		s.onPresent(n)
	}
	return nil
}

func (s *recordingSink) presented() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.checksums...)
}

func randomImage(rng *rand.Rand, w, h int) *images.Image {
	img := images.NewImage(w, h)
	rng.Read(img.Data)
	return img
}

func newFrame(img *images.Image) Frame {
	return Frame{Full: img, Downscaled: images.Downscale(img, images.BilinearFilter)}
}

func newTestPipeline(t *testing.T, params *bgu.GuideParameters, sources ...*profiletest.Source) (*Pipeline, *profile.Manager) {
	t.Helper()
	m := profile.NewManager(profiletest.Factory(t, sources...))
	require.NoError(t, m.Activate(context.Background(), profile.Entry{Name: "test", Path: profiletest.WriteProfile(t, params)}))
	p, err := New(m, nil, nil, DefaultConfig())
	require.NoError(t, err)
	return p, m
}

func TestIdentityGridReproducesInput(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	p, _ := newTestPipeline(t, bgu.LinearGuideParameters(), profiletest.NewSource(testDims))

	for _, size := range [][2]int{{37, 23}, {1, 1}, {256, 3}} {
		img := randomImage(rng, size[0], size[1])
		out, err := p.RenderFrame(context.Background(), newFrame(img))
		require.NoError(t, err)
		assert.Equal(t, img.Data, out.Data, "%dx%d", size[0], size[1])
	}
}

func TestPassThroughDoesNotTouchCollaborators(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	source := profiletest.NewSource(testDims)
	p, _ := newTestPipeline(t, bgu.LinearGuideParameters(), source)
	var counts countingStages
	counts.install(p)

	p.SetMode(PassThrough)
	img := randomImage(rng, 64, 48)
	want := images.Checksum(img)

	for i := 0; i < 3; i++ {
		out, err := p.RenderFrame(context.Background(), newFrame(img))
		require.NoError(t, err)
		assert.Equal(t, want, images.Checksum(out))
	}

	assert.Zero(t, source.Predicts())
	assert.Zero(t, counts.total())
}

func TestFilteredModeRunsEveryStagePerPixel(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	source := profiletest.NewSource(testDims)
	p, _ := newTestPipeline(t, bgu.LinearGuideParameters(), source)
	var counts countingStages
	counts.install(p)

	_, err := p.RenderFrame(context.Background(), newFrame(randomImage(rng, 20, 10)))
	require.NoError(t, err)

	assert.Equal(t, 1, source.Predicts())
	assert.Equal(t, int64(200), counts.guide.Load())
	assert.Equal(t, int64(200), counts.sample.Load())
	assert.Equal(t, int64(200), counts.apply.Load())
}

func TestCenterCellBiasLowersOnlyThatPixel(t *testing.T) {
	grid, err := bgu.NewCoefficientGrid(testDims)
	require.NoError(t, err)
	center := bgu.Identity()
	center[0][3] = -0.5
	grid.SetCell(4, 8, 2, center)
	data := bgu.GridData{Dims: testDims, Values: grid.Data()}

	source := profiletest.NewSource(testDims)
	source.Data = &data

	// A constant guide of 2/3 lands every pixel on z = 2.
	params := bgu.LinearGuideParameters()
	params.Mix = [4]float32{0, 0, 0, 2.0 / 3}
	p, _ := newTestPipeline(t, params, source)

	// One pixel per grid node in x and y.
	img := images.NewImage(testDims.Width, testDims.Height)
	for i := 0; i < len(img.Data); i += images.BytesPerPixel {
		copy(img.Data[i:], []byte{200, 100, 50, 255})
	}

	out, err := p.RenderFrame(context.Background(), newFrame(img))
	require.NoError(t, err)

	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			i := img.Offset(x, y)
			got := out.Data[i : i+4]
			if x == 4 && y == 8 {
				assert.InDelta(t, 200-127.5, float64(got[0]), 1)
				assert.Equal(t, []byte{100, 50, 255}, got[1:])
				continue
			}
			require.Equal(t, []byte{200, 100, 50, 255}, got, "pixel (%d,%d)", x, y)
		}
	}
}

func TestRefreshFailureReusesLastGrid(t *testing.T) {
	rng := rand.New(rand.NewSource(14))
	source := profiletest.NewSource(testDims)
	darken := bgu.Identity()
	darken[0][0], darken[1][1], darken[2][2] = 0.5, 0.5, 0.5
	data := profiletest.MatrixData(testDims, darken)
	source.Data = &data

	p, _ := newTestPipeline(t, bgu.LinearGuideParameters(), source)
	var warnings []int
	p.onWarn = func(n int, err error) {
		warnings = append(warnings, n)
		assert.Error(t, err)
	}

	img := randomImage(rng, 32, 32)
	first, err := p.RenderFrame(context.Background(), newFrame(img))
	require.NoError(t, err)
	want := images.Checksum(first)

	// The source now fails and would return identity afterwards; the darkened grid stays.
	source.Data = nil
	source.SetPredictErr(errors.New("session lost"))
	for i := 1; i <= 7; i++ {
		out, err := p.RenderFrame(context.Background(), newFrame(img))
		require.NoError(t, err)
		assert.Equal(t, want, images.Checksum(out))
		assert.Equal(t, i, p.ConsecutiveFailures())
	}
	assert.Equal(t, []int{3, 6}, warnings)

	source.SetPredictErr(nil)
	out, err := p.RenderFrame(context.Background(), newFrame(img))
	require.NoError(t, err)
	assert.Equal(t, img.Data, out.Data)
	assert.Zero(t, p.ConsecutiveFailures())
}

func TestRefreshDimensionMismatchReusesLastGrid(t *testing.T) {
	rng := rand.New(rand.NewSource(15))
	source := profiletest.NewSource(testDims)
	wrong := profiletest.IdentityData(bgu.GridDimensions{Width: 2, Height: 2, Depth: 2})
	source.Data = &wrong

	p, _ := newTestPipeline(t, bgu.LinearGuideParameters(), source)
	img := randomImage(rng, 16, 16)
	out, err := p.RenderFrame(context.Background(), newFrame(img))
	require.NoError(t, err)
	assert.Equal(t, img.Data, out.Data, "initial identity grid is kept")
	assert.Equal(t, 1, p.ConsecutiveFailures())
}

func TestSwitchProfile(t *testing.T) {
	rng := rand.New(rand.NewSource(16))
	first := profiletest.NewSource(testDims)
	secondDims := bgu.GridDimensions{Width: 4, Height: 4, Depth: 8}
	second := profiletest.NewSource(secondDims)
	invert := bgu.AffineMatrix{
		{-1, 0, 0, 1},
		{0, -1, 0, 1},
		{0, 0, -1, 1},
	}
	data := profiletest.MatrixData(secondDims, invert)
	second.Data = &data

	p, m := newTestPipeline(t, bgu.LinearGuideParameters(), first, second)
	img := randomImage(rng, 24, 24)

	t.Run("corrupted profile keeps the previous one", func(t *testing.T) {
		dir := profiletest.WriteProfile(t, bgu.LinearGuideParameters())
		require.NoError(t, os.Remove(filepath.Join(dir, bgu.ShiftsFile)))

		err := p.SwitchProfile(context.Background(), profile.Entry{Name: "broken", Path: dir})
		var loadErr *bgu.ParameterLoadError
		require.True(t, errors.As(err, &loadErr))
		assert.Equal(t, "test", p.ActiveProfile().Name)
		assert.Equal(t, testDims, p.ActiveProfile().Dimensions())

		out, err := p.RenderFrame(context.Background(), newFrame(img))
		require.NoError(t, err)
		assert.Equal(t, img.Data, out.Data)
	})

	t.Run("next frame uses the new grid", func(t *testing.T) {
		dir := profiletest.WriteProfile(t, bgu.LinearGuideParameters())
		require.NoError(t, p.SwitchProfile(context.Background(), profile.Entry{Name: "invert", Path: dir}))
		assert.Equal(t, secondDims, m.Active().Dimensions())
		assert.Equal(t, 1, first.Closes())

		out, err := p.RenderFrame(context.Background(), newFrame(img))
		require.NoError(t, err)
		for i := 0; i < len(img.Data); i += images.BytesPerPixel {
			require.InDelta(t, 255-int(img.Data[i]), int(out.Data[i]), 1)
			require.Equal(t, img.Data[i+3], out.Data[i+3])
		}
	})
}

func TestSwitchWaitsForFrameInProgress(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	p, _ := newTestPipeline(t, bgu.LinearGuideParameters(), profiletest.NewSource(testDims), profiletest.NewSource(testDims))

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	p.stages.guide = func(c bgu.Color, params *bgu.GuideParameters) float32 {
		once.Do(func() {
			close(entered)
			<-release
		})
		return bgu.Guide(c, params)
	}
	p.cfg.Workers = 1

	img := randomImage(rng, 8, 8)
	rendered := make(chan error)
	go func() {
		_, err := p.RenderFrame(context.Background(), newFrame(img))
		rendered <- err
	}()
	<-entered

	switched := make(chan error)
	dir := profiletest.WriteProfile(t, bgu.LinearGuideParameters())
	go func() {
		switched <- p.SwitchProfile(context.Background(), profile.Entry{Name: "next", Path: dir})
	}()

	select {
	case <-switched:
		t.Fatal("switch completed while a frame was rendering")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-rendered)
	require.NoError(t, <-switched)
	assert.Equal(t, "next", p.ActiveProfile().Name)
}

func TestFilteredWithoutProfile(t *testing.T) {
	p, err := New(profile.NewManager(profiletest.Factory(t)), nil, nil, DefaultConfig())
	require.NoError(t, err)

	_, err = p.RenderFrame(context.Background(), newFrame(images.NewImage(4, 4)))
	assert.ErrorIs(t, err, profile.ErrNoActiveProfile)

	_, err = p.RenderFrame(context.Background(), Frame{})
	assert.Error(t, err)
}

func TestStepRepresentsPreviousFrame(t *testing.T) {
	rng := rand.New(rand.NewSource(18))
	img := randomImage(rng, 16, 8)
	source := &scriptedSource{frames: []Frame{newFrame(img)}}
	sink := &recordingSink{}

	m := profile.NewManager(profiletest.Factory(t, profiletest.NewSource(testDims)))
	require.NoError(t, m.Activate(context.Background(), profile.Entry{Path: profiletest.WriteProfile(t, bgu.LinearGuideParameters())}))
	fp := profiler.New(profiler.Options{})
	p, err := New(m, source, sink, DefaultConfig(), WithProfiler(fp))
	require.NoError(t, err)

	require.NoError(t, p.Step(context.Background()))
	require.NoError(t, p.Step(context.Background()))
	require.NoError(t, p.Step(context.Background()))

	presented := sink.presented()
	require.Len(t, presented, 3)
	assert.Equal(t, images.Checksum(img), presented[0])
	assert.Equal(t, presented[0], presented[1])
	assert.Equal(t, presented[0], presented[2])
	assert.Equal(t, int64(1), fp.Frames())

	names := make([]string, 0)
	for _, s := range fp.Snapshot() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{profiler.StageFrame, profiler.StageRefresh, profiler.StageTransform}, names)
}

func TestStepWithoutAnyFrame(t *testing.T) {
	sink := &recordingSink{}
	p, err := New(profile.NewManager(profiletest.Factory(t)), &scriptedSource{}, sink, DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, p.Step(context.Background()))
	assert.Empty(t, sink.presented())
}

func TestRun(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	frames := make([]Frame, 4)
	for i := range frames {
		frames[i] = newFrame(randomImage(rng, 12, 12))
	}
	source := &scriptedSource{frames: frames}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &recordingSink{onPresent: func(n int) {
		if n == 6 {
			cancel()
		}
	}}

	m := profile.NewManager(profiletest.Factory(t, profiletest.NewSource(testDims)))
	require.NoError(t, m.Activate(ctx, profile.Entry{Path: profiletest.WriteProfile(t, bgu.LinearGuideParameters())}))
	cfg := DefaultConfig()
	cfg.Mode = PassThrough.String()
	cfg.IdleInterval = time.Millisecond
	p, err := New(m, source, sink, cfg)
	require.NoError(t, err)

	require.NoError(t, p.Run(ctx))

	presented := sink.presented()
	require.GreaterOrEqual(t, len(presented), 6)
	for i, f := range frames {
		assert.Equal(t, images.Checksum(f.Full), presented[i])
	}
	assert.Equal(t, presented[3], presented[5], "last frame is presented again")
	assert.True(t, source.opened)
	assert.True(t, source.closed)
}

func TestRunOpenFailure(t *testing.T) {
	source := &scriptedSource{openErr: errors.New("no device")}
	p, err := New(profile.NewManager(profiletest.Factory(t)), source, &recordingSink{}, DefaultConfig())
	require.NoError(t, err)

	assert.EqualError(t, p.Run(context.Background()), "no device")
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", Filtered, false},
		{"filtered", Filtered, false},
		{"PassThrough", PassThrough, false},
		{"pass-through", PassThrough, false},
		{"sepia", Filtered, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := New(profile.NewManager(profiletest.Factory(t)), nil, nil, Config{Mode: "sepia"})
	assert.Error(t, err)
}

func TestMissingDownscaledUsesConfiguredFilter(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	img := randomImage(rng, 97, 61)

	for _, name := range []string{"nearest", "bilinear", "lanczos"} {
		t.Run(name, func(t *testing.T) {
			filter, err := images.ParseResampleFilter(name)
			require.NoError(t, err)

			source := profiletest.NewSource(testDims)
			m := profile.NewManager(profiletest.Factory(t, source))
			require.NoError(t, m.Activate(context.Background(), profile.Entry{Path: profiletest.WriteProfile(t, bgu.LinearGuideParameters())}))

			cfg := DefaultConfig()
			cfg.DownscaleFilter = name
			p, err := New(m, nil, nil, cfg)
			require.NoError(t, err)

			_, err = p.RenderFrame(context.Background(), Frame{Full: img})
			require.NoError(t, err)

			input := source.LastInput()
			require.NotNil(t, input)
			assert.Equal(t, images.Checksum(images.Downscale(img, filter)), images.Checksum(input))
		})
	}
}

func TestUnknownDownscaleFilter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DownscaleFilter = "area"
	_, err := New(profile.NewManager(profiletest.Factory(t)), nil, nil, cfg)
	assert.Error(t, err)
}

func TestPixelLookupMatchesNormalizedSample(t *testing.T) {
	rng := rand.New(rand.NewSource(22))
	grid, err := bgu.NewCoefficientGrid(testDims)
	require.NoError(t, err)
	for z := 0; z < testDims.Depth; z++ {
		for y := 0; y < testDims.Height; y++ {
			for x := 0; x < testDims.Width; x++ {
				var m bgu.AffineMatrix
				for c := range m {
					for k := range m[c] {
						m[c][k] = rng.Float32()*2 - 1
					}
				}
				grid.SetCell(x, y, z, m)
			}
		}
	}

	const w, h = 41, 29
	depth := float32(testDims.Depth - 1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g := rng.Float32()
			got := defaultStages.sample(grid, gridCoord(x, w, testDims.Width), gridCoord(y, h, testDims.Height), g*depth)
			want := bgu.Sample(float32(x)/float32(w-1), float32(y)/float32(h-1), g, grid)
			for c := range want {
				for k := range want[c] {
					assert.InDelta(t, want[c][k], got[c][k], 1e-4, "pixel (%d,%d) coefficient [%d][%d]", x, y, c, k)
				}
			}
		}
	}
}

func TestGridCoord(t *testing.T) {
	assert.Equal(t, float32(0), gridCoord(0, 1, 8))
	assert.Equal(t, float32(0), gridCoord(0, 640, 16))
	assert.Equal(t, float32(15), gridCoord(639, 640, 16))
	assert.Equal(t, float32(4), gridCoord(4, 8, 8))
}
