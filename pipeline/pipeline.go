package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-hdrnet/bgu"
	"github.com/nvr-ai/go-hdrnet/images"
	"github.com/nvr-ai/go-hdrnet/profile"
	"github.com/nvr-ai/go-hdrnet/profiler"
)

// stages are the per-pixel operations. Tests replace them to observe calls.
type stages struct {
	guide  func(c bgu.Color, p *bgu.GuideParameters) float32
	sample func(g *bgu.CoefficientGrid, gx, gy, gz float32) bgu.AffineMatrix
	apply  func(c bgu.Color, m bgu.AffineMatrix) bgu.Color
}

var defaultStages = stages{
	guide:  bgu.Guide,
	sample: (*bgu.CoefficientGrid).SampleAt,
	apply:  bgu.ApplyClamped,
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithProfiler records stage timings and presented frames.
func WithProfiler(fp *profiler.FrameProfiler) Option {
	return func(p *Pipeline) {
		p.profiler = fp
	}
}

// WithRefreshWarning registers a callback invoked alongside the warning log whenever the number
// of consecutive refresh failures reaches a multiple of Config.WarnAfter.
func WithRefreshWarning(fn func(failures int, err error)) Option {
	return func(p *Pipeline) {
		p.onWarn = fn
	}
}

// Pipeline renders frames through the active filter profile.
//
// RenderFrame, Step and SwitchProfile share one lock: a profile switch requested while a frame
// is rendering waits for that frame, and the next frame always uses the new profile's grid.
type Pipeline struct {
	mu sync.Mutex

	cfg      Config
	manager  *profile.Manager
	source   FrameSource
	sink     Sink
	logger   *slog.Logger
	profiler *profiler.FrameProfiler
	onWarn   func(int, error)
	stages   stages

	filter   images.ResampleFilter
	mode     Mode
	failures int
	out      *images.Image
	last     *images.Image
}

// New creates a pipeline.
//
// Arguments:
//   - manager: Owns the active filter profile.
//   - source: Supplies frames to Step and Run; may be nil when only RenderFrame is used.
//   - sink: Receives presented frames; may be nil when only RenderFrame is used.
//   - cfg: Pipeline configuration.
//   - opts: Optional settings.
//
// Returns:
//   - *Pipeline: The pipeline.
//   - error: An error if the configured mode or downscale filter is unknown.
func New(manager *profile.Manager, source FrameSource, sink Sink, cfg Config, opts ...Option) (*Pipeline, error) {
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	filter, err := images.ParseResampleFilter(cfg.DownscaleFilter)
	if err != nil {
		return nil, err
	}
	if cfg.WarnAfter <= 0 {
		cfg.WarnAfter = DefaultConfig().WarnAfter
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = DefaultConfig().IdleInterval
	}

	p := &Pipeline{
		cfg:     cfg,
		manager: manager,
		source:  source,
		sink:    sink,
		logger:  slog.Default(),
		stages:  defaultStages,
		filter:  filter,
		mode:    mode,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Mode returns the render mode.
func (p *Pipeline) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// SetMode changes the render mode from the next frame on.
func (p *Pipeline) SetMode(m Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = m
}

// ConsecutiveFailures returns the number of refreshes that have failed in a row.
func (p *Pipeline) ConsecutiveFailures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

// ActiveProfile returns the profile the next filtered frame will use.
func (p *Pipeline) ActiveProfile() *profile.FilterProfile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.manager.Active()
}

// SwitchProfile activates entry, waiting for any frame in progress. On failure the previous
// profile stays active.
func (p *Pipeline) SwitchProfile(ctx context.Context, entry profile.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.manager.Activate(ctx, entry); err != nil {
		return err
	}
	p.failures = 0
	return nil
}

// RenderFrame renders one frame according to the current mode.
//
// In pass-through mode the full-resolution image is returned as is and no coefficient source or
// per-pixel stage is called. In filtered mode the active grid is refreshed from the downscaled
// image and every pixel is transformed; a failed refresh reuses the previous grid contents. The
// returned image is owned by the pipeline and valid until the next call.
//
// Returns:
//   - *images.Image: The image to present.
//   - error: An error if the frame is invalid or no profile is active in filtered mode.
func (p *Pipeline) RenderFrame(ctx context.Context, frame Frame) (*images.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.render(ctx, frame)
}

func (p *Pipeline) render(ctx context.Context, frame Frame) (*images.Image, error) {
	if frame.Full == nil {
		return nil, errors.New("frame has no image")
	}
	if err := frame.Full.Validate(); err != nil {
		return nil, err
	}

	if p.mode == PassThrough {
		p.last = frame.Full
		return frame.Full, nil
	}

	active := p.manager.Active()
	if active == nil {
		return nil, profile.ErrNoActiveProfile
	}

	if p.profiler != nil {
		defer p.profiler.StartOperation(profiler.StageFrame)()
	}

	p.refresh(ctx, frame)

	if p.out == nil || !p.out.SameSize(frame.Full) {
		p.out = images.NewImage(frame.Full.Width, frame.Full.Height)
	}

	done := p.timed(profiler.StageTransform)
	p.transform(frame.Full, p.out, active)
	done()

	p.last = p.out
	return p.out, nil
}

func (p *Pipeline) refresh(ctx context.Context, frame Frame) {
	downscaled := frame.Downscaled
	if downscaled == nil {
		downscaled = images.Downscale(frame.Full, p.filter)
	}

	done := p.timed(profiler.StageRefresh)
	err := p.manager.Refresh(ctx, downscaled)
	done()

	if err == nil {
		if p.failures > 0 {
			p.logger.Info("coefficient refresh recovered", "failures", p.failures)
		}
		p.failures = 0
		return
	}

	p.failures++
	p.logger.Debug("coefficient refresh failed, reusing previous grid",
		"failures", p.failures,
		"error", err,
	)
	if p.failures%p.cfg.WarnAfter == 0 {
		p.logger.Warn("coefficient refresh keeps failing",
			"failures", p.failures,
			"profile", p.manager.Active().String(),
			"error", err,
		)
		if p.onWarn != nil {
			p.onWarn(p.failures, err)
		}
	}
}

func (p *Pipeline) timed(stage string) func() {
	if p.profiler == nil {
		return func() {}
	}
	return p.profiler.StartOperation(stage)
}

// transform runs the per-pixel stage over src into dst in parallel row bands. Alpha is copied
// through.
//
// This is bgu.Sample with the normalized (u, v) = (x/(W-1), y/(H-1)) folded into gridCoord:
// pixel (x, y) maps straight to grid coordinates x*(gridW-1)/(W-1) and y*(gridH-1)/(H-1) and is
// looked up with SampleAt, so the image corners land exactly on the grid corners.
func (p *Pipeline) transform(src, dst *images.Image, active *profile.FilterProfile) {
	grid := active.Grid
	params := active.Params
	dims := grid.Dimensions()
	depth := float32(dims.Depth - 1)
	st := p.stages
	w, h := src.Width, src.Height

	images.Parallel(p.cfg.Workers, h, func(rowStart, rowEnd int) {
		for y := rowStart; y < rowEnd; y++ {
			gy := gridCoord(y, h, dims.Height)
			i := src.Offset(0, y)
			for x := 0; x < w; x++ {
				c := bgu.ColorFromRGBA8(src.Data[i], src.Data[i+1], src.Data[i+2])
				g := st.guide(c, params)
				m := st.sample(grid, gridCoord(x, w, dims.Width), gy, g*depth)
				dst.Data[i], dst.Data[i+1], dst.Data[i+2] = st.apply(c, m).RGBA8()
				dst.Data[i+3] = src.Data[i+3]
				i += images.BytesPerPixel
			}
		}
	})
}

// gridCoord maps pixel index i on an axis of n pixels to the grid axis of cells nodes.
func gridCoord(i, n, cells int) float32 {
	if n <= 1 {
		return 0
	}
	return float32(i*(cells-1)) / float32(n-1)
}

// Step reads one frame, renders it and presents the result. When the source has no new frame
// the previously presented image is presented again; that is not an error.
func (p *Pipeline) Step(ctx context.Context) error {
	_, err := p.step(ctx)
	return err
}

func (p *Pipeline) step(ctx context.Context) (bool, error) {
	if p.source == nil || p.sink == nil {
		return false, errors.New("pipeline has no frame source or sink")
	}

	frame, ok := p.source.ReadFrame()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !ok {
		if p.last == nil {
			return false, nil
		}
		return false, errors.Wrap(p.sink.Present(p.last), "present previous frame")
	}

	out, err := p.render(ctx, frame)
	if err != nil {
		return true, err
	}
	if err := p.sink.Present(out); err != nil {
		return true, errors.Wrap(err, "present frame")
	}
	if p.profiler != nil {
		p.profiler.FrameDone()
	}
	return true, nil
}

// Run opens the frame source and renders frames until ctx is cancelled or a step fails.
//
// Returns:
//   - error: The capture or render error that stopped the loop; nil when ctx was cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.source == nil || p.sink == nil {
		return errors.New("pipeline has no frame source or sink")
	}
	if err := p.source.Open(); err != nil {
		return err
	}
	defer func() {
		if err := p.source.Close(); err != nil {
			p.logger.Warn("closing frame source", "error", err)
		}
	}()

	idle := time.NewTimer(0)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		got, err := p.step(ctx)
		if err != nil {
			return err
		}
		if got {
			continue
		}

		idle.Reset(p.cfg.IdleInterval)
		select {
		case <-ctx.Done():
			return nil
		case <-idle.C:
		}
	}
}
