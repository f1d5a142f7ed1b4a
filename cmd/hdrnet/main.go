// Command hdrnet renders a live camera feed through bilateral-guided-upsampling filter profiles.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvr-ai/go-hdrnet/capture"
	"github.com/nvr-ai/go-hdrnet/config"
	"github.com/nvr-ai/go-hdrnet/images"
	"github.com/nvr-ai/go-hdrnet/inference"
	"github.com/nvr-ai/go-hdrnet/pipeline"
	"github.com/nvr-ai/go-hdrnet/profile"
	"github.com/nvr-ai/go-hdrnet/profiler"
)

func main() {
	var (
		configPath  string
		deviceID    int
		videoPath   string
		framesDir   string
		profileDir  string
		passThrough bool
		showWindow  bool
		ortLib      string
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML config file")
	flag.IntVar(&deviceID, "device", -1, "Camera device ID (overrides the config)")
	flag.StringVar(&videoPath, "video", "", "Read frames from a video file")
	flag.StringVar(&framesDir, "frames", "", "Read frame-N images from a directory")
	flag.StringVar(&profileDir, "profile", "", "Profile directory to render with (replaces the configured list)")
	flag.BoolVar(&passThrough, "passthrough", false, "Start in pass-through mode")
	flag.BoolVar(&showWindow, "show-window", true, "Show the preview window")
	flag.StringVar(&ortLib, "ort-lib", "", "Path to the ONNX Runtime shared library")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			log.Fatal(err)
		}
	}
	if deviceID >= 0 {
		cfg.Capture.DeviceID = deviceID
	}
	if videoPath != "" {
		cfg.Capture.VideoPath = videoPath
	}
	if framesDir != "" {
		cfg.Capture.FramesDir = framesDir
	}
	if profileDir != "" {
		cfg.Profiles = []profile.Entry{{Path: profileDir}}
		cfg.StartProfile = 0
	}
	if passThrough {
		cfg.Pipeline.Mode = pipeline.PassThrough.String()
	}
	if ortLib != "" {
		cfg.Inference.LibraryPath = ortLib
	}
	cfg.Window.Show = showWindow
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("hdrnet stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var source pipeline.FrameSource
	device := cfg.Capture.Device()
	if cfg.Capture.FramesDir != "" {
		filter, err := cfg.Capture.Filter()
		if err != nil {
			return err
		}
		source = capture.NewDirectory(cfg.Capture.FramesDir, cfg.Capture.Loop, filter, logger)
		device = cfg.Capture.FramesDir
	} else {
		source = capture.NewWebcam(cfg.Capture.WebcamConfig, logger)
	}

	selector, err := profile.NewSelector(cfg.Profiles, cfg.StartProfile)
	if err != nil {
		return err
	}

	manager := profile.NewManager(inference.Factory(cfg.Inference, logger), profile.WithLogger(logger))
	defer func() {
		if err := manager.Close(); err != nil {
			logger.Warn("closing profile", "error", err)
		}
		if err := inference.ShutdownRuntime(); err != nil {
			logger.Warn("shutting down ONNX Runtime", "error", err)
		}
	}()

	cfg.Profiler.Logger = logger
	fp := profiler.New(cfg.Profiler)
	fp.Start()
	defer fp.Stop()

	printBanner(cfg, device)

	var (
		sink   pipeline.Sink
		window *windowSink
	)
	if cfg.Window.Show {
		window = newWindowSink(cfg.Window.Title, cfg.Window.Width, cfg.Window.Height)
		defer window.Close()
		sink = window
	} else {
		sink = pipeline.SinkFunc(func(*images.Image) error { return nil })
	}

	p, err := pipeline.New(manager, source, sink, cfg.Pipeline,
		pipeline.WithLogger(logger),
		pipeline.WithProfiler(fp),
	)
	if err != nil {
		return err
	}

	if err := p.SwitchProfile(ctx, selector.Current()); err != nil {
		return err
	}

	if window == nil {
		return p.Run(ctx)
	}

	if err := source.Open(); err != nil {
		return err
	}
	defer source.Close()

	for window.Open() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := p.Step(ctx); err != nil {
			return err
		}

		switch window.WaitKey(1) {
		case keyEscape, 'q':
			return nil
		case keySpace:
			toggleMode(p, logger)
		case keyUp, 'n':
			switchProfile(ctx, p, selector, selector.Next, logger)
		case keyDown, 'p':
			switchProfile(ctx, p, selector, selector.Prev, logger)
		}
	}
	return nil
}

// toggleMode flips between filtered and pass-through rendering.
func toggleMode(p *pipeline.Pipeline, logger *slog.Logger) {
	mode := pipeline.PassThrough
	if p.Mode() == pipeline.PassThrough {
		mode = pipeline.Filtered
	}
	p.SetMode(mode)
	logger.Info("render mode", "mode", mode.String())
}

// switchProfile moves the selector and activates the new entry. A failed activation moves the
// selector back so it keeps naming the active profile.
func switchProfile(ctx context.Context, p *pipeline.Pipeline, s *profile.Selector, move func() profile.Entry, logger *slog.Logger) {
	previous := s.Index()
	entry := move()
	if err := p.SwitchProfile(ctx, entry); err != nil {
		logger.Warn("keeping previous profile", "requested", entry.String(), "error", err)
		if _, err := s.Select(previous); err != nil {
			logger.Error("restoring profile selection", "index", previous, "error", err)
		}
		return
	}
	fmt.Printf("Filter %d/%d: %s\n", s.Index()+1, s.Len(), entry.String())
}

func printBanner(cfg config.Config, device string) {
	fmt.Printf("\nhdrnet renderer\n")
	fmt.Printf("=====================================\n")
	fmt.Printf("   Input: %s\n", device)
	if cfg.Capture.FramesDir == "" {
		if r, ok := images.LookupResolution(cfg.Capture.Resolution); ok {
			fmt.Printf("   Resolution: %s\n", r)
		} else {
			fmt.Printf("   Resolution: %dx%d\n", cfg.Capture.Width, cfg.Capture.Height)
		}
	}
	fmt.Printf("   Backend: %s\n", cfg.Inference.Backend)
	fmt.Printf("   Mode: %s\n", cfg.Pipeline.Mode)
	fmt.Printf("   Profiles:\n")
	for i, p := range cfg.Profiles {
		marker := " "
		if i == cfg.StartProfile {
			marker = "*"
		}
		fmt.Printf("    %s %d. %s (%s)\n", marker, i+1, p.String(), p.Path)
	}
	if cfg.Window.Show {
		fmt.Printf("   Keys: Up/Down or n/p cycle filters, Space toggles pass-through, q quits\n")
	}
	fmt.Printf("=====================================\n\n")
}
