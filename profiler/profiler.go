// Package profiler - Per-stage frame timing and periodic status reports.
package profiler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Stage names recorded by the render pipeline.
const (
	StageRefresh   = "refresh"
	StageTransform = "transform"
	StageFrame     = "frame"
)

// Options configures a FrameProfiler.
type Options struct {
	// ReportInterval specifies how often to emit status reports (default: 2s).
	ReportInterval time.Duration `json:"reportInterval" yaml:"reportInterval"`
	// MaxSamples specifies how many durations each stage keeps (default: 600).
	MaxSamples int `json:"maxSamples" yaml:"maxSamples"`
	// Output receives the reports (default: os.Stdout).
	Output io.Writer `json:"-" yaml:"-"`
	// Logger receives a one-line summary per report when set.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

// TimeTracker keeps a sliding window of durations for one stage.
type TimeTracker struct {
	name      string
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// Stats is a snapshot of one TimeTracker.
type Stats struct {
	Name  string
	Avg   time.Duration
	Min   time.Duration
	Max   time.Duration
	Count int64
}

// FrameProfiler tracks per-stage durations and the displayed frame rate. It is safe for
// concurrent use.
type FrameProfiler struct {
	opts Options

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	startTime  time.Time
	frames     int64
	lastFrames int64
	lastReport time.Time

	operationTimes map[string]*TimeTracker
}

// New creates a profiler. Reporting starts with Start.
//
// Arguments:
//   - opts: Configuration options; zero fields take defaults.
//
// Returns:
//   - *FrameProfiler: The profiler.
func New(opts Options) *FrameProfiler {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = 2 * time.Second
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	return &FrameProfiler{
		opts:           opts,
		ctx:            ctx,
		cancel:         cancel,
		startTime:      now,
		lastReport:     now,
		operationTimes: make(map[string]*TimeTracker),
	}
}

// Start begins periodic reporting. Calling Start twice has no effect.
func (fp *FrameProfiler) Start() {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if fp.running {
		return
	}
	fp.running = true

	fp.wg.Add(1)
	go func() {
		defer fp.wg.Done()

		ticker := time.NewTicker(fp.opts.ReportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-fp.ctx.Done():
				return
			case <-ticker.C:
				fp.Report(fp.opts.Output)
			}
		}
	}()
}

// Stop ends reporting and waits for the reporter to exit.
func (fp *FrameProfiler) Stop() {
	fp.mu.Lock()
	if !fp.running {
		fp.mu.Unlock()
		return
	}
	fp.running = false
	fp.mu.Unlock()

	fp.cancel()
	fp.wg.Wait()
}

// StartOperation begins timing a stage.
//
// Arguments:
//   - name: The stage to record.
//
// Returns:
//   - func(): Call when the stage completes.
func (fp *FrameProfiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		fp.Record(name, time.Since(start))
	}
}

// Record adds one duration to a stage.
func (fp *FrameProfiler) Record(name string, duration time.Duration) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	tracker, exists := fp.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{
			name:    name,
			minTime: duration,
			maxTime: duration,
		}
		fp.operationTimes[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	tracker.totalTime += duration
	if len(tracker.durations) > fp.opts.MaxSamples {
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// FrameDone counts one presented frame.
func (fp *FrameProfiler) FrameDone() {
	fp.mu.Lock()
	fp.frames++
	fp.mu.Unlock()
}

// Frames returns the number of presented frames.
func (fp *FrameProfiler) Frames() int64 {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.frames
}

// Snapshot returns the stage statistics sorted by name.
func (fp *FrameProfiler) Snapshot() []Stats {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.snapshot()
}

func (fp *FrameProfiler) snapshot() []Stats {
	stats := make([]Stats, 0, len(fp.operationTimes))
	for name, tracker := range fp.operationTimes {
		if len(tracker.durations) == 0 {
			continue
		}
		stats = append(stats, Stats{
			Name:  name,
			Avg:   tracker.totalTime / time.Duration(len(tracker.durations)),
			Min:   tracker.minTime,
			Max:   tracker.maxTime,
			Count: tracker.count,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Report writes a status report covering the time since the previous one.
func (fp *FrameProfiler) Report(w io.Writer) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(fp.lastReport)
	fps := 0.0
	if elapsed > 0 {
		fps = float64(fp.frames-fp.lastFrames) / elapsed.Seconds()
	}
	fp.lastReport = now
	fp.lastFrames = fp.frames

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	var b strings.Builder
	fmt.Fprintf(&b, "STATUS REPORT - %s\n", now.Format("15:04:05.000"))
	fmt.Fprintf(&b, "Uptime: %v  Frames: %d  FPS: %.1f\n",
		now.Sub(fp.startTime).Truncate(time.Millisecond), fp.frames, fps)
	fmt.Fprintf(&b, "Heap: %s  Goroutines: %d  GC: %d\n",
		formatBytes(mem.HeapAlloc), runtime.NumGoroutine(), mem.NumGC)

	stats := fp.snapshot()
	if len(stats) > 0 {
		fmt.Fprintf(&b, "STAGE TIMINGS:\n")
		for _, s := range stats {
			fmt.Fprintf(&b, "  %s: avg=%v, min=%v, max=%v, count=%d\n",
				s.Name, s.Avg.Truncate(time.Microsecond),
				s.Min.Truncate(time.Microsecond),
				s.Max.Truncate(time.Microsecond),
				s.Count)
		}
	}
	io.WriteString(w, b.String())

	if fp.opts.Logger != nil {
		fp.opts.Logger.Debug("frame timings", "fps", fps, "frames", fp.frames)
	}
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
