package capture

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-hdrnet/images"
	"github.com/nvr-ai/go-hdrnet/pipeline"
)

// FrameFile is one numbered frame on disk.
type FrameFile struct {
	// Path is the path to the image file.
	Path string
	// Frame is the frame number parsed from the file name.
	Frame int
}

// ListFrames returns the frame-N.(jpg|jpeg|png) files in dir sorted by frame number. Other
// files are ignored.
//
// Arguments:
//   - dir: Directory containing the frames.
//
// Returns:
//   - []FrameFile: The frames in playback order.
//   - error: An error if the directory cannot be read.
func ListFrames(dir string) ([]FrameFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var frames []FrameFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		switch ext {
		case ".jpg", ".jpeg", ".png":
		default:
			continue
		}
		if !strings.HasPrefix(name, "frame-") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "frame-"), filepath.Ext(name)))
		if err != nil {
			continue
		}
		frames = append(frames, FrameFile{Path: filepath.Join(dir, name), Frame: n})
	}

	sort.Slice(frames, func(i, j int) bool {
		return frames[i].Frame < frames[j].Frame
	})
	return frames, nil
}

// Directory plays back numbered image files as frames.
type Directory struct {
	dir    string
	loop   bool
	filter images.ResampleFilter
	logger *slog.Logger
	frames []FrameFile
	next   int
}

var _ pipeline.FrameSource = (*Directory)(nil)

// NewDirectory creates a source over dir. With loop set playback restarts after the last frame.
// filter builds the 256x256 companion of every frame.
func NewDirectory(dir string, loop bool, filter images.ResampleFilter, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{dir: dir, loop: loop, filter: filter, logger: logger}
}

// Open lists the frames.
//
// Returns:
//   - error: A *CaptureError if the directory is unreadable or holds no frames.
func (d *Directory) Open() error {
	frames, err := ListFrames(d.dir)
	if err != nil {
		return &CaptureError{Device: d.dir, Err: err}
	}
	if len(frames) == 0 {
		return &CaptureError{Device: d.dir, Err: errors.New("no frame-N images found")}
	}
	d.frames = frames
	d.next = 0
	d.logger.Info("capture opened", "device", d.dir, "frames", len(frames))
	return nil
}

// Frames returns the frames found by Open.
func (d *Directory) Frames() []FrameFile {
	return d.frames
}

// ReadFrame decodes the next file. A file that fails to decode is skipped and reported as no
// frame.
func (d *Directory) ReadFrame() (pipeline.Frame, bool) {
	if d.next >= len(d.frames) {
		if !d.loop || len(d.frames) == 0 {
			return pipeline.Frame{}, false
		}
		d.next = 0
	}
	f := d.frames[d.next]
	d.next++

	img, err := decodeFile(f.Path)
	if err != nil {
		d.logger.Warn("skipping frame", "path", f.Path, "error", err)
		return pipeline.Frame{}, false
	}
	full := images.FromImage(img)
	return pipeline.Frame{
		Full:       full,
		Downscaled: images.Downscale(full, d.filter),
	}, true
}

// Close releases nothing; it exists to satisfy pipeline.FrameSource.
func (d *Directory) Close() error {
	return nil
}

func decodeFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return img, nil
}
