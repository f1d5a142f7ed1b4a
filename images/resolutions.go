package images

import (
	"fmt"
	"math"
	"strings"
)

// Resolution is a named capture size.
type Resolution struct {
	Name   string `json:"name"   yaml:"name"`
	Width  int    `json:"width"  yaml:"width"`
	Height int    `json:"height" yaml:"height"`
}

// MegaPixels returns the pixel count in millions, rounded to two decimal places.
func (r Resolution) MegaPixels() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	mp := float64(r.Width*r.Height) / 1_000_000.0
	return math.Round(mp*100) / 100
}

// String returns a human-readable summary of the resolution.
func (r Resolution) String() string {
	return fmt.Sprintf("%s (%dx%d, %.2fMP)", r.Name, r.Width, r.Height, r.MegaPixels())
}

// resolutions lists the capture sizes cameras commonly offer, smallest first.
var resolutions = []Resolution{
	{Name: "qvga", Width: 320, Height: 240},
	{Name: "vga", Width: 640, Height: 480},
	{Name: "svga", Width: 800, Height: 600},
	{Name: "720p", Width: 1280, Height: 720},
	{Name: "sxga", Width: 1280, Height: 1024},
	{Name: "1080p", Width: 1920, Height: 1080},
	{Name: "1440p", Width: 2560, Height: 1440},
	{Name: "4k", Width: 3840, Height: 2160},
}

// resolutionAliases maps alternative spellings to a resolution name.
var resolutionAliases = map[string]string{
	"480p":  "vga",
	"hd":    "720p",
	"fhd":   "1080p",
	"qhd":   "1440p",
	"uhd":   "4k",
	"2160p": "4k",
}

// LookupResolution finds a resolution by name or alias, ignoring case.
//
// Arguments:
//   - name: A name such as "vga", "720p" or "fhd".
//
// Returns:
//   - Resolution: The resolution.
//   - bool: False if the name is unknown.
func LookupResolution(name string) (Resolution, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := resolutionAliases[key]; ok {
		key = alias
	}
	for _, r := range resolutions {
		if r.Name == key {
			return r, true
		}
	}
	return Resolution{}, false
}
