package profile

import (
	"fmt"

	"github.com/nvr-ai/go-hdrnet/bgu"
)

// Entry names a selectable filter profile.
type Entry struct {
	// Name is shown to the user.
	Name string `json:"name" yaml:"name"`
	// Path is the profile directory holding the guide parameters and model.
	Path string `json:"path" yaml:"path"`
}

func (e Entry) String() string {
	if e.Name == "" {
		return e.Path
	}
	return e.Name
}

// State is the lifecycle state of the managed profile.
type State int

const (
	// Unloaded means no profile is active.
	Unloaded State = iota
	// Loading means an activation is in progress.
	Loading
	// Active means a profile is ready to render.
	Active
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Active:
		return "active"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// FilterProfile is a fully loaded profile: its guide parameters, the grid allocated at the
// dimensions its source declared, and the source itself.
type FilterProfile struct {
	Entry
	Params *bgu.GuideParameters
	Grid   *bgu.CoefficientGrid
	Source CoefficientSource
}

// Dimensions returns the grid dimensions fixed at activation.
func (p *FilterProfile) Dimensions() bgu.GridDimensions {
	return p.Grid.Dimensions()
}
