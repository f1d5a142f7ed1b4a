package profile

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-hdrnet/bgu"
	"github.com/nvr-ai/go-hdrnet/images"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// Manager owns the single active FilterProfile.
//
// A Manager is not safe for concurrent use; the render pipeline serializes access to it.
type Manager struct {
	factory SourceFactory
	logger  *slog.Logger
	state   State
	active  *FilterProfile
}

// NewManager creates a Manager with no active profile.
//
// Arguments:
//   - factory: Creates one CoefficientSource per activation.
//   - opts: Optional settings.
//
// Returns:
//   - *Manager: The manager in the Unloaded state.
func NewManager(factory SourceFactory, opts ...Option) *Manager {
	m := &Manager{
		factory: factory,
		logger:  slog.Default(),
		state:   Unloaded,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return m.state
}

// Active returns the active profile, or nil when none is loaded.
func (m *Manager) Active() *FilterProfile {
	return m.active
}

// Activate loads the profile named by entry and makes it active.
//
// The new profile is built completely (guide parameters, source, grid) before it replaces the
// active one. On any failure the previous profile, if there was one, stays active unchanged and
// the error is returned. On success the previous profile's source is closed.
//
// Arguments:
//   - ctx: Bounds the source's profile load.
//   - entry: The profile to activate.
//
// Returns:
//   - error: A *bgu.ParameterLoadError, a source load error or a grid allocation error.
func (m *Manager) Activate(ctx context.Context, entry Entry) error {
	previous := m.state
	m.state = Loading

	next, err := m.load(ctx, entry)
	if err != nil {
		m.state = previous
		if m.active == nil {
			m.state = Unloaded
		}
		m.logger.Warn("profile activation failed",
			"profile", entry.String(),
			"path", entry.Path,
			"error", err,
		)
		return err
	}

	old := m.active
	m.active = next
	m.state = Active
	m.logger.Info("profile activated",
		"profile", entry.String(),
		"grid", next.Dimensions().String(),
	)

	if old != nil {
		if err := old.Source.Close(); err != nil {
			m.logger.Warn("closing previous coefficient source", "profile", old.String(), "error", err)
		}
	}
	return nil
}

// Switch replaces the active profile with entry. It requires an active profile; use Activate
// for the first load.
func (m *Manager) Switch(ctx context.Context, entry Entry) error {
	if m.active == nil {
		return ErrNoActiveProfile
	}
	return m.Activate(ctx, entry)
}

func (m *Manager) load(ctx context.Context, entry Entry) (*FilterProfile, error) {
	params, err := bgu.LoadGuideParameters(entry.Path)
	if err != nil {
		return nil, err
	}

	source := m.factory()
	dims, err := source.LoadProfile(ctx, entry.Path)
	if err != nil {
		m.closeSource(entry, source)
		return nil, errors.Wrapf(err, "loading coefficient source for %q", entry.String())
	}

	grid, err := bgu.NewCoefficientGrid(dims)
	if err != nil {
		m.closeSource(entry, source)
		return nil, errors.Wrapf(err, "allocating grid for %q", entry.String())
	}

	return &FilterProfile{
		Entry:  entry,
		Params: params,
		Grid:   grid,
		Source: source,
	}, nil
}

// closeSource releases a source that never became active.
func (m *Manager) closeSource(entry Entry, source CoefficientSource) {
	if err := source.Close(); err != nil {
		m.logger.Warn("closing coefficient source", "profile", entry.String(), "error", err)
	}
}

// Refresh requests new coefficients for the downscaled frame and overwrites the active grid in
// place. On failure the grid keeps its previous contents.
//
// Returns:
//   - error: ErrNoActiveProfile, an *InferenceError or a *bgu.DimensionMismatchError.
func (m *Manager) Refresh(ctx context.Context, downscaled *images.Image) error {
	p := m.active
	if p == nil {
		return ErrNoActiveProfile
	}

	if err := ctx.Err(); err != nil {
		return &InferenceError{Profile: p.String(), Err: err}
	}
	data, err := p.Source.Predict(ctx, downscaled)
	if err != nil {
		return &InferenceError{Profile: p.String(), Err: err}
	}
	return p.Grid.Overwrite(data)
}

// Close releases the active profile and returns to the Unloaded state.
func (m *Manager) Close() error {
	p := m.active
	m.active = nil
	m.state = Unloaded
	if p == nil {
		return nil
	}
	return errors.Wrapf(p.Source.Close(), "closing coefficient source for %q", p.String())
}
