package profile

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoActiveProfile is returned when an operation needs an active profile and there is none.
	ErrNoActiveProfile = errors.New("no active profile")
	// ErrIndexOutOfRange is returned when a profile index does not name an entry.
	ErrIndexOutOfRange = errors.New("profile index out of range")
)

// InferenceError reports that a CoefficientSource call failed or was cancelled.
type InferenceError struct {
	Profile string
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("coefficient inference for profile %q failed: %v", e.Profile, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
