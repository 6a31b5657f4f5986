package overlay

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for values outside the accepted range,
	// such as a single-frame image.
	ErrInvalidArgument = errors.New("overlay: invalid argument")
	// ErrNullArgument is returned when a required value is nil.
	ErrNullArgument = errors.New("overlay: null argument")
	// ErrProviderFailure wraps errors returned by the data provider.
	ErrProviderFailure = errors.New("overlay: provider failure")
	// ErrDispatchFailure wraps errors from marshalling work onto the UI
	// goroutine.
	ErrDispatchFailure = errors.New("overlay: dispatch failure")
)

func providerErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrProviderFailure, op, err)
}

func dispatchErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDispatchFailure, op, err)
}
