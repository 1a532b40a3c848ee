package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks bad caller input: non-positive grid precision,
	// out-of-range coordinates, non-finite weather readings.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrProviderFailure wraps any error returned while fetching weather upstream.
	ErrProviderFailure = errors.New("weather provider failure")

	// ErrProviderTimeout is a ErrProviderFailure caused by the fetch deadline.
	ErrProviderTimeout = fmt.Errorf("%w: timeout", ErrProviderFailure)
)
