package cache

import "errors"

var (
	// ErrInvalidMaxSize is returned by New when MaxSize <= 0.
	ErrInvalidMaxSize = errors.New("cache: MaxSize must be greater than 0")

	// ErrMaxSizeTooLarge is returned by New when MaxSize exceeds MaxEntries.
	ErrMaxSizeTooLarge = errors.New("cache: MaxSize exceeds MaxEntries")

	// ErrInvalidInterval is returned by New for a negative PersistDelay.
	ErrInvalidInterval = errors.New("cache: PersistDelay must not be negative")

	// ErrNoLoader is returned by GetOrLoad when no Loader was configured.
	ErrNoLoader = errors.New("cache: no Loader provided")

	// ErrClosed is returned by operations that report errors after Close.
	ErrClosed = errors.New("cache: store is closed")
)
