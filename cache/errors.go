package cache

import "errors"

// ErrNoLoader is returned by GetWithLoader when no loader was configured
// and none was passed at the call site.
var ErrNoLoader = errors.New("cache: no loader configured")

// ErrInvalidLoadResult is reported when a BulkLoader.LoadAll result is
// missing a requested key, wrapped with that key's load failure.
var ErrInvalidLoadResult = errors.New("cache: loader returned an invalid result")

// ErrClosed is returned by operations attempted after Close.
var ErrClosed = errors.New("cache: closed")

// LoadFailure wraps an error raised by a user-supplied Loader or BulkLoader.
// Unwrap returns the original cause.
type LoadFailure struct {
	Key any
	Err error
}

func (f *LoadFailure) Error() string {
	return "cache: load failed: " + f.Err.Error()
}

func (f *LoadFailure) Unwrap() error { return f.Err }
