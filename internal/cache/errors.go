package cache

import "errors"

var (
	// ErrDuplicateResource means two manifest entries share a file name.
	ErrDuplicateResource = errors.New("duplicate resource name")

	// ErrNotCached means the resource has no entry in the cache index,
	// either because Synchronize never ran or the resource was skipped.
	ErrNotCached = errors.New("resource not cached")

	// ErrDecode means the cached bytes did not decode into the target type.
	// The local file is left as-is until a tag change replaces it.
	ErrDecode = errors.New("resource decode failed")

	// ErrContentTooLarge means a fetched object exceeded the configured cap.
	ErrContentTooLarge = errors.New("resource content too large")

	// ErrResourceMissing is reported in strict mode when a manifest entry
	// has no remote counterpart.
	ErrResourceMissing = errors.New("resource missing from remote")

	// ErrCacheLocked means another process holds the cache directory.
	ErrCacheLocked = errors.New("cache directory locked by another process")
)
