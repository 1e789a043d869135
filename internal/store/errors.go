package store

import "errors"

var (
	// ErrStoreMissing: no store file at the configured path.
	ErrStoreMissing = errors.New("district store file is missing")

	// ErrStoreCorrupt: the file exists but its metadata header or integrity
	// check failed.
	ErrStoreCorrupt = errors.New("district store is corrupt")

	// ErrVersionMismatch: the store was written by a newer builder than this
	// binary knows.
	ErrVersionMismatch = errors.New("district store builder version is newer than supported")
)
