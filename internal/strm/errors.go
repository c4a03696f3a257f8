package strm

import "errors"

var (
	// ErrMaterializationFailed is returned when pointer files could not be written.
	ErrMaterializationFailed = errors.New("materialization failed")

	// ErrNoPlayableFiles is returned when none of a job's files can be materialized.
	ErrNoPlayableFiles = errors.New("no playable files")

	// ErrPathTraversal indicates a derived path would escape its library root.
	ErrPathTraversal = errors.New("path traversal detected")
)
