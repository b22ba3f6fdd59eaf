package domain

import "errors"

var (
	// ErrNotFound is returned by stores when no event matches a lookup.
	ErrNotFound = errors.New("event not found")

	// ErrDuplicateFilename is returned by Create when an event for the same
	// filename already exists.
	ErrDuplicateFilename = errors.New("event for filename already exists")

	ErrEmptyFilename    = errors.New("filename is required")
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrNoFile is returned by the upload path when the request carries no file.
	ErrNoFile = errors.New("no file uploaded")
)
