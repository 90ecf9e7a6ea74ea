package downloader

import (
	"context"
	"errors"

	"scrollgrab/cf"
)

var (
	// ErrUnsupportedFormat marks an image URL whose extension is not saved
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrEmptyExport means the canvas export returned no data
	ErrEmptyExport = errors.New("canvas export returned no data")

	// ErrNotFound means an element wait expired with nothing present
	ErrNotFound = errors.New("element not found")

	// ErrTimeout means a browser call exceeded its own deadline
	ErrTimeout = errors.New("browser operation timed out")

	ErrNoNextLink  = errors.New("no next link")
	ErrPollTimeout = errors.New("poll gave up before condition held")
	ErrDuplicate   = errors.New("image already seen in this run")
)

// errorLabel classifies err for the errors metric
func errorLabel(err error) string {
	if err == nil {
		return "none"
	}
	if _, ok := cf.IsChallenge(err); ok {
		return "challenge"
	}

	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported"
	case errors.Is(err, ErrEmptyExport):
		return "empty_export"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrNoNextLink):
		return "no_next_link"
	case errors.Is(err, ErrPollTimeout):
		return "poll_timeout"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}
