package domain

import "errors"

var (
	// ErrVideoNotFound is returned when the statistics lookup yields no item.
	ErrVideoNotFound = errors.New("video not found")

	// ErrNoStreams is returned when a video has no progressive MP4 rendition.
	ErrNoStreams = errors.New("no suitable streams found")
)
