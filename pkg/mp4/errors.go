package mp4

import "errors"

// Errors returned by the mp4 package.
var (
	// ErrNotMP4 is returned when the file's box structure can't be read.
	ErrNotMP4 = errors.New("not a valid MP4/M4B file")
)
