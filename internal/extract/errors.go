package extract

import "errors"

var (
	// ErrInvalidOption is returned by New when an option is out of range.
	ErrInvalidOption = errors.New("invalid extractor option")

	// ErrScratchMismatch is returned when a Scratch created by one Extractor is
	// used with an Extractor of a different geometry.
	ErrScratchMismatch = errors.New("scratch buffer does not match extractor configuration")

	// ErrScratchReleased is returned when a released Scratch is reused.
	ErrScratchReleased = errors.New("scratch buffer already released")
)
