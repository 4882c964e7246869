package detector

import "errors"

var (
	// ErrTransient marks failures worth retrying: transport errors, 429, and 5xx.
	ErrTransient = errors.New("detector unavailable")
	// ErrPermanent marks requests the detector rejected.
	ErrPermanent = errors.New("detector rejected request")
	// ErrInvalidResponse marks a response that could not be decoded or
	// referenced unknown categories.
	ErrInvalidResponse = errors.New("invalid detector response")
)
