package verification

import (
	"mime"
	"slices"
	"strings"
)

// DefaultMaxSizeBytes is the upload ceiling: 10 MiB.
const DefaultMaxSizeBytes int64 = 10 * 1024 * 1024

// DefaultAllowedTypes are the accepted MIME types.
var DefaultAllowedTypes = []string{
	"application/pdf",
	"image/jpeg",
	"image/png",
	"image/tiff",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// UploadCandidate is a file offered for verification.
type UploadCandidate struct {
	Data        []byte
	ContentType string
	SizeBytes   int64
	Filename    string
}

// Limits bounds what Validate accepts.
type Limits struct {
	MaxSizeBytes int64
	AllowedTypes []string
}

// DefaultLimits returns the 10 MiB ceiling and the default type set.
func DefaultLimits() Limits {
	return Limits{
		MaxSizeBytes: DefaultMaxSizeBytes,
		AllowedTypes: slices.Clone(DefaultAllowedTypes),
	}
}

// Validate accepts c (nil) or rejects it with a *ValidationError. Size is
// checked before type. An empty file passes the size check; its type still
// decides. Validate has no side effects.
func Validate(c UploadCandidate, limits Limits) error {
	if c.SizeBytes > limits.MaxSizeBytes {
		return &ValidationError{
			Kind:        TooLarge,
			LimitBytes:  limits.MaxSizeBytes,
			ActualBytes: c.SizeBytes,
		}
	}

	actual := normalizeType(c.ContentType)
	if !slices.ContainsFunc(limits.AllowedTypes, func(t string) bool {
		return normalizeType(t) == actual
	}) {
		return &ValidationError{
			Kind:       UnsupportedType,
			Allowed:    slices.Clone(limits.AllowedTypes),
			ActualType: c.ContentType,
		}
	}

	return nil
}

func normalizeType(t string) string {
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(t))
}
