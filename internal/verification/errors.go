package verification

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JaimeStill/warden/pkg/formatting"
)

// FailureMessage is shown for every detector fault. The cause is logged, not exposed.
const FailureMessage = "An error occurred while processing your document. Please try again."

// CancelledMessage is shown when processing is cancelled on request.
const CancelledMessage = "Processing was cancelled."

var (
	// ErrPrecondition marks an operation that is illegal in the current state.
	// It signals a caller bug, not a user error.
	ErrPrecondition = errors.New("operation not permitted in current state")
	// ErrDetector marks a detector fault, timeout, or cancellation.
	ErrDetector = errors.New("detector failed")
	// ErrStore marks a failure writing a document to the blob store.
	ErrStore = errors.New("document store failed")
	// ErrClosed indicates the instance has been shut down.
	ErrClosed = errors.New("workflow instance closed")
)

// ValidationKind distinguishes the two ways a candidate is rejected.
type ValidationKind string

const (
	TooLarge        ValidationKind = "too_large"
	UnsupportedType ValidationKind = "unsupported_type"
)

// ValidationError reports why a candidate was rejected. Its message is
// shown to the user verbatim.
type ValidationError struct {
	Kind        ValidationKind
	LimitBytes  int64
	ActualBytes int64
	Allowed     []string
	ActualType  string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case TooLarge:
		return fmt.Sprintf(
			"File size exceeds the maximum limit of %s. Your file is %s.",
			strings.ReplaceAll(formatting.FormatBytes(e.LimitBytes, 0), " ", ""),
			formatting.FormatMegabytes(e.ActualBytes),
		)
	case UnsupportedType:
		return fmt.Sprintf(
			"Invalid file type %q. Please upload a %s file.",
			e.ActualType, describeTypes(e.Allowed),
		)
	default:
		return "invalid file"
	}
}

func precondition(op string, s Status) error {
	return fmt.Errorf("%w: %s while %s", ErrPrecondition, op, s)
}

var typeNames = map[string]string{
	"application/pdf":    "PDF",
	"image/jpeg":         "JPG",
	"image/png":          "PNG",
	"image/tiff":         "TIFF",
	"application/msword": "DOC",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "DOCX",
}

func describeTypes(allowed []string) string {
	names := make([]string, 0, len(allowed))
	for _, t := range allowed {
		if n, ok := typeNames[t]; ok {
			names = append(names, n)
		} else {
			names = append(names, t)
		}
	}

	switch len(names) {
	case 0:
		return "supported"
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", or " + names[len(names)-1]
	}
}
