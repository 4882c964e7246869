// Package verification implements the document verification workflow.
// It validates an upload and drives it from idle through validating and
// processing to results or error. A synthetic progress estimate runs while
// an external detector works, and the detector's findings are reduced into
// a typed result.
package verification

import (
	"context"
	"io"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/warden/pkg/progress"
)

// Status is the active state of an Instance.
type Status string

// Workflow states. Results and Error are terminal until Reset.
const (
	StatusIdle       Status = "idle"
	StatusValidating Status = "validating"
	StatusProcessing Status = "processing"
	StatusResults    Status = "results"
	StatusError      Status = "error"
)

// Terminal reports whether s is Results or Error.
func (s Status) Terminal() bool {
	return s == StatusResults || s == StatusError
}

// Category buckets findings by kind of sensitive information.
type Category string

// Detection categories.
const (
	CategoryPII       Category = "pii"
	CategoryFinancial Category = "financial"
	CategoryMedical   Category = "medical"
	CategoryAddress   Category = "address"
	CategoryIDNumber  Category = "id"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryPII,
	CategoryFinancial,
	CategoryMedical,
	CategoryAddress,
	CategoryIDNumber,
}

var categoryText = map[Category][2]string{
	CategoryPII: {
		"Personal Information",
		"Personal identifiable information such as names, social security numbers, or birth dates.",
	},
	CategoryFinancial: {
		"Financial Data",
		"Financial data such as credit card numbers, bank account details, or financial statements.",
	},
	CategoryMedical: {
		"Medical Information",
		"Medical information such as health records, diagnoses, or treatment details.",
	},
	CategoryAddress: {
		"Address Information",
		"Address information such as home addresses, email addresses, or phone numbers.",
	},
	CategoryIDNumber: {
		"ID Numbers",
		"Identification numbers such as driver's license, passport, or other government IDs.",
	},
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}

// Label is the short display name of c.
func (c Category) Label() string {
	return categoryText[c][0]
}

// Description explains what c covers.
func (c Category) Description() string {
	return categoryText[c][1]
}

// Span locates a finding within the document as a half-open byte or character range.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Finding is a single detected instance of sensitive content.
type Finding struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Span       Span     `json:"span"`
}

// DetectedInfo summarizes the findings of one category.
type DetectedInfo struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Count      int      `json:"count"`
}

// DocumentInfo describes the submitted document.
type DocumentInfo struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	PageCount   *int   `json:"page_count"`
}

// Result is the outcome of a successful verification. It is never mutated
// after construction.
type Result struct {
	OriginalRef           string         `json:"original_ref"`
	RedactedRef           string         `json:"redacted_ref"`
	RedactedContentType   string         `json:"redacted_content_type"`
	Detections            []DetectedInfo `json:"detections"`
	ProcessingTimeSeconds float64        `json:"processing_time_seconds"`
	Document              DocumentInfo   `json:"document"`
}

// TotalFindings sums the counts across all detections.
func (r *Result) TotalFindings() int {
	total := 0
	for _, d := range r.Detections {
		total += d.Count
	}
	return total
}

// Snapshot is the read model handed to presentation. Exactly the payload
// matching Status is set: Progress for processing, Result for results,
// Error for error, and none for idle or validating.
type Snapshot struct {
	ID        uuid.UUID       `json:"id"`
	Status    Status          `json:"status"`
	Progress  *progress.State `json:"progress,omitempty"`
	Result    *Result         `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Document is what the detector receives.
type Document struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Detection is the detector's raw answer for one document.
type Detection struct {
	Findings            []Finding
	Redacted            []byte
	RedactedContentType string
}

// Detector finds and redacts sensitive information. Implementations should
// honour ctx cancellation; when they cannot, the workflow discards late answers.
type Detector interface {
	Detect(ctx context.Context, doc Document) (*Detection, error)
}

// BlobStore persists document bytes under a key; the key is the locator.
// Delete removes documents of episodes whose result is not kept.
type BlobStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Inspector extracts optional document statistics. A false second return
// means the count is unknown.
type Inspector interface {
	PageCount(data []byte, contentType string) (int, bool)
}
