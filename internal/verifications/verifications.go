// Package verifications exposes verification workflows to users. It keeps
// one workflow instance per session, persists every finished episode as a
// history record, and serves both over HTTP.
package verifications

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/warden/internal/verification"
)

// Record is a persisted verification episode.
type Record struct {
	ID                uuid.UUID  `json:"id"`
	SessionID         uuid.UUID  `json:"session_id"`
	Filename          string     `json:"filename"`
	ContentType       string     `json:"content_type"`
	SizeBytes         int64      `json:"size_bytes"`
	PageCount         *int       `json:"page_count"`
	Status            string     `json:"status"`
	Detections        Detections `json:"detections"`
	TotalFindings     int        `json:"total_findings"`
	ProcessingSeconds *float64   `json:"processing_seconds"`
	ErrorMessage      *string    `json:"error_message"`
	OriginalKey       *string    `json:"original_key"`
	RedactedKey       *string    `json:"redacted_key"`
	RedactedType      *string    `json:"redacted_content_type"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       time.Time  `json:"completed_at"`
}

// Source returns the storage key and content type of the record's document
// of the given kind. Records written before the redacted type was kept fall
// back to the upload's type.
func (r *Record) Source(kind ArtifactKind) (key, contentType string, ok bool) {
	if kind == ArtifactRedacted {
		if r.RedactedKey == nil {
			return "", "", false
		}
		contentType = r.ContentType
		if r.RedactedType != nil {
			contentType = *r.RedactedType
		}
		return *r.RedactedKey, contentType, true
	}

	if r.OriginalKey == nil {
		return "", "", false
	}
	return *r.OriginalKey, r.ContentType, true
}

// Detections is the per-category summary stored as JSONB.
type Detections []verification.DetectedInfo

// Value encodes d as JSON; nil encodes as an empty array.
func (d Detections) Value() (driver.Value, error) {
	if d == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]verification.DetectedInfo(d))
}

// Scan decodes a JSONB column.
func (d *Detections) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = Detections{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("detections: unsupported column type")
	}

	var out []verification.DetectedInfo
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	if out == nil {
		out = []verification.DetectedInfo{}
	}
	*d = out
	return nil
}

// ArtifactKind selects which stored document to fetch.
type ArtifactKind string

const (
	ArtifactOriginal ArtifactKind = "original"
	ArtifactRedacted ArtifactKind = "redacted"
)

// ParseArtifactKind validates s.
func ParseArtifactKind(s string) (ArtifactKind, error) {
	switch k := ArtifactKind(s); k {
	case ArtifactOriginal, ArtifactRedacted:
		return k, nil
	}
	return "", ErrInvalidArtifact
}

// Artifact is a stored document ready to stream. The caller closes Body.
type Artifact struct {
	Body        io.ReadCloser
	ContentType string
	Filename    string
}

// CategoryInfo is the display copy for one detection category.
type CategoryInfo struct {
	Category    verification.Category `json:"category"`
	Label       string                `json:"label"`
	Description string                `json:"description"`
}

// CategoryList returns display copy for every category in display order.
func CategoryList() []CategoryInfo {
	out := make([]CategoryInfo, 0, len(verification.Categories))
	for _, c := range verification.Categories {
		out = append(out, CategoryInfo{
			Category:    c,
			Label:       c.Label(),
			Description: c.Description(),
		})
	}
	return out
}

// recordFromOutcome converts a finished episode into a history record.
func recordFromOutcome(o verification.Outcome) Record {
	rec := Record{
		ID:          o.EpisodeID,
		SessionID:   o.InstanceID,
		Filename:    o.Document.Filename,
		ContentType: o.Document.ContentType,
		SizeBytes:   o.Document.SizeBytes,
		PageCount:   o.Document.PageCount,
		Status:      string(o.Status),
		Detections:  Detections{},
		StartedAt:   o.StartedAt,
		CompletedAt: o.FinishedAt,
	}

	if o.Result != nil {
		rec.Detections = Detections(o.Result.Detections)
		rec.TotalFindings = o.Result.TotalFindings()
		secs := o.Result.ProcessingTimeSeconds
		rec.ProcessingSeconds = &secs
		rec.OriginalKey = optional(o.Result.OriginalRef)
		rec.RedactedKey = optional(o.Result.RedactedRef)
		rec.RedactedType = optional(o.Result.RedactedContentType)
	}

	rec.ErrorMessage = optional(o.Error)
	return rec
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
