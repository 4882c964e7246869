package verifications

import (
	"net/url"
	"strconv"
	"time"

	"github.com/JaimeStill/warden/pkg/query"
	"github.com/JaimeStill/warden/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "verifications", "v").
	Project("id", "ID").
	Project("session_id", "SessionID").
	Project("filename", "Filename").
	Project("content_type", "ContentType").
	Project("size_bytes", "SizeBytes").
	Project("page_count", "PageCount").
	Project("status", "Status").
	Project("detections", "Detections").
	Project("total_findings", "TotalFindings").
	Project("processing_seconds", "ProcessingSeconds").
	Project("error_message", "ErrorMessage").
	Project("original_key", "OriginalKey").
	Project("redacted_key", "RedactedKey").
	Project("redacted_content_type", "RedactedType").
	Project("started_at", "StartedAt").
	Project("completed_at", "CompletedAt")

var defaultSort = query.SortField{
	Field:      "CompletedAt",
	Descending: true,
}

// Filters narrows history queries. Nil fields are ignored. Status and
// ContentType match exactly, Filename as a case-insensitive substring.
// Since and Until bound CompletedAt as [Since, Until).
type Filters struct {
	Status      *string    `json:"status,omitempty"`
	ContentType *string    `json:"content_type,omitempty"`
	Filename    *string    `json:"filename,omitempty"`
	SessionID   *string    `json:"session_id,omitempty"`
	MinFindings *int       `json:"min_findings,omitempty"`
	Since       *time.Time `json:"since,omitempty"`
	Until       *time.Time `json:"until,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereEquals("ContentType", f.ContentType).
		WhereContains("Filename", f.Filename).
		WhereEquals("SessionID", f.SessionID).
		WhereAtLeast("TotalFindings", f.MinFindings).
		WhereAtLeast("CompletedAt", f.Since).
		WhereBefore("CompletedAt", f.Until)
}

// FiltersFromQuery reads filters from URL query parameters. Malformed
// numbers and timestamps are ignored.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := values.Get("status"); s != "" {
		f.Status = &s
	}
	if ct := values.Get("content_type"); ct != "" {
		f.ContentType = &ct
	}
	if fn := values.Get("filename"); fn != "" {
		f.Filename = &fn
	}
	if sid := values.Get("session_id"); sid != "" {
		f.SessionID = &sid
	}
	if mf := values.Get("min_findings"); mf != "" {
		if n, err := strconv.Atoi(mf); err == nil {
			f.MinFindings = &n
		}
	}
	if s := values.Get("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			f.Since = &t
		}
	}
	if u := values.Get("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			f.Until = &t
		}
	}

	return f
}

func scanRecord(s repository.Scanner) (Record, error) {
	var r Record
	err := s.Scan(
		&r.ID,
		&r.SessionID,
		&r.Filename,
		&r.ContentType,
		&r.SizeBytes,
		&r.PageCount,
		&r.Status,
		&r.Detections,
		&r.TotalFindings,
		&r.ProcessingSeconds,
		&r.ErrorMessage,
		&r.OriginalKey,
		&r.RedactedKey,
		&r.RedactedType,
		&r.StartedAt,
		&r.CompletedAt,
	)
	return r, err
}
