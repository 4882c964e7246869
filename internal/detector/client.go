// Package detector is the HTTP client for the external detection and
// redaction service.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/JaimeStill/warden/internal/verification"
)

const maxErrorBody = 4 << 10

type span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type finding struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Span       span    `json:"span"`
}

type detectResponse struct {
	Findings            []finding `json:"findings"`
	Redacted            []byte    `json:"redacted"`
	RedactedContentType string    `json:"redacted_content_type"`
}

// Client posts documents to {base_url}/detect.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	logger   *slog.Logger
}

// New creates a Client. The per-request deadline comes from the caller's
// context; cfg.Timeout bounds the underlying HTTP client.
func New(cfg *Config, logger *slog.Logger) *Client {
	return &Client{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/detect",
		token:    cfg.Token,
		http:     &http.Client{Timeout: cfg.TimeoutDuration()},
		logger:   logger.With("system", "detector"),
	}
}

// Detect sends doc as multipart field "file" and decodes the findings.
func (c *Client) Detect(ctx context.Context, doc verification.Document) (*verification.Detection, error) {
	body, contentType, err := encode(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("detect request", "filename", doc.Filename, "size_bytes", len(doc.Data))

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: status %d: %s", classify(resp.StatusCode), resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	detection, err := convert(out)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("detect response", "filename", doc.Filename, "findings", len(detection.Findings))
	return detection, nil
}

func classify(status int) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return ErrTransient
	}
	return ErrPermanent
}

func encode(doc verification.Document) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := doc.Filename
	if filename == "" {
		filename = "document"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", multipart.FileContentDisposition("file", filename))
	h.Set("Content-Type", doc.ContentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(doc.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return &buf, w.FormDataContentType(), nil
}

func convert(r detectResponse) (*verification.Detection, error) {
	findings := make([]verification.Finding, 0, len(r.Findings))
	var errs []error

	for i, f := range r.Findings {
		cat := verification.Category(f.Category)
		if !cat.Valid() {
			errs = append(errs, fmt.Errorf("finding %d: unknown category %q", i, f.Category))
			continue
		}
		if f.Confidence < 0 || f.Confidence > 1 {
			errs = append(errs, fmt.Errorf("finding %d: confidence %v out of range", i, f.Confidence))
			continue
		}
		findings = append(findings, verification.Finding{
			Category:   cat,
			Confidence: f.Confidence,
			Span:       verification.Span{Start: f.Span.Start, End: f.Span.End},
		})
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, errors.Join(errs...))
	}

	return &verification.Detection{
		Findings:            findings,
		Redacted:            r.Redacted,
		RedactedContentType: r.RedactedContentType,
	}, nil
}
