package verifications

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/JaimeStill/warden/internal/verification"
	"github.com/JaimeStill/warden/pkg/document"
	"github.com/JaimeStill/warden/pkg/handlers"
	"github.com/JaimeStill/warden/pkg/pagination"
	"github.com/JaimeStill/warden/pkg/routes"
)

// multipartOverhead is the allowance for form boundaries and headers on top
// of the file itself.
const multipartOverhead = 1 << 20

// HandlerOptions configures request limits and the snapshot stream.
type HandlerOptions struct {
	// MaxUploadBytes is the validation limit. Bodies up to twice this size
	// are read so an oversized file gets the validation message instead of
	// a bare 413.
	MaxUploadBytes int64
	// AllowedOrigins for the WebSocket stream. Empty means same-origin only.
	AllowedOrigins []string
}

// Handler provides HTTP endpoints for sessions and verification history.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
	opts       HandlerOptions
	stream     *streamer
}

// SearchRequest combines pagination and filter criteria for the search endpoint.
type SearchRequest struct {
	pagination.PageRequest
	Filters
}

// NewHandler creates a Handler for sys.
func NewHandler(
	sys System,
	logger *slog.Logger,
	pagination pagination.Config,
	opts HandlerOptions,
) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = verification.DefaultMaxSizeBytes
	}

	logger = logger.With("handler", "verifications")
	return &Handler{
		sys:        sys,
		logger:     logger,
		pagination: pagination,
		opts:       opts,
		stream:     newStreamer(sys, logger, opts.AllowedOrigins),
	}
}

// Routes returns the session, history, and category route groups.
func (h *Handler) Routes() []routes.Group {
	return []routes.Group{
		{
			Prefix: "/sessions",
			Routes: []routes.Route{
				{Method: "POST", Pattern: "", Handler: h.Open},
				{Method: "GET", Pattern: "/{id}", Handler: h.Snapshot},
				{Method: "GET", Pattern: "/{id}/stream", Handler: h.stream.serve},
				{Method: "POST", Pattern: "/{id}/submit", Handler: h.Submit},
				{Method: "POST", Pattern: "/{id}/reset", Handler: h.Reset},
				{Method: "POST", Pattern: "/{id}/cancel", Handler: h.Cancel},
				{Method: "DELETE", Pattern: "/{id}", Handler: h.Close},
				{Method: "GET", Pattern: "/{id}/artifacts/{kind}", Handler: h.SessionArtifact},
			},
		},
		{
			Prefix: "/verifications",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "", Handler: h.List},
				{Method: "POST", Pattern: "/search", Handler: h.Search},
				{Method: "GET", Pattern: "/{id}", Handler: h.Find},
				{Method: "GET", Pattern: "/{id}/artifacts/{kind}", Handler: h.Artifact},
				{Method: "DELETE", Pattern: "/{id}", Handler: h.Delete},
			},
		},
		{
			Prefix: "/categories",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "", Handler: h.Categories},
			},
		},
	}
}

// Open creates a session and returns its idle snapshot.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sys.Open()
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusCreated, snap)
}

// Snapshot returns the current state of a session.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	snap, err := h.sys.Snapshot(id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, snap)
}

// Submit reads the multipart "file" field and starts verification.
// Accepted uploads return 202 with the processing snapshot; rejected
// uploads return 422 with the validation message.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	limit := 2*h.opts.MaxUploadBytes + multipartOverhead
	if r.ContentLength > limit {
		handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrRequestTooLarge)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrRequestTooLarge)
			return
		}
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrMissingFile)
		return
	}
	defer file.Close()

	candidate, err := h.candidate(file, header)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return
	}

	snap, err := h.sys.Submit(id, candidate)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusAccepted, snap)
}

// Reset returns a session to idle.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sys.Reset)
}

// Cancel stops processing in a session.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sys.Cancel)
}

// Close ends a session.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.sys.Close(id); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SessionArtifact streams a stored document of the session's current result.
func (h *Handler) SessionArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	kind, err := ParseArtifactKind(r.PathValue("kind"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	a, err := h.sys.SessionArtifact(r.Context(), id, kind)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	h.writeArtifact(w, a)
}

// List returns a page of history records filtered by query parameters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, result)
}

// Search accepts a JSON body with pagination and filter criteria.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
		return
	}

	req.PageRequest.Normalize(h.pagination)

	result, err := h.sys.List(r.Context(), req.PageRequest, req.Filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, result)
}

// Find returns a single history record.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	rec, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, rec)
}

// Artifact streams a stored document of a history record.
func (h *Handler) Artifact(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	kind, err := ParseArtifactKind(r.PathValue("kind"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	a, err := h.sys.Artifact(r.Context(), id, kind)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	h.writeArtifact(w, a)
}

// Delete removes a history record and its stored documents.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.sys.Delete(r.Context(), id); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Categories returns display copy for every detection category.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	handlers.RespondJSON(w, http.StatusOK, CategoryList())
}

func (h *Handler) transition(
	w http.ResponseWriter,
	r *http.Request,
	fn func(uuid.UUID) (verification.Snapshot, error),
) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	snap, err := fn(id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, snap)
}

// candidate builds an UploadCandidate. Files already over the limit are not
// read; validation rejects them on size alone.
func (h *Handler) candidate(file multipart.File, header *multipart.FileHeader) (verification.UploadCandidate, error) {
	c := verification.UploadCandidate{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		SizeBytes:   header.Size,
	}

	if header.Size > h.opts.MaxUploadBytes {
		return c, nil
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return c, err
	}

	c.Data = data
	c.SizeBytes = int64(len(data))
	c.ContentType = document.DetectContentType(c.ContentType, data)
	return c, nil
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeArtifact(w http.ResponseWriter, a *Artifact) {
	defer a.Body.Close()

	if a.ContentType != "" {
		w.Header().Set("Content-Type", a.ContentType)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", strconv.Quote(a.Filename)))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, a.Body); err != nil {
		h.logger.Warn("artifact stream interrupted", "filename", a.Filename, "error", err)
	}
}
