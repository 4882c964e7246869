package verifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/warden/internal/verification"
	"github.com/JaimeStill/warden/pkg/lifecycle"
	"github.com/JaimeStill/warden/pkg/pagination"
	"github.com/JaimeStill/warden/pkg/query"
	"github.com/JaimeStill/warden/pkg/repository"
	"github.com/JaimeStill/warden/pkg/storage"
)

const recordTimeout = 10 * time.Second

// Config configures the workflow instances handed out per session.
type Config struct {
	Workflow verification.Config
	Sessions SessionConfig
}

// Deps are the collaborators shared by every session.
type Deps struct {
	DB        *sql.DB
	Storage   storage.System
	Detector  verification.Detector
	Inspector verification.Inspector
	Logger    *slog.Logger
}

type repo struct {
	db         *sql.DB
	storage    storage.System
	sessions   *Sessions
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates the verifications system. Every finished episode of every
// session is written to the verifications table.
func New(cfg Config, deps Deps, pagination pagination.Config) System {
	r := &repo{
		db:         deps.DB,
		storage:    deps.Storage,
		logger:     deps.Logger.With("system", "verifications"),
		pagination: pagination,
	}

	factory := func(ctx context.Context) *verification.Instance {
		return verification.NewInstance(ctx, cfg.Workflow, verification.Deps{
			Detector:  deps.Detector,
			Store:     deps.Storage,
			Inspector: deps.Inspector,
			Logger:    deps.Logger.With("system", "verification"),
			OnOutcome: r.record,
		})
	}

	r.sessions = NewSessions(cfg.Sessions, factory, deps.Logger)
	return r
}

func (r *repo) Handler(opts HandlerOptions) *Handler {
	return NewHandler(r, r.logger, r.pagination, opts)
}

func (r *repo) Start(lc *lifecycle.Coordinator) error {
	return r.sessions.Start(lc)
}

func (r *repo) Open() (verification.Snapshot, error) {
	inst, err := r.sessions.Open()
	if err != nil {
		return verification.Snapshot{}, err
	}
	return inst.Snapshot(), nil
}

func (r *repo) Snapshot(id uuid.UUID) (verification.Snapshot, error) {
	inst, err := r.sessions.Get(id)
	if err != nil {
		return verification.Snapshot{}, err
	}
	return inst.Snapshot(), nil
}

func (r *repo) Subscribe(id uuid.UUID) (<-chan verification.Snapshot, func(), error) {
	inst, err := r.sessions.Get(id)
	if err != nil {
		return nil, nil, err
	}
	ch, stop := inst.Subscribe()
	return ch, stop, nil
}

func (r *repo) Submit(id uuid.UUID, c verification.UploadCandidate) (verification.Snapshot, error) {
	inst, err := r.sessions.Get(id)
	if err != nil {
		return verification.Snapshot{}, err
	}
	err = inst.Submit(c)
	return inst.Snapshot(), err
}

func (r *repo) Reset(id uuid.UUID) (verification.Snapshot, error) {
	inst, err := r.sessions.Get(id)
	if err != nil {
		return verification.Snapshot{}, err
	}
	err = inst.Reset()
	return inst.Snapshot(), err
}

func (r *repo) Cancel(id uuid.UUID) (verification.Snapshot, error) {
	inst, err := r.sessions.Get(id)
	if err != nil {
		return verification.Snapshot{}, err
	}
	err = inst.Cancel()
	return inst.Snapshot(), err
}

func (r *repo) Close(id uuid.UUID) error {
	return r.sessions.Close(id)
}

func (r *repo) SessionArtifact(ctx context.Context, id uuid.UUID, kind ArtifactKind) (*Artifact, error) {
	inst, err := r.sessions.Get(id)
	if err != nil {
		return nil, err
	}

	snap := inst.Snapshot()
	if snap.Result == nil {
		return nil, ErrArtifactUnavailable
	}

	key, contentType := snap.Result.OriginalRef, snap.Result.Document.ContentType
	if kind == ArtifactRedacted {
		key, contentType = snap.Result.RedactedRef, snap.Result.RedactedContentType
	}

	return r.download(ctx, key, kind, snap.Result.Document.Filename, contentType)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Record], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Filename", "Status")

	filters.Apply(qb)
	page.Apply(qb)

	result, err := repository.QueryPage(ctx, r.db, qb, page, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Record, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	rec, err := repository.QueryOne(ctx, r.db, q, args, scanRecord)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &rec, nil
}

func (r *repo) Artifact(ctx context.Context, id uuid.UUID, kind ArtifactKind) (*Artifact, error) {
	rec, err := r.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	key, contentType, ok := rec.Source(kind)
	if !ok {
		return nil, ErrArtifactUnavailable
	}

	return r.download(ctx, key, kind, rec.Filename, contentType)
}

func (r *repo) Delete(ctx context.Context, id uuid.UUID) error {
	rec, err := r.Find(ctx, id)
	if err != nil {
		return err
	}

	err = repository.ExecExpectOne(ctx, r.db, "DELETE FROM verifications WHERE id = $1", id)
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	for _, key := range []*string{rec.OriginalKey, rec.RedactedKey} {
		if key == nil {
			continue
		}
		if err := r.storage.Delete(ctx, *key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			r.logger.Warn("blob delete failed after record delete", "key", *key, "error", err)
		}
	}

	r.logger.Info("verification deleted", "id", id)
	return nil
}

func (r *repo) download(ctx context.Context, key string, kind ArtifactKind, filename, contentType string) (*Artifact, error) {
	if key == "" || r.storage == nil {
		return nil, ErrArtifactUnavailable
	}

	body, err := r.storage.Download(ctx, key)
	if err != nil {
		return nil, err
	}

	if kind == ArtifactRedacted {
		filename = "redacted-" + filename
	}

	return &Artifact{
		Body:        body,
		ContentType: contentType,
		Filename:    filename,
	}, nil
}

const insertRecord = `
	INSERT INTO verifications(
		id, session_id, filename, content_type, size_bytes, page_count, status,
		detections, total_findings, processing_seconds, error_message,
		original_key, redacted_key, redacted_content_type, started_at, completed_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

// record persists a finished episode. It runs on the instance's outcome
// goroutine, detached from any request.
func (r *repo) record(o verification.Outcome) {
	rec := recordFromOutcome(o)

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	err := repository.ExecExpectOne(
		ctx, r.db, insertRecord,
		rec.ID,
		rec.SessionID,
		rec.Filename,
		rec.ContentType,
		rec.SizeBytes,
		rec.PageCount,
		rec.Status,
		rec.Detections,
		rec.TotalFindings,
		rec.ProcessingSeconds,
		rec.ErrorMessage,
		rec.OriginalKey,
		rec.RedactedKey,
		rec.RedactedType,
		rec.StartedAt,
		rec.CompletedAt,
	)
	if err != nil {
		r.logger.Error(
			"failed to record verification",
			"id", rec.ID,
			"status", rec.Status,
			"error", repository.MapError(err, ErrNotFound, ErrDuplicate),
		)
		return
	}

	if o.Cause != nil {
		r.logger.Info("verification recorded", "id", rec.ID, "status", rec.Status, "cause", o.Cause)
		return
	}
	r.logger.Info("verification recorded", "id", rec.ID, "status", rec.Status, "findings", rec.TotalFindings)
}
