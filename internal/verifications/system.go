package verifications

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/warden/internal/verification"
	"github.com/JaimeStill/warden/pkg/lifecycle"
	"github.com/JaimeStill/warden/pkg/pagination"
)

// System defines the public contract for sessions and verification history.
type System interface {
	Handler(opts HandlerOptions) *Handler
	Start(lc *lifecycle.Coordinator) error

	Open() (verification.Snapshot, error)
	Snapshot(id uuid.UUID) (verification.Snapshot, error)
	Subscribe(id uuid.UUID) (<-chan verification.Snapshot, func(), error)
	Submit(id uuid.UUID, c verification.UploadCandidate) (verification.Snapshot, error)
	Reset(id uuid.UUID) (verification.Snapshot, error)
	Cancel(id uuid.UUID) (verification.Snapshot, error)
	Close(id uuid.UUID) error
	SessionArtifact(ctx context.Context, id uuid.UUID, kind ArtifactKind) (*Artifact, error)

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Record], error)

	Find(ctx context.Context, id uuid.UUID) (*Record, error)
	Artifact(ctx context.Context, id uuid.UUID, kind ArtifactKind) (*Artifact, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
