package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/rental-intake/internal/core/domain"
)

// DossierStore is the relational side of the storage backend.
type DossierStore interface {
	UpsertDossier(ctx context.Context, dossier *domain.Dossier) error
	// UpsertParty updates by durable id when the party has one, otherwise
	// inserts and returns the newly assigned durable id.
	UpsertParty(ctx context.Context, dossierID string, party *domain.Party) (string, error)
	DeleteParty(ctx context.Context, durableID string) error
	InsertDocumentMetadata(ctx context.Context, doc domain.StoredDocument) error
	DeleteDocumentMetadata(ctx context.Context, evidenceID string) error
	LoadSnapshot(ctx context.Context, dossierID string) (*domain.Snapshot, error)
}

// BlobStorage stores evidence files and returns a stable reference.
type BlobStorage interface {
	UploadBlob(ctx context.Context, path string, data io.Reader) (string, error)
	DeleteBlob(ctx context.Context, reference string) error
}

// Notifier delivers one event envelope to an external sink.
type Notifier interface {
	Name() string
	Send(ctx context.Context, event domain.Event) error
}

type AccountRequest struct {
	Name  string
	Email string
	Phone string
}

// AccountDirectory is the external CRM used to link parties to accounts.
type AccountDirectory interface {
	EnsureAccount(ctx context.Context, req AccountRequest) (string, error)
	RecordRelationship(ctx context.Context, primaryAccountID, relatedAccountID string, role domain.Role) error
}

// PayloadInspector checks file content beyond the declared MIME type.
type PayloadInspector interface {
	Inspect(ctx context.Context, payload domain.UploadPayload) error
}

// DossierExporter renders a dossier overview document.
type DossierExporter interface {
	ContentType() string
	Export(ctx context.Context, dossier *domain.Dossier, progress domain.DossierProgress, w io.Writer) error
}

// IntakeMetrics records engine-level observations.
type IntakeMetrics interface {
	ObserveSave(duration time.Duration, err error)
	ObserveUpload(documentType string, files int, err error)
	ObserveNotification(eventType domain.EventType, notifier string, err error)
}
