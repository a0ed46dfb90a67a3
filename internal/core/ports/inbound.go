package ports

import (
	"context"

	"github.com/kirillkom/rental-intake/internal/core/domain"
)

// IntakeSession is the inbound contract for one open dossier. Calls on the
// same session are serialized.
type IntakeSession interface {
	Dossier() *domain.Dossier
	Progress() domain.DossierProgress
	SaveStatus() domain.SaveStatus

	UpdateBid(patch domain.BidPatch) error
	AddParty(ctx context.Context, in domain.NewParty) (*domain.Party, error)
	UpdateParty(localID string, patch domain.PartyPatch) (*domain.Party, error)
	RemoveParty(localID string) error
	MaterializeParty(ctx context.Context, localID string) (*domain.Party, error)
	ReportProgress(localID string) error

	Requirements(localID string) ([]domain.DocumentRequirement, error)
	UploadDocuments(ctx context.Context, localID, documentType string, items []domain.UploadItem) (domain.UploadOutcome, error)

	Submit(ctx context.Context) error
}

// IntakeSessions opens and tracks sessions by dossier id.
type IntakeSessions interface {
	Create(ctx context.Context, opts domain.OpenOptions) (IntakeSession, error)
	Open(ctx context.Context, dossierID string, opts domain.OpenOptions) (IntakeSession, error)
	RecordLogin(email, dossierID string)
}
