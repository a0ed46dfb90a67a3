package httpadapter

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/kirillkom/rental-intake/internal/config"
	"github.com/kirillkom/rental-intake/internal/core/domain"
	"github.com/kirillkom/rental-intake/internal/core/ports"
)

type sessionFake struct {
	mu sync.Mutex

	dossier *domain.Dossier
	err     error

	bidPatches   []domain.BidPatch
	partyPatches []domain.PartyPatch
	added        []domain.NewParty
	removed      []string
	uploads      [][]domain.UploadItem
	uploadResult domain.UploadOutcome
	submitted    bool
}

func newSessionFake(id string) *sessionFake {
	return &sessionFake{dossier: &domain.Dossier{
		ID: id,
		Parties: []*domain.Party{{
			LocalID: "p-1",
			Role:    domain.RolePrimaryTenant,
			Name:    "Anna",
			Slots: []domain.DocumentSlot{{
				DocumentType: "payslips",
				Content: domain.MultiFile{Items: []domain.Evidence{
					{ID: "ev-1", Filename: "jan.pdf"},
					{ID: "ev-2", Filename: "feb.pdf"},
				}},
				Status: domain.SlotReceived,
			}},
		}},
	}}
}

func (f *sessionFake) Dossier() *domain.Dossier { return f.dossier.Clone() }

func (f *sessionFake) Progress() domain.DossierProgress {
	return domain.DossierProgress{Percent: 42, Parties: map[string]domain.PartyProgress{"p-1": {OverallPercent: 42}}}
}

func (f *sessionFake) SaveStatus() domain.SaveStatus {
	return domain.SaveStatus{State: domain.SaveIdle}
}

func (f *sessionFake) UpdateBid(patch domain.BidPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.bidPatches = append(f.bidPatches, patch)
	return nil
}

func (f *sessionFake) AddParty(_ context.Context, in domain.NewParty) (*domain.Party, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.added = append(f.added, in)
	return &domain.Party{LocalID: "p-2", Role: in.Role, Name: in.Name, Email: in.Email}, nil
}

func (f *sessionFake) UpdateParty(localID string, patch domain.PartyPatch) (*domain.Party, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := f.dossier.Party(localID)
	if p == nil {
		return nil, domain.WrapError(domain.ErrPartyNotFound, "update party", io.EOF)
	}
	f.partyPatches = append(f.partyPatches, patch)
	return p.Clone(), nil
}

func (f *sessionFake) RemoveParty(localID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, localID)
	return nil
}

func (f *sessionFake) MaterializeParty(context.Context, string) (*domain.Party, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Party{LocalID: "p-1", DurableID: "party-1"}, nil
}

func (f *sessionFake) ReportProgress(string) error { return f.err }

func (f *sessionFake) Requirements(string) ([]domain.DocumentRequirement, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.DocumentRequirement{{Type: "payslips", Label: "Payslips", Required: true}}, nil
}

func (f *sessionFake) UploadDocuments(_ context.Context, _, _ string, items []domain.UploadItem) (domain.UploadOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, items)
	return f.uploadResult, f.err
}

func (f *sessionFake) Submit(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.submitted = true
	return nil
}

type sessionsFake struct {
	session *sessionFake
	openErr error
	logins  []string
	created []domain.OpenOptions
}

func (f *sessionsFake) Create(_ context.Context, opts domain.OpenOptions) (ports.IntakeSession, error) {
	f.created = append(f.created, opts)
	return f.session, nil
}

func (f *sessionsFake) Open(_ context.Context, dossierID string, _ domain.OpenOptions) (ports.IntakeSession, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	if dossierID != f.session.dossier.ID {
		return nil, domain.WrapError(domain.ErrDossierNotFound, "open", io.EOF)
	}
	return f.session, nil
}

func (f *sessionsFake) RecordLogin(email, dossierID string) {
	f.logins = append(f.logins, email+"|"+dossierID)
}

type exporterFake struct {
	err error
}

func (exporterFake) ContentType() string { return "application/test" }

func (f exporterFake) Export(_ context.Context, d *domain.Dossier, _ domain.DossierProgress, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, "export:"+d.ID)
	return err
}

func newTestHandler(cfg config.Config, sessions *sessionsFake) http.Handler {
	return NewRouter(cfg, sessions, exporterFake{}, nil).Handler()
}

func defaultSessions() *sessionsFake {
	return &sessionsFake{session: newSessionFake("d-1")}
}
