package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/rental-intake/internal/core/domain"
	"github.com/kirillkom/rental-intake/internal/core/ports"
	"github.com/kirillkom/rental-intake/internal/core/requirements"
)

type SessionDeps struct {
	Store      ports.DossierStore
	Blobs      ports.BlobStorage
	Catalog    *requirements.Catalog
	Roster     *RosterManager
	Reconciler *Reconciler
	Events     EventEmitter
	Metrics    ports.IntakeMetrics
	Scheduler  Scheduler
}

func (d SessionDeps) normalize() SessionDeps {
	if d.Catalog == nil {
		d.Catalog = requirements.Default()
	}
	if d.Metrics == nil {
		d.Metrics = noopMetrics{}
	}
	if d.Scheduler == nil {
		d.Scheduler = SystemScheduler()
	}
	if d.Events == nil {
		d.Events = NewDispatcher(nil, d.Metrics, 0)
	}
	return d
}

// IntakeSession holds the in-memory dossier for one application. Every
// operation takes mu, so the dossier is never mutated by two callers at once.
type IntakeSession struct {
	deps  SessionDeps
	saver *SaveCoordinator
	now   func() time.Time

	mu       sync.Mutex
	dossier  *domain.Dossier
	reported map[string]struct{}
	// durable ids of removed parties, deleted from the store on next save
	removed []string
}

func newSession(deps SessionDeps, dossier *domain.Dossier, reported map[string]struct{}) *IntakeSession {
	s := &IntakeSession{
		deps:     deps,
		now:      time.Now,
		dossier:  dossier,
		reported: reported,
	}
	s.saver = NewSaveCoordinator(deps.Scheduler, s.persist)
	for _, p := range dossier.Parties {
		s.refreshDerived(p)
	}
	return s
}

// LoadSession hydrates the dossier from the store, or synthesizes the
// default single-party dossier when nothing was stored yet.
func LoadSession(ctx context.Context, deps SessionDeps, dossierID string, opts domain.OpenOptions) (*IntakeSession, error) {
	deps = deps.normalize()
	snapshot, err := deps.Store.LoadSnapshot(ctx, dossierID)
	switch {
	case err == nil:
		dossier, reported := hydrate(deps, *snapshot)
		return newSession(deps, dossier, reported), nil
	case domain.IsKind(err, domain.ErrDossierNotFound):
		return NewSession(deps, dossierID, opts), nil
	default:
		return nil, fmt.Errorf("load dossier snapshot: %w", err)
	}
}

// NewSession starts a fresh dossier with the default primary tenant.
func NewSession(deps SessionDeps, dossierID string, opts domain.OpenOptions) *IntakeSession {
	deps = deps.normalize()
	dossier := &domain.Dossier{
		ID:       dossierID,
		Property: opts.Property,
		Parties:  []*domain.Party{deps.Roster.NewDefaultParty(opts)},
	}
	return newSession(deps, dossier, map[string]struct{}{})
}

func (s *IntakeSession) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dossier.ID
}

func (s *IntakeSession) Dossier() *domain.Dossier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dossier.Clone()
}

func (s *IntakeSession) SaveStatus() domain.SaveStatus {
	return s.saver.Status()
}

func (s *IntakeSession) Progress() domain.DossierProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

func (s *IntakeSession) progressLocked() domain.DossierProgress {
	all := make(map[string]domain.PartyProgress, len(s.dossier.Parties))
	reported := make(map[string]domain.PartyProgress, len(s.reported))
	for _, p := range s.dossier.Parties {
		progress := PartyProgress(p, s.resolve(p))
		all[p.LocalID] = progress
		if _, ok := s.reported[p.LocalID]; ok {
			reported[p.LocalID] = progress
		}
	}
	return domain.DossierProgress{
		Percent: DossierProgress(s.dossier, reported),
		Parties: all,
	}
}

func (s *IntakeSession) resolve(p *domain.Party) []domain.DocumentRequirement {
	return s.deps.Catalog.Resolve(p.EmploymentStatus, p.Role)
}

func (s *IntakeSession) refreshDerived(p *domain.Party) {
	p.DocumentsDone = p.EmploymentStatus != domain.EmploymentUnset && PartyProgress(p, s.resolve(p)).DocPercent == completePercentage
}

// touch records a party mutation: derived flags, progress reporting and the
// debounced save.
func (s *IntakeSession) touch(p *domain.Party) {
	if p != nil {
		s.refreshDerived(p)
		s.reported[p.LocalID] = struct{}{}
	}
	s.dossier.Completed = false
	s.saver.NotifyMutation()
}

func (s *IntakeSession) party(localID string) (*domain.Party, error) {
	p := s.dossier.Party(localID)
	if p == nil {
		return nil, domain.WrapError(domain.ErrPartyNotFound, "lookup party", fmt.Errorf("local_id=%s", localID))
	}
	return p, nil
}

func (s *IntakeSession) UpdateBid(patch domain.BidPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if patch.BidAmount != nil && *patch.BidAmount < 0 {
		return domain.NewValidationError("bid_amount", "bid cannot be negative")
	}
	if patch.Motivation != nil && len([]rune(*patch.Motivation)) > domain.MaxMotivationChars {
		return domain.NewValidationError("motivation", fmt.Sprintf("motivation is limited to %d characters", domain.MaxMotivationChars))
	}
	if patch.AdvanceMonths != nil && !domain.ValidAdvanceMonths(*patch.AdvanceMonths) {
		return domain.NewValidationError("advance_months", "choose 0, 1, 2, 3, 6 or 12 months")
	}

	d := s.dossier
	if patch.BidAmount != nil {
		d.BidAmount = *patch.BidAmount
	}
	switch {
	case patch.ClearStart:
		d.StartDate = nil
	case patch.StartDate != nil:
		start := patch.StartDate.UTC()
		d.StartDate = &start
	}
	if patch.Motivation != nil {
		d.Motivation = *patch.Motivation
	}
	if patch.AdvanceMonths != nil {
		d.AdvanceMonths = *patch.AdvanceMonths
	}
	if patch.Property != nil {
		d.Property = *patch.Property
	}
	s.touch(nil)
	return nil
}

func (s *IntakeSession) AddParty(ctx context.Context, in domain.NewParty) (*domain.Party, error) {
	s.mu.Lock()
	party, err := s.deps.Roster.AddParty(s.dossier, in)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.refreshDerived(party)
	s.dossier.Completed = false
	s.saver.NotifyMutation()
	primary := *s.dossier.PrimaryTenant()
	added := *party
	s.mu.Unlock()

	primaryAccount, partyAccount := s.deps.Roster.LinkToAccount(ctx, primary, added)

	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.dossier.PrimaryTenant(); p != nil && primaryAccount != "" && p.CRMAccountID == "" {
		p.CRMAccountID = primaryAccount
	}
	current := s.dossier.Party(added.LocalID)
	if current == nil {
		return added.Clone(), nil
	}
	if partyAccount != "" && current.CRMAccountID == "" {
		current.CRMAccountID = partyAccount
		s.saver.NotifyMutation()
	}
	return current.Clone(), nil
}

func (s *IntakeSession) UpdateParty(localID string, patch domain.PartyPatch) (*domain.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.party(localID)
	if err != nil {
		return nil, err
	}
	if patch.EmploymentStatus != nil && !patch.EmploymentStatus.Valid() {
		return nil, domain.NewValidationError("employment_status", fmt.Sprintf("unknown employment status %q", *patch.EmploymentStatus))
	}
	if patch.Income != nil && *patch.Income < 0 {
		return nil, domain.NewValidationError("income", "income cannot be negative")
	}
	if patch.Email != nil && strings.TrimSpace(*patch.Email) != "" && !strings.Contains(*patch.Email, "@") {
		return nil, domain.NewValidationError("email", "enter a valid email address")
	}
	if patch.GuaranteeFor != nil && *patch.GuaranteeFor != "" {
		if err := validateGuaranteeTarget(s.dossier, p.Role, *patch.GuaranteeFor); err != nil {
			return nil, err
		}
	}

	if patch.Name != nil {
		p.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Email != nil {
		p.Email = strings.TrimSpace(*patch.Email)
	}
	if patch.Phone != nil {
		p.Phone = strings.TrimSpace(*patch.Phone)
	}
	if patch.Address != nil {
		p.Address = *patch.Address
	}
	if patch.EmploymentStatus != nil {
		p.EmploymentStatus = *patch.EmploymentStatus
	}
	if patch.Income != nil {
		p.Income = *patch.Income
	}
	if patch.GuaranteeFor != nil {
		p.GuaranteeFor = *patch.GuaranteeFor
	}
	s.touch(p)
	return p.Clone(), nil
}

func (s *IntakeSession) RemoveParty(localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.deps.Roster.RemoveParty(s.dossier, localID)
	if err != nil {
		return err
	}
	delete(s.reported, localID)
	if removed.Materialized() {
		s.removed = append(s.removed, removed.DurableID)
	}
	s.touch(nil)
	return nil
}

func (s *IntakeSession) MaterializeParty(ctx context.Context, localID string) (*domain.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.deps.Roster.Materialize(ctx, s.dossier, localID)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func (s *IntakeSession) ReportProgress(localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.party(localID); err != nil {
		return err
	}
	s.reported[localID] = struct{}{}
	return nil
}

func (s *IntakeSession) Requirements(localID string) ([]domain.DocumentRequirement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.party(localID)
	if err != nil {
		return nil, err
	}
	return s.resolve(p), nil
}

// UploadDocuments materializes the party if needed, then reconciles the
// batch into the slot for documentType.
func (s *IntakeSession) UploadDocuments(ctx context.Context, localID, documentType string, items []domain.UploadItem) (domain.UploadOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.party(localID)
	if err != nil {
		return domain.UploadOutcome{}, err
	}
	if p.EmploymentStatus == domain.EmploymentUnset {
		return domain.UploadOutcome{}, domain.NewValidationError("employment_status", "choose your employment status first")
	}

	var requirement *domain.DocumentRequirement
	if req, ok := s.deps.Catalog.Lookup(p.EmploymentStatus, p.Role, documentType); ok {
		requirement = &req
	} else if p.Slot(documentType) == nil {
		return domain.UploadOutcome{}, domain.NewValidationError("document_type", fmt.Sprintf("%s is not requested for this person", documentType))
	}

	if !p.Materialized() {
		if _, err := s.deps.Roster.Materialize(ctx, s.dossier, localID); err != nil {
			return domain.UploadOutcome{}, err
		}
	}

	result, err := s.deps.Reconciler.Reconcile(ctx, ReconcileRequest{
		DossierID:    s.dossier.ID,
		Party:        p.Clone(),
		DocumentType: documentType,
		Requirement:  requirement,
		Items:        items,
	})
	if result.Slot.Content != nil {
		p.PutSlot(result.Slot)
		s.touch(p)
	}
	if err == nil {
		s.cleanup(ctx, result.Removed)
	}

	outcome := domain.UploadOutcome{
		Slot:     result.Slot,
		Uploaded: result.Uploaded,
		Skipped:  result.Skipped,
	}
	return outcome, err
}

func (s *IntakeSession) cleanup(ctx context.Context, removed []domain.Evidence) {
	for _, ev := range removed {
		if err := s.deps.Store.DeleteDocumentMetadata(ctx, ev.ID); err != nil {
			slog.Warn("document_cleanup_failed", "dossier_id", s.dossier.ID, "evidence_id", ev.ID, "step", "metadata", "error", err)
		}
		if s.deps.Blobs == nil {
			continue
		}
		if err := s.deps.Blobs.DeleteBlob(ctx, ev.StorageRef); err != nil {
			slog.Warn("document_cleanup_failed", "dossier_id", s.dossier.ID, "evidence_id", ev.ID, "step", "blob", "error", err)
		}
	}
}

// Submit persists the dossier synchronously and closes the intake. An
// incomplete dossier is rejected with the list of missing items.
func (s *IntakeSession) Submit(ctx context.Context) error {
	s.mu.Lock()
	if problems := s.incompleteLocked(); len(problems) > 0 {
		s.mu.Unlock()
		return domain.NewValidationError("dossier", "application is incomplete: "+strings.Join(problems, "; "))
	}
	s.dossier.Completed = true
	s.mu.Unlock()

	if err := s.saver.Flush(ctx); err != nil {
		s.mu.Lock()
		s.dossier.Completed = false
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	payload := s.eventPayloadLocked()
	s.mu.Unlock()
	s.deps.Events.Dispatch(domain.EventApplicationSubmit, payload)
	return nil
}

func (s *IntakeSession) incompleteLocked() []string {
	var problems []string
	if !s.dossier.BidPresent() {
		problems = append(problems, "bid amount and start date are required")
	}
	for _, p := range s.dossier.Parties {
		who := p.Name
		if who == "" {
			who = string(p.Role)
		}
		if !p.HasContact() {
			problems = append(problems, who+": contact details incomplete")
		}
		if p.EmploymentStatus == domain.EmploymentUnset {
			problems = append(problems, who+": employment status not chosen")
			continue
		}
		for _, req := range s.resolve(p) {
			if !req.Required {
				continue
			}
			slot := p.Slot(req.Type)
			if slot == nil || slot.Status != domain.SlotReceived {
				problems = append(problems, fmt.Sprintf("%s: %s missing", who, req.Label))
				continue
			}
			if n := len(slot.Files()); n < req.MinFiles() {
				problems = append(problems, fmt.Sprintf("%s: %s needs %d files, has %d", who, req.Label, req.MinFiles(), n))
			}
		}
	}
	return problems
}

// persist is the SaveCoordinator callback: dossier fields first, then each
// party in roster order, back-filling durable ids for inserted parties.
func (s *IntakeSession) persist(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	err := s.persistLocked(ctx)
	var payload map[string]any
	if err == nil {
		payload = s.eventPayloadLocked()
	}
	dossierID := s.dossier.ID
	s.mu.Unlock()

	s.deps.Metrics.ObserveSave(time.Since(start), err)
	if err != nil {
		slog.Error("dossier_save_failed", "dossier_id", dossierID, "error", err)
		return err
	}
	slog.Debug("dossier_saved", "dossier_id", dossierID, "duration_ms", float64(time.Since(start).Microseconds())/1000.0)
	s.deps.Events.Dispatch(domain.EventTenantData, payload)
	return nil
}

func (s *IntakeSession) persistLocked(ctx context.Context) error {
	d := s.dossier

	remaining := s.removed[:0]
	for _, durableID := range s.removed {
		if err := s.deps.Store.DeleteParty(ctx, durableID); err != nil {
			slog.Warn("party_delete_failed", "dossier_id", d.ID, "party_id", durableID, "error", err)
			remaining = append(remaining, durableID)
		}
	}
	s.removed = remaining

	d.UpdatedAt = s.now().UTC()
	if err := s.deps.Store.UpsertDossier(ctx, d); err != nil {
		return domain.WrapError(domain.ErrPersistence, "upsert dossier", err)
	}
	for _, p := range d.Parties {
		if !p.Materialized() && !p.HasContact() {
			// the parties table requires contact details; retried on the next save
			continue
		}
		durableID, err := s.deps.Store.UpsertParty(ctx, d.ID, storedParty(d, p))
		if err != nil {
			return domain.WrapError(domain.ErrPersistence, "upsert party "+p.LocalID, err)
		}
		if p.DurableID == "" {
			if durableID == "" {
				return domain.WrapError(domain.ErrPersistence, "upsert party "+p.LocalID, errors.New("store returned empty durable id"))
			}
			p.DurableID = durableID
		}
	}
	return nil
}

// storedParty rewrites the guarantee link to the target's durable id, which
// is what survives a reload.
func storedParty(d *domain.Dossier, p *domain.Party) *domain.Party {
	if p.GuaranteeFor == "" {
		return p
	}
	target := d.Party(p.GuaranteeFor)
	if target == nil || target.DurableID == "" {
		return p
	}
	out := *p
	out.GuaranteeFor = target.DurableID
	return &out
}

func (s *IntakeSession) eventPayloadLocked() map[string]any {
	payload := map[string]any{
		"dossierId":  s.dossier.ID,
		"partyCount": len(s.dossier.Parties),
		"progress":   s.progressLocked().Percent,
		"bidAmount":  s.dossier.BidAmount,
		"property":   s.dossier.Property.Address,
	}
	if primary := s.dossier.PrimaryTenant(); primary != nil {
		payload["name"] = primary.Name
		payload["email"] = primary.Email
	}
	return payload
}

// Close stops pending debounce timers; a save already running completes.
func (s *IntakeSession) Close() {
	s.saver.Close()
}
