package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/rental-intake/internal/core/domain"
	"github.com/kirillkom/rental-intake/internal/core/ports"
)

// RosterManager owns party membership rules for a dossier.
type RosterManager struct {
	store    ports.DossierStore
	accounts ports.AccountDirectory
	newID    func() string
}

func NewRosterManager(store ports.DossierStore, accounts ports.AccountDirectory) *RosterManager {
	return &RosterManager{
		store:    store,
		accounts: accounts,
		newID:    uuid.NewString,
	}
}

// NewDefaultParty builds the primary tenant seeded on dossier creation.
func (m *RosterManager) NewDefaultParty(opts domain.OpenOptions) *domain.Party {
	return &domain.Party{
		LocalID: m.newID(),
		Role:    domain.RolePrimaryTenant,
		Name:    strings.TrimSpace(opts.Name),
		Email:   strings.TrimSpace(opts.Email),
		Phone:   strings.TrimSpace(opts.Phone),
		Slots:   []domain.DocumentSlot{},
	}
}

func (m *RosterManager) AddParty(d *domain.Dossier, in domain.NewParty) (*domain.Party, error) {
	switch in.Role {
	case domain.RolePrimaryTenant:
		return nil, domain.NewValidationError("role", "a dossier has exactly one primary tenant")
	case domain.RoleCoTenant:
		if d.CountRole(domain.RoleCoTenant) >= domain.MaxCoTenants {
			return nil, domain.NewValidationError("role", fmt.Sprintf("at most %d co-tenants can be added", domain.MaxCoTenants))
		}
	case domain.RoleGuarantor:
		if d.CountRole(domain.RoleGuarantor) >= domain.MaxGuarantors {
			return nil, domain.NewValidationError("role", fmt.Sprintf("at most %d guarantors can be added", domain.MaxGuarantors))
		}
	default:
		return nil, domain.NewValidationError("role", fmt.Sprintf("unknown role %q", in.Role))
	}

	if in.GuaranteeFor != "" {
		if err := validateGuaranteeTarget(d, in.Role, in.GuaranteeFor); err != nil {
			return nil, err
		}
	}

	party := &domain.Party{
		LocalID:      m.newID(),
		Role:         in.Role,
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.TrimSpace(in.Email),
		Phone:        strings.TrimSpace(in.Phone),
		GuaranteeFor: in.GuaranteeFor,
		Slots:        []domain.DocumentSlot{},
	}
	d.Parties = append(d.Parties, party)
	return party, nil
}

func validateGuaranteeTarget(d *domain.Dossier, role domain.Role, targetID string) error {
	if role != domain.RoleGuarantor {
		return domain.NewValidationError("guarantee_for", "only guarantors can guarantee a tenant")
	}
	target := d.Party(targetID)
	if target == nil || !target.Role.IsTenant() {
		return domain.NewValidationError("guarantee_for", "guarantee must point at a tenant or co-tenant")
	}
	return nil
}

// RemoveParty deletes the party and its slots. Guarantees that pointed at it
// are cleared.
func (m *RosterManager) RemoveParty(d *domain.Dossier, localID string) (*domain.Party, error) {
	idx := -1
	for i, p := range d.Parties {
		if p.LocalID == localID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, domain.WrapError(domain.ErrPartyNotFound, "remove party", fmt.Errorf("local_id=%s", localID))
	}
	removed := d.Parties[idx]
	if removed.Role == domain.RolePrimaryTenant {
		return nil, domain.NewValidationError("role", "the primary tenant cannot be removed")
	}

	d.Parties = append(d.Parties[:idx], d.Parties[idx+1:]...)
	for _, p := range d.Parties {
		if p.GuaranteeFor == localID {
			p.GuaranteeFor = ""
		}
	}
	return removed, nil
}

// Materialize gives the party a durable identity by persisting it. Name,
// email and phone are required by the backend schema.
func (m *RosterManager) Materialize(ctx context.Context, d *domain.Dossier, localID string) (*domain.Party, error) {
	party := d.Party(localID)
	if party == nil {
		return nil, domain.WrapError(domain.ErrPartyNotFound, "materialize party", fmt.Errorf("local_id=%s", localID))
	}
	if party.Materialized() {
		return party, nil
	}

	var missing []string
	for _, field := range []struct{ name, value string }{
		{"name", party.Name},
		{"email", party.Email},
		{"phone", party.Phone},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return nil, domain.NewValidationError("contact",
			fmt.Sprintf("fill in %s before uploading documents", strings.Join(missing, ", ")))
	}

	if err := m.store.UpsertDossier(ctx, d); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "materialize party: upsert dossier", err)
	}
	durableID, err := m.store.UpsertParty(ctx, d.ID, storedParty(d, party))
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "materialize party", err)
	}
	if durableID == "" {
		return nil, domain.WrapError(domain.ErrPersistence, "materialize party", errors.New("store returned empty durable id"))
	}
	party.DurableID = durableID
	return party, nil
}

// LinkToAccount associates a party with a CRM account and records the
// relationship on the primary tenant's account. It returns the account ids
// it could establish; failures are logged only.
func (m *RosterManager) LinkToAccount(ctx context.Context, primary, party domain.Party) (primaryAccount, partyAccount string) {
	if m.accounts == nil {
		return primary.CRMAccountID, party.CRMAccountID
	}
	log := slog.With("party_id", party.LocalID, "role", string(party.Role))

	primaryAccount = primary.CRMAccountID
	if primaryAccount == "" && primary.Email != "" {
		id, err := m.accounts.EnsureAccount(ctx, ports.AccountRequest{Name: primary.Name, Email: primary.Email, Phone: primary.Phone})
		if err != nil {
			log.Warn("crm_link_failed", "step", "ensure_primary_account", "error", err)
		} else {
			primaryAccount = id
		}
	}

	partyAccount = party.CRMAccountID
	if partyAccount == "" {
		if party.Email == "" {
			log.Debug("crm_link_skipped", "reason", "party has no email")
			return primaryAccount, ""
		}
		id, err := m.accounts.EnsureAccount(ctx, ports.AccountRequest{Name: party.Name, Email: party.Email, Phone: party.Phone})
		if err != nil {
			log.Warn("crm_link_failed", "step", "ensure_party_account", "error", err)
			return primaryAccount, ""
		}
		partyAccount = id
	}

	if primaryAccount == "" {
		return primaryAccount, partyAccount
	}
	if err := m.accounts.RecordRelationship(ctx, primaryAccount, partyAccount, party.Role); err != nil {
		log.Warn("crm_link_failed", "step", "record_relationship", "error", err)
	}
	return primaryAccount, partyAccount
}
