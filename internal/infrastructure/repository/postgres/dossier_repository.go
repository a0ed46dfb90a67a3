package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/rental-intake/internal/core/domain"
)

type DossierRepository struct {
	db    *sql.DB
	newID func() string
}

func NewDossierRepository(db *sql.DB) *DossierRepository {
	return &DossierRepository{db: db, newID: uuid.NewString}
}

func (r *DossierRepository) UpsertDossier(ctx context.Context, d *domain.Dossier) error {
	conditions, err := json.Marshal(d.Property.Conditions)
	if err != nil {
		return fmt.Errorf("marshal property conditions: %w", err)
	}
	if d.Property.Conditions == nil {
		conditions = []byte(`{}`)
	}
	var start sql.NullTime
	if d.StartDate != nil {
		start = sql.NullTime{Time: d.StartDate.UTC(), Valid: true}
	}
	updatedAt := d.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO dossiers (
	id, bid_amount, start_date, motivation, advance_months, property_id, property_address, property_conditions, completed, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
	bid_amount = EXCLUDED.bid_amount,
	start_date = EXCLUDED.start_date,
	motivation = EXCLUDED.motivation,
	advance_months = EXCLUDED.advance_months,
	property_id = EXCLUDED.property_id,
	property_address = EXCLUDED.property_address,
	property_conditions = EXCLUDED.property_conditions,
	completed = EXCLUDED.completed,
	updated_at = EXCLUDED.updated_at
`,
		d.ID, d.BidAmount, start, d.Motivation, d.AdvanceMonths,
		d.Property.ID, d.Property.Address, conditions, d.Completed, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert dossier: %w", err)
	}
	return nil
}

// UpsertParty inserts the party under a fresh id when it has no durable id
// yet and returns the id that identifies the row.
func (r *DossierRepository) UpsertParty(ctx context.Context, dossierID string, p *domain.Party) (string, error) {
	id := p.DurableID
	if id == "" {
		id = r.newID()
	}
	address, err := json.Marshal(p.Address)
	if err != nil {
		return "", fmt.Errorf("marshal address: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO parties (
	id, dossier_id, role, name, email, phone, address, employment_status, income, guarantee_for, crm_account_id, documents_complete, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
	role = EXCLUDED.role,
	name = EXCLUDED.name,
	email = EXCLUDED.email,
	phone = EXCLUDED.phone,
	address = EXCLUDED.address,
	employment_status = EXCLUDED.employment_status,
	income = EXCLUDED.income,
	guarantee_for = EXCLUDED.guarantee_for,
	crm_account_id = EXCLUDED.crm_account_id,
	documents_complete = EXCLUDED.documents_complete,
	updated_at = EXCLUDED.updated_at
`,
		id, dossierID, string(p.Role), p.Name, p.Email, p.Phone, address, string(p.EmploymentStatus),
		p.Income, p.GuaranteeFor, p.CRMAccountID, p.DocumentsDone, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("upsert party: %w", err)
	}
	return id, nil
}

func (r *DossierRepository) DeleteParty(ctx context.Context, durableID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM parties WHERE id = $1`, durableID); err != nil {
		return fmt.Errorf("delete party: %w", err)
	}
	return nil
}

func (r *DossierRepository) InsertDocumentMetadata(ctx context.Context, doc domain.StoredDocument) error {
	ev := doc.Evidence
	_, err := r.db.ExecContext(ctx, `
INSERT INTO party_documents (
	id, dossier_id, party_id, document_type, filename, mime_type, size_bytes, storage_ref, uploaded_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		ev.ID, doc.DossierID, doc.PartyID, doc.DocumentType, ev.Filename, ev.MimeType, ev.SizeBytes, ev.StorageRef, ev.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document metadata: %w", err)
	}
	return nil
}

func (r *DossierRepository) DeleteDocumentMetadata(ctx context.Context, evidenceID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM party_documents WHERE id = $1`, evidenceID); err != nil {
		return fmt.Errorf("delete document metadata: %w", err)
	}
	return nil
}

// LoadSnapshot reads the dossier row, its parties in creation order with the
// primary tenant first, and the raw document rows in upload order.
func (r *DossierRepository) LoadSnapshot(ctx context.Context, dossierID string) (*domain.Snapshot, error) {
	d, err := r.loadDossier(ctx, dossierID)
	if err != nil {
		return nil, err
	}
	parties, err := r.loadParties(ctx, dossierID)
	if err != nil {
		return nil, err
	}
	d.Parties = parties

	docs, err := r.loadDocuments(ctx, dossierID)
	if err != nil {
		return nil, err
	}
	return &domain.Snapshot{Dossier: d, Documents: docs}, nil
}

func (r *DossierRepository) loadDossier(ctx context.Context, dossierID string) (*domain.Dossier, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, bid_amount, start_date, motivation, advance_months, property_id, property_address, property_conditions, completed, updated_at
FROM dossiers
WHERE id = $1
`, dossierID)

	var d domain.Dossier
	var start sql.NullTime
	var conditionsRaw []byte
	err := row.Scan(
		&d.ID, &d.BidAmount, &start, &d.Motivation, &d.AdvanceMonths,
		&d.Property.ID, &d.Property.Address, &conditionsRaw, &d.Completed, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDossierNotFound, "load dossier", fmt.Errorf("id=%s", dossierID))
		}
		return nil, fmt.Errorf("scan dossier: %w", err)
	}
	if start.Valid {
		t := start.Time.UTC()
		d.StartDate = &t
	}
	if len(conditionsRaw) > 0 {
		if err := json.Unmarshal(conditionsRaw, &d.Property.Conditions); err != nil {
			return nil, fmt.Errorf("unmarshal property conditions: %w", err)
		}
		if len(d.Property.Conditions) == 0 {
			d.Property.Conditions = nil
		}
	}
	return &d, nil
}

func (r *DossierRepository) loadParties(ctx context.Context, dossierID string) ([]*domain.Party, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, role, name, email, phone, address, employment_status, income, guarantee_for, crm_account_id, documents_complete
FROM parties
WHERE dossier_id = $1
ORDER BY (role = 'primary_tenant') DESC, created_at ASC, id ASC
`, dossierID)
	if err != nil {
		return nil, fmt.Errorf("query parties: %w", err)
	}
	defer rows.Close()

	parties := make([]*domain.Party, 0, 4)
	for rows.Next() {
		var p domain.Party
		var role, status string
		var addressRaw []byte
		if err := rows.Scan(
			&p.DurableID, &role, &p.Name, &p.Email, &p.Phone, &addressRaw, &status,
			&p.Income, &p.GuaranteeFor, &p.CRMAccountID, &p.DocumentsDone,
		); err != nil {
			return nil, fmt.Errorf("scan party: %w", err)
		}
		if len(addressRaw) > 0 {
			if err := json.Unmarshal(addressRaw, &p.Address); err != nil {
				return nil, fmt.Errorf("unmarshal party address: %w", err)
			}
		}
		p.Role = domain.Role(role)
		p.EmploymentStatus = domain.EmploymentStatus(status)
		p.Slots = []domain.DocumentSlot{}
		parties = append(parties, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parties: %w", err)
	}
	return parties, nil
}

func (r *DossierRepository) loadDocuments(ctx context.Context, dossierID string) ([]domain.StoredDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, party_id, document_type, filename, mime_type, size_bytes, storage_ref, uploaded_at
FROM party_documents
WHERE dossier_id = $1
ORDER BY uploaded_at ASC, id ASC
`, dossierID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.StoredDocument
	for rows.Next() {
		doc := domain.StoredDocument{DossierID: dossierID}
		ev := &doc.Evidence
		if err := rows.Scan(
			&ev.ID, &doc.PartyID, &doc.DocumentType, &ev.Filename, &ev.MimeType, &ev.SizeBytes, &ev.StorageRef, &ev.UploadedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}
