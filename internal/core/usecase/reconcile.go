package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/rental-intake/internal/core/domain"
	"github.com/kirillkom/rental-intake/internal/core/ports"
)

type ReconcileRequest struct {
	DossierID string
	// Party is a read-only view; it must already be materialized.
	Party        *domain.Party
	DocumentType string
	// Requirement is nil when the type is not in the party's resolved list.
	Requirement *domain.DocumentRequirement
	Items       []domain.UploadItem
}

type ReconcileResult struct {
	Slot     domain.DocumentSlot
	Uploaded []domain.Evidence
	// Skipped lists payload filenames beyond the slot's remaining capacity.
	Skipped []string
	// Removed holds evidence the new slot no longer references.
	Removed []domain.Evidence
}

// Reconciler merges an upload batch into a party's document slot.
type Reconciler struct {
	blobs     ports.BlobStorage
	store     ports.DossierStore
	inspector ports.PayloadInspector
	events    EventEmitter
	metrics   ports.IntakeMetrics
	now       func() time.Time
}

func NewReconciler(
	blobs ports.BlobStorage,
	store ports.DossierStore,
	inspector ports.PayloadInspector,
	events EventEmitter,
	metrics ports.IntakeMetrics,
) *Reconciler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Reconciler{
		blobs:     blobs,
		store:     store,
		inspector: inspector,
		events:    events,
		metrics:   metrics,
		now:       time.Now,
	}
}

type batchPlan struct {
	multi    bool
	carried  []domain.Evidence
	payloads []*domain.UploadPayload
	skipped  []string
}

func (r *Reconciler) Reconcile(ctx context.Context, req ReconcileRequest) (ReconcileResult, error) {
	if req.Party == nil || !req.Party.Materialized() {
		return ReconcileResult{}, domain.WrapError(domain.ErrInvalidInput, "reconcile", errors.New("party has no durable identity"))
	}

	existing := req.Party.Slot(req.DocumentType)
	plan, err := r.plan(ctx, req, existing)
	if err != nil {
		return ReconcileResult{}, err
	}

	uploaded, uploadErr := r.uploadSequential(ctx, req, plan.payloads)
	r.metrics.ObserveUpload(req.DocumentType, len(uploaded), uploadErr)
	r.emitUploaded(req, uploaded)

	result := ReconcileResult{
		Uploaded: uploaded,
		Skipped:  plan.skipped,
	}

	if plan.multi {
		items := make([]domain.Evidence, 0, len(plan.carried)+len(uploaded))
		items = append(items, plan.carried...)
		items = append(items, uploaded...)
		content := domain.MultiFile{Items: items}
		status := domain.DeriveStatus(content)
		if uploadErr != nil {
			status = domain.SlotMissing
		}
		result.Slot = domain.DocumentSlot{DocumentType: req.DocumentType, Content: content, Status: status}
		result.Removed = dropped(existing, items)
		return result, uploadErr
	}

	if uploadErr != nil {
		result.Slot = unchangedSlot(req.DocumentType, existing)
		return result, uploadErr
	}

	var sole domain.Evidence
	switch {
	case len(uploaded) > 0:
		sole = uploaded[len(uploaded)-1]
	case len(plan.carried) > 0:
		sole = plan.carried[len(plan.carried)-1]
	}
	content := domain.SingleFile{Evidence: sole}
	result.Slot = domain.DocumentSlot{DocumentType: req.DocumentType, Content: content, Status: domain.DeriveStatus(content)}
	result.Removed = dropped(existing, []domain.Evidence{sole})
	return result, nil
}

func (r *Reconciler) plan(ctx context.Context, req ReconcileRequest, existing *domain.DocumentSlot) (batchPlan, error) {
	if len(req.Items) == 0 {
		return batchPlan{}, domain.NewValidationError(req.DocumentType, "select at least one file")
	}

	known := make(map[string]domain.Evidence)
	if existing != nil {
		for _, ev := range existing.Files() {
			known[ev.ID] = ev
		}
	}

	var plan batchPlan
	seen := make(map[string]struct{})
	for _, item := range req.Items {
		if item.Payload != nil {
			if err := validatePayload(ctx, r.inspector, item.Payload); err != nil {
				return batchPlan{}, err
			}
			plan.payloads = append(plan.payloads, item.Payload)
			continue
		}
		ev, ok := known[item.CarriedID]
		if !ok {
			return batchPlan{}, domain.NewValidationError(req.DocumentType, fmt.Sprintf("file %s is not part of this document", item.CarriedID))
		}
		if _, dup := seen[item.CarriedID]; dup {
			return batchPlan{}, domain.NewValidationError(req.DocumentType, fmt.Sprintf("file %s listed twice", item.CarriedID))
		}
		seen[item.CarriedID] = struct{}{}
		plan.carried = append(plan.carried, ev)
	}

	total := len(plan.carried) + len(plan.payloads)
	existingMulti := existing != nil && existing.IsMulti()
	configuredMulti := req.Requirement != nil && req.Requirement.Cardinality.Multi

	switch {
	case configuredMulti || existingMulti:
		plan.multi = true
	case req.Requirement != nil && total > 1:
		return batchPlan{}, domain.NewValidationError(req.DocumentType, "this document accepts a single file")
	case req.Requirement == nil && total > 1:
		plan.multi = true
	}

	if plan.multi && req.Requirement != nil && req.Requirement.Cardinality.MaxFiles > 0 {
		remaining := req.Requirement.Cardinality.MaxFiles - len(plan.carried)
		if remaining <= 0 && len(plan.payloads) > 0 {
			return batchPlan{}, domain.NewValidationError(req.DocumentType,
				fmt.Sprintf("at most %d files allowed", req.Requirement.Cardinality.MaxFiles))
		}
		if len(plan.payloads) > remaining {
			for _, p := range plan.payloads[remaining:] {
				plan.skipped = append(plan.skipped, p.Filename)
			}
			plan.payloads = plan.payloads[:remaining]
		}
	}
	return plan, nil
}

// uploadSequential stores payloads one at a time and stops at the first
// failure so the error names a single item.
func (r *Reconciler) uploadSequential(ctx context.Context, req ReconcileRequest, payloads []*domain.UploadPayload) ([]domain.Evidence, error) {
	uploaded := make([]domain.Evidence, 0, len(payloads))
	for i, payload := range payloads {
		ev, err := r.uploadOne(ctx, req, payload)
		if err != nil {
			return uploaded, &domain.UploadError{Index: i, Filename: payload.Filename, Err: err}
		}
		uploaded = append(uploaded, ev)
	}
	return uploaded, nil
}

func (r *Reconciler) uploadOne(ctx context.Context, req ReconcileRequest, payload *domain.UploadPayload) (domain.Evidence, error) {
	id := uuid.NewString()
	path := fmt.Sprintf("%s/%s/%s/%s_%s", req.DossierID, req.Party.DurableID, req.DocumentType, id, sanitizeFilename(payload.Filename))

	ref, err := r.blobs.UploadBlob(ctx, path, bytes.NewReader(payload.Data))
	if err != nil {
		return domain.Evidence{}, fmt.Errorf("upload blob: %w", err)
	}

	ev := domain.Evidence{
		ID:         id,
		Filename:   payload.Filename,
		MimeType:   payload.MimeType,
		SizeBytes:  int64(len(payload.Data)),
		StorageRef: ref,
		UploadedAt: r.now().UTC(),
	}
	if err := r.store.InsertDocumentMetadata(ctx, domain.StoredDocument{
		DossierID:    req.DossierID,
		PartyID:      req.Party.DurableID,
		DocumentType: req.DocumentType,
		Evidence:     ev,
	}); err != nil {
		if delErr := r.blobs.DeleteBlob(ctx, ref); delErr != nil {
			slog.Warn("orphan_blob_cleanup_failed", "storage_ref", ref, "error", delErr)
		}
		return domain.Evidence{}, fmt.Errorf("insert document metadata: %w", err)
	}
	return ev, nil
}

func (r *Reconciler) emitUploaded(req ReconcileRequest, uploaded []domain.Evidence) {
	if r.events == nil || len(uploaded) == 0 {
		return
	}
	payload := map[string]any{
		"dossierId":    req.DossierID,
		"partyId":      req.Party.DurableID,
		"role":         string(req.Party.Role),
		"email":        req.Party.Email,
		"documentType": req.DocumentType,
	}
	if len(uploaded) == 1 {
		payload["fileName"] = uploaded[0].Filename
		r.events.Dispatch(domain.EventDocumentUpload, payload)
		return
	}
	names := make([]string, 0, len(uploaded))
	for _, ev := range uploaded {
		names = append(names, ev.Filename)
	}
	payload["fileNames"] = names
	payload["count"] = len(uploaded)
	r.events.Dispatch(domain.EventMultipleDocumentsUpload, payload)
}

func unchangedSlot(documentType string, existing *domain.DocumentSlot) domain.DocumentSlot {
	if existing != nil {
		return existing.Clone()
	}
	return domain.DocumentSlot{DocumentType: documentType, Status: domain.SlotMissing}
}

func dropped(existing *domain.DocumentSlot, kept []domain.Evidence) []domain.Evidence {
	if existing == nil {
		return nil
	}
	keep := make(map[string]struct{}, len(kept))
	for _, ev := range kept {
		keep[ev.ID] = struct{}{}
	}
	var out []domain.Evidence
	for _, ev := range existing.Files() {
		if _, ok := keep[ev.ID]; !ok {
			out = append(out, ev)
		}
	}
	return out
}
