package usecase

import (
	"github.com/kirillkom/rental-intake/internal/core/domain"
)

// hydrate rebuilds the in-memory dossier from a stored snapshot. Document
// rows are grouped into slots per party: a type configured as single keeps
// only its latest record, a configured multi type keeps all of them, and an
// unconfigured type becomes multi once it has more than one record.
func hydrate(deps SessionDeps, snapshot domain.Snapshot) (*domain.Dossier, map[string]struct{}) {
	dossier := snapshot.Dossier.Clone()
	reported := make(map[string]struct{}, len(dossier.Parties))

	byDurable := make(map[string]*domain.Party, len(dossier.Parties))
	for _, p := range dossier.Parties {
		// stored parties keep their durable id as local id across reloads
		if p.LocalID == "" {
			p.LocalID = p.DurableID
		}
		if p.LocalID == "" {
			p.LocalID = deps.Roster.newID()
		}
		p.Slots = []domain.DocumentSlot{}
		if p.DurableID != "" {
			byDurable[p.DurableID] = p
		}
		reported[p.LocalID] = struct{}{}
	}

	type group struct {
		party        *domain.Party
		documentType string
		records      []domain.Evidence
	}
	var order []string
	groups := make(map[string]*group)
	for _, doc := range snapshot.Documents {
		p := byDurable[doc.PartyID]
		if p == nil {
			continue
		}
		key := doc.PartyID + "/" + doc.DocumentType
		g, ok := groups[key]
		if !ok {
			g = &group{party: p, documentType: doc.DocumentType}
			groups[key] = g
			order = append(order, key)
		}
		g.records = append(g.records, doc.Evidence)
	}

	for _, key := range order {
		g := groups[key]
		req, configured := deps.Catalog.Lookup(g.party.EmploymentStatus, g.party.Role, g.documentType)

		var content domain.SlotContent
		switch {
		case configured && !req.Cardinality.Multi:
			content = domain.SingleFile{Evidence: g.records[len(g.records)-1]}
		case configured || len(g.records) > 1:
			content = domain.MultiFile{Items: g.records}
		default:
			content = domain.SingleFile{Evidence: g.records[0]}
		}
		g.party.PutSlot(domain.DocumentSlot{
			DocumentType: g.documentType,
			Content:      content,
			Status:       domain.DeriveStatus(content),
		})
	}

	if dossier.PrimaryTenant() == nil {
		primary := deps.Roster.NewDefaultParty(domain.OpenOptions{})
		dossier.Parties = append([]*domain.Party{primary}, dossier.Parties...)
	}
	return dossier, reported
}
