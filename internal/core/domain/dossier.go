package domain

import (
	"slices"
	"time"
)

type Role string

const (
	RolePrimaryTenant Role = "primary_tenant"
	RoleCoTenant      Role = "co_tenant"
	RoleGuarantor     Role = "guarantor"
)

func (r Role) Valid() bool {
	switch r {
	case RolePrimaryTenant, RoleCoTenant, RoleGuarantor:
		return true
	default:
		return false
	}
}

// IsTenant reports whether the role lives in the property.
func (r Role) IsTenant() bool {
	return r == RolePrimaryTenant || r == RoleCoTenant
}

type EmploymentStatus string

const (
	EmploymentUnset        EmploymentStatus = ""
	EmploymentStudent      EmploymentStatus = "student"
	EmploymentEmployee     EmploymentStatus = "employee"
	EmploymentEntrepreneur EmploymentStatus = "entrepreneur"
	EmploymentRetired      EmploymentStatus = "retired"
)

func (s EmploymentStatus) Valid() bool {
	switch s {
	case EmploymentUnset, EmploymentStudent, EmploymentEmployee, EmploymentEntrepreneur, EmploymentRetired:
		return true
	default:
		return false
	}
}

const (
	MaxCoTenants       = 2
	MaxGuarantors      = 2
	MaxMotivationChars = 500
)

var allowedAdvanceMonths = []int{0, 1, 2, 3, 6, 12}

func ValidAdvanceMonths(months int) bool {
	return slices.Contains(allowedAdvanceMonths, months)
}

type Address struct {
	Street      string `json:"street,omitempty"`
	HouseNumber string `json:"house_number,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	City        string `json:"city,omitempty"`
	Country     string `json:"country,omitempty"`
}

// PropertyRef is the snapshot of the listing the dossier applies for.
type PropertyRef struct {
	ID         string            `json:"id,omitempty"`
	Address    string            `json:"address"`
	Conditions map[string]string `json:"conditions,omitempty"`
}

type Party struct {
	LocalID          string           `json:"local_id"`
	DurableID        string           `json:"durable_id,omitempty"`
	Role             Role             `json:"role"`
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	Phone            string           `json:"phone"`
	Address          Address          `json:"address"`
	EmploymentStatus EmploymentStatus `json:"employment_status,omitempty"`
	Income           int64            `json:"income"`
	GuaranteeFor     string           `json:"guarantee_for,omitempty"`
	CRMAccountID     string           `json:"crm_account_id,omitempty"`
	Slots            []DocumentSlot   `json:"slots"`
	DocumentsDone    bool             `json:"documents_complete"`
}

// Materialized reports whether the party has a backend identity.
func (p *Party) Materialized() bool {
	return p.DurableID != ""
}

func (p *Party) HasContact() bool {
	return p.Name != "" && p.Email != "" && p.Phone != ""
}

// Slot returns the slot for documentType, or nil.
func (p *Party) Slot(documentType string) *DocumentSlot {
	for i := range p.Slots {
		if p.Slots[i].DocumentType == documentType {
			return &p.Slots[i]
		}
	}
	return nil
}

// PutSlot replaces the slot of the same type or appends a new one.
func (p *Party) PutSlot(slot DocumentSlot) {
	for i := range p.Slots {
		if p.Slots[i].DocumentType == slot.DocumentType {
			p.Slots[i] = slot
			return
		}
	}
	p.Slots = append(p.Slots, slot)
}

func (p *Party) Clone() *Party {
	out := *p
	out.Slots = make([]DocumentSlot, len(p.Slots))
	for i, slot := range p.Slots {
		out.Slots[i] = slot.Clone()
	}
	return &out
}

type Dossier struct {
	ID            string      `json:"id"`
	BidAmount     int64       `json:"bid_amount"`
	StartDate     *time.Time  `json:"start_date,omitempty"`
	Motivation    string      `json:"motivation"`
	AdvanceMonths int         `json:"advance_months"`
	Property      PropertyRef `json:"property"`
	Parties       []*Party    `json:"parties"`
	Completed     bool        `json:"completed"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// BidPresent reports whether the bid contributes to dossier progress.
func (d *Dossier) BidPresent() bool {
	return d.BidAmount > 0 && d.StartDate != nil && !d.StartDate.IsZero()
}

func (d *Dossier) Party(localID string) *Party {
	for _, p := range d.Parties {
		if p.LocalID == localID {
			return p
		}
	}
	return nil
}

func (d *Dossier) PrimaryTenant() *Party {
	for _, p := range d.Parties {
		if p.Role == RolePrimaryTenant {
			return p
		}
	}
	return nil
}

func (d *Dossier) CountRole(role Role) int {
	n := 0
	for _, p := range d.Parties {
		if p.Role == role {
			n++
		}
	}
	return n
}

func (d *Dossier) Clone() *Dossier {
	out := *d
	if d.StartDate != nil {
		start := *d.StartDate
		out.StartDate = &start
	}
	if d.Property.Conditions != nil {
		out.Property.Conditions = make(map[string]string, len(d.Property.Conditions))
		for k, v := range d.Property.Conditions {
			out.Property.Conditions[k] = v
		}
	}
	out.Parties = make([]*Party, len(d.Parties))
	for i, p := range d.Parties {
		out.Parties[i] = p.Clone()
	}
	return &out
}

// Snapshot is what the store hands back on load: dossier and party fields
// without slots, plus the raw document rows in upload order.
type Snapshot struct {
	Dossier   *Dossier
	Documents []StoredDocument
}
