package domain

import "time"

// OpenOptions seeds a dossier that has no stored snapshot yet. The contact
// comes from the caller's auth session.
type OpenOptions struct {
	Property PropertyRef
	Name     string
	Email    string
	Phone    string
}

type NewParty struct {
	Role         Role
	Name         string
	Email        string
	Phone        string
	GuaranteeFor string
}

type PartyPatch struct {
	Name             *string
	Email            *string
	Phone            *string
	Address          *Address
	EmploymentStatus *EmploymentStatus
	Income           *int64
	GuaranteeFor     *string
}

type BidPatch struct {
	BidAmount     *int64
	StartDate     *time.Time
	ClearStart    bool
	Motivation    *string
	AdvanceMonths *int
	Property      *PropertyRef
}

type UploadOutcome struct {
	Slot     DocumentSlot `json:"slot"`
	Uploaded []Evidence   `json:"uploaded"`
	Skipped  []string     `json:"skipped,omitempty"`
}
