package httpadapter

import (
	"strings"
	"time"

	"github.com/kirillkom/rental-intake/internal/core/domain"
)

const dateLayout = "2006-01-02"

type loginRequest struct {
	Email     string `json:"email"`
	DossierID string `json:"dossier_id"`
}

type createDossierRequest struct {
	Property domain.PropertyRef `json:"property"`
	Name     string             `json:"name"`
	Email    string             `json:"email"`
	Phone    string             `json:"phone"`
}

func (req createDossierRequest) options() domain.OpenOptions {
	return domain.OpenOptions{
		Property: req.Property,
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Phone:    strings.TrimSpace(req.Phone),
	}
}

type bidRequest struct {
	BidAmount *int64 `json:"bid_amount"`
	// StartDate is YYYY-MM-DD; an empty string clears it.
	StartDate     *string             `json:"start_date"`
	Motivation    *string             `json:"motivation"`
	AdvanceMonths *int                `json:"advance_months"`
	Property      *domain.PropertyRef `json:"property"`
}

func (req bidRequest) patch() (domain.BidPatch, error) {
	patch := domain.BidPatch{
		BidAmount:     req.BidAmount,
		Motivation:    req.Motivation,
		AdvanceMonths: req.AdvanceMonths,
		Property:      req.Property,
	}
	if req.StartDate != nil {
		raw := strings.TrimSpace(*req.StartDate)
		if raw == "" {
			patch.ClearStart = true
			return patch, nil
		}
		start, err := time.Parse(dateLayout, raw)
		if err != nil {
			return domain.BidPatch{}, domain.NewValidationError("start_date", "use the YYYY-MM-DD format")
		}
		patch.StartDate = &start
	}
	return patch, nil
}

type addPartyRequest struct {
	Role         domain.Role `json:"role"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	Phone        string      `json:"phone"`
	GuaranteeFor string      `json:"guarantee_for"`
}

func (req addPartyRequest) newParty() domain.NewParty {
	return domain.NewParty{
		Role:         req.Role,
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.TrimSpace(req.Email),
		Phone:        strings.TrimSpace(req.Phone),
		GuaranteeFor: req.GuaranteeFor,
	}
}

type partyPatchRequest struct {
	Name             *string         `json:"name"`
	Email            *string         `json:"email"`
	Phone            *string         `json:"phone"`
	Address          *domain.Address `json:"address"`
	EmploymentStatus *string         `json:"employment_status"`
	Income           *int64          `json:"income"`
	GuaranteeFor     *string         `json:"guarantee_for"`
}

func (req partyPatchRequest) patch() domain.PartyPatch {
	patch := domain.PartyPatch{
		Name:         trimmed(req.Name),
		Email:        trimmed(req.Email),
		Phone:        trimmed(req.Phone),
		Address:      req.Address,
		Income:       req.Income,
		GuaranteeFor: req.GuaranteeFor,
	}
	if req.EmploymentStatus != nil {
		status := domain.EmploymentStatus(strings.ToLower(strings.TrimSpace(*req.EmploymentStatus)))
		patch.EmploymentStatus = &status
	}
	return patch
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	out := strings.TrimSpace(*v)
	return &out
}

type dossierResponse struct {
	Dossier    *domain.Dossier        `json:"dossier"`
	Progress   domain.DossierProgress `json:"progress"`
	SaveStatus domain.SaveStatus      `json:"save_status"`
}

type requirementsResponse struct {
	PartyID      string                       `json:"party_id"`
	Requirements []domain.DocumentRequirement `json:"requirements"`
}

type uploadFailureResponse struct {
	errorResponse
	Outcome domain.UploadOutcome `json:"outcome"`
}
