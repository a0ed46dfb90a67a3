package usecase

import (
	"math"

	"github.com/kirillkom/rental-intake/internal/core/domain"
)

// Scoring weights are fixed business policy.
const (
	formFieldCount     = 5
	formWeight         = 0.6
	documentWeight     = 0.4
	bidPoints          = 30
	partyPoints        = 70
	completePercentage = 100
)

// PartyProgress scores one party against its resolved requirements.
func PartyProgress(party *domain.Party, reqs []domain.DocumentRequirement) domain.PartyProgress {
	form := formPercent(party)
	docs := docPercent(party, reqs)
	return domain.PartyProgress{
		FormPercent:    form,
		DocPercent:     docs,
		OverallPercent: int(math.Round(float64(form)*formWeight + float64(docs)*documentWeight)),
	}
}

func formPercent(party *domain.Party) int {
	filled := 0
	for _, ok := range []bool{
		party.Name != "",
		party.Email != "",
		party.Phone != "",
		party.EmploymentStatus != domain.EmploymentUnset,
		party.Income > 0,
	} {
		if ok {
			filled++
		}
	}
	return int(math.Round(float64(filled) * 100 / formFieldCount))
}

func docPercent(party *domain.Party, reqs []domain.DocumentRequirement) int {
	if party.EmploymentStatus == domain.EmploymentUnset {
		return 0
	}
	required, received := 0, 0
	for _, req := range reqs {
		if !req.Required {
			continue
		}
		required++
		if slot := party.Slot(req.Type); slot != nil && slot.Status == domain.SlotReceived {
			received++
		}
	}
	if required == 0 {
		return completePercentage
	}
	return int(math.Round(float64(received) * 100 / float64(required)))
}

// DossierProgress blends the bid with the average of reporting parties.
// Parties absent from reported are left out of the average.
func DossierProgress(dossier *domain.Dossier, reported map[string]domain.PartyProgress) int {
	score := 0
	if dossier.BidPresent() {
		score = bidPoints
	}
	if len(reported) == 0 {
		return score
	}

	sum := 0
	for _, p := range reported {
		sum += p.OverallPercent
	}
	avg := float64(sum) / float64(len(reported))
	score += int(math.Round(avg / 100 * partyPoints))

	return min(max(score, 0), completePercentage)
}
