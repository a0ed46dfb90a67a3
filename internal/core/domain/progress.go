package domain

type SaveState string

const (
	SaveIdle   SaveState = "idle"
	SaveSaving SaveState = "saving"
	SaveSaved  SaveState = "saved"
	SaveError  SaveState = "error"
)

type PartyProgress struct {
	FormPercent    int `json:"form_percent"`
	DocPercent     int `json:"doc_percent"`
	OverallPercent int `json:"overall_percent"`
}

type DossierProgress struct {
	Percent int                      `json:"percent"`
	Parties map[string]PartyProgress `json:"parties"`
}

type SaveStatus struct {
	State SaveState `json:"state"`
	Error string    `json:"error,omitempty"`
}
