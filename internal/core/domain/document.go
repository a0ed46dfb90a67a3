package domain

import (
	"encoding/json"
	"time"
)

type SlotStatus string

const (
	SlotMissing  SlotStatus = "missing"
	SlotReceived SlotStatus = "received"
)

// Evidence is one stored file backing a document slot.
type Evidence struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	MimeType   string    `json:"mime_type,omitempty"`
	SizeBytes  int64     `json:"size_bytes,omitempty"`
	StorageRef string    `json:"storage_ref"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// SlotContent is either SingleFile or MultiFile.
type SlotContent interface {
	Files() []Evidence
	isSlotContent()
}

type SingleFile struct {
	Evidence Evidence
}

func (SingleFile) isSlotContent() {}

func (s SingleFile) Files() []Evidence {
	return []Evidence{s.Evidence}
}

type MultiFile struct {
	Items []Evidence
}

func (MultiFile) isSlotContent() {}

func (m MultiFile) Files() []Evidence {
	return append([]Evidence(nil), m.Items...)
}

type DocumentSlot struct {
	DocumentType string
	Content      SlotContent
	Status       SlotStatus
}

func (s DocumentSlot) IsMulti() bool {
	_, ok := s.Content.(MultiFile)
	return ok
}

func (s DocumentSlot) Files() []Evidence {
	if s.Content == nil {
		return nil
	}
	return s.Content.Files()
}

func (s DocumentSlot) Clone() DocumentSlot {
	out := s
	if multi, ok := s.Content.(MultiFile); ok {
		out.Content = MultiFile{Items: append([]Evidence(nil), multi.Items...)}
	}
	return out
}

// DeriveStatus applies the received-iff-non-empty rule.
func DeriveStatus(content SlotContent) SlotStatus {
	if content == nil || len(content.Files()) == 0 {
		return SlotMissing
	}
	return SlotReceived
}

func (s DocumentSlot) MarshalJSON() ([]byte, error) {
	kind := "single"
	if s.IsMulti() {
		kind = "multi"
	}
	files := s.Files()
	if files == nil {
		files = []Evidence{}
	}
	return json.Marshal(struct {
		DocumentType string     `json:"document_type"`
		Kind         string     `json:"kind"`
		Files        []Evidence `json:"files"`
		Status       SlotStatus `json:"status"`
	}{
		DocumentType: s.DocumentType,
		Kind:         kind,
		Files:        files,
		Status:       s.Status,
	})
}

type Cardinality struct {
	Multi    bool `json:"multi" yaml:"multi"`
	MinFiles int  `json:"min_files,omitempty" yaml:"min_files"`
	MaxFiles int  `json:"max_files,omitempty" yaml:"max_files"`
}

// DocumentRequirement is the static description of one document slot.
type DocumentRequirement struct {
	Type        string      `json:"type"`
	Label       string      `json:"label"`
	Required    bool        `json:"required"`
	Cardinality Cardinality `json:"cardinality"`
}

// MinFiles is the number of files a complete slot needs.
func (r DocumentRequirement) MinFiles() int {
	if r.Cardinality.Multi && r.Cardinality.MinFiles > 0 {
		return r.Cardinality.MinFiles
	}
	return 1
}

// UploadPayload is a file that has not reached blob storage yet.
type UploadPayload struct {
	Filename string
	MimeType string
	Data     []byte
}

// UploadItem is one entry of an upload batch: a new payload or evidence
// the slot already holds.
type UploadItem struct {
	Payload   *UploadPayload
	CarriedID string
}

func NewPayloadItem(filename, mimeType string, data []byte) UploadItem {
	return UploadItem{Payload: &UploadPayload{Filename: filename, MimeType: mimeType, Data: data}}
}

func CarriedItem(evidenceID string) UploadItem {
	return UploadItem{CarriedID: evidenceID}
}

// StoredDocument is the persisted metadata row for one evidence record.
type StoredDocument struct {
	DossierID    string
	PartyID      string
	DocumentType string
	Evidence     Evidence
}
