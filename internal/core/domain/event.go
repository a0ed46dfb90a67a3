package domain

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventLogin                   EventType = "login"
	EventTenantData              EventType = "tenant_data"
	EventDocumentUpload          EventType = "document_upload"
	EventMultipleDocumentsUpload EventType = "multiple_documents_upload"
	EventApplicationSubmit       EventType = "application_submit"
)

// Event is the envelope delivered to the automation endpoint. Payload keys
// are flattened next to the envelope fields on the wire.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Payload   map[string]any
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Payload)+3)
	for k, v := range e.Payload {
		out[k] = v
	}
	out["eventId"] = e.ID
	out["eventType"] = string(e.Type)
	out["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	return json.Marshal(out)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.ID, _ = raw["eventId"].(string)
	eventType, _ := raw["eventType"].(string)
	e.Type = EventType(eventType)
	if ts, ok := raw["timestamp"].(string); ok {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return err
		}
		e.Timestamp = parsed
	}
	delete(raw, "eventId")
	delete(raw, "eventType")
	delete(raw, "timestamp")
	e.Payload = raw
	return nil
}
