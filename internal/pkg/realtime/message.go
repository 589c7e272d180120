package realtime

import (
	"encoding/json"
	"fmt"
)

// Envelope is the frame exchanged over the realtime connection.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope for event.
func NewEnvelope(event string, payload interface{}) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// Decode unmarshals the envelope data into v.
func (e Envelope) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: %w", e.Event, ErrEmptyPayload)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Event, err)
	}
	return nil
}
