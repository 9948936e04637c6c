package network

import (
	"encoding/json"
	"errors"
)

var ErrEmptyEvent = errors.New("envelope has no event name")

// Envelope 是线上传输的基本单元：{"event": "...", "data": {...}}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode wraps payload under event.
func Encode(event string, payload any) ([]byte, error) {
	if event == "" {
		return nil, ErrEmptyEvent
	}
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Decode parses one inbound frame.
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, err
	}
	if env.Event == "" {
		return nil, ErrEmptyEvent
	}
	return &env, nil
}

// Bind unmarshals the envelope payload into v. A missing payload leaves v untouched.
func (e *Envelope) Bind(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}
