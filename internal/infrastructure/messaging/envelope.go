// Package messaging validates and classifies cross-origin messages arriving
// from the embedded measurement flow and from the host platform.
package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Envelope is the wire shape of every message crossing the frame boundary.
// Origin is attached by the receiving side, never trusted from the payload.
type Envelope struct {
	Type    string         `json:"type"`
	Source  string         `json:"source,omitempty"`
	Origin  string         `json:"-"`
	Payload map[string]any `json:"payload,omitempty"`
}

// envelopeSchema rejects messages that are structurally wrong before any
// origin or type logic runs.
const envelopeSchema = `{
	"type": "object",
	"required": ["type"],
	"properties": {
		"type": {"type": "string", "minLength": 1},
		"source": {"type": "string"},
		"payload": {"type": "object"}
	}
}`

var compiledEnvelopeSchema = gojsonschema.NewStringLoader(envelopeSchema)

// ParseEnvelope decodes and schema-validates a raw frame message. The
// returned error describes the first validation failure; callers log it and
// drop the message.
func ParseEnvelope(raw []byte, origin string) (*Envelope, error) {
	result, err := gojsonschema.Validate(compiledEnvelopeSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("envelope validation: %w", err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("invalid envelope: %s", result.Errors()[0].String())
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("envelope decode: %w", err)
	}
	env.Origin = origin
	return &env, nil
}

// Encode serializes an envelope for delivery to the frame.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
