package codec

import (
	"encoding/json"
	"fmt"

	"device-agent/models"
)

// ParseError marks an inbound envelope that could not be decoded. The
// dispatcher logs these and drops the message; they are never fatal.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse error: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Codec serializes outbound records and parses inbound envelopes.
// Publish buffers are fixed-capacity, so Encode fails loudly instead
// of truncating when a record would not fit.
type Codec struct {
	maxPayloadSize int
}

func NewCodec(maxPayloadSize int) *Codec {
	return &Codec{maxPayloadSize: maxPayloadSize}
}

// Encode marshals a record into a field-keyed JSON envelope.
func (c *Codec) Encode(v interface{}) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	if c.maxPayloadSize > 0 && len(payload) > c.maxPayloadSize {
		return nil, fmt.Errorf("encoded record is %d bytes, exceeds payload limit of %d", len(payload), c.maxPayloadSize)
	}
	return payload, nil
}

// DecodeCommand parses a command envelope. A missing or non-string
// "command" field is a *ParseError, not a valid unknown command.
func (c *Codec) DecodeCommand(payload []byte) (*models.Command, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &ParseError{Reason: "malformed command envelope", Err: err}
	}

	nameRaw, ok := raw["command"]
	if !ok {
		return nil, &ParseError{Reason: "command envelope missing 'command' field"}
	}
	var name string
	if err := json.Unmarshal(nameRaw, &name); err != nil {
		return nil, &ParseError{Reason: "'command' field is not a string", Err: err}
	}
	if name == "" {
		return nil, &ParseError{Reason: "'command' field is empty"}
	}

	cmd := &models.Command{Command: name}
	if argsRaw, ok := raw["arguments"]; ok {
		if err := json.Unmarshal(argsRaw, &cmd.Arguments); err != nil {
			return nil, &ParseError{Reason: "'arguments' field is not an object", Err: err}
		}
	}
	return cmd, nil
}

// DecodeUpdateRequest parses an OTA envelope. URL, version and checksum
// are all required.
func (c *Codec) DecodeUpdateRequest(payload []byte) (*models.UpdateRequest, error) {
	var req models.UpdateRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &ParseError{Reason: "malformed update envelope", Err: err}
	}
	if req.URL == "" {
		return nil, &ParseError{Reason: "update envelope missing 'url' field"}
	}
	if req.Version == "" {
		return nil, &ParseError{Reason: "update envelope missing 'version' field"}
	}
	if req.Checksum == "" {
		return nil, &ParseError{Reason: "update envelope missing 'checksum' field"}
	}
	return &req, nil
}
