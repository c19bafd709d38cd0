package worker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cuongbtq/queue-worker/internal/worker/domain"
)

// Codec converts job bodies to payloads and back
type Codec interface {
	Decode(body []byte) (domain.Payload, error)
	Encode(payload domain.Payload) ([]byte, error)
}

// JSONCodec encodes payloads as JSON objects
type JSONCodec struct{}

// Decode parses body as a JSON object. Numbers are kept as json.Number so
// that integers survive re-encoding unchanged. Any other JSON value, trailing
// data or malformed input yields a *domain.DecodeError.
func (JSONCodec) Decode(body []byte) (domain.Payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &domain.DecodeError{Err: domain.ErrInvalidPayload}
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var payload domain.Payload
	if err := dec.Decode(&payload); err != nil {
		return nil, &domain.DecodeError{Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &domain.DecodeError{Err: fmt.Errorf("%w: trailing data after object", domain.ErrInvalidPayload)}
	}

	return payload, nil
}

// Encode marshals payload as a JSON object; a nil payload encodes as {}
func (JSONCodec) Encode(payload domain.Payload) ([]byte, error) {
	if payload == nil {
		payload = domain.Payload{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return body, nil
}
