package packet

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed marks a line that is not a JSON envelope.
var ErrMalformed = errors.New("malformed message")

// Reader exposes one decoded envelope to a handler.
type Reader struct {
	env Envelope
	raw []byte
}

// NewReader parses a single line into an envelope.
func NewReader(line []byte) (*Reader, error) {
	r := &Reader{raw: line}
	if err := json.Unmarshal(line, &r.env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if r.env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return r, nil
}

func (r *Reader) Type() string { return r.env.Type }

// Len returns the size of the original line in bytes.
func (r *Reader) Len() int { return len(r.raw) }

// Decode unmarshals the payload into v. An absent payload decodes as {}.
func (r *Reader) Decode(v any) error {
	if len(r.env.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.env.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", r.env.Type, err)
	}
	return nil
}
