package packet

import (
	"encoding/json"
	"fmt"
)

// Encode builds one outbound line (without the trailing newline).
func Encode(typ string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return json.Marshal(Envelope{Type: typ, Payload: body})
}

// MustEncode is Encode for payloads that always marshal (plain structs).
func MustEncode(typ string, payload any) []byte {
	b, err := Encode(typ, payload)
	if err != nil {
		panic(err)
	}
	return b
}
