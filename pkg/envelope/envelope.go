// Package envelope provides a JSON wire wrapper around a sealed STACIE
// realm envelope, for transporting ciphertext produced by a RealmKey's
// Seal/Open pair across a process boundary (CLI output, an ops API, a
// message queue payload) without hand-rolling field ordering at each
// call site.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stacie-auth/stacie"
)

// Envelope is the JSON structure exchanged for a sealed realm message.
type Envelope struct {
	Realm  string `json:"realm"`
	Serial uint32 `json:"serial"`
	Sealed string `json:"sealed"` // base64url, no padding
	Meta   Meta   `json:"_meta"`
}

// Meta carries non-cryptographic bookkeeping about the envelope.
type Meta struct {
	Version  string `json:"version"`
	SealedAt string `json:"sealed_at"`
}

// version is the wire format version stamped into every envelope this
// package produces; bump it if the JSON field layout ever changes.
const version = "1"

// Seal encrypts plaintext under k for realmLabel and serial, producing the
// wire-ready envelope.
func Seal(k stacie.RealmKey, realmLabel string, plaintext []byte, serial uint32) (*Envelope, error) {
	sealed, err := k.Seal(plaintext, serial)
	if err != nil {
		return nil, fmt.Errorf("envelope: sealing: %w", err)
	}

	return &Envelope{
		Realm:  realmLabel,
		Serial: serial,
		Sealed: base64.RawURLEncoding.EncodeToString(sealed),
		Meta: Meta{
			Version:  version,
			SealedAt: time.Now().UTC().Format(time.RFC3339Nano),
		},
	}, nil
}

// Open decrypts and authenticates e under k, returning the original
// plaintext.
func Open(k stacie.RealmKey, e *Envelope) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(e.Sealed)
	if err != nil {
		return nil, fmt.Errorf("envelope: decoding sealed field: %w", err)
	}
	plaintext, err := k.Open(raw)
	if err != nil {
		return nil, fmt.Errorf("envelope: opening: %w", err)
	}
	return plaintext, nil
}

// ToJSON serialises the envelope to JSON bytes.
func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an envelope from JSON bytes.
func FromJSON(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("envelope: parsing JSON: %w", err)
	}
	return &e, nil
}
