package stacie

import "crypto/subtle"

// Material wraps a fixed-length secret byte buffer produced by one of the
// derivation operations (seed, master_key, password_key, verification_token,
// realm sub-keys). It forbids accidental disclosure via fmt/%v and exposes
// only constant-time comparison and an explicit, one-shot Zero.
//
// Secret buffers SHOULD be zeroized when they leave scope, and comparisons
// on derived keys/tokens MUST be constant-time.
type Material struct {
	b []byte
}

// NewMaterial takes ownership of b and wraps it. Callers MUST NOT retain or
// mutate b after passing it to NewMaterial.
func NewMaterial(b []byte) Material {
	return Material{b: b}
}

// Bytes returns the underlying octets. The returned slice aliases the
// Material's internal buffer; callers that need to retain bytes beyond the
// Material's lifetime must copy them.
func (m Material) Bytes() []byte {
	return m.b
}

// Len reports the length of the wrapped buffer.
func (m Material) Len() int {
	return len(m.b)
}

// Equal reports whether m and other hold identical bytes, compared in
// constant time regardless of where they first differ.
func (m Material) Equal(other Material) bool {
	if len(m.b) != len(other.b) {
		return false
	}
	return subtle.ConstantTimeCompare(m.b, other.b) == 1
}

// Zero overwrites the wrapped buffer with zero octets in place. Call it as
// soon as the secret is no longer needed; it is safe to call more than once
// and safe to call on a zero-value Material.
func (m Material) Zero() {
	for i := range m.b {
		m.b[i] = 0
	}
}

// String deliberately never reveals the wrapped bytes, so that accidental
// logging or fmt.Sprintf("%v", ...) of a Material cannot leak key material.
func (m Material) String() string {
	return "stacie.Material(REDACTED)"
}

// GoString mirrors String for %#v formatting.
func (m Material) GoString() string {
	return m.String()
}
