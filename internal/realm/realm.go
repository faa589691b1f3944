// Package realm implements the STACIE realm-key derivation and the
// authenticated realm-encryption envelope built on AES-256-GCM.
//
// A realm key is 64 octets of per-realm secret derived from a user's
// master_key, a caller-chosen realm label, and a non-secret shard; it is
// sliced into a vector/tag/cipher sub-key triple that seals and opens
// AES-256-GCM envelopes with a per-message random vector shard and a folded
// GCM tag.
package realm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"

	"github.com/stacie-auth/stacie/internal/codec"
	"github.com/stacie-auth/stacie/internal/stacieerr"
)

const (
	shardLen       = 64
	masterKeyLen   = 64
	vectorKeyLen   = 16
	tagKeyLen      = 16
	cipherKeyLen   = 32
	gcmTagLen      = 16
	lengthHeader   = 4 // be3(size) || be1(pad)
	blockAlign     = 16
	maxSerial      = 1 << 16
	envelopeFixed  = 2 + vectorKeyLen + tagKeyLen // serial || vector_shard || tag_shard
	envelopeMinLen = 54                           // shortest envelope Open accepts (fixed header plus one block is only 50)
)

// Key is a derived 64-octet realm key, already split into its three
// sub-keys.
type Key struct {
	VectorKey []byte // 16 octets
	TagKey    []byte // 16 octets
	CipherKey []byte // 32 octets
}

// DeriveRealmKey computes realm_key = SHA-512(master_key ‖ realm ‖ shard) XOR
// shard and splits the result into its sub-keys.
func DeriveRealmKey(masterKey []byte, realm string, shard []byte) (*Key, error) {
	if len(masterKey) != masterKeyLen {
		return nil, fmt.Errorf("realm: master_key must be %d octets: %w", masterKeyLen, stacieerr.ErrInvalidLength)
	}
	if len(realm) < 1 {
		return nil, fmt.Errorf("realm: realm label must not be empty: %w", stacieerr.ErrInvalidArgument)
	}
	if len(shard) != shardLen {
		return nil, fmt.Errorf("realm: shard must be %d octets: %w", shardLen, stacieerr.ErrInvalidLength)
	}

	buf := make([]byte, 0, masterKeyLen+len(realm)+shardLen)
	buf = append(buf, masterKey...)
	buf = append(buf, realm...)
	buf = append(buf, shard...)
	digest := sha512.Sum512(buf)

	realmKey := make([]byte, sha512.Size)
	for i := range realmKey {
		realmKey[i] = digest[i] ^ shard[i]
	}

	return SplitRealmKey(realmKey)
}

// SplitRealmKey slices a 64-octet realm key into the vector/tag/cipher
// sub-key layout: vector[0:16], tag[16:32], cipher[32:64].
func SplitRealmKey(realmKey []byte) (*Key, error) {
	if len(realmKey) != sha512.Size {
		return nil, fmt.Errorf("realm: realm_key must be %d octets: %w", sha512.Size, stacieerr.ErrInvalidLength)
	}
	return &Key{
		VectorKey: append([]byte(nil), realmKey[0:16]...),
		TagKey:    append([]byte(nil), realmKey[16:32]...),
		CipherKey: append([]byte(nil), realmKey[32:64]...),
	}, nil
}

// Seal encrypts plaintext under the realm key's sub-keys for the given
// message serial.
//
// serial must satisfy 0 ≤ serial < 2^16. The returned envelope is
// serial(2B) ‖ vector_shard(16B) ‖ tag_shard(16B) ‖ ciphertext, where
// ciphertext has the same length as the length-prefixed, pad-padded
// plaintext block.
func Seal(k *Key, plaintext []byte, serial uint32) ([]byte, error) {
	if err := k.validate(); err != nil {
		return nil, err
	}
	if serial >= maxSerial {
		return nil, fmt.Errorf("realm: serial %d out of range [0, %d): %w", serial, maxSerial, stacieerr.ErrInvalidArgument)
	}
	if len(plaintext) < 1 || len(plaintext) >= 1<<24 {
		return nil, fmt.Errorf("realm: plaintext length %d out of range [1, 2^24): %w", len(plaintext), stacieerr.ErrInvalidLength)
	}

	size := len(plaintext)
	pad := blockAlign - ((size + lengthHeader) % blockAlign)
	if pad == 0 {
		pad = blockAlign
	}

	formatted := make([]byte, 0, size+lengthHeader+pad)
	sizeHdr := codec.BE3(uint32(size))
	formatted = append(formatted, sizeHdr[:]...)
	formatted = append(formatted, byte(pad))
	formatted = append(formatted, plaintext...)
	for i := 0; i < pad; i++ {
		formatted = append(formatted, byte(pad))
	}

	vectorShard := make([]byte, vectorKeyLen)
	if _, err := rand.Read(vectorShard); err != nil {
		return nil, fmt.Errorf("realm: drawing vector shard: %w: %v", stacieerr.ErrRandomSourceUnavailable, err)
	}

	iv := xor(k.VectorKey, vectorShard)

	block, err := aes.NewCipher(k.CipherKey)
	if err != nil {
		return nil, fmt.Errorf("realm: constructing AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, vectorKeyLen)
	if err != nil {
		return nil, fmt.Errorf("realm: constructing GCM: %w", err)
	}

	sealed := gcm.Seal(nil, iv, formatted, nil)
	ciphertext := sealed[:len(sealed)-gcmTagLen]
	gcmTag := sealed[len(sealed)-gcmTagLen:]

	tagShard := xor(k.TagKey, gcmTag)

	envelope := make([]byte, 0, envelopeFixed+len(ciphertext))
	serialHdr := codec.BE2(uint16(serial))
	envelope = append(envelope, serialHdr[:]...)
	envelope = append(envelope, vectorShard...)
	envelope = append(envelope, tagShard...)
	envelope = append(envelope, ciphertext...)
	return envelope, nil
}

// Open decrypts and verifies an envelope produced by Seal, returning the
// original plaintext.
//
// An envelope shorter than 54 octets, or one whose length minus the 34-octet
// fixed header isn't a multiple of 16, is rejected as ErrInvalidLength
// before any GCM work is attempted. Plaintexts shorter than 12 octets pad
// out to a single 16-octet ciphertext block and so produce a 50-octet
// envelope that can never satisfy this floor; Seal does not special-case
// them, so very short plaintexts are simply unrepresentable as a valid
// envelope under this fixed 54-octet minimum.
func Open(k *Key, envelope []byte) ([]byte, error) {
	if err := k.validate(); err != nil {
		return nil, err
	}
	if len(envelope) < envelopeMinLen {
		return nil, fmt.Errorf("realm: envelope shorter than the minimum %d octets: %w", envelopeMinLen, stacieerr.ErrInvalidLength)
	}
	if (len(envelope)-envelopeFixed)%blockAlign != 0 {
		return nil, fmt.Errorf("realm: envelope not aligned to a %d octet boundary: %w", blockAlign, stacieerr.ErrInvalidLength)
	}

	vectorShard := envelope[2 : 2+vectorKeyLen]
	tagShard := envelope[2+vectorKeyLen : 2+vectorKeyLen+tagKeyLen]
	ciphertext := envelope[envelopeFixed:]

	iv := xor(k.VectorKey, vectorShard)
	gcmTag := xor(k.TagKey, tagShard)

	block, err := aes.NewCipher(k.CipherKey)
	if err != nil {
		return nil, fmt.Errorf("realm: constructing AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, vectorKeyLen)
	if err != nil {
		return nil, fmt.Errorf("realm: constructing GCM: %w", err)
	}

	sealed := append(append([]byte(nil), ciphertext...), gcmTag...)
	formatted, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("realm: %w", stacieerr.ErrAuthenticationFailure)
	}

	if len(formatted) < lengthHeader {
		return nil, fmt.Errorf("realm: decrypted block shorter than the length header: %w", stacieerr.ErrInvalidPadding)
	}

	var sizeHdr [3]byte
	copy(sizeHdr[:], formatted[0:3])
	size := int(codec.BE3ToUint24(sizeHdr))
	pad := int(formatted[3])

	if pad < 1 || pad > blockAlign {
		return nil, fmt.Errorf("realm: pad %d out of range [1,16]: %w", pad, stacieerr.ErrInvalidPadding)
	}
	if (size+pad+lengthHeader)%blockAlign != 0 {
		return nil, fmt.Errorf("realm: size+pad+4 not block-aligned: %w", stacieerr.ErrInvalidPadding)
	}
	if len(formatted) != size+pad+lengthHeader {
		return nil, fmt.Errorf("realm: length header inconsistent with block length: %w", stacieerr.ErrInvalidPadding)
	}

	plaintext := formatted[lengthHeader : lengthHeader+size]
	padding := formatted[lengthHeader+size:]
	expectedPad := make([]byte, pad)
	for i := range expectedPad {
		expectedPad[i] = byte(pad)
	}
	if subtle.ConstantTimeCompare(padding, expectedPad) != 1 {
		return nil, fmt.Errorf("realm: trailing pad octets mismatch: %w", stacieerr.ErrInvalidPadding)
	}

	return append([]byte(nil), plaintext...), nil
}

func (k *Key) validate() error {
	if k == nil || len(k.VectorKey) != vectorKeyLen || len(k.TagKey) != tagKeyLen || len(k.CipherKey) != cipherKeyLen {
		return fmt.Errorf("realm: sub-key lengths must be 16/16/32: %w", stacieerr.ErrInvalidLength)
	}
	return nil
}

func xor(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
