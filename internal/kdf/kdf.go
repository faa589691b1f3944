// Package kdf implements the STACIE round planner, entropy-seed extractor,
// and the two staged SHA-512 hash chains: the key ladder and the token
// ladder.
//
// Every function here is pure and deterministic over its arguments: no wall
// clock, no process state, no hidden globals beyond STACIE's own fixed
// constants (the round ceiling, the token ladder's rounds=8).
package kdf

import (
	"crypto/hmac"
	"crypto/sha512"
	"fmt"
	"unicode/utf8"

	"github.com/stacie-auth/stacie/internal/codec"
	"github.com/stacie-auth/stacie/internal/stacieerr"
	"github.com/stacie-auth/stacie/internal/validate"
)

const (
	// MinRounds is the floor on the computed round count.
	MinRounds = 8
	// MaxRounds is the ceiling on the computed round count.
	MaxRounds = 1 << 24

	// minSaltLen is the minimum octet length of an explicitly supplied salt
	// or nonce.
	minSaltLen = 64

	// hmacKeyLen is the exact length a salt must have to be used directly
	// as the seed-extraction HMAC key.
	hmacKeyLen = 128

	// tokenRounds is the fixed round count used by the token ladder.
	tokenRounds = 8

	// digestLen is the output length of SHA-512 and therefore of every
	// value this package produces.
	digestLen = sha512.Size
)

// RoundCount computes the number of hash-chain rounds for a password and a
// server-configured bonus.
//
// The clamp to [MinRounds, MaxRounds] is applied after adding bonus;
// dynamic ∈ [1, 24] is never clamped on its own.
func RoundCount(password string, bonus uint64) uint32 {
	characters := uint64(utf8.RuneCountInString(password))

	dynamic := uint64(1)
	if characters < 24 {
		dynamic = 24 - characters
	}

	variable := uint64(1) << dynamic
	total := variable + bonus

	if total < MinRounds {
		total = MinRounds
	}
	if total > MaxRounds {
		total = MaxRounds
	}
	return uint32(total)
}

// Seed extracts a 64-octet pseudo-random seed from the supplied credentials.
//
// salt may be nil, in which case SHA-512(username) is substituted. The
// returned *validate.Result carries non-fatal alignment advisories; it is
// never nil and may be empty.
func Seed(rounds uint32, username, password string, salt []byte) ([]byte, *validate.Result, error) {
	warnings := &validate.Result{}

	resolvedSalt := salt
	if len(resolvedSalt) == 0 {
		digest := sha512.Sum512([]byte(username))
		resolvedSalt = digest[:]
	} else {
		if len(resolvedSalt) < minSaltLen {
			return nil, nil, fmt.Errorf("kdf: salt must be at least %d octets: %w", minSaltLen, stacieerr.ErrInvalidLength)
		}
		warnings = validate.CheckSalt(resolvedSalt)
	}

	key := hmacSeedKey(resolvedSalt)

	mac := hmac.New(sha512.New, key)
	for i := uint32(0); i < rounds; i++ {
		mac.Write([]byte(password))
	}
	return mac.Sum(nil), warnings, nil
}

// hmacSeedKey derives the 128-octet HMAC key used by Seed from a resolved
// salt.
func hmacSeedKey(salt []byte) []byte {
	if len(salt) == hmacKeyLen {
		return salt
	}
	c0, c1 := codec.BE3(0), codec.BE3(1)
	h0 := sha512.Sum512(append(append([]byte{}, salt...), c0[:]...))
	h1 := sha512.Sum512(append(append([]byte{}, salt...), c1[:]...))
	key := make([]byte, 0, digestLen*2)
	key = append(key, h0[:]...)
	key = append(key, h1[:]...)
	return key
}

// DeriveKey runs the key-ladder hash chain.
//
// It is used for both master_key = DeriveKey(seed, ...) and
// password_key = DeriveKey(master_key, ...) — the caller substitutes the
// previous stage's output into the seed position.
func DeriveKey(seed []byte, rounds uint32, username, password string, salt []byte) []byte {
	return chain(seed, []byte(username), salt, []byte(password), rounds)
}

// DeriveToken runs the token-ladder hash chain, with the round count fixed
// at 8.
//
// nonce may be nil/empty (used for verification_token); a non-empty nonce
// shorter than 64 octets is a fatal precondition failure.
func DeriveToken(seed []byte, username string, salt, nonce []byte) ([]byte, *validate.Result, error) {
	warnings := &validate.Result{}
	if len(nonce) > 0 {
		if len(nonce) < minSaltLen {
			return nil, nil, fmt.Errorf("kdf: nonce must be at least %d octets: %w", minSaltLen, stacieerr.ErrInvalidLength)
		}
		warnings = validate.CheckNonce(nonce)
	}
	return chain(seed, []byte(username), salt, nonce, tokenRounds), warnings, nil
}

// chain implements the shared SHA-512 hash-chain template used by both
// ladders:
//
//	h ← ""
//	for i in [0, rounds):
//	    h ← SHA-512(h ‖ seed ‖ username ‖ salt ‖ tail ‖ be3(i))
//
// tail is the password for the key ladder and the nonce for the token
// ladder.
func chain(seed, username, salt, tail []byte, rounds uint32) []byte {
	var h []byte
	buf := make([]byte, 0, digestLen+len(seed)+len(username)+len(salt)+len(tail)+3)
	for i := uint32(0); i < rounds; i++ {
		buf = buf[:0]
		buf = append(buf, h...)
		buf = append(buf, seed...)
		buf = append(buf, username...)
		buf = append(buf, salt...)
		buf = append(buf, tail...)
		counter := codec.BE3(i)
		buf = append(buf, counter[:]...)
		sum := sha512.Sum512(buf)
		h = sum[:]
	}
	return h
}
