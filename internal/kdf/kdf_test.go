package kdf

import (
	"bytes"
	"crypto/sha512"
	"errors"
	"testing"

	"github.com/stacie-auth/stacie/internal/stacieerr"
)

func TestRoundCount_ShortPassword(t *testing.T) {
	// "x" → 1 character → dynamic = 23 → variable = 2^23.
	got := RoundCount("x", 0)
	want := uint32(1 << 23)
	if got != want {
		t.Errorf("RoundCount(x, 0) = %d, want %d", got, want)
	}
}

func TestRoundCount_24CharPassword(t *testing.T) {
	// 24 characters → dynamic = max(1, 0) = 1 → variable = 2.
	pw := "aaaaaaaaaaaaaaaaaaaaaaaa"
	if n := len([]rune(pw)); n != 24 {
		t.Fatalf("test fixture has %d runes, want 24", n)
	}
	got := RoundCount(pw, 0)
	// total = max(8, 2+0) = 8 (clamped to the floor).
	if got != MinRounds {
		t.Errorf("RoundCount(24 chars, 0) = %d, want %d", got, MinRounds)
	}

	got = RoundCount(pw, 10)
	if got != 12 {
		t.Errorf("RoundCount(24 chars, 10) = %d, want 12", got)
	}
}

func TestRoundCount_RFCVector(t *testing.T) {
	// RFC test vector: password="password" (8 chars), bonus=131072.
	// dynamic = 24-8 = 16, variable = 65536, total = 196608.
	got := RoundCount("password", 131072)
	if got != 196608 {
		t.Errorf("RoundCount(password, 131072) = %d, want 196608", got)
	}
}

func TestRoundCount_ClampedToCeiling(t *testing.T) {
	got := RoundCount("x", MaxRounds)
	if got != MaxRounds {
		t.Errorf("RoundCount should clamp to ceiling, got %d", got)
	}
}

func TestRoundCount_ClampAppliedAfterAddition(t *testing.T) {
	// variable alone (2^23) must not be pre-clamped before adding bonus.
	got := RoundCount("x", 1<<23)
	want := uint32(1 << 24) // 2^23 + 2^23 lands exactly on the ceiling
	if got != want {
		t.Errorf("RoundCount clamp-after-add = %d, want %d", got, want)
	}
}

func TestSeed_DefaultSaltIsUsernameHash(t *testing.T) {
	s1, _, err := Seed(8, "user@example.tld", "password", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s1) != digestLen {
		t.Fatalf("expected %d-octet seed, got %d", digestLen, len(s1))
	}

	s2, _, err := Seed(8, "user@example.tld", "password", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(s1, s2) {
		t.Fatal("expected deterministic seed for identical inputs")
	}
}

func TestSeed_RejectsShortSalt(t *testing.T) {
	_, _, err := Seed(8, "user", "password", make([]byte, 32))
	if !errors.Is(err, stacieerr.ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

func TestSeed_DifferentPasswordsDiffer(t *testing.T) {
	s1, _, _ := Seed(8, "user", "password1", nil)
	s2, _, _ := Seed(8, "user", "password2", nil)
	if bytes.Equal(s1, s2) {
		t.Fatal("expected different seeds for different passwords")
	}
}

func TestSeed_128OctetSaltUsedDirectlyAsHMACKey(t *testing.T) {
	salt := make([]byte, 128)
	for i := range salt {
		salt[i] = byte(i)
	}
	key := hmacSeedKey(salt)
	if !bytes.Equal(key, salt) {
		t.Fatal("expected 128-octet salt to be used directly as the HMAC key")
	}
}

func TestSeed_NonStandardSaltHashedTwice(t *testing.T) {
	salt := make([]byte, 64)
	key := hmacSeedKey(salt)
	if len(key) != 128 {
		t.Fatalf("expected derived key length 128, got %d", len(key))
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	seed, _, _ := Seed(8, "user@example.tld", "password", nil)
	salt := sha512Sum([]byte("user@example.tld"))

	k1 := DeriveKey(seed, 8, "user@example.tld", "password", salt)
	k2 := DeriveKey(seed, 8, "user@example.tld", "password", salt)
	if !bytes.Equal(k1, k2) {
		t.Fatal("expected deterministic key ladder output")
	}
	if len(k1) != digestLen {
		t.Fatalf("expected %d-octet key, got %d", digestLen, len(k1))
	}
}

func TestDeriveKey_ChainsThroughMasterAndPasswordKey(t *testing.T) {
	username, password := "user@example.tld", "password"
	salt := sha512Sum([]byte(username))
	seed, _, _ := Seed(8, username, password, nil)

	masterKey := DeriveKey(seed, 8, username, password, salt)
	passwordKey := DeriveKey(masterKey, 8, username, password, salt)

	if bytes.Equal(masterKey, passwordKey) {
		t.Fatal("master_key and password_key must differ")
	}
	if len(passwordKey) != digestLen {
		t.Fatalf("expected %d-octet password_key, got %d", digestLen, len(passwordKey))
	}
}

func TestDeriveToken_EmptyNonceIsValid(t *testing.T) {
	token, _, err := DeriveToken(make([]byte, digestLen), "user", make([]byte, 64), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(token) != digestLen {
		t.Fatalf("expected %d-octet token, got %d", digestLen, len(token))
	}
}

func TestDeriveToken_RejectsShortNonce(t *testing.T) {
	_, _, err := DeriveToken(make([]byte, digestLen), "user", make([]byte, 64), make([]byte, 10))
	if !errors.Is(err, stacieerr.ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

func TestDeriveToken_DistinctNoncesDiffer(t *testing.T) {
	verificationToken := make([]byte, digestLen)
	for i := range verificationToken {
		verificationToken[i] = byte(i)
	}
	username, salt := "user@example.tld", sha512Sum([]byte("user@example.tld"))

	nonceA := make([]byte, 64)
	nonceB := make([]byte, 64)
	nonceB[0] = 1

	tokenA, _, err := DeriveToken(verificationToken, username, salt, nonceA)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tokenB, _, err := DeriveToken(verificationToken, username, salt, nonceB)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bytes.Equal(tokenA, tokenB) {
		t.Fatal("expected ephemeral_login_token to differ across distinct nonces")
	}
}

func sha512Sum(b []byte) []byte {
	sum := sha512.Sum512(b)
	return sum[:]
}
