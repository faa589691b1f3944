package realm

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stacie-auth/stacie/internal/stacieerr"
)

func fixedKey(t *testing.T) *Key {
	t.Helper()
	return &Key{
		VectorKey: bytes.Repeat([]byte{0xAA}, 16),
		TagKey:    bytes.Repeat([]byte{0xBB}, 16),
		CipherKey: bytes.Repeat([]byte{0xCC}, 32),
	}
}

func TestDeriveRealmKey_RejectsBadLengths(t *testing.T) {
	shard := make([]byte, 64)
	if _, err := DeriveRealmKey(make([]byte, 63), "mail", shard); !errors.Is(err, stacieerr.ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength for short master_key, got %v", err)
	}
	if _, err := DeriveRealmKey(make([]byte, 64), "", shard); !errors.Is(err, stacieerr.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty realm, got %v", err)
	}
	if _, err := DeriveRealmKey(make([]byte, 64), "mail", make([]byte, 32)); !errors.Is(err, stacieerr.ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength for short shard, got %v", err)
	}
}

func TestDeriveRealmKey_SubKeyLengths(t *testing.T) {
	masterKey := bytes.Repeat([]byte{0x01}, 64)
	shard := bytes.Repeat([]byte{0x02}, 64)
	k, err := DeriveRealmKey(masterKey, "mail", shard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(k.VectorKey) != 16 || len(k.TagKey) != 16 || len(k.CipherKey) != 32 {
		t.Fatalf("unexpected sub-key lengths: %d/%d/%d", len(k.VectorKey), len(k.TagKey), len(k.CipherKey))
	}
}

func TestDeriveRealmKey_Deterministic(t *testing.T) {
	masterKey := bytes.Repeat([]byte{0x01}, 64)
	shard := bytes.Repeat([]byte{0x02}, 64)
	k1, _ := DeriveRealmKey(masterKey, "mail", shard)
	k2, _ := DeriveRealmKey(masterKey, "mail", shard)
	if !bytes.Equal(k1.VectorKey, k2.VectorKey) || !bytes.Equal(k1.TagKey, k2.TagKey) || !bytes.Equal(k1.CipherKey, k2.CipherKey) {
		t.Fatal("expected deterministic realm key derivation")
	}
}

func TestDeriveRealmKey_DifferentRealmsDiffer(t *testing.T) {
	masterKey := bytes.Repeat([]byte{0x01}, 64)
	shard := bytes.Repeat([]byte{0x02}, 64)
	kMail, _ := DeriveRealmKey(masterKey, "mail", shard)
	kCal, _ := DeriveRealmKey(masterKey, "calendar", shard)
	if bytes.Equal(kMail.CipherKey, kCal.CipherKey) {
		t.Fatal("expected different realms to produce different cipher keys")
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	k := fixedKey(t)
	plaintext := []byte("Attack at dawn!")

	envelope, err := Seal(k, plaintext, 0)
	if err != nil {
		t.Fatalf("unexpected seal error: %v", err)
	}

	got, err := Open(k, envelope)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round-trip mismatch: got %q, want %q", got, plaintext)
	}
}

func TestSeal_EnvelopeLengthMatchesSpecExample(t *testing.T) {
	k := fixedKey(t)
	plaintext := []byte("Attack at dawn!") // 15 octets
	envelope, err := Seal(k, plaintext, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// pad = 16 - ((15+4) mod 16) = 13; len(P) = 15+4+13 = 32.
	// envelope = 2 + 16 + 16 + 32 = 66.
	if len(envelope) != 66 {
		t.Fatalf("envelope length = %d, want 66", len(envelope))
	}
}

func TestSeal_RejectsEmptyPlaintext(t *testing.T) {
	k := fixedKey(t)
	if _, err := Seal(k, nil, 1); !errors.Is(err, stacieerr.ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength for empty plaintext, got %v", err)
	}
}

func TestSeal_RejectsOutOfRangeSerial(t *testing.T) {
	k := fixedKey(t)
	if _, err := Seal(k, []byte("x"), 1<<16); !errors.Is(err, stacieerr.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for serial=2^16, got %v", err)
	}
	if _, err := Seal(k, []byte("x"), 0xFFFF); err != nil {
		t.Fatalf("expected serial=0xFFFF to be accepted, got %v", err)
	}
}

func TestSeal_RandomVectorShardPerCall(t *testing.T) {
	k := fixedKey(t)
	e1, _ := Seal(k, []byte("same message"), 0)
	e2, _ := Seal(k, []byte("same message"), 0)
	if bytes.Equal(e1, e2) {
		t.Fatal("expected distinct envelopes across calls due to random vector shard")
	}
}

func TestOpen_TamperedTagShardFailsAuthentication(t *testing.T) {
	k := fixedKey(t)
	envelope, _ := Seal(k, []byte("Attack at dawn!"), 0)
	envelope[2+16] ^= 0xFF // flip a bit inside tag_shard

	_, err := Open(k, envelope)
	if !errors.Is(err, stacieerr.ErrAuthenticationFailure) {
		t.Fatalf("expected ErrAuthenticationFailure, got %v", err)
	}
}

func TestOpen_TamperedCiphertextFailsAuthentication(t *testing.T) {
	k := fixedKey(t)
	envelope, _ := Seal(k, []byte("Attack at dawn!"), 0)
	envelope[len(envelope)-1] ^= 0xFF

	_, err := Open(k, envelope)
	if !errors.Is(err, stacieerr.ErrAuthenticationFailure) {
		t.Fatalf("expected ErrAuthenticationFailure, got %v", err)
	}
}

func TestOpen_TamperedVectorShardFailsAuthentication(t *testing.T) {
	k := fixedKey(t)
	envelope, _ := Seal(k, []byte("Attack at dawn!"), 0)
	// serial is not authenticated data in this envelope; vector_shard is,
	// because flipping a bit in it changes the IV and therefore the
	// keystream used to open the GCM ciphertext.
	envelope[2] ^= 0xFF

	_, err := Open(k, envelope)
	if !errors.Is(err, stacieerr.ErrAuthenticationFailure) {
		t.Fatalf("expected ErrAuthenticationFailure, got %v", err)
	}
}

func TestOpen_RejectsShortEnvelope(t *testing.T) {
	k := fixedKey(t)
	_, err := Open(k, make([]byte, 10))
	if !errors.Is(err, stacieerr.ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

func TestOpen_RejectsEnvelopeBelowMinimumLength(t *testing.T) {
	k := fixedKey(t)
	// Plaintexts shorter than 12 octets pad out to a single 16-octet
	// ciphertext block, producing a 50-octet envelope — below the 54-octet
	// floor Open enforces regardless of GCM authentication.
	envelope, err := Seal(k, []byte("short"), 0)
	if err != nil {
		t.Fatalf("unexpected seal error: %v", err)
	}
	if len(envelope) != 50 {
		t.Fatalf("envelope length = %d, want 50", len(envelope))
	}
	if _, err := Open(k, envelope); !errors.Is(err, stacieerr.ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

func TestOpen_RejectsMisalignedEnvelope(t *testing.T) {
	k := fixedKey(t)
	envelope, err := Seal(k, []byte("Attack at dawn!"), 0)
	if err != nil {
		t.Fatalf("unexpected seal error: %v", err)
	}
	misaligned := append(envelope, 0x00)
	if _, err := Open(k, misaligned); !errors.Is(err, stacieerr.ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

func TestPad_AlwaysInRangeAndBlockAligned(t *testing.T) {
	k := fixedKey(t)
	// Sizes below 12 produce an envelope shorter than Open's 54-octet
	// floor; see TestOpen_RejectsEnvelopeBelowMinimumLength.
	for size := 12; size < 40; size++ {
		plaintext := make([]byte, size)
		if _, err := rand.Read(plaintext); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		envelope, err := Seal(k, plaintext, 0)
		if err != nil {
			t.Fatalf("unexpected error for size %d: %v", size, err)
		}
		if (len(envelope)-envelopeFixed)%16 != 0 {
			t.Fatalf("ciphertext length not block aligned for size %d", size)
		}
		got, err := Open(k, envelope)
		if err != nil {
			t.Fatalf("unexpected open error for size %d: %v", size, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("round-trip mismatch at size %d", size)
		}
	}
}

func TestSplitRealmKey_RejectsWrongLength(t *testing.T) {
	if _, err := SplitRealmKey(make([]byte, 63)); !errors.Is(err, stacieerr.ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}
