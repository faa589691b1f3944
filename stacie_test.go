package stacie

import (
	"crypto/sha512"
	"encoding/base64"
	"testing"
)

// mustDecodeURL decodes the RFC test-vector fixtures, which are url-safe
// base64 with padding stripped, restoring the padding before decoding.
func mustDecodeURL(t *testing.T, s string) []byte {
	t.Helper()
	switch len(s) % 4 {
	case 2:
		s += "=="
	case 3:
		s += "="
	}
	b, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		t.Fatalf("failed to decode fixture: %v", err)
	}
	return b
}

func TestEndToEnd_RFCScenario(t *testing.T) {
	username := "user@example.tld"
	password := "password"
	bonus := uint64(131072)

	salt := mustDecodeURL(t, "lyrtpzN8cBRZvsiHX6y4j-pJOjIyJeuw5aVXzrItw1G4EOa-6CA4R9BhVpinkeH0UeXyOeTisHR3Ik3yuOhxbWPyesMJvfp0IBtx0f0uorb8wPnhw5BxDJVCb1TOSE50PFKGBFMkc63Koa7vMDj-WEoDj2X0kkTtlW6cUvF8i-M")
	shard := mustDecodeURL(t, "gD65Kdeda1hB2Q6gdZl0fetGg2viLXWG0vmKN4HxE3Jp3Z0Gkt5prqSmcuY2o8t24iGSCOnFDpP71c3xl9SX9Q")

	rounds := RoundCount(password, bonus)
	if rounds != 196608 {
		t.Fatalf("rounds = %d, want 196608", rounds)
	}

	seed, err := Seed(nil, rounds, username, password, salt)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if seed.Len() != 64 {
		t.Fatalf("seed length = %d, want 64", seed.Len())
	}

	masterKey := DeriveMasterKey(seed, rounds, username, password, salt)
	if masterKey.Len() != 64 {
		t.Fatalf("master_key length = %d, want 64", masterKey.Len())
	}

	passwordKey := DerivePasswordKey(masterKey, rounds, username, password, salt)
	if passwordKey.Len() != 64 {
		t.Fatalf("password_key length = %d, want 64", passwordKey.Len())
	}
	if masterKey.Equal(passwordKey) {
		t.Fatal("master_key and password_key must differ")
	}

	verificationToken, err := DeriveVerificationToken(nil, passwordKey, username, salt)
	if err != nil {
		t.Fatalf("DeriveVerificationToken: %v", err)
	}
	if verificationToken.Len() != 64 {
		t.Fatalf("verification_token length = %d, want 64", verificationToken.Len())
	}

	realmKey, err := DeriveRealmKey(masterKey, "mail", shard)
	if err != nil {
		t.Fatalf("DeriveRealmKey: %v", err)
	}
	if realmKey.VectorKey.Len() != 16 || realmKey.TagKey.Len() != 16 || realmKey.CipherKey.Len() != 32 {
		t.Fatalf("unexpected realm sub-key lengths: %d/%d/%d",
			realmKey.VectorKey.Len(), realmKey.TagKey.Len(), realmKey.CipherKey.Len())
	}

	secretMessage := "Attack at dawn!"
	envelope, err := realmKey.Seal([]byte(secretMessage), 0)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(envelope) != 66 {
		t.Fatalf("envelope length = %d, want 66", len(envelope))
	}

	opened, err := realmKey.Open(envelope)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(opened) != secretMessage {
		t.Fatalf("opened = %q, want %q", opened, secretMessage)
	}
}

func TestDeriveLoginToken_DistinctNoncesDiffer(t *testing.T) {
	username := "user@example.tld"
	salt := make([]byte, 64)
	verificationToken := NewMaterial(make([]byte, 64))

	nonceA := make([]byte, 64)
	nonceB := make([]byte, 64)
	nonceB[0] = 0x01

	tokenA, err := DeriveLoginToken(nil, verificationToken, username, salt, nonceA)
	if err != nil {
		t.Fatalf("DeriveLoginToken: %v", err)
	}
	tokenB, err := DeriveLoginToken(nil, verificationToken, username, salt, nonceB)
	if err != nil {
		t.Fatalf("DeriveLoginToken: %v", err)
	}
	if tokenA.Equal(tokenB) {
		t.Fatal("expected distinct nonces to produce distinct login tokens")
	}
}

func TestSplitRealmKey_MatchesDeriveRealmKeySubKeys(t *testing.T) {
	masterKey := NewMaterial(make([]byte, 64))
	shard := make([]byte, 64)
	for i := range shard {
		shard[i] = byte(i)
	}

	derived, err := DeriveRealmKey(masterKey, "mail", shard)
	if err != nil {
		t.Fatalf("DeriveRealmKey: %v", err)
	}

	// Recompute realm_key independently via the same inputs and split it,
	// confirming Split and Derive agree on layout.
	buf := append(append(append([]byte{}, masterKey.Bytes()...), "mail"...), shard...)
	digest := sha512.Sum512(buf)
	realmKey := make([]byte, 64)
	for i := range realmKey {
		realmKey[i] = digest[i] ^ shard[i]
	}
	again, err := SplitRealmKey(NewMaterial(realmKey))
	if err != nil {
		t.Fatalf("SplitRealmKey: %v", err)
	}
	if !derived.VectorKey.Equal(again.VectorKey) || !derived.TagKey.Equal(again.TagKey) || !derived.CipherKey.Equal(again.CipherKey) {
		t.Fatal("expected SplitRealmKey to reproduce DeriveRealmKey's sub-keys")
	}
}

func TestRoundCount_PasswordScenarios(t *testing.T) {
	// 24 Unicode code points -> dynamic = max(1, 0) = 1 -> variable = 2.
	if got := RoundCount("aaaaaaaaaaaaaaaaaaaaaaaa", 0); got != 8 {
		t.Errorf("RoundCount(24 chars, 0) = %d, want 8 (clamped floor)", got)
	}
	// 1 character -> dynamic = 23 -> variable = 2^23, bonus=0 -> rounds = 2^23.
	if got := RoundCount("x", 0); got != 1<<23 {
		t.Errorf("RoundCount(x, 0) = %d, want %d", got, 1<<23)
	}
}
