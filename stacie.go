// Package stacie implements STACIE (Safely Tokenizing Authentication
// Credentials In Entirety): a deterministic, staged credential-derivation
// key schedule and an authenticated realm-encryption envelope, used to
// authenticate users and protect per-realm secrets without ever
// transmitting or persisting a plaintext password.
//
// The package is purely computational and stateless: every exported
// function is a pure function of its arguments, safe to call concurrently
// from multiple goroutines on independent argument sets with no shared
// mutable state beyond the process's secure random source.
package stacie

import (
	"log/slog"

	"github.com/stacie-auth/stacie/internal/kdf"
	"github.com/stacie-auth/stacie/internal/realm"
)

// RoundCount maps a password and a server-configured bonus to the number of
// hash-chain rounds used by the key ladder, per the round planner.
//
// The result is always in [kdf.MinRounds, kdf.MaxRounds] and is
// non-decreasing in bonus.
func RoundCount(password string, bonus uint64) uint32 {
	return kdf.RoundCount(password, bonus)
}

// Seed extracts a 64-octet pseudo-random seed from a user's credentials via
// keyed HMAC-SHA-512.
//
// salt may be nil, in which case SHA-512(username) is substituted. Any
// length-alignment advisory on a caller-supplied salt is logged through
// logger (which may be nil to suppress logging); advisories are not
// returned to the caller.
func Seed(logger *slog.Logger, rounds uint32, username, password string, salt []byte) (Material, error) {
	b, warnings, err := kdf.Seed(rounds, username, password, salt)
	if err != nil {
		return Material{}, err
	}
	logWarnings(logger, "stacie.seed", warnings)
	return NewMaterial(b), nil
}

// DeriveMasterKey runs the key ladder over a seed, producing master_key.
func DeriveMasterKey(seed Material, rounds uint32, username, password string, salt []byte) Material {
	return NewMaterial(kdf.DeriveKey(seed.Bytes(), rounds, username, password, salt))
}

// DerivePasswordKey runs the key ladder again over master_key, producing
// password_key. masterKey is substituted into the seed slot of the chain.
func DerivePasswordKey(masterKey Material, rounds uint32, username, password string, salt []byte) Material {
	return NewMaterial(kdf.DeriveKey(masterKey.Bytes(), rounds, username, password, salt))
}

// DeriveVerificationToken runs the token ladder (fixed at 8 rounds) over
// password_key with an empty nonce, producing the persistent server-side
// credential witness.
func DeriveVerificationToken(logger *slog.Logger, passwordKey Material, username string, salt []byte) (Material, error) {
	b, warnings, err := kdf.DeriveToken(passwordKey.Bytes(), username, salt, nil)
	if err != nil {
		return Material{}, err
	}
	logWarnings(logger, "stacie.derive_verification_token", warnings)
	return NewMaterial(b), nil
}

// DeriveLoginToken runs the token ladder over verification_token with a
// per-login nonce, producing the session-scoped credential witness.
func DeriveLoginToken(logger *slog.Logger, verificationToken Material, username string, salt, nonce []byte) (Material, error) {
	b, warnings, err := kdf.DeriveToken(verificationToken.Bytes(), username, salt, nonce)
	if err != nil {
		return Material{}, err
	}
	logWarnings(logger, "stacie.derive_login_token", warnings)
	return NewMaterial(b), nil
}

// RealmKey is the per-realm key material, split into its vector, tag, and
// cipher sub-keys, used to seal and open realm envelopes.
type RealmKey struct {
	VectorKey Material
	TagKey    Material
	CipherKey Material
}

// DeriveRealmKey computes a realm key from a user's master_key, a realm
// label, and a non-secret per-realm shard, then splits it into sub-keys.
func DeriveRealmKey(masterKey Material, realmLabel string, shard []byte) (RealmKey, error) {
	k, err := realm.DeriveRealmKey(masterKey.Bytes(), realmLabel, shard)
	if err != nil {
		return RealmKey{}, err
	}
	return RealmKey{
		VectorKey: NewMaterial(k.VectorKey),
		TagKey:    NewMaterial(k.TagKey),
		CipherKey: NewMaterial(k.CipherKey),
	}, nil
}

// SplitRealmKey slices a caller-held 64-octet realm key into its sub-keys
// without recomputing it, for callers that persist realm_key directly.
func SplitRealmKey(realmKey Material) (RealmKey, error) {
	k, err := realm.SplitRealmKey(realmKey.Bytes())
	if err != nil {
		return RealmKey{}, err
	}
	return RealmKey{
		VectorKey: NewMaterial(k.VectorKey),
		TagKey:    NewMaterial(k.TagKey),
		CipherKey: NewMaterial(k.CipherKey),
	}, nil
}

// Seal encrypts plaintext under k for the given message serial, returning
// the framed AES-256-GCM envelope.
func (k RealmKey) Seal(plaintext []byte, serial uint32) ([]byte, error) {
	return realm.Seal(toInternalKey(k), plaintext, serial)
}

// Open decrypts and authenticates an envelope produced by Seal.
func (k RealmKey) Open(envelope []byte) ([]byte, error) {
	return realm.Open(toInternalKey(k), envelope)
}

func toInternalKey(k RealmKey) *realm.Key {
	return &realm.Key{
		VectorKey: k.VectorKey.Bytes(),
		TagKey:    k.TagKey.Bytes(),
		CipherKey: k.CipherKey.Bytes(),
	}
}

func logWarnings(logger *slog.Logger, event string, warnings interface {
	HasWarnings() bool
}) {
	if logger == nil || warnings == nil || !warnings.HasWarnings() {
		return
	}
	type loggable interface {
		Log(*slog.Logger)
	}
	if l, ok := warnings.(loggable); ok {
		l.Log(logger)
	}
}
