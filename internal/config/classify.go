// Package config also reads per-realm shard declarations from the process
// environment or a KEY=VALUE shard file, supplementing (and overriding) the
// realms declared in a .stacie.yaml manifest.
//
// A realm's shard is non-secret, but deployments still
// often prefer to inject it via environment or a mounted file rather than
// committing it to a manifest file (e.g. when the manifest is baked into an
// image and shards are rotated per environment, or mounted from a
// Kubernetes secret volume). Variables of the form STACIE_REALM_<NAME>_SHARD
// are read; <NAME> is lower-cased to form the realm label.
package config

import (
	"fmt"
	"os"
	"strings"
)

// RealmShardEnv holds one realm shard declaration sourced from the
// environment.
type RealmShardEnv struct {
	// Realm is the lower-cased realm label, e.g. "mail".
	Realm string

	// Shard is the raw base64url-encoded shard value.
	Shard string

	// OriginalKey is the full environment variable name (for diagnostics).
	OriginalKey string
}

// ReadRealmShardsFromEnv scans the process environment for
// STACIE_REALM_<NAME>_SHARD variables and returns one declaration per realm.
//
// Per STACIE_REALM_<NAME>_SHARD naming, names MUST be unique after
// lower-casing; a collision (e.g. STACIE_REALM_MAIL_SHARD and
// STACIE_REALM_Mail_SHARD) is an error.
func ReadRealmShardsFromEnv() ([]RealmShardEnv, error) {
	vars := make(map[string]string)
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if ok {
			vars[key] = value
		}
	}
	return realmShardsFromVars(vars)
}

// ReadRealmShardsFromFile loads STACIE_REALM_<NAME>_SHARD declarations from
// a KEY=base64url-shard file via ParseEnvFile, for deployments that keep
// realm shards in a mounted file rather than the process environment (e.g.
// a Kubernetes secret volume).
func ReadRealmShardsFromFile(path string) ([]RealmShardEnv, error) {
	vars, err := ParseEnvFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading realm shard file: %w", err)
	}
	return realmShardsFromVars(vars)
}

// realmShardsFromVars extracts STACIE_REALM_<NAME>_SHARD declarations from
// an arbitrary KEY=VALUE map, shared by the environment and shard-file
// sources.
func realmShardsFromVars(vars map[string]string) ([]RealmShardEnv, error) {
	const prefix = "STACIE_REALM_"
	const suffix = "_SHARD"

	var shards []RealmShardEnv
	seen := make(map[string]string) // realm → original key (for collision detection)

	for key, value := range vars {
		if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
			continue
		}

		name := strings.TrimSuffix(strings.TrimPrefix(key, prefix), suffix)
		if name == "" {
			continue
		}
		realm := strings.ToLower(name)

		if existing, exists := seen[realm]; exists {
			return nil, fmt.Errorf(
				"realm shard name collision: %q (from %s) conflicts with %q — realm names must be unique after lower-casing",
				key, realm, existing,
			)
		}
		seen[realm] = key

		shards = append(shards, RealmShardEnv{
			Realm:       realm,
			Shard:       value,
			OriginalKey: key,
		})
	}

	return shards, nil
}
