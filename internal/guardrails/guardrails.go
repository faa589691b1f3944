// Package guardrails implements automatic weak-shard detection for realms
// declared in a .stacie.yaml manifest.
//
// A realm shard is non-secret per the glossary, but it still must carry
// genuine entropy: a shard drawn from a weak or predictable source degrades
// the realm key the same way a predictable salt would. The guardrails scan
// declared shards for low Shannon entropy, known placeholder values, and a
// decoded length that disagrees with the required 64 octets.
package guardrails

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/stacie-auth/stacie/internal/codec"
	"github.com/stacie-auth/stacie/internal/manifest"
)

// Warning represents a guardrail detection event.
type Warning struct {
	Realm         string // Realm label, e.g. "mail".
	DetectionType string // "low_entropy", "known_placeholder", "length_anomaly".
	Message       string // Human-readable explanation.
}

// Result contains the outcome of a guardrail scan.
type Result struct {
	Warnings []Warning
}

// HasWarnings returns true if any warnings were detected.
func (r *Result) HasWarnings() bool {
	return r != nil && len(r.Warnings) > 0
}

// knownPlaceholders lists shard values seen in examples/tutorials that
// operators sometimes copy into a real manifest by mistake.
var knownPlaceholders = []string{
	"", "test", "changeme", "example", "placeholder", "REPLACE_ME",
}

// Scan checks every realm's shard for weak or placeholder entropy.
//
// A shard must be exactly 64 octets; Scan treats any decoded length other
// than 64 as a length_anomaly warning in addition to the hard InvalidLength
// rejection DeriveRealmKey itself performs.
func Scan(realms map[string]manifest.RealmDecl, logger *slog.Logger) *Result {
	result := &Result{}

	for realm, decl := range realms {
		shard := decl.Shard

		for _, placeholder := range knownPlaceholders {
			if strings.EqualFold(shard, placeholder) {
				w := Warning{
					Realm:         realm,
					DetectionType: "known_placeholder",
					Message:       fmt.Sprintf("shard matches a known placeholder value %q", placeholder),
				}
				result.Warnings = append(result.Warnings, w)
				logWarning(logger, w)
			}
		}

		decoded, err := codec.Base64URLDecode(shard)
		if err != nil {
			w := Warning{
				Realm:         realm,
				DetectionType: "length_anomaly",
				Message:       "shard is not valid base64url",
			}
			result.Warnings = append(result.Warnings, w)
			logWarning(logger, w)
			continue
		}

		if len(decoded) != 64 {
			w := Warning{
				Realm:         realm,
				DetectionType: "length_anomaly",
				Message:       fmt.Sprintf("decoded shard is %d octets, want 64", len(decoded)),
			}
			result.Warnings = append(result.Warnings, w)
			logWarning(logger, w)
		}

		if entropy := shannonEntropy(decoded); len(decoded) > 0 && entropy < 3.5 {
			w := Warning{
				Realm:         realm,
				DetectionType: "low_entropy",
				Message:       fmt.Sprintf("shard has low entropy (%.2f bits/octet) — may not be from a secure random source", entropy),
			}
			result.Warnings = append(result.Warnings, w)
			logWarning(logger, w)
		}
	}

	return result
}

func logWarning(logger *slog.Logger, w Warning) {
	if logger == nil {
		return
	}
	logger.Warn("stacie.guardrail.warning",
		"realm", w.Realm,
		"detection_type", w.DetectionType,
		"detail", w.Message,
	)
}

// shannonEntropy calculates the Shannon entropy (bits per octet) of raw
// bytes. Genuine random octets average close to 8 bits/octet; low values
// indicate a predictable or repetitive source.
func shannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}

	freq := make(map[byte]int)
	for _, b := range data {
		freq[b]++
	}

	length := float64(len(data))
	entropy := 0.0
	for _, count := range freq {
		p := float64(count) / length
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}

	return entropy
}
