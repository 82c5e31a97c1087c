package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

// fieldDomain separates field fingerprints from any other hash of the same
// bytes. Bump the version when the canonical form changes.
const fieldDomain = "sitesync/field/v1"

// fingerprintValue hashes one field value in canonical form: strings are
// NFC-normalised and maps are encoded with sorted keys, so two values that
// render identically hash identically.
func fingerprintValue(v any) (string, error) {
	data, err := json.Marshal(canonicalise(v))
	if err != nil {
		return "", fmt.Errorf("encode field value: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(fieldDomain))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// payloadFingerprint hashes a whole payload as written to a target.
func payloadFingerprint(p domain.Payload) (string, error) {
	return fingerprintValue(map[string]any(p))
}

// canonicalise returns a copy of v with every string NFC-normalised.
func canonicalise(v any) any {
	switch x := v.(type) {
	case string:
		return norm.NFC.String(x)
	case []string:
		out := make([]string, len(x))
		for i, s := range x {
			out[i] = norm.NFC.String(s)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = canonicalise(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[norm.NFC.String(k)] = canonicalise(e)
		}
		return out
	default:
		return v
	}
}
