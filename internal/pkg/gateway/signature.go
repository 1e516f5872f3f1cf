package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// SignatureCandidates extracts every plausible hex digest from a signature
// header. Accepted shapes are "sha256=<hex>", a comma separated list such as
// "t=123,v1=<hex>" and a bare hex string.
func SignatureCandidates(header string) [][]byte {
	var out [][]byte
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		value := part
		if k, v, ok := strings.Cut(part, "="); ok {
			switch strings.ToLower(strings.TrimSpace(k)) {
			case "sha256", "v1":
				value = strings.TrimSpace(v)
			default:
				continue
			}
		}
		decoded, err := hex.DecodeString(strings.ToLower(value))
		if err != nil || len(decoded) != sha256.Size {
			continue
		}
		out = append(out, decoded)
	}
	return out
}

// CanonicalJSON re-serializes a parsed payload with sorted keys.
func CanonicalJSON(payload map[string]any) ([]byte, error) {
	return json.Marshal(payload)
}

// VerifySignature checks header against HMAC-SHA256(secret) over the raw body
// and over the canonical serialization of the parsed payload. Any candidate
// matching either digest is accepted.
func VerifySignature(rawBody []byte, payload map[string]any, header, secret string) bool {
	secret = strings.TrimSpace(secret)
	if secret == "" || strings.TrimSpace(header) == "" {
		return false
	}
	candidates := SignatureCandidates(header)
	if len(candidates) == 0 {
		return false
	}

	digests := [][]byte{Sign(rawBody, secret)}
	if payload != nil {
		if canonical, err := CanonicalJSON(payload); err == nil {
			digests = append(digests, Sign(canonical, secret))
		}
	}

	matched := false
	for _, c := range candidates {
		for _, d := range digests {
			if hmac.Equal(c, d) {
				matched = true
			}
		}
	}
	return matched
}

// Sign computes HMAC-SHA256 of body with secret.
func Sign(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignHex is Sign encoded as lowercase hex.
func SignHex(body []byte, secret string) string {
	return hex.EncodeToString(Sign(body, secret))
}
