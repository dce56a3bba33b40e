package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CanonicalizeURL lowercases the scheme and host, strips a trailing
// slash and URL fragment, drops tracking-style query parameters, and
// sorts the remaining query string, so that equivalent URLs submitted
// in different forms dedupe onto the same resource.
func CanonicalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("malformed url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("malformed url: missing scheme or host")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	if u.RawQuery != "" {
		values := u.Query()
		for _, tracking := range []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "fbclid", "gclid"} {
			values.Del(tracking)
		}
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(k)
			sb.WriteByte('=')
			sb.WriteString(values.Get(k))
		}
		u.RawQuery = sb.String()
	}

	return u.String(), nil
}

// ContentFingerprint computes hash(canonical_url + sha256(raw_bytes)) per
// spec.md §4.6.
func ContentFingerprint(canonicalURL string, raw []byte) string {
	bodyHash := sha256.Sum256(raw)
	combined := canonicalURL + hex.EncodeToString(bodyHash[:])
	finalHash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(finalHash[:])
}
