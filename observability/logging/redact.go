package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// Keys that carry secret material. A hashlock preimage logged before the swap
// completes lets anyone drain the funded side, so these are masked even at
// debug level.
var sensitiveKeys = map[string]struct{}{
	"secret":        {},
	"preimage":      {},
	"token":         {},
	"authorization": {},
	"jwt":           {},
}

// IsSensitive reports whether the key names secret material.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := sensitiveKeys[normalized]
	return ok
}

// MaskField returns a slog.Attr with the value masked when the key is
// sensitive. Empty values pass through unchanged to avoid noise.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || !IsSensitive(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskSecret truncates a revealed preimage to its first four bytes of hex so
// operators can correlate swaps without the log line becoming spendable.
func MaskSecret(hexSecret string) string {
	trimmed := strings.TrimSpace(hexSecret)
	if len(trimmed) <= 8 {
		return MaskValue(trimmed)
	}
	return trimmed[:8] + RedactedValue
}

// MaskValue returns the canonical redacted placeholder for non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}
