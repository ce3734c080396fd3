package audit

import "strings"

// Redacted replaces sensitive values before details are persisted. Audit
// records are never allowed to contain credentials.
const Redacted = "[REDACTED]"

var sensitiveFragments = []string{"password", "token", "secret", "key"}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// Sanitize returns a deep copy of details with every value under a
// sensitive key replaced by the redaction marker. Nested maps and slices
// are walked; the input is never mutated.
func Sanitize(details Details) Details {
	if details == nil {
		return nil
	}
	out, _ := sanitizeValue(details).(map[string]any)
	return out
}

func sanitizeValue(v any) any {
	switch value := v.(type) {
	case Details:
		return sanitizeMap(value)
	case map[string]any:
		return sanitizeMap(value)
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}

func sanitizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for key, value := range m {
		if isSensitiveKey(key) {
			out[key] = Redacted
			continue
		}
		out[key] = sanitizeValue(value)
	}
	return out
}
