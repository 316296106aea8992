package intercept

import "strings"

// sensitiveKeyFragments marks argument keys whose values never reach the
// audit trail in the clear.
var sensitiveKeyFragments = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"credential", "authorization", "private_key", "session_key",
}

const redactedPlaceholder = "[REDACTED]"

// RedactSensitiveArgs returns a deep copy of args with values under
// sensitive keys replaced. Nested maps are walked; the input is never
// mutated.
func RedactSensitiveArgs(args map[string]interface{}) map[string]interface{} {
	if args == nil {
		return nil
	}
	out := make(map[string]interface{}, len(args))
	for key, val := range args {
		if isSensitiveKey(key) {
			out[key] = redactedPlaceholder
			continue
		}
		if nested, ok := val.(map[string]interface{}); ok {
			out[key] = RedactSensitiveArgs(nested)
			continue
		}
		out[key] = val
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range sensitiveKeyFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
