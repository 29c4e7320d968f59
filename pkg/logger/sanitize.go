package logger

import (
	"log/slog"
	"strings"
)

// SanitizedEmail masks an email address for logging ("u***@*******.com").
func SanitizedEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	if len(local) > 1 {
		local = local[:1] + strings.Repeat("*", len(local)-1)
	}

	labels := strings.Split(domain, ".")
	for i := 0; i < len(labels)-1; i++ {
		labels[i] = strings.Repeat("*", len(labels[i]))
	}

	return local + "@" + strings.Join(labels, ".")
}

// RedactedAttr hides value outside development.
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "development" {
		return slog.String(key, value)
	}
	return slog.String(key, "[REDACTED]")
}

var sensitiveParams = []string{"password", "token", "secret", "email", "auth"}

// SanitizeQueryString reports whether rawQuery carries a parameter that must
// not reach the logs.
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
