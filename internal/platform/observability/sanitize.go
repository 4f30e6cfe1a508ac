package observability

import (
	"strings"
	"unicode"
)

const (
	routeLimit  = 180
	methodLimit = 10
	userIDLimit = 64
	ipLimit     = 64
)

// stripControl drops control characters so header-derived values cannot
// inject newlines into log output, then truncates to limit runes.
func stripControl(value string, limit int) string {
	var b strings.Builder
	b.Grow(len(value))
	kept := 0
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		if kept >= limit {
			break
		}
		b.WriteRune(r)
		kept++
	}
	return b.String()
}

// SanitizeRoute bounds and cleans a route pattern for logging.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return stripControl(route, routeLimit)
}

// SanitizeMethod bounds and cleans an HTTP method for logging.
func SanitizeMethod(method string) string {
	return stripControl(method, methodLimit)
}

// SanitizeUserID bounds user identifiers before they reach logs.
func SanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return stripControl(uid, userIDLimit)
}
