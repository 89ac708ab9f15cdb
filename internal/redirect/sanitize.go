package redirect

import (
	"net/url"
	"strings"
)

// Sanitize resolves raw against origin and returns the absolute URL only if
// its scheme is http or https. It is the only check applied before handing a
// server-supplied URL to the user.
func Sanitize(origin, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	resolved := ref
	if !ref.IsAbs() {
		base, err := url.Parse(origin)
		if err != nil || !base.IsAbs() {
			return "", false
		}
		resolved = base.ResolveReference(ref)
	}
	switch strings.ToLower(resolved.Scheme) {
	case "http", "https":
	default:
		return "", false
	}
	if resolved.Host == "" {
		return "", false
	}
	return resolved.String(), true
}
