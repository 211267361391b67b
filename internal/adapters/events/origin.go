package events

import (
	"net/http"
	"net/url"
	"strings"
)

// SameOrigin reports whether r has no Origin header, as sent by non-browser
// clients, or one whose host matches the request host.
func SameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// OriginAllowed reports whether r is same-origin or its Origin is listed in
// allowed. Entries compare as scheme://host[:port] without a trailing slash.
func OriginAllowed(r *http.Request, allowed []string) bool {
	if SameOrigin(r) {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimRight(strings.TrimSpace(a), "/"), origin) {
			return true
		}
	}
	return false
}
