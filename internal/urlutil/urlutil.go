// Package urlutil holds the host matching rules shared by search filtering,
// extraction profiles and the rewrite blocklist.
package urlutil

import (
	"net/url"
	"strings"
)

// Host returns the lowercased hostname of rawURL without a leading "www.",
// or "" when rawURL does not parse or has no host.
func Host(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return normalize(u.Hostname())
}

// MatchesDomain reports whether host equals domain or is a subdomain of it.
func MatchesDomain(host, domain string) bool {
	host, domain = normalize(host), normalize(domain)
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// MatchesAny reports whether host matches any of domains.
func MatchesAny(host string, domains []string) bool {
	for _, d := range domains {
		if MatchesDomain(host, d) {
			return true
		}
	}
	return false
}

// IsHTTP reports whether rawURL is an absolute http or https URL.
func IsHTTP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func normalize(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	return strings.TrimPrefix(host, "www.")
}
