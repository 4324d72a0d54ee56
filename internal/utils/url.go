package utils

import (
	"net/url"
	"strings"
)

// IsValidURL reports whether s is an absolute http(s) URL with a host.
func IsValidURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}
