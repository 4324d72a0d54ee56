package blob

import (
	"strings"
	"unicode/utf8"
)

const maxKeyLength = 1024

// ValidateKey reports whether key is safe both as an S3 key and as a relative local path.
func ValidateKey(key string) bool {
	if len(key) == 0 || len(key) > maxKeyLength {
		return false
	}
	if !utf8.ValidString(key) {
		return false
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// NormalizePrefix trims surrounding slashes and appends a single trailing one.
// An empty prefix means the bucket root.
func NormalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// JoinKey builds the object key for a relative path under prefix.
func JoinKey(prefix, rel string) string {
	return NormalizePrefix(prefix) + strings.TrimLeft(rel, "/")
}

// RelKey strips prefix from key. ok is false when key is not under prefix.
func RelKey(prefix, key string) (string, bool) {
	prefix = NormalizePrefix(prefix)
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	return key[len(prefix):], true
}

// cleanETag drops the quotes S3 wraps etags in
func cleanETag(etag string) string {
	return strings.ReplaceAll(etag, "\"", "")
}
