package utils

import "strings"

// MaskSecret keeps a short prefix of a credential for log and config output.
func MaskSecret(s string) string {
	if len(s) < 8 {
		return strings.Repeat("*", 5)
	}
	return s[:4] + strings.Repeat("*", 5)
}
