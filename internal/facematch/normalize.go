package facematch

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName trims surrounding whitespace and composes the name to Unicode NFC,
// so visually identical names compare equal (e.g. "Jiří" typed with combining marks).
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
