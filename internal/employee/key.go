// Package employee normalizes the keys employees are identified by across
// enrollment, verification and the attendance ledger.
package employee

import (
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// NormalizeKey returns the canonical form of an employee key: NFC composed,
// full-width forms folded, surrounding whitespace trimmed and inner runs of
// whitespace collapsed to a single space (e.g., " Ａlice  Smith " -> "Alice Smith").
func NormalizeKey(key string) string {
	key = width.Fold.String(key)
	key = norm.NFC.String(key)
	return strings.Join(strings.Fields(key), " ")
}

// FileStem converts a key into the stem used for reference image names,
// replacing spaces with underscores ("Alice Smith" -> "Alice_Smith").
func FileStem(key string) string {
	return strings.ReplaceAll(NormalizeKey(key), " ", "_")
}
