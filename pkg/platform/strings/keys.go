package strings

import "strings"

var keySegmentEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// EscapeKeySegment makes s safe to embed between ':' delimiters of a store
// key. The escape is reversible, so distinct inputs never share a key.
func EscapeKeySegment(s string) string {
	return keySegmentEscaper.Replace(s)
}
