// Package pathcodec translates between URL path segments and the canonical
// identifier form used as dispatch-table keys. Decode is deliberately
// tolerant so URLs stay human friendly; Encode is unambiguous so generated
// documentation links survive a round trip for identifier-safe names.
package pathcodec

import "strings"

// Decode translates a URL path segment into its canonical identifier form.
// An underscore maps to a dash, a '$' followed by two hex digits maps to the
// corresponding character, and every other character is copied (lower-cased
// when toLower is set). A single trailing dash is stripped afterwards, which
// lets method names escape otherwise-reserved suffixes.
func Decode(segment string, toLower bool) string {
	var sb strings.Builder
	sb.Grow(len(segment))
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		switch {
		case c == '_':
			sb.WriteByte('-')
			continue
		case c == '$' && i+2 < len(segment):
			c = nibble(segment[i+1])<<4 | nibble(segment[i+2])
			i += 2
		}
		if toLower && c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		sb.WriteByte(c)
	}
	out := sb.String()
	if strings.HasSuffix(out, "-") {
		out = out[:len(out)-1]
	}
	return out
}

// Encode is the reverse direction of Decode, producing a URL-safe segment
// from a canonical identifier. Dashes become underscores, a literal
// underscore becomes $5F, identifier characters pass through, characters
// above printable ASCII become '~', and everything else is emitted as '$'
// plus two hex nibbles. Encode(Decode(s)) restores s only for the
// identifier-safe subset; the asymmetry is intentional.
func Encode(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for i, r := range name {
		sb.WriteString(encodeRune(r, i == 0))
	}
	return sb.String()
}

func encodeRune(r rune, first bool) string {
	switch {
	case r == '-':
		return "_"
	case r == '_':
		return "$5F"
	case identRune(r, first):
		return string(r)
	case r > 0x7F:
		return "~"
	default:
		return "$" + string(hexDigit(byte(r)>>4)) + string(hexDigit(byte(r)&0x0F))
	}
}

// identRune reports whether r may appear in a Go identifier at the given
// position. ASCII only; anything above 0x7F is handled by the caller.
func identRune(r rune, first bool) bool {
	if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
		return true
	}
	if !first && r >= '0' && r <= '9' {
		return true
	}
	return false
}

func nibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func hexDigit(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'A' + n - 10
}
