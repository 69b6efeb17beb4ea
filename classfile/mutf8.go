package classfile

import (
	"errors"
	"unicode/utf8"
)

// ErrInvalidMUTF8 is returned for byte sequences that are not modified UTF-8.
var ErrInvalidMUTF8 = errors.New("invalid modified UTF-8")

// DecodeMUTF8 converts a CONSTANT_Utf8 payload to a Go string.
//
// Surrogate pairs are joined into a single rune. An unpaired surrogate is
// kept as its three-byte WTF-8 form, so the result is not valid UTF-8 but
// EncodeMUTF8 restores the original bytes.
func DecodeMUTF8(b []byte) (string, error) {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c != 0 && c < 0x80:
			out = append(out, c)
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", ErrInvalidMUTF8
			}
			r := rune(c&0x1F)<<6 | rune(b[i+1]&0x3F)
			out = utf8.AppendRune(out, r)
			i += 2
		case c&0xF0 == 0xE0:
			u, ok := unit3(b, i)
			if !ok {
				return "", ErrInvalidMUTF8
			}
			i += 3
			if isHighSurrogate(u) {
				if lo, ok := unit3(b, i); ok && isLowSurrogate(lo) {
					r := 0x10000 + (rune(u)-0xD800)<<10 + (rune(lo) - 0xDC00)
					out = utf8.AppendRune(out, r)
					i += 3
					continue
				}
			}
			if isHighSurrogate(u) || isLowSurrogate(u) {
				out = append(out, b[i-3:i]...)
				continue
			}
			out = utf8.AppendRune(out, rune(u))
		default:
			return "", ErrInvalidMUTF8
		}
	}
	return string(out), nil
}

// EncodeMUTF8 converts a Go string to a CONSTANT_Utf8 payload.
func EncodeMUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			if isWTF8Surrogate(s[i:]) {
				out = append(out, s[i:i+3]...)
				i += 3
				continue
			}
		}
		i += size
		switch {
		case r == 0:
			out = append(out, 0xC0, 0x80)
		case r < 0x80:
			out = append(out, byte(r))
		case r < 0x800:
			out = append(out, 0xC0|byte(r>>6), 0x80|byte(r&0x3F))
		case r < 0x10000:
			out = appendUnit3(out, uint16(r))
		default:
			r -= 0x10000
			out = appendUnit3(out, uint16(0xD800+(r>>10)))
			out = appendUnit3(out, uint16(0xDC00+(r&0x3FF)))
		}
	}
	return out
}

func unit3(b []byte, i int) (uint16, bool) {
	if i+2 >= len(b) || b[i]&0xF0 != 0xE0 || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
		return 0, false
	}
	return uint16(b[i]&0x0F)<<12 | uint16(b[i+1]&0x3F)<<6 | uint16(b[i+2]&0x3F), true
}

func appendUnit3(out []byte, u uint16) []byte {
	return append(out, 0xE0|byte(u>>12), 0x80|byte(u>>6&0x3F), 0x80|byte(u&0x3F))
}

func isHighSurrogate(u uint16) bool { return u >= 0xD800 && u <= 0xDBFF }
func isLowSurrogate(u uint16) bool  { return u >= 0xDC00 && u <= 0xDFFF }

func isWTF8Surrogate(s string) bool {
	return len(s) >= 3 && s[0] == 0xED && s[1] >= 0xA0 && s[1] <= 0xBF && s[2]&0xC0 == 0x80
}
