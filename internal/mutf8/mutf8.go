// Package mutf8 decodes the VM's modified UTF-8 string encoding into standard
// UTF-8. Modified UTF-8 differs from standard UTF-8 in exactly two ways: NUL is
// encoded as the two bytes C0 80, and code points above U+FFFF are encoded as
// two three-byte surrogate sequences instead of one four-byte sequence.
package mutf8

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/text/transform"
)

// ErrInvalid is returned when a byte sequence does not match any of the four
// accepted modified-UTF-8 shapes (one-byte ASCII, two-byte latin-supplementary,
// three-byte BMP, six-byte surrogate pair).
var ErrInvalid = errors.New("mutf8: invalid modified-UTF-8 sequence")

// Decoder is a transform.Transformer converting modified UTF-8 into standard
// UTF-8. It satisfies golang.org/x/text/transform.Transformer so it composes
// with the rest of the x/text pipeline (transform.String, transform.Bytes).
type Decoder struct{ transform.NopResetter }

// NewDecoder returns a fresh modified-UTF-8 decoding transformer.
func NewDecoder() *Decoder { return &Decoder{} }

// Transform implements transform.Transformer.
func (Decoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		r, size, ok := decodeRune(src[nSrc:], atEOF)
		if !ok {
			if !atEOF && size == 0 {
				err = transform.ErrShortSrc
				return
			}
			err = ErrInvalid
			return
		}
		if size == 0 {
			// Need more bytes to decide; only valid when !atEOF, handled above.
			err = transform.ErrShortSrc
			return
		}
		need := utf8.RuneLen(r)
		if need < 0 {
			err = ErrInvalid
			return
		}
		if nDst+need > len(dst) {
			err = transform.ErrShortDst
			return
		}
		utf8.EncodeRune(dst[nDst:], r)
		nDst += need
		nSrc += size
	}
	return
}

// decodeRune decodes a single code point from the front of b, returning the
// rune, the number of source bytes consumed, and whether the sequence was
// well-formed. A zero size with ok==true should not happen; a zero size with
// ok==false and atEOF==false signals "need more bytes".
func decodeRune(b []byte, atEOF bool) (rune, int, bool) {
	if len(b) == 0 {
		return 0, 0, true
	}
	b0 := b[0]

	switch {
	case b0 == 0xC0:
		// NUL encoded as C0 80.
		if len(b) < 2 {
			if atEOF {
				return 0, 0, false
			}
			return 0, 0, false
		}
		if b[1] != 0x80 {
			return 0, 0, false
		}
		return 0, 2, true

	case b0&0x80 == 0x00:
		// One-byte ASCII, 0xxxxxxx, excluding NUL (handled above as C0 80).
		if b0 == 0x00 {
			return 0, 0, false
		}
		return rune(b0), 1, true

	case b0&0xE0 == 0xC0:
		// Two-byte latin-supplementary, 110xxxxx 10xxxxxx.
		if len(b) < 2 {
			return 0, 0, false
		}
		b1 := b[1]
		if b1&0xC0 != 0x80 {
			return 0, 0, false
		}
		r := rune(b0&0x1F)<<6 | rune(b1&0x3F)
		return r, 2, true

	case b0&0xF0 == 0xE0:
		// Could be a plain three-byte BMP sequence, or the first half of a
		// six-byte surrogate pair (ED Ax/Bx xx ED Ax/Bx xx).
		if len(b) < 3 {
			return 0, 0, false
		}
		b1, b2 := b[1], b[2]
		if b1&0xC0 != 0x80 || b2&0xC0 != 0x80 {
			return 0, 0, false
		}
		if b0 == 0xED && b1 >= 0xA0 && b1 <= 0xAF {
			// High surrogate half; must be followed by a low surrogate half.
			if len(b) < 6 {
				return 0, 0, false
			}
			b3, b4, b5 := b[3], b[4], b[5]
			if b3 != 0xED || b4 < 0xB0 || b4 > 0xBF || b5&0xC0 != 0x80 {
				return 0, 0, false
			}
			hi := rune(b1&0x0F)<<6 | rune(b2&0x3F)
			lo := rune(b4&0x0F)<<6 | rune(b5&0x3F)
			r := 0x10000 + hi<<10 + lo
			return r, 6, true
		}
		r := rune(b0&0x0F)<<12 | rune(b1&0x3F)<<6 | rune(b2&0x3F)
		return r, 3, true

	default:
		return 0, 0, false
	}
}

// DecodeString decodes a complete modified-UTF-8 byte slice into a standard
// UTF-8 Go string. Unlike the streaming Decoder, it requires the full input
// up front, which matches how strings cross the VM tool-interface boundary
// (always null-terminated, always delivered whole).
func DecodeString(b []byte) (string, error) {
	out := make([]byte, 0, len(b))
	pos := 0
	for pos < len(b) {
		r, size, ok := decodeRune(b[pos:], true)
		if !ok || size == 0 {
			return "", ErrInvalid
		}
		var buf [utf8.UTFMax]byte
		n := utf8.EncodeRune(buf[:], r)
		out = append(out, buf[:n]...)
		pos += size
	}
	return string(out), nil
}

// EncodeString is the reverse transform, from a Go string to modified UTF-8.
// Nothing in the agent calls it; the agent itself only ever decodes
// VM-supplied strings.
func EncodeString(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r == 0:
			out = append(out, 0xC0, 0x80)
		case r <= 0x7F:
			out = append(out, byte(r))
		case r <= 0x7FF:
			out = append(out, byte(0xC0|r>>6), byte(0x80|r&0x3F))
		case r <= 0xFFFF:
			out = append(out, byte(0xE0|r>>12), byte(0x80|(r>>6)&0x3F), byte(0x80|r&0x3F))
		default:
			v := r - 0x10000
			hi := 0xD800 + (v >> 10)
			lo := 0xDC00 + (v & 0x3FF)
			out = append(out, byte(0xE0|hi>>12), byte(0x80|(hi>>6)&0x3F), byte(0x80|hi&0x3F))
			out = append(out, byte(0xE0|lo>>12), byte(0x80|(lo>>6)&0x3F), byte(0x80|lo&0x3F))
		}
	}
	return out
}
