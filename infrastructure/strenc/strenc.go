// Package strenc implements the UTF-16LE string wire encoding spec.md §6/§9
// fixes as the canonical form ("implementers SHOULD fix little-endian and
// document it"). Grounded on stdlib unicode/utf16; the teacher has no
// string wire codec of its own to generalize, so this is built directly
// against the standard library, which is the pack's own answer whenever no
// third-party codec exists for a primitive encoding (see DESIGN.md).
package strenc

import (
	"encoding/binary"
	"unicode/utf16"
)

// EncodeUTF16LE converts s to its UTF-16, little-endian code-unit byte
// encoding with no byte-order mark (spec.md §6).
func EncodeUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	buf := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[i*2:], u)
	}
	return buf
}

// DecodeUTF16LE reverses EncodeUTF16LE. A payload of odd length is
// truncated to the nearest whole code unit.
func DecodeUTF16LE(payload []byte) string {
	n := len(payload) / 2
	units := make([]uint16, n)
	for i := 0; i < n; i++ {
		units[i] = binary.LittleEndian.Uint16(payload[i*2:])
	}
	return string(utf16.Decode(units))
}
