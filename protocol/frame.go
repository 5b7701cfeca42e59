// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket frame model and masking logic.
//
//	byte0: FIN(1) RSV1(1) RSV2(1) RSV3(1) OPCODE(4)
//	byte1: MASK(1) LEN7(7)
//	  LEN7==126 -> 2 bytes big-endian length follow
//	  LEN7==127 -> 8 bytes big-endian length follow
//	if MASK: 4 bytes masking key follow
//	payload: LEN bytes, XORed with the masking key (cycled) if MASK is set

package protocol

// Frame represents a decoded WebSocket frame.
type Frame struct {
	Fin     bool // FIN bit
	Rsv1    bool
	Rsv2    bool
	Rsv3    bool
	Opcode  Opcode
	Masked  bool    // Whether the frame was masked on the wire
	MaskKey [4]byte // Valid only when Masked
	Payload []byte  // Unmasked application data, owned by the frame
}

// Mask XORs b in place with key, starting at key position pos,
// and returns the key position following the last byte.
// Applying the same key from the same position twice restores b.
func Mask(key [4]byte, pos int, b []byte) int {
	for i := range b {
		b[i] ^= key[pos&3]
		pos++
	}
	return pos & 3
}
