// File: protocol/frame_codec.go
// Package protocol implements the frame codec with frame size enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Implements WebSocket frame encoding/decoding over byte slices. The codec
// performs no I/O and keeps no state between calls.

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Decode errors. ErrIncomplete is not fatal: the caller keeps the bytes
// and retries once more data has arrived.
var (
	ErrIncomplete           = errors.New("frame incomplete")
	ErrUnsupportedExtension = errors.New("reserved bits set without negotiated extension")
	ErrFrameTooLarge        = errors.New("frame payload exceeds maximum allowed size")
	ErrInvalidLength        = errors.New("frame payload length has most significant bit set")
)

// DecodeFrame parses one frame from the start of buf.
// It returns the frame and the exact number of bytes consumed from buf.
// A maxPayload <= 0 disables the size cap.
func DecodeFrame(buf []byte, maxPayload int64) (Frame, int, error) {
	if len(buf) < 1 {
		return Frame{}, 0, ErrIncomplete
	}
	b0 := buf[0]
	f := Frame{
		Fin:    b0&FinBit != 0,
		Rsv1:   b0&Rsv1Bit != 0,
		Rsv2:   b0&Rsv2Bit != 0,
		Rsv3:   b0&Rsv3Bit != 0,
		Opcode: OpcodeFromByte(b0),
	}
	if f.Rsv1 || f.Rsv2 || f.Rsv3 {
		return Frame{}, 0, ErrUnsupportedExtension
	}
	if len(buf) < 2 {
		return Frame{}, 0, ErrIncomplete
	}
	b1 := buf[1]
	f.Masked = b1&MaskBit != 0

	offset := 2
	var length uint64
	switch l7 := b1 & Len7Mask; l7 {
	case len16Marker:
		if len(buf) < offset+2 {
			return Frame{}, 0, ErrIncomplete
		}
		length = uint64(binary.BigEndian.Uint16(buf[offset:]))
		offset += 2
	case len64Marker:
		if len(buf) < offset+8 {
			return Frame{}, 0, ErrIncomplete
		}
		length = binary.BigEndian.Uint64(buf[offset:])
		offset += 8
		if length>>63 != 0 {
			return Frame{}, 0, ErrInvalidLength
		}
	default:
		length = uint64(l7)
	}

	if maxPayload > 0 && length > uint64(maxPayload) {
		return Frame{}, 0, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, maxPayload)
	}

	if f.Masked {
		if len(buf) < offset+4 {
			return Frame{}, 0, ErrIncomplete
		}
		copy(f.MaskKey[:], buf[offset:offset+4])
		offset += 4
	}

	if uint64(len(buf)-offset) < length {
		return Frame{}, 0, ErrIncomplete
	}
	end := offset + int(length)

	f.Payload = make([]byte, length)
	copy(f.Payload, buf[offset:end])
	if f.Masked {
		Mask(f.MaskKey, 0, f.Payload)
	}
	return f, end, nil
}

// FrameSize returns the encoded size of a frame carrying n payload bytes.
func FrameSize(n int, masked bool) int {
	size := 2 + n
	switch {
	case n > 0xFFFF:
		size += 8
	case n > MaxControlPayloadLen:
		size += 2
	}
	if masked {
		size += 4
	}
	return size
}

// AppendFrame appends one final frame to dst using the smallest length
// encoding. With a non-nil key the payload copy is masked (client role);
// payload itself is never modified.
func AppendFrame(dst []byte, op Opcode, payload []byte, key *[4]byte) []byte {
	b0 := FinBit | byte(op)&OpcodeMask
	var b1 byte
	if key != nil {
		b1 = MaskBit
	}

	n := len(payload)
	switch {
	case n <= MaxControlPayloadLen:
		dst = append(dst, b0, b1|byte(n))
	case n <= 0xFFFF:
		dst = append(dst, b0, b1|len16Marker)
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, b0, b1|len64Marker)
		dst = binary.BigEndian.AppendUint64(dst, uint64(n))
	}

	if key != nil {
		dst = append(dst, key[:]...)
	}
	start := len(dst)
	dst = append(dst, payload...)
	if key != nil {
		Mask(*key, 0, dst[start:])
	}
	return dst
}

// EncodeFrame returns a freshly allocated frame of exactly FrameSize bytes.
func EncodeFrame(op Opcode, payload []byte, key *[4]byte) []byte {
	dst := make([]byte, 0, FrameSize(len(payload), key != nil))
	return AppendFrame(dst, op, payload, key)
}

// AppendServerFrame appends an unmasked frame. Servers must never mask,
// so no key can be supplied.
func AppendServerFrame(dst []byte, op Opcode, payload []byte) []byte {
	return AppendFrame(dst, op, payload, nil)
}

// EncodeServerFrame is the allocating form of AppendServerFrame.
func EncodeServerFrame(op Opcode, payload []byte) []byte {
	return EncodeFrame(op, payload, nil)
}
