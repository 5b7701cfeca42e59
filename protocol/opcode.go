// File: protocol/opcode.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import "fmt"

// Opcode is the 4-bit frame type. Values 3-7 and 11-15 are reserved;
// they are kept as their raw nibble rather than dropped.
type Opcode byte

// https://tools.ietf.org/html/rfc6455#section-11.8
const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2
	// 0x3 - 0x7 reserved for further non-control frames.
	OpcodeClose Opcode = 0x8
	OpcodePing  Opcode = 0x9
	OpcodePong  Opcode = 0xA
	// 0xB - 0xF reserved for further control frames.
)

// OpcodeFromByte maps the low nibble of b to an Opcode.
func OpcodeFromByte(b byte) Opcode {
	return Opcode(b & OpcodeMask)
}

// IsControl reports whether o is in the control range (0x8-0xF).
func (o Opcode) IsControl() bool {
	return o&0x8 != 0
}

// IsReserved reports whether o is one of the reserved values.
func (o Opcode) IsReserved() bool {
	switch {
	case o >= 0x3 && o <= 0x7:
		return true
	case o >= 0xB && o <= 0xF:
		return true
	}
	return false
}

// IsData reports whether o carries an application message.
func (o Opcode) IsData() bool {
	return o == OpcodeText || o == OpcodeBinary
}

func (o Opcode) String() string {
	switch o {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	}
	if o.IsControl() {
		return fmt.Sprintf("reserved-control(0x%x)", byte(o))
	}
	return fmt.Sprintf("reserved-data(0x%x)", byte(o))
}
