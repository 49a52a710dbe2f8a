package protocol

import (
	"encoding/binary"
	"fmt"
)

// Host command opcodes. The set is closed; dispatch is an exhaustive switch
// per state.
const (
	OpInitialize   byte = 0x01
	OpWriteInput   byte = 0x02
	OpExecute      byte = 0x03
	OpReadOutput   byte = 0x04
	OpPowerControl byte = 0x05
)

// OpcodeName returns the mnemonic for a host opcode.
func OpcodeName(op byte) string {
	switch op {
	case OpInitialize:
		return "initialize"
	case OpWriteInput:
		return "write_input"
	case OpExecute:
		return "execute"
	case OpReadOutput:
		return "read_output"
	case OpPowerControl:
		return "power_control"
	default:
		return fmt.Sprintf("op_0x%02x", op)
	}
}

// headerBytes is the fixed framing prefix: opcode, address, length.
const headerBytes = 1 + 4 + 2

// Packet is one framed host command. It lives only for the exchange that
// decoded it; the engine never retains a reference past Handle.
type Packet struct {
	Opcode  byte
	Address uint32
	Payload []byte
}

// DecodePacket parses the fixed framing
// [opcode:1][address:4][length:2][payload:length], big-endian. A declared
// length that does not match the observed payload is a ProtocolError and the
// packet is discarded.
func DecodePacket(raw []byte) (*Packet, error) {
	if len(raw) < headerBytes {
		return nil, &ProtocolError{Reason: fmt.Sprintf("packet of %d bytes is shorter than the %d byte header", len(raw), headerBytes)}
	}

	length := int(binary.BigEndian.Uint16(raw[5:7]))
	payload := raw[headerBytes:]
	if len(payload) != length {
		return nil, &ProtocolError{Reason: fmt.Sprintf("declared length %d but observed %d payload bytes", length, len(payload))}
	}

	return &Packet{
		Opcode:  raw[0],
		Address: binary.BigEndian.Uint32(raw[1:5]),
		Payload: payload,
	}, nil
}

// Encode serializes the packet into the wire framing.
func (p *Packet) Encode() []byte {
	raw := make([]byte, headerBytes+len(p.Payload))
	raw[0] = p.Opcode
	binary.BigEndian.PutUint32(raw[1:5], p.Address)
	binary.BigEndian.PutUint16(raw[5:7], uint16(len(p.Payload)))
	copy(raw[headerBytes:], p.Payload)
	return raw
}
