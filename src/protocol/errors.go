package protocol

import "fmt"

// ProtocolError marks a malformed packet. The packet is discarded and neither
// the engine state nor device memory is touched.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

// SequenceError marks a command that is not legal in the engine's current
// state. The state is left unchanged.
type SequenceError struct {
	Opcode byte
	State  State
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("sequence error: %s not permitted in state %s", OpcodeName(e.Opcode), e.State)
}
