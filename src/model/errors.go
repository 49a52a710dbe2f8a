package model

import "fmt"

// ValidationError reports a malformed model graph: a cycle, a dangling edge,
// or a shape mismatch between a producer and a consumer.
type ValidationError struct {
	Layer  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Layer < 0 {
		return fmt.Sprintf("model validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("model validation failed at layer %d: %s", e.Layer, e.Reason)
}

// UnsupportedOpError reports an op kind outside the supported vocabulary.
type UnsupportedOpError struct {
	Layer int
	Kind  string
}

func (e *UnsupportedOpError) Error() string {
	return fmt.Sprintf("layer %d: unsupported op kind %q", e.Layer, e.Kind)
}
