package mapper

import "fmt"

// CapacityError reports a layer whose tiles cannot fit the array registers or
// a memory bank, making the model unmappable on the configured hardware.
type CapacityError struct {
	Layer  int
	Reason string
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("layer %d exceeds hardware capacity: %s", e.Layer, e.Reason)
}
