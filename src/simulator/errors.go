package simulator

import "fmt"

// BufferStallError reports a double-buffer swap that could not proceed within
// the configured cycle budget. It is recoverable: the scheduler backs the
// clock off and retries a bounded number of times before escalating.
type BufferStallError struct {
	LayerID    int
	TileIndex  int
	WaitCycles int64
}

func (e *BufferStallError) Error() string {
	return fmt.Sprintf("layer %d tile %d: buffer swap stalled for %d cycles beyond budget",
		e.LayerID, e.TileIndex, e.WaitCycles)
}

// HardwareFault is unrecoverable for the current run; the device refuses
// further work until a fresh Initialize clears it.
type HardwareFault struct {
	Reason    string
	LayerID   int
	TileIndex int
}

func (e *HardwareFault) Error() string {
	if e.LayerID < 0 {
		return fmt.Sprintf("hardware fault: %s", e.Reason)
	}
	return fmt.Sprintf("hardware fault at layer %d tile %d: %s", e.LayerID, e.TileIndex, e.Reason)
}
