package simulator

import "npusim/src/memory"

// StallEventKind tells why the scheduler lost cycles.
type StallEventKind int

const (
	StallEventWait StallEventKind = iota
	StallEventBackoff
)

func (k StallEventKind) String() string {
	switch k {
	case StallEventBackoff:
		return "backoff"
	default:
		return "wait"
	}
}

// StallEvent is one entry of the stall trace.
type StallEvent struct {
	Kind       StallEventKind
	Cycle      int64
	LayerID    int
	TileIndex  int
	WaitCycles int64
}

// LayerStats breaks the run down per layer.
type LayerStats struct {
	LayerID     int
	Tiles       int
	Cycles      int64
	Macs        int64
	SkippedMacs int64
	EnergyPj    float64
}

// Report is the per-inference result summary returned to the host.
type Report struct {
	ModelID           string
	TotalCycles       int64
	EstimatedEnergyPj float64
	StallEvents       []StallEvent
	Layers            []LayerStats

	Cache  memory.CacheCounters
	Stager memory.StagerCounters

	TotalMacs   int64
	SkippedMacs int64

	ClockMhz  int
	ElapsedUs float64
}

// SkipRatio is the fraction of MACs elided by the sparsity engine.
func (r *Report) SkipRatio() float64 {
	if r.TotalMacs <= 0 {
		return 0
	}
	return float64(r.SkippedMacs) / float64(r.TotalMacs)
}
