package memory

// StagerCounters tracks bulk-storage staging activity.
type StagerCounters struct {
	Prefetches   int64
	DemandLoads  int64
	StagedBytes  int64
	FlushedLoads int64
}

type inflightLoad struct {
	bytes    int64
	readyAt  int64
	prefetch bool
}

// FlashStager models the staged asynchronous transfer of weight tiles from
// bulk storage into the weight cache. A transfer for a tile begins the first
// time the tile is referenced; the scheduler references tile i+1 when tile
// i's compute starts, giving one-tile-ahead prefetch.
type FlashStager struct {
	bandwidth   int64
	baseLatency int64
	inflight    map[TileKey]*inflightLoad
	counters    StagerCounters
}

func NewFlashStager(bytesPerCycle int64, baseLatency int) *FlashStager {
	if bytesPerCycle <= 0 {
		bytesPerCycle = 1
	}
	if baseLatency < 0 {
		baseLatency = 0
	}
	return &FlashStager{
		bandwidth:   bytesPerCycle,
		baseLatency: int64(baseLatency),
		inflight:    make(map[TileKey]*inflightLoad),
	}
}

func (s *FlashStager) transferCycles(bytes int64) int64 {
	cycles := (bytes + s.bandwidth - 1) / s.bandwidth
	if cycles < 1 {
		cycles = 1
	}
	return s.baseLatency + cycles
}

// Prefetch begins staging the tile if no transfer is already in flight.
func (s *FlashStager) Prefetch(key TileKey, bytes int64, now int64) {
	if _, ok := s.inflight[key]; ok {
		return
	}
	s.inflight[key] = &inflightLoad{
		bytes:    bytes,
		readyAt:  now + s.transferCycles(bytes),
		prefetch: true,
	}
	s.counters.Prefetches++
	s.counters.StagedBytes += bytes
}

// ReadyAt returns the cycle at which the tile's bytes are staged. A tile that
// was never prefetched starts a demand load now and pays the full latency.
func (s *FlashStager) ReadyAt(key TileKey, bytes int64, now int64) int64 {
	if load, ok := s.inflight[key]; ok {
		return load.readyAt
	}
	load := &inflightLoad{
		bytes:   bytes,
		readyAt: now + s.transferCycles(bytes),
	}
	s.inflight[key] = load
	s.counters.DemandLoads++
	s.counters.StagedBytes += bytes
	return load.readyAt
}

// Complete retires a finished transfer.
func (s *FlashStager) Complete(key TileKey) {
	delete(s.inflight, key)
}

// Flush aborts all outstanding transfers; used on cancellation and reload.
func (s *FlashStager) Flush() {
	s.counters.FlushedLoads += int64(len(s.inflight))
	s.inflight = make(map[TileKey]*inflightLoad)
}

func (s *FlashStager) InFlight() int {
	return len(s.inflight)
}

func (s *FlashStager) Counters() StagerCounters {
	return s.counters
}
