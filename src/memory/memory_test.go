package memory

import "testing"

func TestWeightCacheHitRefreshesLRU(t *testing.T) {
	t.Parallel()

	cache := NewWeightCache(1, 3)

	cache.Insert(TileKey{LayerID: 0, TileIndex: 0}, 1)
	cache.Insert(TileKey{LayerID: 0, TileIndex: 1}, 1)
	cache.Insert(TileKey{LayerID: 0, TileIndex: 2}, 1)

	// Touch tile 0 so tile 1 becomes the LRU victim.
	if !cache.Lookup(TileKey{LayerID: 0, TileIndex: 0}) {
		t.Fatalf("tile 0 should be resident")
	}

	cache.Insert(TileKey{LayerID: 0, TileIndex: 3}, 1)

	if cache.Contains(TileKey{LayerID: 0, TileIndex: 1}) {
		t.Fatalf("tile 1 should have been evicted as LRU")
	}
	if !cache.Contains(TileKey{LayerID: 0, TileIndex: 0}) {
		t.Fatalf("tile 0 should survive eviction after the refreshing hit")
	}

	counters := cache.Counters()
	if counters.Evictions != 1 {
		t.Fatalf("expected 1 eviction, got %d", counters.Evictions)
	}
}

func TestWeightCacheBanksEvictIndependently(t *testing.T) {
	t.Parallel()

	cache := NewWeightCache(4, 2)
	if cache.NumBanks() != 4 {
		t.Fatalf("expected 4 banks, got %d", cache.NumBanks())
	}

	// Fill one bank to capacity; a neighboring bank stays untouched.
	full := TileKey{LayerID: 0, TileIndex: 0}
	bank := cache.BankFor(full)
	cache.Insert(full, 2)

	other := TileKey{LayerID: 0, TileIndex: 1}
	if cache.BankFor(other) == bank {
		t.Fatalf("test expects keys in distinct banks")
	}
	cache.Insert(other, 2)

	// Overflow the first bank only.
	overflow := TileKey{LayerID: 0, TileIndex: 4}
	if cache.BankFor(overflow) != bank {
		t.Fatalf("overflow key must land in the same bank")
	}
	cache.Insert(overflow, 2)

	if cache.Contains(full) {
		t.Fatalf("first bank should have evicted its resident tile")
	}
	if !cache.Contains(other) {
		t.Fatalf("eviction in one bank must not disturb another bank")
	}
}

func TestWeightCacheResetClearsState(t *testing.T) {
	t.Parallel()

	cache := NewWeightCache(2, 16)
	cache.Insert(TileKey{LayerID: 1, TileIndex: 0}, 8)
	cache.Lookup(TileKey{LayerID: 1, TileIndex: 0})

	cache.Reset()

	if cache.ResidentBytes() != 0 {
		t.Fatalf("reset cache should hold no bytes")
	}
	if cache.Contains(TileKey{LayerID: 1, TileIndex: 0}) {
		t.Fatalf("reset cache should hold no tiles")
	}
	if counters := cache.Counters(); counters.Hits != 0 || counters.Inserts != 0 {
		t.Fatalf("reset cache should clear counters, got %+v", counters)
	}
}

func TestDoubleBufferBlocksFlipUntilFillCompletes(t *testing.T) {
	t.Parallel()

	buffer := NewDoubleBuffer(64)
	payload := make([]int8, 16)

	if err := buffer.StartFill(payload, 10); err != nil {
		t.Fatalf("StartFill failed: %v", err)
	}

	if buffer.Flip(5) {
		t.Fatalf("flip must be refused while the shadow transfer is in flight")
	}
	if buffer.Active() != nil {
		t.Fatalf("no active half should exist before the first completed flip")
	}

	if !buffer.Flip(10) {
		t.Fatalf("flip should succeed once the transfer completed")
	}
	if got := buffer.Active(); len(got) != 16 {
		t.Fatalf("active half should expose the filled data, got %d bytes", len(got))
	}
	if buffer.Stalls != 1 {
		t.Fatalf("refused flip should be counted as a stall, got %d", buffer.Stalls)
	}
}

func TestDoubleBufferRejectsOverlappingFills(t *testing.T) {
	t.Parallel()

	buffer := NewDoubleBuffer(64)
	if err := buffer.StartFill(make([]int8, 8), 10); err != nil {
		t.Fatalf("StartFill failed: %v", err)
	}
	if err := buffer.StartFill(make([]int8, 8), 20); err == nil {
		t.Fatalf("second fill into a busy shadow half must fail")
	}
}

func TestDoubleBufferRejectsOversizedFill(t *testing.T) {
	t.Parallel()

	buffer := NewDoubleBuffer(8)
	if buffer.HalfCapacity() != 8 {
		t.Fatalf("unexpected half capacity %d", buffer.HalfCapacity())
	}
	if err := buffer.StartFill(make([]int8, 9), 1); err == nil {
		t.Fatalf("fill beyond half capacity must fail")
	}
}

func TestFlashStagerPrefetchShortensDemandLoad(t *testing.T) {
	t.Parallel()

	stager := NewFlashStager(4, 10)
	key := TileKey{LayerID: 0, TileIndex: 1}

	stager.Prefetch(key, 16, 0) // ready at 0 + 10 + 4
	ready := stager.ReadyAt(key, 16, 12)
	if ready != 14 {
		t.Fatalf("prefetched tile should be ready at 14, got %d", ready)
	}

	cold := TileKey{LayerID: 0, TileIndex: 2}
	ready = stager.ReadyAt(cold, 16, 12)
	if ready != 12+10+4 {
		t.Fatalf("demand load should pay full latency, got %d", ready)
	}

	counters := stager.Counters()
	if counters.Prefetches != 1 || counters.DemandLoads != 1 {
		t.Fatalf("unexpected counters %+v", counters)
	}
}

func TestFlashStagerFlushAbortsInflight(t *testing.T) {
	t.Parallel()

	stager := NewFlashStager(4, 0)
	stager.Prefetch(TileKey{LayerID: 0, TileIndex: 0}, 8, 0)
	stager.Prefetch(TileKey{LayerID: 0, TileIndex: 1}, 8, 0)

	stager.Flush()

	if stager.InFlight() != 0 {
		t.Fatalf("flush should abort all outstanding transfers")
	}
	if stager.Counters().FlushedLoads != 2 {
		t.Fatalf("flushed transfers should be counted")
	}
}
