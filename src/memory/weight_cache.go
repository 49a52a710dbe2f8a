package memory

import "container/list"

// TileKey identifies a weight tile resident in the cache.
type TileKey struct {
	LayerID   int
	TileIndex int
}

// CacheCounters 汇总权重缓存的命中统计。
type CacheCounters struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Inserts   int64
	PeakBytes int64
}

type cacheRecord struct {
	key   TileKey
	bytes int64
}

type cacheBank struct {
	capacity int64
	bytes    int64
	resident map[TileKey]*list.Element
	order    *list.List
}

func (b *cacheBank) insert(record *cacheRecord) (evicted int64, evictions int64) {
	for b.bytes+record.bytes > b.capacity {
		oldest := b.order.Back()
		if oldest == nil {
			break
		}
		victim := oldest.Value.(*cacheRecord)
		b.bytes -= victim.bytes
		evicted += victim.bytes
		evictions++
		delete(b.resident, victim.key)
		b.order.Remove(oldest)
	}

	element := b.order.PushFront(record)
	b.resident[record.key] = element
	b.bytes += record.bytes
	return evicted, evictions
}

// WeightCache models the banked weight SRAM. Entries are keyed by
// (layer, tile); each bank runs an independent LRU so that eviction pressure
// in one bank never disturbs residency in another.
type WeightCache struct {
	banks    []*cacheBank
	counters CacheCounters
	bytes    int64
}

func NewWeightCache(numBanks int, bankBytes int64) *WeightCache {
	if numBanks <= 0 {
		numBanks = 1
	}
	if bankBytes <= 0 {
		bankBytes = 1
	}

	cache := &WeightCache{
		banks: make([]*cacheBank, numBanks),
	}
	for i := range cache.banks {
		cache.banks[i] = &cacheBank{
			capacity: bankBytes,
			resident: make(map[TileKey]*list.Element),
			order:    list.New(),
		}
	}
	return cache
}

func (c *WeightCache) NumBanks() int {
	return len(c.banks)
}

// BankFor maps a tile key onto its home bank. The mapping is a fixed hash so
// repeated runs of the same schedule touch the same banks.
func (c *WeightCache) BankFor(key TileKey) int {
	h := key.LayerID*31 + key.TileIndex
	if h < 0 {
		h = -h
	}
	return h % len(c.banks)
}

// Lookup reports residency and refreshes the LRU position on a hit.
func (c *WeightCache) Lookup(key TileKey) bool {
	bank := c.banks[c.BankFor(key)]
	element, ok := bank.resident[key]
	if !ok {
		c.counters.Misses++
		return false
	}
	bank.order.MoveToFront(element)
	c.counters.Hits++
	return true
}

// Insert makes the tile resident, evicting per-bank LRU entries as needed.
func (c *WeightCache) Insert(key TileKey, bytes int64) {
	bank := c.banks[c.BankFor(key)]
	if element, ok := bank.resident[key]; ok {
		bank.order.MoveToFront(element)
		return
	}

	evictedBytes, evictions := bank.insert(&cacheRecord{key: key, bytes: bytes})
	c.bytes += bytes - evictedBytes
	c.counters.Inserts++
	c.counters.Evictions += evictions
	if c.bytes > c.counters.PeakBytes {
		c.counters.PeakBytes = c.bytes
	}
}

// Contains checks residency without touching LRU state or counters.
func (c *WeightCache) Contains(key TileKey) bool {
	bank := c.banks[c.BankFor(key)]
	_, ok := bank.resident[key]
	return ok
}

func (c *WeightCache) ResidentBytes() int64 {
	return c.bytes
}

func (c *WeightCache) Counters() CacheCounters {
	return c.counters
}

// Reset drops all residency and statistics; called on model reload.
func (c *WeightCache) Reset() {
	for i := range c.banks {
		c.banks[i] = &cacheBank{
			capacity: c.banks[i].capacity,
			resident: make(map[TileKey]*list.Element),
			order:    list.New(),
		}
	}
	c.bytes = 0
	c.counters = CacheCounters{}
}
