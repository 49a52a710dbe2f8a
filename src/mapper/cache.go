package mapper

import "container/list"

type cacheEntry struct {
	modelID  string
	schedule *Schedule
}

// ScheduleCache keeps compiled schedules keyed by model identifier so that
// re-initializing a recently seen model skips the mapping pass. Eviction is
// LRU over whole schedules.
type ScheduleCache struct {
	capacity int
	entries  map[string]*list.Element
	order    *list.List

	Hits   int64
	Misses int64
}

func NewScheduleCache(capacity int) *ScheduleCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &ScheduleCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *ScheduleCache) Get(modelID string) (*Schedule, bool) {
	element, ok := c.entries[modelID]
	if !ok {
		c.Misses++
		return nil, false
	}
	c.order.MoveToFront(element)
	c.Hits++
	return element.Value.(*cacheEntry).schedule, true
}

func (c *ScheduleCache) Put(modelID string, schedule *Schedule) {
	if element, ok := c.entries[modelID]; ok {
		element.Value.(*cacheEntry).schedule = schedule
		c.order.MoveToFront(element)
		return
	}

	for len(c.entries) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		entry := oldest.Value.(*cacheEntry)
		delete(c.entries, entry.modelID)
		c.order.Remove(oldest)
	}

	element := c.order.PushFront(&cacheEntry{modelID: modelID, schedule: schedule})
	c.entries[modelID] = element
}

func (c *ScheduleCache) Len() int {
	return len(c.entries)
}
