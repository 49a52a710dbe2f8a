package memory

import "fmt"

type halfState int

const (
	halfIdle halfState = iota
	halfFilling
	halfReady
	halfActive
)

func (s halfState) String() string {
	switch s {
	case halfFilling:
		return "filling"
	case halfReady:
		return "ready"
	case halfActive:
		return "active"
	default:
		return "idle"
	}
}

type bufferHalf struct {
	state    halfState
	data     []int8
	fillDone int64
}

// DoubleBuffer models the activation store: an active half feeding the
// current array pass and a shadow half receiving the next tile's DMA. A flip
// is permitted only once the shadow fill has completed; until then the
// consumer blocks. The buffer never hands out a half that is still filling.
type DoubleBuffer struct {
	capacity int64
	halves   [2]*bufferHalf
	active   int

	Flips  int64
	Stalls int64
}

func NewDoubleBuffer(halfBytes int64) *DoubleBuffer {
	if halfBytes <= 0 {
		halfBytes = 1
	}
	return &DoubleBuffer{
		capacity: halfBytes,
		halves:   [2]*bufferHalf{{}, {}},
	}
}

func (b *DoubleBuffer) HalfCapacity() int64 {
	return b.capacity
}

func (b *DoubleBuffer) shadow() *bufferHalf {
	return b.halves[1-b.active]
}

// StartFill stages data into the shadow half with the given completion cycle.
// Starting a fill while the previous shadow fill is still outstanding is a
// scheduler bug and reported as such.
func (b *DoubleBuffer) StartFill(data []int8, completeAt int64) error {
	shadow := b.shadow()
	if shadow.state == halfFilling {
		return fmt.Errorf("shadow half already filling (done at cycle %d)", shadow.fillDone)
	}
	if int64(len(data)) > b.capacity {
		return fmt.Errorf("fill of %d bytes exceeds half capacity %d", len(data), b.capacity)
	}

	shadow.state = halfFilling
	shadow.data = data
	shadow.fillDone = completeAt
	return nil
}

// FillPending reports whether the shadow half has an outstanding transfer.
func (b *DoubleBuffer) FillPending() bool {
	return b.shadow().state == halfFilling
}

// FlipReadyAt returns the cycle at which the pending shadow fill completes.
// With no pending fill it returns -1.
func (b *DoubleBuffer) FlipReadyAt() int64 {
	shadow := b.shadow()
	if shadow.state != halfFilling {
		return -1
	}
	return shadow.fillDone
}

// Flip exchanges the halves at the given cycle. The flip is refused when the
// shadow transfer has not completed yet; the caller must wait and retry
// rather than read stale data.
func (b *DoubleBuffer) Flip(now int64) bool {
	shadow := b.shadow()
	if shadow.state != halfFilling {
		return false
	}
	if shadow.fillDone > now {
		b.Stalls++
		return false
	}

	shadow.state = halfActive
	b.halves[b.active].state = halfIdle
	b.halves[b.active].data = nil
	b.active = 1 - b.active
	b.Flips++
	return true
}

// Active returns the data of the half currently feeding compute.
func (b *DoubleBuffer) Active() []int8 {
	half := b.halves[b.active]
	if half.state != halfActive {
		return nil
	}
	return half.data
}

// Reset clears both halves; used on model reload and after cancellation so an
// aborted transfer can never leak into the next run.
func (b *DoubleBuffer) Reset() {
	b.halves = [2]*bufferHalf{{}, {}}
	b.active = 0
	b.Flips = 0
	b.Stalls = 0
}
