package mapper

// Tile is one rectangular sub-block of a layer's weight matrix together with
// the matching activation slice, sized for a single pass over the array.
// Tiles are produced by the mapper and consumed read-only by the scheduler.
type Tile struct {
	LayerID  int
	Index    int
	RowBlock int
	ColBlock int

	// Element offsets and extents within the layer's K x N weight matrix.
	RowOff int
	ColOff int
	Rows   int
	Cols   int

	// Byte offsets into the source tensors (row-major int8).
	WeightOffset     int64
	ActivationOffset int64

	WeightBytes     int64
	ActivationBytes int64

	// StreamLen is the number of activation vectors streamed through the
	// resident weights (the batch dimension of the layer input).
	StreamLen int

	// EstCycles = max(weight load, activation stream) + fill/drain latency.
	EstCycles int
}

// DirectiveKind enumerates schedule entries. Memory-transfer directives are
// interleaved with compute so the scheduler can overlap DMA with array passes.
type DirectiveKind int

const (
	DirectiveInvalid DirectiveKind = iota
	DirectiveWeightLoad
	DirectiveActivationDMA
	DirectiveBufferSwap
	DirectiveCompute
	DirectiveElementwise
)

func (k DirectiveKind) String() string {
	switch k {
	case DirectiveWeightLoad:
		return "weight_load"
	case DirectiveActivationDMA:
		return "activation_dma"
	case DirectiveBufferSwap:
		return "buffer_swap"
	case DirectiveCompute:
		return "compute"
	case DirectiveElementwise:
		return "elementwise"
	default:
		return "invalid"
	}
}

// Directive is one entry of a Schedule. Tile is nil for elementwise entries.
type Directive struct {
	Kind      DirectiveKind
	LayerID   int
	Tile      *Tile
	EstCycles int
}

// Schedule is the ordered execution plan for one compiled model. It is
// immutable after the mapper emits it and may be shared across runs.
type Schedule struct {
	ModelID    string
	Tiles      []*Tile
	Directives []*Directive

	TotalEstCycles int64
}

// LayerTiles returns the tiles belonging to the given layer, in issue order.
func (s *Schedule) LayerTiles(layerID int) []*Tile {
	tiles := make([]*Tile, 0)
	for _, tile := range s.Tiles {
		if tile.LayerID == layerID {
			tiles = append(tiles, tile)
		}
	}
	return tiles
}

// NextTileAfter returns the tile issued after the given one, or nil at the
// end of the schedule. The stager uses it to prefetch one tile ahead.
func (s *Schedule) NextTileAfter(tile *Tile) *Tile {
	for i, candidate := range s.Tiles {
		if candidate == tile {
			if i+1 < len(s.Tiles) {
				return s.Tiles[i+1]
			}
			return nil
		}
	}
	return nil
}
